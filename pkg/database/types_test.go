package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringArray_ScanFormats(t *testing.T) {
	var a StringArray
	require.NoError(t, a.Scan(`["u1","u2"]`))
	assert.Equal(t, StringArray{"u1", "u2"}, a)

	require.NoError(t, a.Scan([]byte(`{u1,"u,2"}`)))
	assert.Equal(t, StringArray{"u1", "u,2"}, a)
	assert.True(t, a.Contains("u,2"))
	assert.False(t, a.Contains("u3"))

	require.NoError(t, a.Scan(nil))
	assert.Nil(t, a)
}

func TestStringMap_ScanValue(t *testing.T) {
	var m StringMap
	require.NoError(t, m.Scan(nil))
	assert.Empty(t, m)
	assert.NotNil(t, m)

	require.NoError(t, m.Scan(`{"userA":"m42_2024-01-01T00:00:00.000"}`))
	assert.Equal(t, "m42_2024-01-01T00:00:00.000", m["userA"])

	v, err := StringMap(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)

	assert.Error(t, m.Scan(42))
}
