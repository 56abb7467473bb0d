package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-chat-realtime/pkg/log"
)

func TestLogRoom_TagsEntry(t *testing.T) {
	var buf bytes.Buffer
	ctx := log.WithLogger(context.Background(), zerolog.New(&buf))

	LogRoom(ctx, ActionRoomCreated, "r1", "userA", "group", "room created")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, log.LogTypeAudit, entry[log.FieldLogType])
	assert.Equal(t, ActionRoomCreated, entry[FieldAction])
	assert.Equal(t, "userA", entry[log.FieldUserID])
	assert.Equal(t, "r1", entry[log.FieldRoomID])
	assert.Equal(t, "group", entry[FieldDetail])
	assert.Equal(t, "room created", entry["message"])
}

func TestLogRoom_OmitsEmptyDetail(t *testing.T) {
	var buf bytes.Buffer
	ctx := log.WithLogger(context.Background(), zerolog.New(&buf))

	LogRoom(ctx, ActionSessionRejected, "r1", "", "", "handshake rejected")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, FieldDetail)
	assert.Equal(t, ActionSessionRejected, entry[FieldAction])
}
