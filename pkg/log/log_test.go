package log

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"  WARN ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"trace", zerolog.TraceLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseLevel(tc.in), "level %q", tc.in)
	}
}

func TestNew_TagsServiceAndInstance(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", ServiceName: "chat-realtime", InstanceID: "i-1"}, &buf)
	l.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "chat-realtime", line[FieldService])
	assert.Equal(t, "i-1", line[FieldInstanceID])
	assert.Equal(t, "hello", line["message"])
}

func TestCtx_FallsBackToGlobal(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{}, &buf)

	ctx := WithLogger(context.Background(), l)
	ctx, _ = WithRoom(ctx, "r1", "u1")
	got := Ctx(ctx)
	got.Info().Msg("scoped")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "r1", line[FieldRoomID])
	assert.Equal(t, "u1", line[FieldUserID])

	// No logger stored: the global one is returned without panicking.
	g := Ctx(context.Background())
	g.Debug().Msg("global")
}

func TestHTTPMiddleware_SetsRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{}, &buf)

	h := HTTPMiddleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(headerRequestID, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(headerRequestID))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-42", line[FieldRequestID])
	assert.EqualValues(t, http.StatusTeapot, line[FieldStatus])
}
