package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame_Kinds(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want FrameKind
	}{
		{"tagged chat", `{"type":"chat","message":"hi"}`, FrameChat},
		{"shape chat", `{"message":"hi"}`, FrameChat},
		{"tagged read", `{"type":"read","msgId":"m1"}`, FrameRead},
		{"shape read", `{"msgId":"m1","participants":["a","b"]}`, FrameRead},
		{"shape read legacy ids", `{"msgId":"m1","inUserIds":[]}`, FrameRead},
		{"msgId alone", `{"msgId":"m1"}`, FrameUnknown},
		{"status", `{"status":"online"}`, FrameStatus},
		{"unknown tag", `{"type":"typing"}`, FrameUnknown},
		{"empty", `{}`, FrameUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := ParseFrame([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, f.Kind())
		})
	}
}

func TestParseFrame_Malformed(t *testing.T) {
	for _, raw := range []string{`not json`, `[1,2]`, `{"participants":"a"}`} {
		_, err := ParseFrame([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedFrame, raw)
	}
}

func TestInboundFrame_Fields(t *testing.T) {
	f, err := ParseFrame([]byte(`{"type":"chat","message":"  ","isNewRoomMsg":"true","participants":["a","b"],"inUserIds":["b","c",""]}`))
	require.NoError(t, err)

	_, err = f.Body()
	assert.ErrorIs(t, err, ErrMalformedFrame)
	assert.True(t, bool(f.IsNewRoomMsg))
	assert.Equal(t, []string{"a", "b", "c"}, f.Recipients())

	f, err = ParseFrame([]byte(`{"message":"hello","isNewRoomMsg":false}`))
	require.NoError(t, err)
	body, err := f.Body()
	require.NoError(t, err)
	assert.Equal(t, "hello", body)
	assert.False(t, bool(f.IsNewRoomMsg))
}

func TestNewChatMessage_MsgID(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	kept := NewChatMessage("client-1", "r1", "userA", "hi", now)
	assert.Equal(t, "client-1", kept.MsgID)

	a := NewChatMessage("", "r1", "userA", "hi", now)
	b := NewChatMessage("  ", "r1", "userA", "hi", now)
	assert.NotEmpty(t, a.MsgID)
	assert.NotEmpty(t, b.MsgID)
	assert.NotEqual(t, a.MsgID, b.MsgID)
	assert.Equal(t, now, a.Timestamp)
}

func TestParseReadValue(t *testing.T) {
	cases := []struct {
		value string
		want  ReadEntry
	}{
		{"m42_2024-01-01T00:00:00.000", ReadEntry{"u", "m42", "2024-01-01T00:00:00.000"}},
		{"msg_with_underscores_2024-01-01T00:00:00.000", ReadEntry{"u", "msg_with_underscores", "2024-01-01T00:00:00.000"}},
		{"m42", ReadEntry{"u", "m42", DefaultReadTimestamp}},
		{"_2024-01-01T00:00:00.000", ReadEntry{"u", DefaultReadMsgID, "2024-01-01T00:00:00.000"}},
		{"m42_", ReadEntry{"u", "m42", DefaultReadTimestamp}},
		{"", ReadEntry{"u", DefaultReadMsgID, DefaultReadTimestamp}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseReadValue("u", tc.value), tc.value)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Online ")
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, s)

	_, err = ParseStatus("away")
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestFormatReadTimestamp(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	assert.Equal(t, "2024-01-02T03:04:05.006", FormatReadTimestamp(ts))
	r := ReadReceipt{MsgID: "m1", Timestamp: FormatReadTimestamp(ts)}
	assert.Equal(t, "m1_2024-01-02T03:04:05.006", r.Value())
}
