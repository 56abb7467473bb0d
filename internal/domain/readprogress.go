package domain

import (
	"strings"
	"time"
)

const (
	// ReadTimestampLayout is the layout of the timestamp suffix in a read value.
	ReadTimestampLayout = "2006-01-02T15:04:05.000"

	// DefaultReadMsgID and DefaultReadTimestamp fill read list entries whose
	// cached value is missing a part.
	DefaultReadMsgID     = "INITIAL"
	DefaultReadTimestamp = "1970-01-01T00:00:00.123"
)

// ReadReceipt reports that UserID has seen MsgID in RoomID. Only its effect on
// read progress is persisted.
type ReadReceipt struct {
	RoomID       string   `json:"roomId"`
	UserID       string   `json:"userId"`
	MsgID        string   `json:"msgId"`
	Participants []string `json:"participants,omitempty"`
	Timestamp    string   `json:"timestamp"`
}

// Value renders the cache value `{msgId}_{timestamp}`.
func (r *ReadReceipt) Value() string {
	return FormatReadValue(r.MsgID, r.Timestamp)
}

// FormatReadValue joins a message id and timestamp.
func FormatReadValue(msgID, ts string) string {
	return msgID + "_" + ts
}

// FormatReadTimestamp renders t in ReadTimestampLayout (UTC).
func FormatReadTimestamp(t time.Time) string {
	return t.UTC().Format(ReadTimestampLayout)
}

// ReadEntry is one participant's position in a read list.
type ReadEntry struct {
	UserID    string `json:"userId"`
	MsgID     string `json:"msgId"`
	Timestamp string `json:"timestamp"`
}

// ParseReadValue splits a cached value on its last underscore, so message ids
// containing underscores survive. Missing parts take the defaults.
func ParseReadValue(userID, value string) ReadEntry {
	e := ReadEntry{UserID: userID, MsgID: DefaultReadMsgID, Timestamp: DefaultReadTimestamp}
	i := strings.LastIndex(value, "_")
	if i < 0 {
		if value != "" {
			e.MsgID = value
		}
		return e
	}
	if id := value[:i]; id != "" {
		e.MsgID = id
	}
	if ts := value[i+1:]; ts != "" {
		e.Timestamp = ts
	}
	return e
}

// ReadListBroadcast is sent to room participants when read progress changes.
type ReadListBroadcast struct {
	Type     string      `json:"type"`
	RoomID   string      `json:"roomId"`
	UserID   string      `json:"userId"`
	ReadList []ReadEntry `json:"readList"`
}
