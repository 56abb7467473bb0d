package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedFrame marks an inbound frame that cannot be acted on.
var ErrMalformedFrame = errors.New("malformed frame")

// FrameKind is the inferred kind of an inbound frame.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameChat
	FrameRead
	FrameStatus
)

func (k FrameKind) String() string {
	switch k {
	case FrameChat:
		return "chat"
	case FrameRead:
		return "read"
	case FrameStatus:
		return "status"
	default:
		return "unknown"
	}
}

// FlexBool accepts true, "true" and "1".
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch strings.ToLower(strings.Trim(string(data), `"`)) {
	case "true", "1", "y", "yes":
		*b = true
	default:
		*b = false
	}
	return nil
}

// InboundFrame is the union of every client frame. Which fields matter depends
// on the kind, see Kind.
type InboundFrame struct {
	Type         string   `json:"type"`
	MsgID        string   `json:"msgId"`
	Message      *string  `json:"message"`
	Participants []string `json:"participants"`
	InUserIDs    []string `json:"inUserIds"`
	IsNewRoomMsg FlexBool `json:"isNewRoomMsg"`
	UserID       string   `json:"userId"`
	RoomID       string   `json:"roomId"`
	Timestamp    string   `json:"timestamp"`
	Status       string   `json:"status"`

	hasParticipants bool
}

// ParseFrame decodes a client frame.
func ParseFrame(data []byte) (*InboundFrame, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	_, p := raw["participants"]
	_, in := raw["inUserIds"]
	f.hasParticipants = p || in
	return &f, nil
}

// Kind infers the frame kind from the type tag, falling back to shape.
func (f *InboundFrame) Kind() FrameKind {
	switch strings.ToLower(strings.TrimSpace(f.Type)) {
	case "chat":
		return FrameChat
	case "read":
		return FrameRead
	case "status":
		return FrameStatus
	case "":
	default:
		return FrameUnknown
	}
	switch {
	case f.Message != nil:
		return FrameChat
	case f.MsgID != "" && f.hasParticipants:
		return FrameRead
	case f.Status != "":
		return FrameStatus
	}
	return FrameUnknown
}

// Body returns the chat text, or an error when it is missing or blank.
func (f *InboundFrame) Body() (string, error) {
	if f.Message == nil || strings.TrimSpace(*f.Message) == "" {
		return "", fmt.Errorf("%w: message is required", ErrMalformedFrame)
	}
	return *f.Message, nil
}

// Recipients merges participants and the legacy inUserIds field, de-duplicated.
func (f *InboundFrame) Recipients() []string {
	seen := make(map[string]struct{}, len(f.Participants)+len(f.InUserIDs))
	out := make([]string, 0, len(f.Participants)+len(f.InUserIDs))
	for _, list := range [][]string{f.Participants, f.InUserIDs} {
		for _, u := range list {
			u = strings.TrimSpace(u)
			if u == "" {
				continue
			}
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}
