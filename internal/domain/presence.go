package domain

import (
	"fmt"
	"strings"
)

// Status is a presence state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// ParseStatus accepts online/offline in any case.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusOnline:
		return StatusOnline, nil
	case StatusOffline:
		return StatusOffline, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrMalformedFrame, s)
}

const (
	MsgTypeStatus   = "status"
	MsgTypeReadList = "readList"
)

// StatusBroadcast is sent to room participants on a presence transition. The
// same shape travels on the bridge.
type StatusBroadcast struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Status Status `json:"status"`
	RoomID string `json:"roomId"`
}

// NewStatusBroadcast builds a status frame.
func NewStatusBroadcast(roomID, userID string, status Status) *StatusBroadcast {
	return &StatusBroadcast{Type: MsgTypeStatus, UserID: userID, Status: status, RoomID: roomID}
}
