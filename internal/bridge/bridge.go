// Package bridge carries presence and read-progress signals between
// instances over Redis Pub/Sub. Signals are advisory: a subscriber that is
// not connected when one is published never sees it.
package bridge

import "github.com/weiawesome/wes-chat-realtime/internal/domain"

// Pub/Sub channels.
const (
	ChannelPresence = "onlineUpdate"
	ChannelRead     = "chatReadUpdate"
)

// ReadSignal is the chatReadUpdate payload. Receivers re-resolve the room's
// read list rather than trusting a value carried in the signal.
type ReadSignal struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// PresenceSignal is the onlineUpdate payload; it is already the status
// broadcast frame.
type PresenceSignal = domain.StatusBroadcast
