package domain

import "time"

// RoomTypeGroup is the room type assigned to rooms created from a chat frame.
const RoomTypeGroup = "1"

// ChatRoom is the room metadata the delivery core reads and mutates.
type ChatRoom struct {
	RoomID          string    `json:"roomId"`
	Participants    []string  `json:"participants"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	LastSender      string    `json:"lastSender"`
	RoomType        string    `json:"roomType"`
}

// RoomUpdate is the room-metadata change appended to the pipeline after every
// accepted message.
type RoomUpdate struct {
	RoomID          string    `json:"roomId"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	LastSender      string    `json:"lastSender"`
}

// RoomUpdateFrom derives the metadata update for msg.
func RoomUpdateFrom(msg *ChatMessage) *RoomUpdate {
	return &RoomUpdate{
		RoomID:          msg.RoomID,
		LastMessage:     msg.Body,
		LastMessageTime: msg.Timestamp,
		LastSender:      msg.Sender,
	}
}
