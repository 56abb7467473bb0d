package session

// Routes is the connection route table.
func Routes(chat *ChatHandler, receipts *ReceiptHandler, presence *PresenceHandler) []Route {
	return []Route{
		{Pattern: "/ws/chat/{" + RoomVar + "}", Handler: chat},
		{Pattern: "/ws/rs/{" + RoomVar + "}", Handler: receipts},
		{Pattern: "/ws/presence/{" + RoomVar + "}", Handler: presence},
	}
}
