package domain

import "time"

// IncomingMessage represents one inbound chat message
type IncomingMessage struct {
	ID         string
	ChannelID  string
	AuthorID   string
	AuthorName string
	Text       string
	ReceivedAt time.Time
}

// IsFrom checks if the message was written by the given user
func (m *IncomingMessage) IsFrom(userID string) bool {
	return userID != "" && m.AuthorID == userID
}

// InChannel checks if the message was posted in the given channel
func (m *IncomingMessage) InChannel(channelID string) bool {
	return m.ChannelID == channelID
}
