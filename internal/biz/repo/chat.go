package repo

import "context"

// ChatRepo is the chat platform interface
// The event stream side is driven by the server layer; usecases only need to talk back
type ChatRepo interface {
	// SelfID returns the bot's own user ID (empty until the gateway is ready)
	SelfID() string

	// SendText sends a text message to a channel
	SendText(ctx context.Context, channelID, text string) error
}
