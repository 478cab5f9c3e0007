package data

import (
	"context"

	"github.com/devricklin/discord-relay/internal/biz/repo"
	"github.com/devricklin/discord-relay/internal/infra/discord"
)

// discordRepo implements the chat repository
type discordRepo struct {
	client *discord.Client
}

// NewDiscordRepo creates a new Discord repository
func NewDiscordRepo(client *discord.Client) repo.ChatRepo {
	return &discordRepo{client: client}
}

// SelfID returns the bot user ID
func (r *discordRepo) SelfID() string {
	return r.client.Self().ID
}

// SendText sends a text message
func (r *discordRepo) SendText(ctx context.Context, channelID, text string) error {
	return r.client.SendText(ctx, channelID, text)
}
