package server

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/devricklin/discord-relay/internal/biz/domain"
	"github.com/devricklin/discord-relay/internal/infra/discord"
	"github.com/devricklin/discord-relay/internal/telemetry"
)

// seenTTL is how long a message id is remembered for deduplication
const seenTTL = 5 * time.Minute

// Gateway is the inbound side of the chat platform
type Gateway interface {
	OnMessage(handler func(*discord.Message))
	OnReady(handler func(discord.Identity))
	Open() error
	Close() error
}

// Dispatcher accepts messages for background handling
type Dispatcher interface {
	Dispatch(msg *domain.IncomingMessage) error
}

// DiscordServer feeds gateway events into the relay
type DiscordServer struct {
	gateway    Gateway
	dispatcher Dispatcher
	bot        domain.BotConfig
	banner     io.Writer
	logger     *slog.Logger
	now        func() time.Time

	// Message deduplication cache
	seenMsgsMu sync.Mutex
	seenMsgs   map[string]time.Time // msgID -> timestamp
}

// NewDiscordServer creates a new Discord server
func NewDiscordServer(gateway Gateway, dispatcher Dispatcher, bot domain.BotConfig) *DiscordServer {
	return &DiscordServer{
		gateway:    gateway,
		dispatcher: dispatcher,
		bot:        bot,
		banner:     os.Stdout,
		logger:     slog.With("component", "server"),
		now:        time.Now,
		seenMsgs:   make(map[string]time.Time),
	}
}

// Start registers handlers and connects to the gateway
func (s *DiscordServer) Start() error {
	s.gateway.OnReady(s.handleReady)
	s.gateway.OnMessage(s.handleMessage)
	if err := s.gateway.Open(); err != nil {
		return fmt.Errorf("failed to connect to discord: %w", err)
	}
	return nil
}

// Stop disconnects from the gateway
func (s *DiscordServer) Stop() error {
	return s.gateway.Close()
}

func (s *DiscordServer) handleReady(self discord.Identity) {
	fmt.Fprintln(s.banner, "--------------------------------------------------")
	fmt.Fprintf(s.banner, "Bot %s is online.\n", self.Username)
	fmt.Fprintf(s.banner, "Reply delay set to: %d seconds\n", int64(s.bot.ReplyDelay/time.Second))
	fmt.Fprintf(s.banner, "Bot will only reply in Channel ID: %s\n", s.bot.ChannelID)
	fmt.Fprintln(s.banner, "--------------------------------------------------")
}

// handleMessage handles gateway messages
func (s *DiscordServer) handleMessage(msg *discord.Message) {
	telemetry.IncMessagesReceived()

	// Message deduplication: check if already processed
	if !s.markMessageSeen(msg.ID) {
		s.logger.Debug("duplicate message ignored", "msg_id", msg.ID)
		return
	}

	in := &domain.IncomingMessage{
		ID:         msg.ID,
		ChannelID:  msg.ChannelID,
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
		Text:       msg.Content,
		ReceivedAt: s.now(),
	}

	if err := s.dispatcher.Dispatch(in); err != nil {
		s.logger.Warn("message dropped", "msg_id", msg.ID, "err", err)
	}
}

// markMessageSeen records msgID and reports whether it was new
func (s *DiscordServer) markMessageSeen(msgID string) bool {
	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()

	now := s.now()
	if ts, exists := s.seenMsgs[msgID]; exists && now.Sub(ts) < seenTTL {
		return false
	}
	s.seenMsgs[msgID] = now

	// Clean up expired records when marking new messages
	cutoff := now.Add(-seenTTL)
	for id, ts := range s.seenMsgs {
		if ts.Before(cutoff) {
			delete(s.seenMsgs, id)
		}
	}
	return true
}
