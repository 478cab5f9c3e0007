package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Message is an inbound Discord text message
type Message struct {
	ID         string
	ChannelID  string
	GuildID    string
	AuthorID   string
	AuthorName string
	AuthorBot  bool
	Content    string
	CreateTime time.Time
}

// Identity is the bot user reported by the gateway
type Identity struct {
	ID       string
	Username string
}

// Client wraps a discordgo session for a single bot user
type Client struct {
	session *discordgo.Session
	logger  *slog.Logger

	mu        sync.RWMutex
	self      Identity
	onMessage func(*Message)
	onReady   func(Identity)
}

// NewClient creates a new Discord client. The gateway is not opened until Open.
func NewClient(token string) (*Client, error) {
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}

	session, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	// Message content is a privileged intent; it must also be enabled in the developer portal
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	c := &Client{
		session: session,
		logger:  slog.With("component", "discord"),
	}
	session.AddHandler(c.handleReady)
	session.AddHandler(c.handleMessageCreate)
	return c, nil
}

// OnMessage sets the inbound message handler
func (c *Client) OnMessage(handler func(*Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

// OnReady sets the handler called once the gateway session is established
func (c *Client) OnReady(handler func(Identity)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReady = handler
}

// Open connects to the gateway
func (c *Client) Open() error {
	c.logger.Info("opening gateway connection")
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	return nil
}

// Close disconnects from the gateway
func (c *Client) Close() error {
	return c.session.Close()
}

// Self returns the bot identity (zero until the gateway is ready)
func (c *Client) Self() Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.self
}

// SendText sends text to a channel, split into as many messages as the
// Discord length limit requires. It fails on the first chunk that fails.
func (c *Client) SendText(ctx context.Context, channelID, text string) error {
	chunks := SplitMessage(text, MaxMessageLength)
	for i, chunk := range chunks {
		if _, err := c.session.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send message part %d/%d: %w", i+1, len(chunks), err)
		}
	}
	c.logger.Debug("message sent", "channel", channelID, "parts", len(chunks))
	return nil
}

func (c *Client) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User == nil {
		return
	}
	id := Identity{ID: r.User.ID, Username: r.User.String()}

	c.mu.Lock()
	c.self = id
	handler := c.onReady
	c.mu.Unlock()

	if handler != nil {
		handler(id)
	}
}

func (c *Client) handleMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	msg := toMessage(m)
	if msg == nil {
		return
	}

	c.mu.RLock()
	handler := c.onMessage
	c.mu.RUnlock()

	if handler != nil {
		handler(msg)
	}
}

func toMessage(m *discordgo.MessageCreate) *Message {
	if m == nil || m.Message == nil || m.Author == nil {
		return nil
	}

	name := m.Author.GlobalName
	if name == "" {
		name = m.Author.Username
	}

	createTime := m.Timestamp
	if createTime.IsZero() {
		createTime = time.Now()
	}

	return &Message{
		ID:         m.ID,
		ChannelID:  m.ChannelID,
		GuildID:    m.GuildID,
		AuthorID:   m.Author.ID,
		AuthorName: name,
		AuthorBot:  m.Author.Bot,
		Content:    m.Content,
		CreateTime: createTime,
	}
}
