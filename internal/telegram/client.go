// Package telegram implements the MTProto client used to read public
// channel history. Channel history is not available through the Bot API,
// so this package runs a user-account client (gotd/td) with a session
// file that must already be authorized.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"

	"tgarchive/internal/config"
)

var (
	// ErrNotAuthorized is returned when the session file exists but is
	// not logged in. Authorization is done out of band.
	ErrNotAuthorized = errors.New("telegram session is not authorized")

	// ErrChannelNotFound is returned when a username does not resolve
	// to a channel.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrNotConnected is returned when a fetch is attempted before the
	// client has connected.
	ErrNotConnected = errors.New("telegram client is not connected")
)

// ChannelPost is a single text message read from a channel.
type ChannelPost struct {
	MessageID int
	Text      string
	PostedAt  time.Time
}

// HistoryPage is one page of a channel history walk. Read counts every
// message seen, including service messages and posts without text, which
// are not included in Posts.
type HistoryPage struct {
	Posts []ChannelPost
	Read  int

	// NewestMessageID is the ID of the first (most recent) message in
	// the page, or 0 for an empty page.
	NewestMessageID int

	// NextOffsetID is the offset to request the following page with,
	// or 0 when this page was empty and the walk is complete.
	NextOffsetID int
}

// HistoryFetcher reads pages of a channel's message history, newest
// first. offsetID = 0 starts from the most recent message.
type HistoryFetcher interface {
	FetchHistoryPage(ctx context.Context, username string, offsetID, limit int) (*HistoryPage, error)
}

// Client wraps a gotd MTProto client. It must be started with Run before
// any fetches; API calls are only valid while Run is active.
type Client struct {
	client  *telegram.Client
	logger  *slog.Logger
	timeout time.Duration

	ready chan struct{}

	mu    sync.Mutex
	peers map[string]tg.InputPeerChannel
}

// NewClient creates a Telegram client from the given configuration.
func NewClient(cfg config.TelegramConfig, logger *slog.Logger) *Client {
	tgClient := telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionFile},
	})

	return &Client{
		client:  tgClient,
		logger:  logger.With("component", "telegram_client"),
		timeout: cfg.RequestTimeout,
		ready:   make(chan struct{}),
		peers:   make(map[string]tg.InputPeerChannel),
	}
}

// Run connects the client and blocks until ctx is cancelled or the
// connection fails. It verifies that the stored session is authorized
// and fails fast when it is not.
func (c *Client) Run(ctx context.Context) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		status, err := c.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to check telegram auth status: %w", err)
		}
		if !status.Authorized {
			return ErrNotAuthorized
		}

		c.logger.Info("Telegram client connected", "user_id", status.User.GetID())
		close(c.ready)

		<-ctx.Done()
		c.logger.Info("Telegram client disconnecting")
		return ctx.Err()
	})
}

// WaitReady blocks until the client is connected and authorized, or the
// context is cancelled.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrNotConnected, ctx.Err())
	}
}

func (c *Client) connected() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

// FetchHistoryPage reads one page of channel history via
// messages.getHistory, mirroring a Telethon GetHistoryRequest walk.
func (c *Client) FetchHistoryPage(ctx context.Context, username string, offsetID, limit int) (*HistoryPage, error) {
	if !c.connected() {
		return nil, ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	peer, err := c.resolveChannel(ctx, username)
	if err != nil {
		return nil, err
	}

	res, err := c.client.API().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:     &peer,
		OffsetID: offsetID,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get history for channel %s: %w", username, err)
	}

	messages, err := extractMessages(res)
	if err != nil {
		return nil, fmt.Errorf("failed to read history response for channel %s: %w", username, err)
	}

	page := collectPage(messages)
	c.logger.Debug("Fetched history page",
		"channel", username, "offset_id", offsetID, "read", page.Read, "posts", len(page.Posts))
	return page, nil
}

// resolveChannel resolves a public username to an input peer. Resolved
// peers are cached; contacts.resolveUsername is heavily rate limited.
func (c *Client) resolveChannel(ctx context.Context, username string) (tg.InputPeerChannel, error) {
	username = strings.TrimPrefix(username, "@")

	c.mu.Lock()
	peer, ok := c.peers[username]
	c.mu.Unlock()
	if ok {
		return peer, nil
	}

	res, err := c.client.API().ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		return tg.InputPeerChannel{}, fmt.Errorf("failed to resolve username %s: %w", username, err)
	}

	for _, chat := range res.Chats {
		channel, ok := chat.(*tg.Channel)
		if !ok {
			continue
		}
		if !channelMatches(channel, username) {
			continue
		}
		peer = tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}

		c.mu.Lock()
		c.peers[username] = peer
		c.mu.Unlock()

		return peer, nil
	}

	return tg.InputPeerChannel{}, fmt.Errorf("%w: %s", ErrChannelNotFound, username)
}

// channelMatches reports whether the channel carries the username,
// either as its main username or as one of its active collective
// usernames (channels using those can have an empty Username field).
func channelMatches(channel *tg.Channel, username string) bool {
	if strings.EqualFold(channel.Username, username) {
		return true
	}
	for _, u := range channel.Usernames {
		if u.Active && strings.EqualFold(u.Username, username) {
			return true
		}
	}
	return false
}

// extractMessages unwraps the messages.getHistory result variants.
func extractMessages(res tg.MessagesMessagesClass) ([]tg.MessageClass, error) {
	switch m := res.(type) {
	case *tg.MessagesChannelMessages:
		return m.Messages, nil
	case *tg.MessagesMessagesSlice:
		return m.Messages, nil
	case *tg.MessagesMessages:
		return m.Messages, nil
	default:
		return nil, fmt.Errorf("unexpected history response type %T", res)
	}
}

// collectPage converts raw history messages into a HistoryPage. Every
// message counts as read; only plain messages with non-empty text become
// posts. The next offset is the ID of the last (oldest) message in the
// page regardless of its type, matching the walk of the history API.
func collectPage(messages []tg.MessageClass) *HistoryPage {
	page := &HistoryPage{Read: len(messages)}
	if len(messages) == 0 {
		return page
	}

	for _, raw := range messages {
		msg, ok := raw.(*tg.Message)
		if !ok || msg.Message == "" {
			continue
		}
		page.Posts = append(page.Posts, ChannelPost{
			MessageID: msg.ID,
			Text:      msg.Message,
			PostedAt:  time.Unix(int64(msg.Date), 0).UTC(),
		})
	}

	page.NewestMessageID = messages[0].GetID()
	page.NextOffsetID = messages[len(messages)-1].GetID()
	return page
}
