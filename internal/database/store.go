package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for archive database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SavePosts inserts the given posts, ignoring ones already stored
	// for their (channel, message_id) pair. Returns the number of rows
	// actually inserted.
	SavePosts(ctx context.Context, posts []*Post) (int, error)

	// GetPosts retrieves up to limit posts of a channel ordered by
	// posted_at descending, skipping offset rows.
	GetPosts(ctx context.Context, channelUsername string, limit, offset int) ([]Post, error)

	// GetAllPosts retrieves every archived post of a channel ordered by
	// posted_at descending.
	GetAllPosts(ctx context.Context, channelUsername string) ([]Post, error)

	// CountPosts returns the number of archived posts for a channel.
	CountPosts(ctx context.Context, channelUsername string) (int, error)

	// LatestFetchedAt returns the fetched_at of the channel's newest
	// post, or the zero time if the channel has no posts.
	LatestFetchedAt(ctx context.Context, channelUsername string) (time.Time, error)

	// UpsertChannel records a completed fetch for a channel.
	UpsertChannel(ctx context.Context, username string, lastMessageID int, fetchedAt time.Time) error

	// GetChannel retrieves a tracked channel. Returns nil, nil if the
	// channel has never been fetched.
	GetChannel(ctx context.Context, username string) (*Channel, error)

	// ListChannels retrieves all tracked channels.
	ListChannels(ctx context.Context) ([]Channel, error)

	// StaleChannels retrieves channels whose last fetch is older than
	// the given cutoff (or that have never completed a fetch).
	StaleChannels(ctx context.Context, cutoff time.Time) ([]Channel, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SavePosts inserts new posts inside a single transaction. Posts whose
// (channel, message_id) pair already exists are skipped silently, which
// keeps re-fetches idempotent.
func (s *sqlxStore) SavePosts(ctx context.Context, posts []*Post) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	for _, p := range posts {
		if p == nil {
			return 0, fmt.Errorf("cannot save nil post")
		}
		if p.ChannelUsername == "" {
			return 0, fmt.Errorf("post must have a channel username")
		}
		if p.MessageID == 0 {
			return 0, fmt.Errorf("post must have a non-zero message_id")
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for saving posts", "error", err)
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	query := `
        INSERT INTO posts (channel_username, message_id, content, posted_at, fetched_at, created_at)
        VALUES (:channel_username, :message_id, :content, :posted_at, :fetched_at, :created_at)
        ON CONFLICT (channel_username, message_id) DO NOTHING;
    `

	now := time.Now().UTC()
	stored := 0
	for _, p := range posts {
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		result, err := tx.NamedExecContext(ctx, query, p)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error saving post",
				"channel", p.ChannelUsername, "message_id", p.MessageID, "error", err)
			return 0, fmt.Errorf("failed to save post %d for channel %s: %w", p.MessageID, p.ChannelUsername, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			s.logger.WarnContext(ctx, "Could not get affected row count for post",
				"channel", p.ChannelUsername, "message_id", p.MessageID, "error", err)
			continue
		}
		stored += int(affected)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction for saving posts", "error", err)
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Posts saved",
		"channel", posts[0].ChannelUsername, "received", len(posts), "stored", stored)
	return stored, nil
}

// GetPosts retrieves a page of posts ordered by posted_at descending.
func (s *sqlxStore) GetPosts(ctx context.Context, channelUsername string, limit, offset int) ([]Post, error) {
	if channelUsername == "" {
		return nil, fmt.Errorf("channel username cannot be empty")
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var posts []Post
	query := `
        SELECT id, channel_username, message_id, content, posted_at, fetched_at, created_at
        FROM posts
        WHERE channel_username = ?
        ORDER BY posted_at DESC, message_id DESC
        LIMIT ? OFFSET ?;
    `

	err := s.db.SelectContext(ctx, &posts, query, channelUsername, limit, offset)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching posts",
			"channel", channelUsername, "error", err)
		return nil, err
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting posts",
			"channel", channelUsername, "limit", limit, "offset", offset, "error", err)
		return nil, fmt.Errorf("failed to get posts for channel %s: %w", channelUsername, err)
	}

	return posts, nil
}

// GetAllPosts retrieves every archived post of a channel.
func (s *sqlxStore) GetAllPosts(ctx context.Context, channelUsername string) ([]Post, error) {
	if channelUsername == "" {
		return nil, fmt.Errorf("channel username cannot be empty")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var posts []Post
	query := `
        SELECT id, channel_username, message_id, content, posted_at, fetched_at, created_at
        FROM posts
        WHERE channel_username = ?
        ORDER BY posted_at DESC, message_id DESC;
    `

	err := s.db.SelectContext(ctx, &posts, query, channelUsername)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting all posts", "channel", channelUsername, "error", err)
		return nil, fmt.Errorf("failed to get all posts for channel %s: %w", channelUsername, err)
	}

	return posts, nil
}

// CountPosts returns the number of archived posts for a channel.
func (s *sqlxStore) CountPosts(ctx context.Context, channelUsername string) (int, error) {
	if channelUsername == "" {
		return 0, fmt.Errorf("channel username cannot be empty")
	}

	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM posts WHERE channel_username = ?`, channelUsername)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error counting posts", "channel", channelUsername, "error", err)
		return 0, fmt.Errorf("failed to count posts for channel %s: %w", channelUsername, err)
	}
	return count, nil
}

// LatestFetchedAt returns the fetched_at timestamp of the channel's
// newest post. A channel with no posts yields the zero time and no error.
func (s *sqlxStore) LatestFetchedAt(ctx context.Context, channelUsername string) (time.Time, error) {
	if channelUsername == "" {
		return time.Time{}, fmt.Errorf("channel username cannot be empty")
	}

	var fetchedAt time.Time
	query := `
        SELECT fetched_at FROM posts
        WHERE channel_username = ?
        ORDER BY posted_at DESC, message_id DESC
        LIMIT 1;
    `

	err := s.db.GetContext(ctx, &fetchedAt, query, channelUsername)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting latest fetch time", "channel", channelUsername, "error", err)
		return time.Time{}, fmt.Errorf("failed to get latest fetch time for channel %s: %w", channelUsername, err)
	}

	return fetchedAt, nil
}

// UpsertChannel records a completed fetch for a channel, creating the
// tracking row on first fetch.
func (s *sqlxStore) UpsertChannel(ctx context.Context, username string, lastMessageID int, fetchedAt time.Time) error {
	if username == "" {
		return fmt.Errorf("channel username cannot be empty")
	}

	now := time.Now().UTC()
	query := `
        INSERT INTO channels (username, last_message_id, last_fetched_at, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (username) DO UPDATE SET
            last_message_id = excluded.last_message_id,
            last_fetched_at = excluded.last_fetched_at,
            updated_at = excluded.updated_at;
    `

	if _, err := s.db.ExecContext(ctx, query, username, lastMessageID, fetchedAt, now, now); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting channel", "channel", username, "error", err)
		return fmt.Errorf("failed to upsert channel %s: %w", username, err)
	}

	s.logger.DebugContext(ctx, "Channel upserted",
		"channel", username, "last_message_id", lastMessageID)
	return nil
}

// GetChannel retrieves a tracked channel. Returns nil, nil if not found.
func (s *sqlxStore) GetChannel(ctx context.Context, username string) (*Channel, error) {
	if username == "" {
		return nil, fmt.Errorf("channel username cannot be empty")
	}

	var channel Channel
	query := `
        SELECT username, last_message_id, last_fetched_at, created_at, updated_at
        FROM channels WHERE username = ?;
    `

	err := s.db.GetContext(ctx, &channel, query, username)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting channel", "channel", username, "error", err)
		return nil, fmt.Errorf("failed to get channel %s: %w", username, err)
	}

	return &channel, nil
}

// ListChannels retrieves all tracked channels.
func (s *sqlxStore) ListChannels(ctx context.Context) ([]Channel, error) {
	var channels []Channel
	query := `
        SELECT username, last_message_id, last_fetched_at, created_at, updated_at
        FROM channels
        ORDER BY username;
    `

	if err := s.db.SelectContext(ctx, &channels, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing channels", "error", err)
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

// StaleChannels retrieves channels whose last fetch predates the cutoff,
// including ones that never completed a fetch.
func (s *sqlxStore) StaleChannels(ctx context.Context, cutoff time.Time) ([]Channel, error) {
	var channels []Channel
	query := `
        SELECT username, last_message_id, last_fetched_at, created_at, updated_at
        FROM channels
        WHERE last_fetched_at IS NULL OR last_fetched_at < ?
        ORDER BY username;
    `

	if err := s.db.SelectContext(ctx, &channels, query, cutoff); err != nil {
		s.logger.ErrorContext(ctx, "Error listing stale channels", "cutoff", cutoff, "error", err)
		return nil, fmt.Errorf("failed to list stale channels: %w", err)
	}
	return channels, nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
// VACUUM must run outside a transaction in SQLite.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)")

	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed")
	return nil
}
