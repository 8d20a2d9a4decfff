package database

import (
	"database/sql"
	"time"
)

// Post is a single text post archived from a public Telegram channel.
// MessageID is the Telegram message ID within the channel; the pair
// (ChannelUsername, MessageID) is unique.
type Post struct {
	ID              int64     `db:"id"`
	ChannelUsername string    `db:"channel_username"`
	MessageID       int       `db:"message_id"`
	Content         string    `db:"content"`
	PostedAt        time.Time `db:"posted_at"`
	FetchedAt       time.Time `db:"fetched_at"`
	CreatedAt       time.Time `db:"created_at"`
}

// Channel tracks a channel that has been archived at least once.
// LastFetchedAt drives the scheduled refresh and the cache freshness gate.
type Channel struct {
	Username      string       `db:"username"`
	LastMessageID int          `db:"last_message_id"`
	LastFetchedAt sql.NullTime `db:"last_fetched_at"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}
