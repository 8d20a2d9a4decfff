// Package archive implements the core archiving service: walking a
// channel's full history into the database, keeping the archive fresh,
// and serving paginated reads from it.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"tgarchive/internal/config"
	"tgarchive/internal/database"
	"tgarchive/internal/telegram"
)

// ErrInvalidUsername is returned when a channel username fails validation.
var ErrInvalidUsername = errors.New("invalid channel username")

// Telegram public usernames: 5-32 word characters.
var usernamePattern = regexp.MustCompile(`^\w{5,32}$`)

// FetchResult reports the counters of one full history walk.
type FetchResult struct {
	Read   int
	Stored int
}

// Archiver coordinates history fetching and archive reads. Concurrent
// fetches of the same channel are collapsed into one walk.
type Archiver struct {
	store    database.Store
	fetcher  telegram.HistoryFetcher
	cfg      config.ArchiveConfig
	pageSize int
	logger   *slog.Logger

	group singleflight.Group
	now   func() time.Time
}

// NewArchiver creates an Archiver. pageSize is the history page size
// requested from Telegram (at most 100).
func NewArchiver(
	store database.Store,
	fetcher telegram.HistoryFetcher,
	cfg config.ArchiveConfig,
	pageSize int,
	logger *slog.Logger,
) *Archiver {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	return &Archiver{
		store:    store,
		fetcher:  fetcher,
		cfg:      cfg,
		pageSize: pageSize,
		logger:   logger.With("component", "archiver"),
		now:      time.Now,
	}
}

// NormalizeUsername strips a leading @, lowercases, and validates a
// channel username.
func NormalizeUsername(username string) (string, error) {
	username = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
	if !usernamePattern.MatchString(username) {
		return "", fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}
	return username, nil
}

// FetchAndStoreAll walks the channel's entire history from the newest
// message back to the first one, storing every new text post. Pages are
// persisted as they arrive, so a walk interrupted mid-way keeps what it
// already stored.
func (a *Archiver) FetchAndStoreAll(ctx context.Context, username string) (FetchResult, error) {
	var res FetchResult

	startTime := a.now()
	offsetID := 0
	newestID := 0

	for {
		page, err := a.fetcher.FetchHistoryPage(ctx, username, offsetID, a.pageSize)
		if err != nil {
			return res, fmt.Errorf("history walk for channel %s failed at offset %d: %w", username, offsetID, err)
		}
		if page.Read == 0 {
			break
		}

		res.Read += page.Read
		if newestID == 0 {
			newestID = page.NewestMessageID
		}

		fetchedAt := a.now().UTC()
		posts := make([]*database.Post, 0, len(page.Posts))
		for _, cp := range page.Posts {
			posts = append(posts, &database.Post{
				ChannelUsername: username,
				MessageID:       cp.MessageID,
				Content:         cp.Text,
				PostedAt:        cp.PostedAt,
				FetchedAt:       fetchedAt,
			})
		}

		stored, err := a.store.SavePosts(ctx, posts)
		if err != nil {
			return res, fmt.Errorf("failed to store history page for channel %s: %w", username, err)
		}
		res.Stored += stored

		offsetID = page.NextOffsetID
	}

	if err := a.store.UpsertChannel(ctx, username, newestID, a.now().UTC()); err != nil {
		return res, err
	}

	a.logger.InfoContext(ctx, "Channel history walk finished",
		"channel", username,
		"read", res.Read,
		"stored", res.Stored,
		"duration", a.now().Sub(startTime))
	return res, nil
}

// EnsureFresh re-fetches the channel when its archive is empty or older
// than the cache TTL. It returns the fetch result when a fetch happened
// and nil when the cache was still fresh. Concurrent callers for the
// same channel share a single walk.
func (a *Archiver) EnsureFresh(ctx context.Context, username string) (*FetchResult, error) {
	fetchedAt, err := a.store.LatestFetchedAt(ctx, username)
	if err != nil {
		return nil, err
	}
	if a.cacheValid(fetchedAt) {
		a.logger.DebugContext(ctx, "Archive is fresh", "channel", username, "fetched_at", fetchedAt)
		return nil, nil
	}

	res, err := a.fetchShared(ctx, username)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// FetchAsync starts a detached full fetch of the channel, the backing
// operation of POST /save-all. Errors are logged, not returned.
func (a *Archiver) FetchAsync(username string) {
	go func() {
		// Detached from the request; a full first walk of a large
		// channel can far outlive the HTTP request that started it.
		ctx := context.Background()
		if _, err := a.fetchShared(ctx, username); err != nil {
			a.logger.Error("Background fetch failed", "channel", username, "error", err)
		}
	}()
}

// RefreshStale re-fetches every tracked channel whose archive is older
// than the cache TTL. Used by the scheduled refresh task.
func (a *Archiver) RefreshStale(ctx context.Context) error {
	cutoff := a.now().UTC().Add(-a.cfg.CacheTTL)
	channels, err := a.store.StaleChannels(ctx, cutoff)
	if err != nil {
		return err
	}

	var errs []error
	for _, ch := range channels {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := a.fetchShared(ctx, ch.Username); err != nil {
			a.logger.WarnContext(ctx, "Stale channel refresh failed", "channel", ch.Username, "error", err)
			errs = append(errs, fmt.Errorf("refresh of channel %s: %w", ch.Username, err))
		}
	}
	return errors.Join(errs...)
}

// ReadPosts returns one page of the archive, newest first, fetching
// first when the archive is empty or stale. page starts at 1.
func (a *Archiver) ReadPosts(ctx context.Context, username string, page, perPage int) ([]database.Post, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = a.cfg.DefaultPerPage
	}
	if perPage > a.cfg.MaxPerPage {
		perPage = a.cfg.MaxPerPage
	}

	if _, err := a.EnsureFresh(ctx, username); err != nil {
		return nil, err
	}

	offset := (page - 1) * perPage
	return a.store.GetPosts(ctx, username, perPage, offset)
}

// ReadAllPosts returns the entire archive of a channel, newest first,
// fetching first when the archive is empty or stale.
func (a *Archiver) ReadAllPosts(ctx context.Context, username string) ([]database.Post, error) {
	res, err := a.EnsureFresh(ctx, username)
	if err != nil {
		return nil, err
	}

	posts, err := a.store.GetAllPosts(ctx, username)
	if err != nil {
		return nil, err
	}

	if res != nil {
		a.logger.InfoContext(ctx, "Read-all after fetch",
			"channel", username, "read", res.Read, "stored", res.Stored, "returned", len(posts))
	} else {
		a.logger.InfoContext(ctx, "Read-all from cache",
			"channel", username, "returned", len(posts))
	}
	return posts, nil
}

// ChannelInfo is a tracked channel together with its archived post count.
type ChannelInfo struct {
	database.Channel
	PostCount int
}

// ListChannels returns all tracked channels with their post counts.
func (a *Archiver) ListChannels(ctx context.Context) ([]ChannelInfo, error) {
	channels, err := a.store.ListChannels(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]ChannelInfo, 0, len(channels))
	for _, ch := range channels {
		count, err := a.store.CountPosts(ctx, ch.Username)
		if err != nil {
			return nil, err
		}
		infos = append(infos, ChannelInfo{Channel: ch, PostCount: count})
	}
	return infos, nil
}

// fetchShared runs FetchAndStoreAll once per channel at a time;
// concurrent callers wait for and share the in-flight walk's result.
// The walk itself is detached from the triggering caller's context:
// other callers share it, so one client disconnecting must not cancel
// everyone's fetch.
func (a *Archiver) fetchShared(ctx context.Context, username string) (FetchResult, error) {
	walkCtx := context.WithoutCancel(ctx)
	v, err, shared := a.group.Do(username, func() (interface{}, error) {
		res, err := a.FetchAndStoreAll(walkCtx, username)
		if err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		return FetchResult{}, err
	}
	if shared {
		a.logger.DebugContext(ctx, "Joined in-flight fetch", "channel", username)
	}
	return v.(FetchResult), nil
}

// cacheValid reports whether an archive fetched at the given time is
// still inside the cache TTL.
func (a *Archiver) cacheValid(fetchedAt time.Time) bool {
	if fetchedAt.IsZero() {
		return false
	}
	return fetchedAt.After(a.now().UTC().Add(-a.cfg.CacheTTL))
}
