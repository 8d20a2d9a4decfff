package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tgarchive/internal/archive"
	"tgarchive/internal/database"
	"tgarchive/internal/telegram"
)

type handlers struct {
	svc    Service
	store  Pinger
	logger *slog.Logger
}

// postView is the JSON shape of a single archived post.
type postView struct {
	MessageID int    `json:"message_id"`
	Text      string `json:"text"`
	Date      string `json:"date"`
}

// channelView is the JSON shape of a tracked channel.
type channelView struct {
	Username      string  `json:"username"`
	Posts         int     `json:"posts"`
	LastMessageID int     `json:"last_message_id"`
	LastFetchedAt *string `json:"last_fetched_at"`
}

// saveAll starts a detached full-history fetch of the channel and
// returns immediately.
func (h *handlers) saveAll(c *gin.Context) {
	username, err := archive.NormalizeUsername(c.Query("username"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid channel username"})
		return
	}

	h.svc.FetchAsync(username)
	c.JSON(http.StatusAccepted, gin.H{"status": "started", "username": username})
}

// readPosts returns one page of a channel's archive, newest first.
func (h *handlers) readPosts(c *gin.Context) {
	username, err := archive.NormalizeUsername(c.Query("username"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid channel username"})
		return
	}

	page, ok := queryInt(c, "page", 1, 1)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "page must be an integer >= 1"})
		return
	}
	perPage, ok := queryInt(c, "per_page", 0, 1)
	if !ok || perPage > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "per_page must be an integer between 1 and 100"})
		return
	}

	posts, err := h.svc.ReadPosts(c.Request.Context(), username, page, perPage)
	if err != nil {
		h.serviceError(c, username, err)
		return
	}
	c.JSON(http.StatusOK, toPostViews(posts))
}

// readAllPosts returns the entire archive of a channel, newest first.
func (h *handlers) readAllPosts(c *gin.Context) {
	username, err := archive.NormalizeUsername(c.Query("username"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid channel username"})
		return
	}

	posts, err := h.svc.ReadAllPosts(c.Request.Context(), username)
	if err != nil {
		h.serviceError(c, username, err)
		return
	}
	c.JSON(http.StatusOK, toPostViews(posts))
}

// listChannels returns every channel with archived history.
func (h *handlers) listChannels(c *gin.Context) {
	channels, err := h.svc.ListChannels(c.Request.Context())
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "Failed to list channels", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
		return
	}

	views := make([]channelView, 0, len(channels))
	for _, ch := range channels {
		v := channelView{Username: ch.Username, Posts: ch.PostCount, LastMessageID: ch.LastMessageID}
		if ch.LastFetchedAt.Valid {
			s := ch.LastFetchedAt.Time.UTC().Format(time.RFC3339)
			v.LastFetchedAt = &s
		}
		views = append(views, v)
	}
	c.JSON(http.StatusOK, views)
}

// health reports liveness and database reachability.
func (h *handlers) health(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "detail": "database unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// serviceError maps archiver errors to HTTP responses.
func (h *handlers) serviceError(c *gin.Context, username string, err error) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, archive.ErrInvalidUsername):
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid channel username"})
	case errors.Is(err, telegram.ErrChannelNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "channel not found"})
	case errors.Is(err, telegram.ErrNotConnected), errors.Is(err, telegram.ErrNotAuthorized):
		h.logger.WarnContext(ctx, "Request rejected, telegram client unavailable", "channel", username, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "telegram client unavailable"})
	default:
		h.logger.ErrorContext(ctx, "Archive request failed", "channel", username, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"detail": "failed to fetch channel history"})
	}
}

func toPostViews(posts []database.Post) []postView {
	views := make([]postView, 0, len(posts))
	for _, p := range posts {
		views = append(views, postView{
			MessageID: p.MessageID,
			Text:      p.Content,
			Date:      p.PostedAt.UTC().Format(time.RFC3339),
		})
	}
	return views
}

// queryInt parses an integer query parameter, falling back to def when
// absent. ok is false when the value is not an integer or below min.
func queryInt(c *gin.Context, name string, def, min int) (value int, ok bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		return 0, false
	}
	return v, true
}
