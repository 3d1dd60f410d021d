package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"github.com/anonto42/nano-midea/livechat/internal/feed"
	"github.com/anonto42/nano-midea/livechat/internal/middleware"
	"github.com/anonto42/nano-midea/livechat/internal/models"
	"github.com/anonto42/nano-midea/livechat/internal/repositories"
	"github.com/golang/glog"
	"github.com/labstack/echo/v4"
)

// MaxImageSize bounds an uploaded image
const MaxImageSize = 10 << 20

// Snapshotter returns the materialized feed
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]models.FeedEntry, error)
}

// MessageHandler handles message-related HTTP requests
type MessageHandler struct {
	lifecycle *feed.Lifecycle
	feed      Snapshotter
	journal   repositories.FailureJournal
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(lifecycle *feed.Lifecycle, feed Snapshotter) *MessageHandler {
	return &MessageHandler{lifecycle: lifecycle, feed: feed}
}

// WithFailureJournal adds the recorded failures of an entry to its state report
func (h *MessageHandler) WithFailureJournal(journal repositories.FailureJournal) *MessageHandler {
	h.journal = journal
	return h
}

// RegisterMessageRoutes registers the public read route and the authenticated writes
func (h *MessageHandler) RegisterMessageRoutes(public, api *echo.Group) {
	public.GET("/messages", h.ListMessages)
	api.POST("/messages", h.PostText)
	api.POST("/messages/image", h.SendImage)
	api.GET("/messages/:id/state", h.GetState)
}

// ListMessages returns the feed in presentation order
func (h *MessageHandler) ListMessages(c echo.Context) error {
	entries, err := h.feed.Snapshot(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Feed is not available")
	}
	return c.JSON(http.StatusOK, models.Views(entries))
}

// PostText creates a text message
func (h *MessageHandler) PostText(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "You must sign-in first")
	}

	var req models.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	id, err := h.lifecycle.PostText(c.Request().Context(), user, req.Text)
	if err != nil {
		return lifecycleError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": id})
}

// SendImage creates a placeholder message and uploads the image in the background
func (h *MessageHandler) SendImage(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "You must sign-in first")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing file")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Unreadable file")
	}
	defer src.Close()

	// the upload outlives the request and its multipart temp files
	data, err := io.ReadAll(io.LimitReader(src, MaxImageSize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Unreadable file")
	}
	if len(data) > MaxImageSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Image is too large")
	}

	contentType := file.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	asset := models.Asset{
		Name:        filepath.Base(file.Filename),
		ContentType: contentType,
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
	}
	id, err := h.lifecycle.SendImage(c.Request().Context(), user, asset)
	if err != nil {
		return lifecycleError(err)
	}

	state, _ := h.lifecycle.State(id)
	return c.JSON(http.StatusAccepted, echo.Map{"id": id, "state": state.String()})
}

// GetState reports where an image message is in its upload lifecycle
func (h *MessageHandler) GetState(c echo.Context) error {
	id := c.Param("id")
	state, ok := h.lifecycle.State(id)
	if h.journal == nil {
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "Unknown message")
		}
		return c.JSON(http.StatusOK, echo.Map{"id": id, "state": state.String()})
	}

	failures, err := h.journal.GetByEntryID(c.Request().Context(), id)
	if err != nil {
		glog.Errorf("[http]failure journal for %s = %s\n", id, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to read message state")
	}
	if !ok {
		// a recorded failure outlives the in-memory state and is always terminal
		if len(failures) == 0 {
			return echo.NewHTTPError(http.StatusNotFound, "Unknown message")
		}
		state = feed.StateFailed
	}
	if failures == nil {
		failures = []models.EntryFailure{}
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "state": state.String(), "failures": failures})
}

func lifecycleError(err error) error {
	if errors.Is(err, feed.ErrNotImage) {
		return echo.NewHTTPError(http.StatusBadRequest, "You can only share images")
	}

	var wf *feed.WriteFailure
	if errors.As(err, &wf) {
		glog.Warningf("[http]%s\n", wf)
		if wf.Transient {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "Error writing new message to the database, try again")
		}
		return echo.NewHTTPError(http.StatusBadGateway, "Error writing new message to the database")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
