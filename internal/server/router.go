// Package server exposes the scripture store over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/churchmate/internal/auth"
	"github.com/MarcoPoloResearchLab/churchmate/internal/bibleparser"
	"github.com/MarcoPoloResearchLab/churchmate/internal/bootstrap"
	"github.com/MarcoPoloResearchLab/churchmate/internal/scripture"
)

const (
	defaultHeartbeatInterval = 25 * time.Second
	maxImportBytes           = 64 << 20
)

var (
	errMissingScriptureService = errors.New("scripture service dependency required")
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingImporter         = errors.New("importer dependency required")
)

// SessionValidator authenticates requests.
type SessionValidator interface {
	ValidateToken(token string) (auth.SessionClaims, error)
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// Importer re-seeds a translation from raw markup.
type Importer interface {
	Import(ctx context.Context, translation string, reader io.Reader) (bootstrap.TranslationReport, error)
}

type Dependencies struct {
	Scripture         *scripture.Service
	Sessions          SessionValidator
	Importer          Importer
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	Clock             func() time.Time
	HeartbeatInterval time.Duration

	// AllowedOrigins enables credentialed cross-origin requests for the listed
	// origins. Empty allows any origin without credentials.
	AllowedOrigins []string
	// MaxImportBytes bounds an import request body. Zero uses the default.
	MaxImportBytes int64
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Scripture == nil {
		return nil, errMissingScriptureService
	}
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Importer == nil {
		return nil, errMissingImporter
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	importLimit := deps.MaxImportBytes
	if importLimit <= 0 {
		importLimit = maxImportBytes
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		scripture:   deps.Scripture,
		sessions:    deps.Sessions,
		importer:    deps.Importer,
		realtime:    realtime,
		logger:      logger,
		clock:       clock,
		heartbeat:   heartbeat,
		importLimit: importLimit,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/translations", handler.handleListTranslations)
	router.GET("/translations/:translation/books", handler.handleListBooks)
	router.GET("/translations/:translation/books/:bookID/chapters/:chapter", handler.handleListVerses)
	router.GET("/translations/:translation/search", handler.handleSearch)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/bookmarks", handler.handleListBookmarks)
	protected.POST("/bookmarks", handler.handleAddBookmark)
	protected.DELETE("/bookmarks/:bookmarkID", handler.handleRemoveBookmark)
	protected.GET("/bookmarks/status", handler.handleBookmarkStatus)
	protected.POST("/bookmarks/toggle", handler.handleToggleBookmark)
	protected.GET("/bookmarks/stream", handler.handleBookmarkStream)

	admin := protected.Group("/admin")
	admin.Use(handler.requireRole(auth.RoleAdmin))
	admin.POST("/translations/:translation/import", handler.handleImport)

	return router, nil
}

type httpHandler struct {
	scripture *scripture.Service
	sessions  SessionValidator
	importer  Importer
	realtime  *RealtimeDispatcher
	logger    *zap.Logger
	clock     func() time.Time
	heartbeat time.Duration

	importLimit int64
}

type bookmarkRequestPayload struct {
	VerseID int64  `json:"verseId"`
	Note    string `json:"note"`
}

type bookmarkStatusPayload struct {
	VerseID    int64 `json:"verseId"`
	Bookmarked bool  `json:"bookmarked"`
}

type bookmarkEventPayload struct {
	VerseID    int64  `json:"verseId"`
	BookmarkID int64  `json:"bookmarkId,omitempty"`
	Bookmarked bool   `json:"bookmarked"`
	Timestamp  int64  `json:"timestamp"`
	Source     string `json:"source"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	if !h.scripture.Initialized() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "initializing"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleListTranslations(c *gin.Context) {
	languages, err := h.scripture.ListLanguages(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"translations": languages})
}

func (h *httpHandler) handleListBooks(c *gin.Context) {
	translation := c.Param("translation")
	books, err := h.scripture.ListBooks(c.Request.Context(), translation)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"translation": translation, "books": books})
}

func (h *httpHandler) handleListVerses(c *gin.Context) {
	translation := c.Param("translation")
	bookID, bookErr := strconv.Atoi(c.Param("bookID"))
	chapter, chapterErr := strconv.Atoi(c.Param("chapter"))
	if bookErr != nil || chapterErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	verses, err := h.scripture.ListVerses(c.Request.Context(), translation, bookID, chapter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"translation": translation,
		"bookId":      bookID,
		"chapter":     chapter,
		"verses":      verses,
	})
}

func (h *httpHandler) handleSearch(c *gin.Context) {
	query := scripture.SearchQuery{
		Translation: c.Param("translation"),
		Text:        c.Query("q"),
	}
	if raw := strings.TrimSpace(c.Query("book_id")); raw != "" {
		bookID, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		query.BookID = bookID
	}
	verses, err := h.scripture.Search(c.Request.Context(), query)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": query.Text, "verses": verses})
}

func (h *httpHandler) handleListBookmarks(c *gin.Context) {
	bookmarks, err := h.scripture.ListBookmarks(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookmarks": bookmarks})
}

func (h *httpHandler) handleAddBookmark(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	var request bookmarkRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	bookmarkID, err := h.scripture.AddBookmark(c.Request.Context(), userID, request.VerseID, request.Note)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publishBookmarkChange(userID, request.VerseID, bookmarkID, true)
	c.JSON(http.StatusCreated, gin.H{"id": bookmarkID})
}

func (h *httpHandler) handleRemoveBookmark(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	bookmarkID, err := strconv.ParseInt(c.Param("bookmarkID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	removed, err := h.scripture.RemoveUserBookmark(c.Request.Context(), userID, bookmarkID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	h.publishBookmarkChange(userID, 0, bookmarkID, false)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleBookmarkStatus(c *gin.Context) {
	verseID, err := strconv.ParseInt(c.Query("verse_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	bookmarked, err := h.scripture.IsBookmarked(c.Request.Context(), c.GetString(userIDContextKey), verseID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookmarkStatusPayload{VerseID: verseID, Bookmarked: bookmarked})
}

func (h *httpHandler) handleToggleBookmark(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	var request bookmarkRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	bookmarked, err := h.scripture.ToggleBookmark(c.Request.Context(), userID, request.VerseID, request.Note)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publishBookmarkChange(userID, request.VerseID, 0, bookmarked)
	c.JSON(http.StatusOK, bookmarkStatusPayload{VerseID: request.VerseID, Bookmarked: bookmarked})
}

func (h *httpHandler) handleBookmarkStream(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, userID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, bookmarkEventPayload{
				VerseID:    message.VerseID,
				BookmarkID: message.BookmarkID,
				Bookmarked: message.Bookmarked,
				Timestamp:  message.Timestamp.UnixMilli(),
				Source:     realtimeSourceBackend,
			})
			return true
		case now := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"timestamp": now.UTC().UnixMilli()})
			return true
		}
	})
}

func (h *httpHandler) handleImport(c *gin.Context) {
	translation := c.Param("translation")
	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.importLimit)
	report, err := h.importer.Import(c.Request.Context(), translation, body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "import_too_large", "limit": tooLarge.Limit})
		case errors.Is(err, bibleparser.ErrSourceRead):
			c.JSON(http.StatusBadRequest, gin.H{"error": "import_body_unreadable"})
		case errors.Is(err, bootstrap.ErrUnknownSource), errors.Is(err, bibleparser.ErrUnknownTranslation):
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown_translation"})
		case errors.Is(err, bibleparser.ErrEmptyParse):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "empty_parse", "anomalies": report.Anomalies})
		default:
			h.respondError(c, err)
		}
		return
	}
	h.logger.Info("translation imported over http",
		zap.String("translation", report.Translation),
		zap.String("user_id", c.GetString(userIDContextKey)),
		zap.Int("verses", report.Verses))
	c.JSON(http.StatusOK, gin.H{
		"translation": report.Translation,
		"books":       report.Books,
		"verses":      report.Verses,
		"anomalies":   report.Anomalies,
	})
}

func (h *httpHandler) publishBookmarkChange(userID string, verseID, bookmarkID int64, bookmarked bool) {
	h.realtime.Publish(RealtimeMessage{
		UserID:     userID,
		EventType:  RealtimeEventBookmarkChanged,
		VerseID:    verseID,
		BookmarkID: bookmarkID,
		Bookmarked: bookmarked,
		Timestamp:  h.clock().UTC(),
	})
}

// respondError maps service failures onto status codes. Read failures still
// return a JSON body so clients can fall back to an empty state.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "storage_failure"
	switch {
	case errors.Is(err, scripture.ErrNotInitialized):
		status = http.StatusServiceUnavailable
		message = "not_initialized"
	case errors.Is(err, scripture.ErrInvalidInput):
		status = http.StatusBadRequest
		message = "invalid_request"
	}

	code := message
	var serviceErr *scripture.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", code),
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": message, "code": code})
}
