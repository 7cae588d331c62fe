package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"volumetracker/internal/query"
	"volumetracker/internal/quote"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Reader is the query side the handlers serve from.
type Reader interface {
	GetOne(ctx context.Context, symbol string) (quote.Snapshot, error)
	GetMany(ctx context.Context, symbols []string) (map[string]quote.Snapshot, error)
	ActiveSymbols() []string
}

// Status reports the engine state shown on the root route.
type Status struct {
	Mode          string
	EnforceHours  bool
	Cached        func() int
	StreamClients func() int
	IsSessionOpen func(time.Time) bool
	NextOpen      func(time.Time) time.Time
}

type Handler struct {
	reader Reader
	status Status
	logger *zap.Logger
	now    func() time.Time
}

func NewHandler(reader Reader, status Status, logger *zap.Logger) *Handler {
	return &Handler{
		reader: reader,
		status: status,
		logger: logger,
		now:    time.Now,
	}
}

// closedIndicator is the body returned instead of data outside market hours.
func closedIndicator(err *query.ClosedError) gin.H {
	return gin.H{
		"status":    "closed",
		"message":   "Market is closed",
		"next_open": err.NextOpen.Format(quote.TimestampLayout),
	}
}

// GetQuote handles GET /quotes/:symbol.
func (h *Handler) GetQuote(c *gin.Context) {
	symbol := c.Param("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	snap, err := h.reader.GetOne(c.Request.Context(), symbol)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetQuotes handles GET /quotes?symbol_list=A,B. Without a list the active
// set is returned.
func (h *Handler) GetQuotes(c *gin.Context) {
	symbols := splitList(c.Query("symbol_list"))

	snaps, err := h.reader.GetMany(c.Request.Context(), symbols)
	if err != nil {
		var closed *query.ClosedError
		if errors.As(err, &closed) || len(snaps) == 0 {
			h.writeError(c, err)
			return
		}
		h.logger.Warn("partial quotes response", zap.Int("returned", len(snaps)), zap.Error(err))
	}
	c.JSON(http.StatusOK, snaps)
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Root reports the service state.
func (h *Handler) Root(c *gin.Context) {
	now := h.now()
	body := gin.H{
		"service":         "volumetracker",
		"status":          "running",
		"mode":            h.status.Mode,
		"tracked_symbols": len(h.reader.ActiveSymbols()),
	}
	if h.status.Cached != nil {
		body["cached_symbols"] = h.status.Cached()
	}
	if h.status.StreamClients != nil {
		body["stream_clients"] = h.status.StreamClients()
	}
	if h.status.IsSessionOpen != nil {
		open := h.status.IsSessionOpen(now)
		body["market_open"] = open
		if !open && h.status.NextOpen != nil {
			body["next_open"] = h.status.NextOpen(now).Format(quote.TimestampLayout)
		}
	}
	body["market_hours_enforced"] = h.status.EnforceHours
	c.JSON(http.StatusOK, body)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var closed *query.ClosedError
	switch {
	case errors.As(err, &closed):
		c.JSON(http.StatusOK, closedIndicator(closed))
	case errors.Is(err, quote.ErrFetch), errors.Is(err, quote.ErrPartialData),
		errors.Is(err, quote.ErrAuth), errors.Is(err, quote.ErrAuthExpired):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
