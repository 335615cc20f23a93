package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/chxlky/trello-archiver/database"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler serves the read-only archive API. It only ever reads the store;
// the archiver owns all writes.
type Handler struct {
	Store *database.Store
}

func (h *Handler) HealthCheckHandler(c *gin.Context) {
	count, err := h.Store.CountCards(c.Request.Context())
	if err != nil {
		zap.L().Error("Health check could not reach the store", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "cards": count})
}

// ListCardsHandler returns card rows, newest first. Supported query params:
// limit, offset, list (list id), closed (true/false).
func (h *Handler) ListCardsHandler(c *gin.Context) {
	filter := database.CardFilter{
		ListID: c.Query("list"),
		Limit:  50,
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		filter.Limit = min(limit, 200)
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
			return
		}
		filter.Offset = offset
	}
	if raw := c.Query("closed"); raw != "" {
		closed, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "closed must be true or false"})
			return
		}
		filter.Closed = &closed
	}

	cards, err := h.Store.ListCards(c.Request.Context(), filter)
	if err != nil {
		zap.L().Error("Failed to list cards", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list cards"})
		return
	}
	c.JSON(http.StatusOK, cards)
}

// GetCardHandler returns one card with its full graph.
func (h *Handler) GetCardHandler(c *gin.Context) {
	id := c.Param("id")
	card, err := h.Store.GetCard(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Card not found"})
			return
		}
		zap.L().Error("Failed to load card", zap.String("card_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load card"})
		return
	}
	c.JSON(http.StatusOK, card)
}

// ListStatsHandler returns per-list traffic aggregated from the path history.
func (h *Handler) ListStatsHandler(c *gin.Context) {
	stats, err := h.Store.ListStats(c.Request.Context())
	if err != nil {
		zap.L().Error("Failed to aggregate list stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to aggregate list stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
