package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sync-service/internal/models"
	"sync-service/internal/registry"
	"sync-service/internal/repositories"
)

const maxHistoryLimit = 200

// StateReader yields the pull snapshot of a live group.
type StateReader interface {
	SyncState(groupID string) (models.SyncState, error)
}

// GroupHandler serves read-only group endpoints.
type GroupHandler struct {
	state   StateReader
	history repositories.PlayHistoryRepository
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(state StateReader, history repositories.PlayHistoryRepository) *GroupHandler {
	return &GroupHandler{state: state, history: history}
}

// GetState returns the same payload as the sync-state event.
func (h *GroupHandler) GetState(c *gin.Context) {
	groupID := c.Param("group_id")
	st, err := h.state.SyncState(groupID)
	if errors.Is(err, registry.ErrGroupNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group state"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// GetHistory lists the most recent track starts of a group.
func (h *GroupHandler) GetHistory(c *gin.Context) {
	groupID := c.Param("group_id")
	limit := repositories.DefaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if parsed > maxHistoryLimit {
			parsed = maxHistoryLimit
		}
		limit = parsed
	}

	records, err := h.history.ListByGroup(c.Request.Context(), groupID, limit)
	if err != nil {
		log.Printf("list play history failed group_id=%s request_id=%s: %v", groupID, requestIDFromContext(c), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	if records == nil {
		records = []models.PlayRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"groupId": groupID, "history": records})
}

// GroupCounter reports the number of live groups.
type GroupCounter interface {
	Count() int
}

// Health reports liveness with the live group count.
func Health(groups GroupCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "groups": groups.Count()})
	}
}

// Pinger checks a backing store.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Ready fails while the history database, if any, is unreachable.
func Ready(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			if err := db.PingContext(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
