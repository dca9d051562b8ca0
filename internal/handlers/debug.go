package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sync-service/internal/models"
	"sync-service/internal/registry"
	"sync-service/internal/telemetry"
)

// GroupInspector exposes the full in-memory record of a live group.
type GroupInspector interface {
	GroupCounter
	Snapshot(groupID string) (models.Group, error)
}

// RegisterDebugRoutes wires debug-only endpoints. Every inspection is audited
// since the snapshot carries member identities.
func RegisterDebugRoutes(router *gin.Engine, groups GroupInspector, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	debug := router.Group("/debug")
	debug.GET("/groups", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"groups": groups.Count()})
	})
	debug.GET("/groups/:group_id", func(c *gin.Context) {
		groupID := c.Param("group_id")
		snap, err := groups.Snapshot(groupID)
		if errors.Is(err, registry.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
			return
		}

		var inspector string
		if uid := userIDFromContext(c); uid != nil {
			inspector = *uid
		}
		emitter.EmitGroup(c.Request.Context(), "group_inspected", groupID, inspector, requestIDFromContext(c), "debug snapshot served")
		c.JSON(http.StatusOK, snap)
	})
}
