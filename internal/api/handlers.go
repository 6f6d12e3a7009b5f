package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/shortsync/internal/domain"
)

// getQuotaToday returns the active quota day with its operation breakdown.
// GET /api/v1/quota/today
func (r *Router) getQuotaToday(c *gin.Context) {
	day := r.quota.Today()
	c.JSON(http.StatusOK, gin.H{
		"date":       day.Date,
		"used_units": day.UsedUnits,
		"budget":     day.Budget,
		"remaining":  day.Remaining(),
		"operations": day.Operations,
		"updated_at": day.UpdatedAt,
	})
}

// listGroups returns every channel group with its schedule state.
// GET /api/v1/groups
func (r *Router) listGroups(c *gin.Context) {
	groups := r.groups.Groups()
	c.JSON(http.StatusOK, gin.H{
		"groups": groups,
		"count":  len(groups),
	})
}

// groupControl runs one scheduler control action and maps its errors.
func (r *Router) groupControl(c *gin.Context, action string, fn func() error) {
	id := c.Param("id")
	if err := fn(); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		case errors.Is(err, domain.ErrGroupBusy):
			c.JSON(http.StatusConflict, gin.H{"error": "Group has a run in flight"})
		case errors.Is(err, domain.ErrGroupPaused):
			c.JSON(http.StatusConflict, gin.H{"error": "Group is paused"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action + " group"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"group_id": id, "action": action})
}

// POST /api/v1/groups/:id/pause
func (r *Router) pauseGroup(c *gin.Context) {
	ctx := c.Request.Context()
	r.groupControl(c, "pause", func() error { return r.groups.Pause(ctx, c.Param("id")) })
}

// POST /api/v1/groups/:id/resume
func (r *Router) resumeGroup(c *gin.Context) {
	ctx := c.Request.Context()
	r.groupControl(c, "resume", func() error { return r.groups.Resume(ctx, c.Param("id")) })
}

// POST /api/v1/groups/:id/restart
func (r *Router) restartGroup(c *gin.Context) {
	ctx := c.Request.Context()
	r.groupControl(c, "restart", func() error { return r.groups.Restart(ctx, c.Param("id")) })
}

// POST /api/v1/groups/:id/run
func (r *Router) runGroupNow(c *gin.Context) {
	ctx := c.Request.Context()
	r.groupControl(c, "run", func() error { return r.groups.RunNow(ctx, c.Param("id")) })
}

// getThresholds returns the last computed threshold per channel.
// GET /api/v1/thresholds
func (r *Router) getThresholds(c *gin.Context) {
	thresholds := r.thresholds.CurrentThresholds()
	c.JSON(http.StatusOK, gin.H{
		"thresholds": thresholds,
		"count":      len(thresholds),
	})
}

// getRunTotals returns the lifetime processing counters.
// GET /api/v1/stats/totals
func (r *Router) getRunTotals(c *gin.Context) {
	totals := r.runs.Totals()
	c.JSON(http.StatusOK, gin.H{
		"totals":   totals,
		"deferred": r.runs.DeferredCount(),
	})
}

// getTokenStatus reports the publishing credential state.
// GET /api/v1/token
func (r *Router) getTokenStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.runs.TokenStatus(c.Request.Context()))
}

// cleanupRequest is the payload the external cleanup actor posts after a
// retention pass.
type cleanupRequest struct {
	Directory       string `json:"directory"        binding:"required"`
	FilesRemoved    int64  `json:"files_removed"`
	SpaceFreedBytes int64  `json:"space_freed_bytes"`
}

// recordCleanup stores one cleanup report.
// POST /api/v1/cleanup
func (r *Router) recordCleanup(c *gin.Context) {
	var req cleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return
	}

	rec, err := r.cleanup.Record(c.Request.Context(), req.Directory, req.FilesRemoved, req.SpaceFreedBytes)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOperation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record cleanup"})
		return
	}

	c.JSON(http.StatusCreated, rec)
}

// clearDedup removes a candidate's published marker.
// DELETE /api/v1/dedup/:id
func (r *Router) clearDedup(c *gin.Context) {
	id := c.Param("id")
	if err := r.dedup.Clear(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear published marker"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidate_id": id, "cleared": true})
}

// getCleanupSummary returns the running totals plus recent records.
// GET /api/v1/cleanup/summary?limit=N
func (r *Router) getCleanupSummary(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	summary, err := r.cleanup.Summary(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cleanup summary"})
		return
	}
	c.JSON(http.StatusOK, summary)
}
