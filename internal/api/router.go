// Package api exposes the reporting and control surface over HTTP. All
// scheduling work happens in the worker loop; these handlers only read
// state and flip group controls.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/shortsync/internal/domain"
	"github.com/jonesrussell/shortsync/internal/logger"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
	healthCheckTimeout   = 2 * time.Second
	serviceName          = "shortsync"
)

// GroupService is the scheduler surface the control endpoints need.
type GroupService interface {
	Groups() []domain.ChannelGroup
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) error
	RunNow(ctx context.Context, id string) error
}

// QuotaReader reads the active quota day.
type QuotaReader interface {
	Today() domain.QuotaDay
}

// ThresholdReader reads the last computed per-channel thresholds.
type ThresholdReader interface {
	CurrentThresholds() []domain.Threshold
}

// RunReader reads orchestrator counters and token state.
type RunReader interface {
	Totals() domain.RunTotals
	DeferredCount() int
	TokenStatus(ctx context.Context) domain.TokenStatus
}

// DedupService forgets a candidate's published marker so the next run can
// republish it, used after a manual takedown on the destination.
type DedupService interface {
	Clear(ctx context.Context, candidateID string) error
}

// CleanupService records and summarizes cleanup reports.
type CleanupService interface {
	Record(ctx context.Context, directory string, filesRemoved, spaceFreedBytes int64) (*domain.CleanupRecord, error)
	Summary(ctx context.Context, limit int) (*domain.CleanupSummary, error)
}

// Pinger verifies database connectivity for the health endpoint.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Router holds the API dependencies.
type Router struct {
	groups     GroupService
	quota      QuotaReader
	thresholds ThresholdReader
	runs       RunReader
	cleanup    CleanupService
	dedup      DedupService

	db          Pinger
	redisClient *redis.Client
	gatherer    prometheus.Gatherer
	log         logger.Logger
	debug       bool
	version     string
}

// Deps bundles the router's collaborators.
type Deps struct {
	Groups     GroupService
	Quota      QuotaReader
	Thresholds ThresholdReader
	Runs       RunReader
	Cleanup    CleanupService
	Dedup      DedupService

	DB       Pinger
	Redis    *redis.Client
	Gatherer prometheus.Gatherer
	Logger   logger.Logger
	Debug    bool
	Version  string
}

// NewRouter creates a new API router.
func NewRouter(deps Deps) *Router {
	return &Router{
		groups:      deps.Groups,
		quota:       deps.Quota,
		thresholds:  deps.Thresholds,
		runs:        deps.Runs,
		cleanup:     deps.Cleanup,
		dedup:       deps.Dedup,
		db:          deps.DB,
		redisClient: deps.Redis,
		gatherer:    deps.Gatherer,
		log:         deps.Logger,
		debug:       deps.Debug,
		version:     deps.Version,
	}
}

// SetupRoutes builds the gin engine with all routes registered.
func (r *Router) SetupRoutes() *gin.Engine {
	if !r.debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", r.healthCheck)
	if r.gatherer != nil {
		router.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")

	v1.GET("/quota/today", r.getQuotaToday)
	v1.GET("/thresholds", r.getThresholds)
	v1.GET("/stats/totals", r.getRunTotals)
	v1.GET("/token", r.getTokenStatus)

	groups := v1.Group("/groups")
	groups.GET("", r.listGroups)
	groups.POST("/:id/pause", r.pauseGroup)
	groups.POST("/:id/resume", r.resumeGroup)
	groups.POST("/:id/restart", r.restartGroup)
	groups.POST("/:id/run", r.runGroupNow)

	cleanup := v1.Group("/cleanup")
	cleanup.POST("", r.recordCleanup)
	cleanup.GET("/summary", r.getCleanupSummary)

	v1.DELETE("/dedup/:id", r.clearDedup)

	return router
}

// healthCheck reports service health, degrading on database or Redis
// connectivity loss without failing the endpoint.
func (r *Router) healthCheck(c *gin.Context) {
	health := gin.H{
		"status":  healthStatusHealthy,
		"service": serviceName,
		"version": r.version,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	if r.db != nil {
		dbConnected := true
		if err := r.db.PingContext(ctx); err != nil {
			dbConnected = false
			health["status"] = healthStatusDegraded
		}
		health["database"] = gin.H{"connected": dbConnected}
	}

	if r.redisClient != nil {
		redisConnected := true
		redisHealth := gin.H{}
		if err := r.redisClient.Ping(ctx).Err(); err != nil {
			redisConnected = false
			redisHealth["error"] = err.Error()
			health["status"] = healthStatusDegraded
		}
		redisHealth["connected"] = redisConnected
		health["redis"] = redisHealth
	}

	c.JSON(200, health)
}
