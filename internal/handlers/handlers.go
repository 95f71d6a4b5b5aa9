package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/protego/threat-monitor/internal/ingest"
	"github.com/protego/threat-monitor/internal/query"
	"github.com/protego/threat-monitor/internal/realtime"
	"github.com/protego/threat-monitor/internal/store"
	"github.com/protego/threat-monitor/internal/threat"
	"github.com/protego/threat-monitor/internal/vip"
)

// Handler handles HTTP requests for the threat monitor
type Handler struct {
	ingestor  *ingest.Ingestor
	queries   *query.Service
	store     store.EventStore
	vips      vip.Registry
	hub       *realtime.Hub
	wsHandler *realtime.WSHandler
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	ingestor *ingest.Ingestor,
	queries *query.Service,
	eventStore store.EventStore,
	vips vip.Registry,
	hub *realtime.Hub,
	wsHandler *realtime.WSHandler,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		ingestor:  ingestor,
		queries:   queries,
		store:     eventStore,
		vips:      vips,
		hub:       hub,
		wsHandler: wsHandler,
		logger:    logger,
	}
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.GET("/health", h.HealthCheck)
		api.GET("/stats", h.GetStats)

		threats := api.Group("/threats")
		{
			threats.GET("", h.ListThreats)
			threats.POST("", h.CreateThreat)
			threats.GET("/recent", h.GetRecentThreats)
			threats.PUT("/:id/status", h.UpdateThreatStatus)
		}

		analytics := api.Group("/analytics")
		{
			analytics.GET("/threats-by-platform", h.GetThreatsByPlatform)
			analytics.GET("/severity-distribution", h.GetSeverityDistribution)
			analytics.GET("/threat-timeline", h.GetThreatTimeline)
		}

		vips := api.Group("/vips")
		{
			vips.GET("", h.ListVIPs)
			vips.POST("", h.CreateVIP)
			vips.GET("/:id", h.GetVIP)
			vips.PUT("/:id", h.UpdateVIP)
			vips.DELETE("/:id", h.DeleteVIP)
		}

		rt := api.Group("/realtime")
		{
			rt.GET("/ws", h.HandleWebSocket)
			rt.GET("/stats", h.GetRealtimeStats)
		}

		admin := api.Group("/admin")
		{
			admin.DELETE("/threats", h.ClearThreats)
		}
	}
}

// respondError maps domain errors onto HTTP status codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	var validation *threat.ValidationError
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation failed",
			"field":  validation.Field,
			"reason": validation.Reason,
		})
	case errors.Is(err, threat.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, threat.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store temporarily unavailable, retry the request"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// HealthCheck performs a health check
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "Protego VIP Monitoring API",
		"components": gin.H{
			"store":      "connected",
			"websockets": "active",
		},
		"subscribers": h.hub.SubscriberCount(),
	})
}

// GetStats returns the dashboard summary counters
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.queries.Stats(c.Request.Context()))
}

// ListThreats returns stored threats with optional filters
func (h *Handler) ListThreats(c *gin.Context) {
	limit, ok := intQuery(c, "limit", store.DefaultListLimit)
	if !ok {
		return
	}

	severity := threat.Severity(c.Query("severity"))
	if severity != "" && !severity.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unrecognized severity"})
		return
	}
	status := threat.Status(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unrecognized status"})
		return
	}

	events, err := h.store.List(c.Request.Context(), store.Filter{
		VIPID:    c.Query("vip_id"),
		Severity: severity,
		Status:   status,
		Limit:    limit,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	if events == nil {
		events = []threat.Event{}
	}
	c.JSON(http.StatusOK, events)
}

// CreateThreat ingests a new threat event
func (h *Handler) CreateThreat(c *gin.Context) {
	var event threat.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if _, err := h.ingestor.Ingest(c.Request.Context(), &event); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// GetRecentThreats returns threats within a trailing window
func (h *Handler) GetRecentThreats(c *gin.Context) {
	hours, ok := intQuery(c, "hours", 24)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", store.DefaultListLimit)
	if !ok {
		return
	}

	events, err := h.queries.Recent(c.Request.Context(), hours, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if events == nil {
		events = []threat.Event{}
	}
	c.JSON(http.StatusOK, events)
}

// UpdateThreatStatus updates the triage status of a threat
func (h *Handler) UpdateThreatStatus(c *gin.Context) {
	var req struct {
		Status threat.Status `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status required"})
		return
	}

	if err := h.store.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "threat status updated successfully"})
}

// GetThreatsByPlatform returns per-platform threat counts
func (h *Handler) GetThreatsByPlatform(c *gin.Context) {
	c.JSON(http.StatusOK, h.queries.ByPlatform())
}

// GetSeverityDistribution returns per-severity threat counts
func (h *Handler) GetSeverityDistribution(c *gin.Context) {
	c.JSON(http.StatusOK, h.queries.BySeverity())
}

// GetThreatTimeline returns the per-day threat counts
func (h *Handler) GetThreatTimeline(c *gin.Context) {
	days, ok := intQuery(c, "days", 7)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.queries.Timeline(days))
}

// VIP Handlers

// ListVIPs returns active VIP profiles
func (h *Handler) ListVIPs(c *gin.Context) {
	profiles, err := h.vips.ListActive(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if profiles == nil {
		profiles = []threat.VIPProfile{}
	}
	c.JSON(http.StatusOK, profiles)
}

// CreateVIP registers a new monitored subject
func (h *Handler) CreateVIP(c *gin.Context) {
	var profile threat.VIPProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.vips.Create(c.Request.Context(), &profile); err != nil {
		h.respondError(c, err)
		return
	}

	h.hub.Publish(realtime.MessageTypeVIPAdded, profile)
	c.JSON(http.StatusCreated, profile)
}

// GetVIP returns one VIP profile
func (h *Handler) GetVIP(c *gin.Context) {
	profile, err := h.vips.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UpdateVIP updates an existing VIP profile
func (h *Handler) UpdateVIP(c *gin.Context) {
	var profile threat.VIPProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	profile.ID = c.Param("id")

	if err := h.vips.Update(c.Request.Context(), &profile); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// DeleteVIP soft-deletes a VIP profile
func (h *Handler) DeleteVIP(c *gin.Context) {
	if err := h.vips.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "VIP profile deleted successfully"})
}

// Real-time Handlers

// HandleWebSocket upgrades a live-feed connection
func (h *Handler) HandleWebSocket(c *gin.Context) {
	h.wsHandler.Handle(c)
}

// GetRealtimeStats returns live-feed connection statistics
func (h *Handler) GetRealtimeStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": h.hub.SubscriberCount(),
	})
}

// Admin Handlers

// ClearThreats removes every stored threat. Requires confirm=true.
func (h *Handler) ClearThreats(c *gin.Context) {
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "set confirm=true to proceed"})
		return
	}

	deleted, err := h.store.Clear(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.ingestor.Rebuild(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// CORSMiddleware handles CORS
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// intQuery parses an integer query parameter, responding 400 on malformed
// input. The second return value is false once a response has been written.
func intQuery(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " parameter"})
		return 0, false
	}
	return value, true
}
