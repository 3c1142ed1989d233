package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"

	"github.com/AniketPatel148/CivicLens/geoquery"
	"github.com/AniketPatel148/CivicLens/models"
	"github.com/AniketPatel148/CivicLens/service"
	ws "github.com/AniketPatel148/CivicLens/websocket"
)

// maxBodyBytes bounds submissions carrying inline photos.
const maxBodyBytes = 20 << 20

// ConnectionChecker reports whether a broker connection is open.
type ConnectionChecker interface {
	IsConnected() bool
}

type Handlers struct {
	svc      *service.Service
	hub      *ws.Hub
	eventBus ConnectionChecker

	upgrader gorilla.Upgrader
}

// NewHandlers creates the HTTP handlers. hub may be nil, which disables the
// live feed endpoint.
func NewHandlers(svc *service.Service, hub *ws.Hub, allowedOrigins []string) *Handlers {
	return &Handlers{
		svc: svc,
		hub: hub,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// WithEventBus makes the health check report the event publisher connection.
func (h *Handlers) WithEventBus(bus ConnectionChecker) *Handlers {
	h.eventBus = bus
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Register mounts every route. submit runs before the submission handler,
// typically a rate limiter.
func (h *Handlers) Register(router *gin.Engine, submit ...gin.HandlerFunc) {
	router.GET("/health", h.HealthCheck)

	api := router.Group("/api/reports")
	{
		api.POST("", append(submit, h.CreateReport)...)
		api.GET("", h.ListReports)
		api.GET("/nearby", h.NearbyReports)
		api.GET("/listen", h.ListenReports)
		api.GET("/stats/summary", h.CitywideStats)
		api.GET("/stats/zipcode/:zipcode", h.ZipcodeStats)
		api.GET("/:id", h.GetReport)
		api.PATCH("/:id/status", h.UpdateStatus)
	}
}

func respondError(c *gin.Context, err error) {
	switch {
	case models.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Report not found"})
	default:
		log.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
	}
}

// CreateReport handles POST /api/reports
func (h *Handlers) CreateReport(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var req models.CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, models.NewValidationError("", "invalid JSON body"))
		return
	}

	report, err := h.svc.SubmitReport(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": report})
}

// ListReports handles GET /api/reports
func (h *Handlers) ListReports(c *gin.Context) {
	reports, err := h.svc.ListReports(c.Request.Context(), service.ListQuery{
		BBox:   c.Query("bbox"),
		Status: c.Query("status"),
		Limit:  c.Query("limit"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("format") == "geojson" {
		c.JSON(http.StatusOK, geoquery.FeatureCollection(reports))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(reports), "data": reports})
}

// NearbyReports handles GET /api/reports/nearby
func (h *Handlers) NearbyReports(c *gin.Context) {
	nearby, err := h.svc.Nearby(c.Request.Context(), service.NearbyQuery{
		Lat:      c.Query("lat"),
		Lng:      c.Query("lng"),
		RadiusKm: c.Query("radiusKm"),
		Status:   c.Query("status"),
		Limit:    c.Query("limit"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(nearby), "data": nearby})
}

// GetReport handles GET /api/reports/:id
func (h *Handlers) GetReport(c *gin.Context) {
	report, err := h.svc.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": report})
}

// UpdateStatus handles PATCH /api/reports/:id/status
func (h *Handlers) UpdateStatus(c *gin.Context) {
	var req models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, models.NewValidationError("", "invalid JSON body"))
		return
	}

	update, err := h.svc.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": update})
}

// CitywideStats handles GET /api/reports/stats/summary
func (h *Handlers) CitywideStats(c *gin.Context) {
	summary, err := h.svc.CitywideSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": summary})
}

// ZipcodeStats handles GET /api/reports/stats/zipcode/:zipcode
func (h *Handlers) ZipcodeStats(c *gin.Context) {
	detail, err := h.svc.ZipcodeDetail(c.Request.Context(), c.Param("zipcode"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": detail})
}

// ListenReports upgrades to a WebSocket that streams newly created reports.
func (h *Handlers) ListenReports(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Live feed disabled"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("Failed to upgrade connection to WebSocket")
		return
	}
	h.hub.Serve(conn)
}

// HealthCheck reports liveness and store connectivity.
func (h *Handlers) HealthCheck(c *gin.Context) {
	body := gin.H{
		"status":  "healthy",
		"service": "civiclens",
		"time":    time.Now().UTC().Format(time.RFC3339),
	}
	if h.hub != nil {
		body["liveFeedClients"] = h.hub.ClientCount()
	}
	if h.eventBus != nil {
		// A lost broker degrades the service without failing the check.
		if h.eventBus.IsConnected() {
			body["eventBus"] = "connected"
		} else {
			body["eventBus"] = "disconnected"
			body["status"] = "degraded"
		}
	}

	if err := h.svc.Health(c.Request.Context()); err != nil {
		log.WithError(err).Warn("health check: store unreachable")
		body["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
