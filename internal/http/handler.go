package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"flextraff-service/internal/auth"
	"flextraff-service/internal/domain/traffic"
	"flextraff-service/internal/http/middleware"
	"flextraff-service/internal/model"
	"flextraff-service/internal/service"
)

type Handler struct {
	traffic     *service.TrafficService
	credentials *auth.AdminCredentials
	issuer      *auth.Issuer
	tokens      middleware.TokenParser
	log         zerolog.Logger
}

func NewHandler(
	trafficService *service.TrafficService,
	credentials *auth.AdminCredentials,
	issuer *auth.Issuer,
	tokens middleware.TokenParser,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		traffic:     trafficService,
		credentials: credentials,
		issuer:      issuer,
		tokens:      tokens,
		log:         log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Public endpoints
	public := r.Group("/api/v1")
	{
		public.POST("/auth/login", h.login)
		public.GET("/ws/cycles", h.liveCycles)
	}

	// Protected endpoints
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.GET("/dashboard", h.dashboard)
		protected.GET("/detections", h.listDetections)
		protected.GET("/logs", h.listLogs)
		protected.GET("/scanners", h.listScanners)
		protected.POST("/scanners/:id/toggle", h.toggleScanner)

		protected.GET("/junctions", h.listJunctions)
		protected.POST("/junctions", h.createJunction)
		protected.GET("/junctions/:id", h.getJunction)
		protected.PUT("/junctions/:id", h.updateJunction)
		protected.DELETE("/junctions/:id", h.deleteJunction)

		protected.GET("/junctions/:id/controls", h.openControls)
		protected.DELETE("/junctions/:id/controls", h.discardControls)
		protected.PUT("/junctions/:id/controls/mode", h.setMode)
		protected.PUT("/junctions/:id/controls/automatic", h.setAutomaticBounds)
		protected.PUT("/junctions/:id/controls/total", h.editTotalCycle)
		protected.PUT("/junctions/:id/controls/lanes/:lane", h.editLane)
		protected.POST("/junctions/:id/controls/save", h.saveControls)

		protected.GET("/junctions/:id/cycles", h.listCycles)
		protected.POST("/junctions/:id/cycles", h.saveCycle)
		protected.GET("/junctions/:id/cycles/export", h.exportCycles)
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	principal, err := h.credentials.Verify(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrLoginDisabled) {
			h.log.Error().Msg("login attempted but admin credentials are not configured")
			c.JSON(http.StatusServiceUnavailable, errorResponse(err.Error()))
			return
		}
		h.log.Warn().Str("username", req.Username).Str("client_ip", c.ClientIP()).Msg("rejected login")
		c.JSON(http.StatusUnauthorized, errorResponse("invalid username or password"))
		return
	}

	token, expiresAt, err := h.issuer.Issue(principal)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to issue access token")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	h.log.Info().Str("username", principal.Subject).Msg("operator logged in")
	c.JSON(http.StatusOK, successResponse(gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   expiresAt,
		"role":         principal.Role,
	}))
}

func (h *Handler) dashboard(c *gin.Context) {
	junctionID, err := optionalID(c, "junction_id")
	if err != nil {
		h.handleError(c, err)
		return
	}

	dash, err := h.traffic.Dashboard(c.Request.Context(), junctionID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(dash))
}

func (h *Handler) listDetections(c *gin.Context) {
	junctionID, err := optionalID(c, "junction_id")
	if err != nil {
		h.handleError(c, err)
		return
	}

	events, err := h.traffic.ListDetections(c.Request.Context(), junctionID, queryLimit(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(events))
}

func (h *Handler) listLogs(c *gin.Context) {
	junctionID, err := optionalID(c, "junction_id")
	if err != nil {
		h.handleError(c, err)
		return
	}

	logs, err := h.traffic.ListLogs(c.Request.Context(), junctionID, queryLimit(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(logs))
}

func (h *Handler) listScanners(c *gin.Context) {
	junctionID, err := optionalID(c, "junction_id")
	if err != nil {
		h.handleError(c, err)
		return
	}

	scanners, err := h.traffic.ListScanners(c.Request.Context(), junctionID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(scanners))
}

func (h *Handler) toggleScanner(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.handleError(c, err)
		return
	}

	scanner, err := h.traffic.ToggleScanner(c.Request.Context(), id, subject(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(scanner))
}

func (h *Handler) listJunctions(c *gin.Context) {
	junctions, err := h.traffic.ListJunctions(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(junctions))
}

func (h *Handler) getJunction(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.handleError(c, err)
		return
	}

	junction, err := h.traffic.GetJunction(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(junction))
}

func (h *Handler) createJunction(c *gin.Context) {
	var in service.JunctionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	junction, err := h.traffic.CreateJunction(c.Request.Context(), in)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(junction))
}

func (h *Handler) updateJunction(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.handleError(c, err)
		return
	}
	var in service.JunctionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	junction, err := h.traffic.UpdateJunction(c.Request.Context(), id, in)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(junction))
}

func (h *Handler) deleteJunction(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.handleError(c, err)
		return
	}

	if err := h.traffic.DeleteJunction(c.Request.Context(), id); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleError maps the domain error taxonomy onto HTTP statuses. Store and
// persistence details stay in the log.
func (h *Handler) handleError(c *gin.Context, err error) {
	var capErr *traffic.CapacityError
	switch {
	case errors.As(err, &capErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "capacity": capErr})
	case errors.Is(err, traffic.ErrValidation):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, traffic.ErrCapacityExceeded), errors.Is(err, traffic.ErrSaveInProgress):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	case errors.Is(err, traffic.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, traffic.ErrPersistence):
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("persistence failure")
		c.JSON(http.StatusBadGateway, errorResponse("failed to persist cycle configuration"))
	case errors.Is(err, traffic.ErrDataSource), errors.Is(err, traffic.ErrStore):
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("data source failure")
		c.JSON(http.StatusBadGateway, errorResponse("data source unavailable"))
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func pathID(c *gin.Context) (int64, error) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &traffic.ValidationError{Field: "id", Reason: "must be a positive integer, got " + strconv.Quote(raw)}
	}
	return id, nil
}

// optionalID reads an id filter from the query. Missing, empty and "all"
// mean no filter.
func optionalID(c *gin.Context, key string) (*int64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" || strings.EqualFold(raw, "all") {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, &traffic.ValidationError{Field: key, Reason: "must be a positive integer, got " + strconv.Quote(raw)}
	}
	return &id, nil
}

// queryLimit returns 0 for a missing or unusable limit so services apply
// their own default.
func queryLimit(c *gin.Context) int {
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			return parsed
		}
	}
	return 0
}

func subject(c *gin.Context) string {
	if p, ok := middleware.GetPrincipal(c); ok && p.Subject != "" {
		return p.Subject
	}
	return string(model.UserRoleAdmin)
}
