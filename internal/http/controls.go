package http

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"flextraff-service/internal/cycle"
	"flextraff-service/internal/domain/traffic"
	"flextraff-service/internal/export"
	"flextraff-service/internal/service"
)

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

type automaticRequest struct {
	MinCycleSeconds *int `json:"min_cycle_seconds" binding:"required"`
	MaxCycleSeconds *int `json:"max_cycle_seconds" binding:"required"`
}

type totalRequest struct {
	TotalCycleTime *int `json:"total_cycle_time" binding:"required"`
}

type laneRequest struct {
	Value *int `json:"value" binding:"required"`
}

func (h *Handler) openControls(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.handleError(c, err)
		return
	}
	state, err := h.traffic.OpenControls(c.Request.Context(), id, subject(c))
	h.respondControls(c, state, err)
}

func (h *Handler) discardControls(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if err := h.traffic.DiscardControls(c.Request.Context(), id, subject(c)); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) setMode(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.handleError(c, err)
		return
	}
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	state, err := h.traffic.SetMode(c.Request.Context(), id, subject(c), req.Mode)
	h.respondControls(c, state, err)
}

func (h *Handler) setAutomaticBounds(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.handleError(c, err)
		return
	}
	var req automaticRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	state, err := h.traffic.SetAutomaticBounds(c.Request.Context(), id, subject(c), *req.MinCycleSeconds, *req.MaxCycleSeconds)
	h.respondControls(c, state, err)
}

func (h *Handler) editTotalCycle(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.handleError(c, err)
		return
	}
	var req totalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	state, err := h.traffic.EditTotalCycle(c.Request.Context(), id, subject(c), *req.TotalCycleTime)
	h.respondControls(c, state, err)
}

func (h *Handler) editLane(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.handleError(c, err)
		return
	}
	var req laneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	state, err := h.traffic.EditLane(c.Request.Context(), id, subject(c), c.Param("lane"), *req.Value)
	h.respondControls(c, state, err)
}

// respondControls returns the editor state. A rejected edit that leaves the
// draft in place still carries the state so the panel can show the
// unchanged lanes next to the error.
func (h *Handler) respondControls(c *gin.Context, state cycle.SessionState, err error) {
	if err == nil {
		c.JSON(http.StatusOK, successResponse(state))
		return
	}

	var capErr *traffic.CapacityError
	if errors.As(err, &capErr) && state.JunctionID != 0 {
		c.JSON(http.StatusConflict, gin.H{
			"error":    err.Error(),
			"capacity": capErr,
			"data":     state,
		})
		return
	}
	h.handleError(c, err)
}

func (h *Handler) saveControls(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.handleError(c, err)
		return
	}

	outcome, err := h.traffic.SaveControls(c.Request.Context(), id, subject(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(saveStatus(outcome.Action), successResponse(outcome))
}

func (h *Handler) saveCycle(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.handleError(c, err)
		return
	}
	var req service.CycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	outcome, err := h.traffic.SaveCycle(c.Request.Context(), id, subject(c), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(saveStatus(outcome.Action), successResponse(outcome))
}

func saveStatus(action cycle.Action) int {
	if action == cycle.ActionInsert {
		return http.StatusCreated
	}
	return http.StatusOK
}

func (h *Handler) listCycles(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.handleError(c, err)
		return
	}

	cycles, err := h.traffic.ListCycles(c.Request.Context(), id, queryLimit(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(cycles))
}

func (h *Handler) exportCycles(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.handleError(c, err)
		return
	}

	result, err := h.traffic.ExportCycles(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	if result.URL != "" {
		c.Header("X-Export-URL", result.URL)
	}
	c.DataFromReader(http.StatusOK, int64(len(result.Data)), export.ContentType, bytes.NewReader(result.Data), map[string]string{
		"Content-Disposition": "attachment; filename=" + strconv.Quote(result.FileName),
	})
}
