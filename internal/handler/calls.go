package handlers

import (
	"github.com/FeliciaLa/coldcall-pro/internal/models"
	"github.com/FeliciaLa/coldcall-pro/pkg/logger"
	"github.com/FeliciaLa/coldcall-pro/pkg/metrics"
	"github.com/FeliciaLa/coldcall-pro/pkg/middleware"
	"github.com/FeliciaLa/coldcall-pro/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type completeFreeCallRequest struct {
	ScenarioID      string `json:"scenarioId"`
	DurationSeconds int    `json:"durationSeconds"`
}

// CompleteFreeCall advances the free-tier counter when a free call finishes.
// The counter moves at call end, not call start: an aborted dial does not
// cost an allowance. Without a store or identity this is a no-op that still
// succeeds.
func (h *Handlers) CompleteFreeCall(c *gin.Context) {
	var req completeFreeCallRequest
	_ = c.ShouldBindJSON(&req)

	id := middleware.IdentityFrom(c)
	if h.db == nil || id == "" {
		response.Success(c, "ok", nil)
		return
	}

	if err := models.MarkFreeCallUsed(h.db, id); err != nil {
		logger.Error("mark free call used failed", zap.Error(err))
		response.Fail(c, "failed to update allowance", nil)
		return
	}
	metrics.FreeCallsConsumed.Inc()

	if req.ScenarioID != "" {
		rec := &models.CallRecord{
			AnonymousID:     id,
			ScenarioID:      req.ScenarioID,
			DurationSeconds: req.DurationSeconds,
		}
		if err := models.RecordCall(h.db, rec); err != nil {
			logger.Warn("record call failed", zap.Error(err))
		}
	}

	response.Success(c, "ok", models.CheckAccess(h.db, id))
}
