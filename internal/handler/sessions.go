package handlers

import (
	"errors"
	"net/http"

	"github.com/FeliciaLa/coldcall-pro/internal/broker"
	"github.com/FeliciaLa/coldcall-pro/pkg/logger"
	"github.com/FeliciaLa/coldcall-pro/pkg/metrics"
	"github.com/FeliciaLa/coldcall-pro/pkg/middleware"
	"github.com/FeliciaLa/coldcall-pro/pkg/realtime"
	"github.com/FeliciaLa/coldcall-pro/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createSessionRequest struct {
	ScenarioID string `json:"scenarioId" binding:"required"`
}

// CreateSession validates entitlement and mints a short-lived credential the
// client uses to establish its own media connection. The server never relays
// audio.
func (h *Handlers) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "scenarioId is required", nil)
		return
	}

	sess, err := h.broker.CreateSession(c.Request.Context(), middleware.IdentityFrom(c), req.ScenarioID)
	if err != nil {
		var badScenario *broker.BadScenarioError
		var denied *broker.EntitlementError
		var upstream *realtime.StatusError
		switch {
		case errors.As(err, &badScenario):
			response.Fail(c, "unknown scenario", nil)
		case errors.As(err, &denied):
			metrics.SessionsDenied.WithLabelValues(string(denied.Reason)).Inc()
			response.FailWithStatus(c, http.StatusForbidden, string(denied.Reason), "no calls remaining")
		case errors.Is(err, broker.ErrNotConfigured):
			response.FailWithStatus(c, http.StatusServiceUnavailable, "not_configured", "voice provider not configured")
		case errors.As(err, &upstream):
			logger.Error("session credential request failed", zap.Error(err))
			response.FailWithStatus(c, http.StatusBadGateway, "upstream_error", "voice provider rejected the session")
		default:
			logger.Error("create session failed", zap.Error(err))
			response.FailWithStatus(c, http.StatusInternalServerError, "internal_error", "failed to create session")
		}
		return
	}

	metrics.SessionsCreated.Inc()
	response.Success(c, "ok", sess)
}
