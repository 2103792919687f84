package handlers

import (
	"errors"
	"net/http"

	"github.com/FeliciaLa/coldcall-pro/internal/models"
	"github.com/FeliciaLa/coldcall-pro/internal/scorecard"
	"github.com/FeliciaLa/coldcall-pro/pkg/logger"
	"github.com/FeliciaLa/coldcall-pro/pkg/metrics"
	"github.com/FeliciaLa/coldcall-pro/pkg/middleware"
	"github.com/FeliciaLa/coldcall-pro/pkg/response"
	"github.com/FeliciaLa/coldcall-pro/pkg/scenario"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type scorecardRequest struct {
	ScenarioID      string                      `json:"scenarioId" binding:"required"`
	Transcript      []scorecard.TranscriptEntry `json:"transcript" binding:"required"`
	DurationSeconds int                         `json:"durationSeconds"`
}

type scorecardResponse struct {
	Scorecard *scorecard.Result `json:"scorecard"`
}

// GenerateScorecard grades a finished call and stores the call record. The
// transcript is graded and discarded, never persisted.
func (h *Handlers) GenerateScorecard(c *gin.Context) {
	var req scorecardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "scenarioId and transcript are required", nil)
		return
	}

	sc, err := scenario.Get(req.ScenarioID)
	if err != nil {
		response.Fail(c, "unknown scenario", nil)
		return
	}

	result, err := h.evaluator.Evaluate(c.Request.Context(), scorecard.Request{
		Scenario:        sc,
		Transcript:      req.Transcript,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		metrics.ScorecardFailures.Inc()
		if errors.Is(err, scorecard.ErrUnavailable) {
			response.FailWithStatus(c, http.StatusServiceUnavailable, "not_configured", "scorecard generation not configured")
			return
		}
		logger.Error("scorecard generation failed", zap.Error(err))
		response.FailWithStatus(c, http.StatusBadGateway, "upstream_error", "failed to generate scorecard")
		return
	}

	if id := middleware.IdentityFrom(c); h.db != nil && id != "" {
		rec := &models.CallRecord{
			AnonymousID:     id,
			ScenarioID:      req.ScenarioID,
			DurationSeconds: req.DurationSeconds,
			Outcome:         string(result.Outcome),
			OverallScore:    result.OverallScore,
		}
		if err := models.RecordCall(h.db, rec); err != nil {
			// Grading succeeded; history is best-effort.
			logger.Warn("record call failed", zap.Error(err))
		}
	}

	metrics.ScorecardsGenerated.Inc()
	response.Success(c, "ok", scorecardResponse{Scorecard: result})
}
