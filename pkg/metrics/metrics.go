package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coldcall_sessions_created_total",
		Help: "Voice session credentials issued.",
	})

	SessionsDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coldcall_sessions_denied_total",
		Help: "Session requests rejected, by reason code.",
	}, []string{"reason"})

	FreeCallsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coldcall_free_calls_consumed_total",
		Help: "Free-tier calls recorded as used.",
	})

	PurchasesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coldcall_purchases_completed_total",
		Help: "Completed checkout purchases credited.",
	})

	ScorecardsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coldcall_scorecards_generated_total",
		Help: "Scorecards successfully produced.",
	})

	ScorecardFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coldcall_scorecard_failures_total",
		Help: "Scorecard evaluations that failed or returned unparseable output.",
	})
)

// Handler exposes the prometheus registry as a gin handler.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
