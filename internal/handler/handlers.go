// Package handlers wires the HTTP API: entitlement checks, session
// brokering, scorecard generation, call recording, and payments.
package handlers

import (
	"context"

	"github.com/FeliciaLa/coldcall-pro/internal/broker"
	"github.com/FeliciaLa/coldcall-pro/internal/scorecard"
	"github.com/FeliciaLa/coldcall-pro/pkg/config"
	"github.com/FeliciaLa/coldcall-pro/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"gorm.io/gorm"
)

// Evaluator grades finished calls (normally *scorecard.Evaluator).
type Evaluator interface {
	Evaluate(ctx context.Context, req scorecard.Request) (*scorecard.Result, error)
}

type Handlers struct {
	db        *gorm.DB
	broker    *broker.Broker
	evaluator Evaluator

	webhookSecret  string
	priceID        string
	successURL     string
	cancelURL      string
	createCheckout func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewHandlers(db *gorm.DB, b *broker.Broker, e Evaluator, cfg *config.Config) *Handlers {
	stripe.Key = cfg.StripeSecretKey
	h := &Handlers{
		db:             db,
		broker:         b,
		evaluator:      e,
		webhookSecret:  cfg.StripeWebhookSecret,
		priceID:        cfg.StripePriceID,
		successURL:     cfg.CheckoutSuccessURL,
		cancelURL:      cfg.CheckoutCancelURL,
		createCheckout: session.New,
	}
	if cfg.StripeSecretKey == "" {
		h.createCheckout = nil
	}
	return h
}

func (h *Handlers) Register(engine *gin.Engine) {
	r := engine.Group(config.GlobalConfig.APIPrefix)
	r.Use(middleware.AnonymousIdentity())

	r.GET("/access", h.GetAccess)
	r.GET("/scenarios", h.ListScenarios)
	r.POST("/sessions", h.CreateSession)
	r.POST("/scorecards", h.GenerateScorecard)
	r.POST("/calls/free", h.CompleteFreeCall)
	r.POST("/checkout", h.CreateCheckout)
	r.POST("/webhooks/stripe", h.StripeWebhook)
}
