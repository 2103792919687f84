package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/FeliciaLa/coldcall-pro/internal/models"
	"github.com/FeliciaLa/coldcall-pro/pkg/logger"
	"github.com/FeliciaLa/coldcall-pro/pkg/metrics"
	"github.com/FeliciaLa/coldcall-pro/pkg/middleware"
	"github.com/FeliciaLa/coldcall-pro/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 * 1024

// CreateCheckout starts a hosted payment flow for the credit pack. The
// anonymous identity rides along as the client reference so the webhook can
// credit the right entitlement.
func (h *Handlers) CreateCheckout(c *gin.Context) {
	if h.createCheckout == nil || h.priceID == "" {
		response.FailWithStatus(c, http.StatusServiceUnavailable, "not_configured", "payments not configured")
		return
	}

	id := middleware.IdentityFrom(c)
	if id == "" {
		response.Fail(c, "missing identity", nil)
		return
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(h.priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(h.successURL),
		CancelURL:         stripe.String(h.cancelURL),
		ClientReferenceID: stripe.String(id),
	}

	sess, err := h.createCheckout(params)
	if err != nil {
		logger.Error("create checkout session failed", zap.Error(err))
		response.FailWithStatus(c, http.StatusBadGateway, "upstream_error", "failed to start checkout")
		return
	}

	response.Success(c, "ok", gin.H{"url": sess.URL})
}

// StripeWebhook receives payment events. Only checkout.session.completed is
// acted on; credits are granted idempotently by checkout session id, so
// webhook retries are safe.
func (h *Handlers) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Fail(c, "unreadable payload", nil)
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		logger.Warn("webhook signature verification failed", zap.Error(err))
		response.Fail(c, "invalid signature", nil)
		return
	}

	if event.Type != "checkout.session.completed" {
		response.Success(c, "ignored", nil)
		return
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		response.Fail(c, "malformed event", nil)
		return
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		// Async payment methods complete the session before the charge
		// settles; acknowledge and wait for the paid event.
		logger.Info("checkout completed but not paid", zap.String("session", sess.ID),
			zap.String("payment_status", string(sess.PaymentStatus)))
		response.Success(c, "ignored", nil)
		return
	}
	if sess.ClientReferenceID == "" {
		logger.Warn("checkout completed without client reference", zap.String("session", sess.ID))
		response.Success(c, "ignored", nil)
		return
	}

	if err := models.ApplyPurchase(h.db, sess.ClientReferenceID, sess.ID); err != nil {
		logger.Error("apply purchase failed", zap.Error(err), zap.String("session", sess.ID))
		// Non-2xx makes the provider retry; the grant is idempotent.
		response.FailWithStatus(c, http.StatusInternalServerError, "internal_error", "failed to apply purchase")
		return
	}

	metrics.PurchasesCompleted.Inc()
	logger.Info("purchase applied", zap.String("session", sess.ID))
	response.Success(c, "ok", nil)
}
