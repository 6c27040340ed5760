package payments

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"readerhub/pkg/config"
	apperrors "readerhub/pkg/errors"
	httputil "readerhub/pkg/http"
	"readerhub/pkg/metrics"

	"github.com/julienschmidt/httprouter"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	WebhookPath      = "/api/v1/payments/stripe/webhook"
	maxWebhookBody   = 1 << 20
	signatureHeader  = "Stripe-Signature"
	eventSucceeded   = "payment_intent.succeeded"
	eventFailed      = "payment_intent.payment_failed"
	eventCanceled    = "payment_intent.canceled"
	webhookProcessed = "processed"
	webhookIgnored   = "ignored"
)

// WebhookHandler receives Stripe events. The signature is the only
// authentication; the route is outside the bearer token check.
type WebhookHandler struct {
	processor *Processor
	cfg       *config.Config
}

func NewWebhookHandler(processor *Processor, cfg *config.Config) *WebhookHandler {
	return &WebhookHandler{processor: processor, cfg: cfg}
}

func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if strings.TrimSpace(h.cfg.StripeWebhookSecret) == "" {
		h.writeError(w, apperrors.Unavailable("Stripe webhook"))
		return
	}

	sig := r.Header.Get(signatureHeader)
	if strings.TrimSpace(sig) == "" {
		h.writeError(w, apperrors.InvalidInput("missing Stripe-Signature header"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.writeError(w, apperrors.InvalidInput("failed to read request body"))
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sig, h.cfg.StripeWebhookSecret, h.cfg.StripeWebhookTolerance)
	if err != nil {
		h.cfg.Log.Warn("Rejected Stripe webhook", "error", err)
		metrics.RecordPaymentEvent(SourceStripe, "unknown", "invalid_signature")
		h.writeError(w, apperrors.InvalidInput("invalid signature"))
		return
	}

	evtType := string(evt.Type)
	h.cfg.Log.Info("Stripe event received", "event_id", evt.ID, "event_type", evtType)

	var apply func(bookingID, ref string) error
	switch evtType {
	case eventSucceeded:
		apply = func(id, ref string) error { return h.processor.Succeeded(r.Context(), SourceStripe, id, ref) }
	case eventFailed, eventCanceled:
		apply = func(id, ref string) error { return h.processor.Failed(r.Context(), SourceStripe, id, ref) }
	default:
		h.ack(w, webhookIgnored)
		return
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
		h.cfg.Log.Error("Invalid payment intent payload", "event_id", evt.ID, "error", err)
		h.ack(w, webhookIgnored)
		return
	}
	bookingID := strings.TrimSpace(intent.Metadata[MetadataBookingID])
	if bookingID == "" {
		h.cfg.Log.Warn("Payment intent without booking reference", "event_id", evt.ID, "payment_ref", intent.ID)
		h.ack(w, webhookIgnored)
		return
	}

	if err := apply(bookingID, intent.ID); err != nil {
		h.cfg.Log.Error("Failed to apply payment outcome",
			"event_id", evt.ID,
			"booking_id", bookingID,
			"error", err,
		)
		if retryable(err) {
			// Stripe redelivers on non-2xx.
			h.writeError(w, err)
			return
		}
	}
	h.ack(w, webhookProcessed)
}

func (h *WebhookHandler) ack(w http.ResponseWriter, status string) {
	if err := httputil.WriteSuccess(w, map[string]string{"status": status}); err != nil {
		h.cfg.Log.Error("failed to write success response", "handler", "Stripe", "operation", "WriteSuccess", "error", err)
	}
}

func (h *WebhookHandler) writeError(w http.ResponseWriter, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.cfg.Log.Error("failed to write error response", "handler", "Stripe", "operation", "WriteError", "error", writeErr)
	}
}

func (h *WebhookHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST(WebhookPath, h.Stripe)
}
