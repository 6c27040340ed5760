package payments

import (
	"context"
	"fmt"
	"strings"

	"readerhub/pkg/config"
	"readerhub/pkg/model"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
)

const (
	MetadataBookingID  = "booking_id"
	MetadataProviderID = "provider_id"
	MetadataClientID   = "client_id"
	MetadataFeeCents   = "platform_fee_cents"
)

type intentCreator interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeGateway opens a PaymentIntent for each new booking. The booking id
// travels in the intent metadata and comes back on the webhook.
type StripeGateway struct {
	intents intentCreator
	cfg     *config.Config
}

func NewStripeGateway(cfg *config.Config) *StripeGateway {
	return &StripeGateway{
		intents: &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.StripeSecretKey},
		cfg:     cfg,
	}
}

func (g *StripeGateway) Initiate(ctx context.Context, booking *model.Booking) (*model.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(booking.TotalAmountCents),
		Currency: stripe.String(strings.ToLower(booking.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("booking-" + booking.ID)
	params.AddMetadata(MetadataBookingID, booking.ID)
	params.AddMetadata(MetadataProviderID, booking.ProviderID)
	params.AddMetadata(MetadataClientID, booking.ClientID)
	params.AddMetadata(MetadataFeeCents, fmt.Sprintf("%d", booking.PlatformFeeCents))

	intent, err := g.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	g.cfg.Log.Info("Payment intent created",
		"booking_id", booking.ID,
		"payment_ref", intent.ID,
		"amount_cents", booking.TotalAmountCents,
		"currency", booking.Currency,
	)
	return &model.PaymentIntent{Ref: intent.ID, ClientSecret: intent.ClientSecret}, nil
}
