package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"readerhub/pkg/config"
	apperrors "readerhub/pkg/errors"
	"readerhub/pkg/identity"
	"readerhub/pkg/kafka"
	"readerhub/pkg/logger"
	"readerhub/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

const webhookSecret = "whsec_test_secret"

type mockBookingTransitions struct {
	confirmFunc func(ctx context.Context, id string) (*model.Booking, error)
	cancelFunc  func(ctx context.Context, id string) (*model.CancelResult, error)
}

func (m *mockBookingTransitions) Confirm(ctx context.Context, id string) (*model.Booking, error) {
	return m.confirmFunc(ctx, id)
}

func (m *mockBookingTransitions) Cancel(ctx context.Context, id string) (*model.CancelResult, error) {
	return m.cancelFunc(ctx, id)
}

type mockIntentCreator struct {
	newFunc func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func (m *mockIntentCreator) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return m.newFunc(params)
}

func testConfig() *config.Config {
	return &config.Config{
		Log:                    logger.Discard(),
		StripeWebhookSecret:    webhookSecret,
		StripeWebhookTolerance: 5 * time.Minute,
	}
}

func requireSystem(t *testing.T, ctx context.Context) {
	t.Helper()
	caller, ok := identity.FromContext(ctx)
	if !ok || caller.Role != identity.RoleSystem {
		t.Errorf("expected system identity, got %+v", caller)
	}
}

func TestStripeGateway_Initiate(t *testing.T) {
	var got *stripe.PaymentIntentParams
	g := &StripeGateway{
		cfg: testConfig(),
		intents: &mockIntentCreator{newFunc: func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			got = params
			return &stripe.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret"}, nil
		}},
	}

	intent, err := g.Initiate(context.Background(), &model.Booking{
		ID: "b1", ProviderID: "p1", ClientID: "c1", TotalAmountCents: 4500, PlatformFeeCents: 450, Currency: "EUR",
	})
	require.NoError(t, err)

	assert.Equal(t, &model.PaymentIntent{Ref: "pi_1", ClientSecret: "pi_1_secret"}, intent)
	assert.Equal(t, int64(4500), *got.Amount)
	assert.Equal(t, "eur", *got.Currency)
	assert.Equal(t, "b1", got.Metadata[MetadataBookingID])
	assert.Equal(t, "450", got.Metadata[MetadataFeeCents])
	assert.Equal(t, "booking-b1", *got.IdempotencyKey)
}

func TestStripeGateway_InitiateFailure(t *testing.T) {
	g := &StripeGateway{
		cfg: testConfig(),
		intents: &mockIntentCreator{newFunc: func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return nil, errors.New("card_declined")
		}},
	}
	_, err := g.Initiate(context.Background(), &model.Booking{ID: "b1", Currency: "usd"})
	assert.ErrorContains(t, err, "card_declined")
}

func TestProcessor_Succeeded(t *testing.T) {
	tests := []struct {
		name       string
		confirmErr error
		wantErr    bool
	}{
		{name: "confirmed"},
		{name: "booking already released", confirmErr: apperrors.NotFoundWithID("Booking", "b1")},
		{name: "storage down", confirmErr: apperrors.Internal("Failed to confirm booking", errors.New("timeout")), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProcessor(&mockBookingTransitions{
				confirmFunc: func(ctx context.Context, id string) (*model.Booking, error) {
					requireSystem(t, ctx)
					assert.Equal(t, "b1", id)
					if tt.confirmErr != nil {
						return nil, tt.confirmErr
					}
					return &model.Booking{ID: id, Status: model.BookingConfirmed}, nil
				},
			}, logger.Discard())

			err := p.Succeeded(context.Background(), SourceStripe, "b1", "pi_1")
			assert.Equal(t, tt.wantErr, err != nil, "got %v", err)
		})
	}
}

func TestProcessor_Failed(t *testing.T) {
	called := false
	p := NewProcessor(&mockBookingTransitions{
		cancelFunc: func(ctx context.Context, id string) (*model.CancelResult, error) {
			requireSystem(t, ctx)
			called = true
			return &model.CancelResult{BookingID: id, Released: true, ReleasedSlots: 2, Status: model.BookingCanceled}, nil
		},
	}, logger.Discard())

	require.NoError(t, p.Failed(context.Background(), SourceKafka, "b1", ""))
	assert.True(t, called)
}

func sign(payload string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts.Unix(), payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func stripeEvent(eventType, bookingID string) string {
	return fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":%q,"type":%q,"created":%d,`+
		`"data":{"object":{"id":"pi_1","object":"payment_intent","metadata":{"booking_id":%q}}}}`,
		stripe.APIVersion, eventType, time.Now().Unix(), bookingID)
}

func serveWebhook(t *testing.T, transitions *mockBookingTransitions, cfg *config.Config, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	router := httprouter.New()
	NewWebhookHandler(NewProcessor(transitions, cfg.Log), cfg).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(body))
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_SucceededConfirms(t *testing.T) {
	var confirmed string
	transitions := &mockBookingTransitions{
		confirmFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			requireSystem(t, ctx)
			confirmed = id
			return &model.Booking{ID: id}, nil
		},
	}

	body := stripeEvent(eventSucceeded, "b42")
	rec := serveWebhook(t, transitions, testConfig(), body, sign(body, time.Now()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "b42", confirmed)
	assert.Contains(t, rec.Body.String(), webhookProcessed)
}

func TestWebhook_FailedCancels(t *testing.T) {
	var canceled string
	transitions := &mockBookingTransitions{
		cancelFunc: func(_ context.Context, id string) (*model.CancelResult, error) {
			canceled = id
			return &model.CancelResult{BookingID: id, Released: true}, nil
		},
	}

	body := stripeEvent(eventFailed, "b7")
	rec := serveWebhook(t, transitions, testConfig(), body, sign(body, time.Now()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "b7", canceled)
}

func TestWebhook_Rejections(t *testing.T) {
	untouched := &mockBookingTransitions{
		confirmFunc: func(context.Context, string) (*model.Booking, error) {
			t.Fatal("confirm must not be called")
			return nil, nil
		},
	}
	body := stripeEvent(eventSucceeded, "b1")

	t.Run("missing signature", func(t *testing.T) {
		rec := serveWebhook(t, untouched, testConfig(), body, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		rec := serveWebhook(t, untouched, testConfig(), body, "t=1,v1=deadbeef")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		rec := serveWebhook(t, untouched, testConfig(), body, sign(body, time.Now().Add(-time.Hour)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		cfg := testConfig()
		cfg.StripeWebhookSecret = ""
		rec := serveWebhook(t, untouched, cfg, body, sign(body, time.Now()))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestWebhook_IgnoresOtherEvents(t *testing.T) {
	body := stripeEvent("charge.refunded", "b1")
	rec := serveWebhook(t, &mockBookingTransitions{}, testConfig(), body, sign(body, time.Now()))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), webhookIgnored)
}

func TestWebhook_StorageFailureAsksForRedelivery(t *testing.T) {
	transitions := &mockBookingTransitions{
		confirmFunc: func(context.Context, string) (*model.Booking, error) {
			return nil, apperrors.Internal("Failed to confirm booking", errors.New("no primary"))
		},
	}

	body := stripeEvent(eventSucceeded, "b1")
	rec := serveWebhook(t, transitions, testConfig(), body, sign(body, time.Now()))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func outcomeMessage(t *testing.T, evt OutcomeEvent) kafka.Message {
	t.Helper()
	msg, err := kafka.NewMessage().WithKey(evt.BookingID).WithValue(evt).Build()
	require.NoError(t, err)
	return msg
}

func TestOutcomeHandler(t *testing.T) {
	var confirmed, canceled []string
	processor := NewProcessor(&mockBookingTransitions{
		confirmFunc: func(_ context.Context, id string) (*model.Booking, error) {
			if id == "broken" {
				return nil, apperrors.Internal("Failed to confirm booking", errors.New("no primary"))
			}
			confirmed = append(confirmed, id)
			return &model.Booking{ID: id}, nil
		},
		cancelFunc: func(_ context.Context, id string) (*model.CancelResult, error) {
			canceled = append(canceled, id)
			return &model.CancelResult{BookingID: id}, nil
		},
	}, logger.Discard())
	handle := OutcomeHandler(processor)
	ctx := context.Background()

	require.NoError(t, handle(ctx, outcomeMessage(t, OutcomeEvent{BookingID: "b1", Outcome: "succeeded"})))
	require.NoError(t, handle(ctx, outcomeMessage(t, OutcomeEvent{BookingID: "b2", Outcome: "FAILED"})))
	assert.Equal(t, []string{"b1"}, confirmed)
	assert.Equal(t, []string{"b2"}, canceled)

	err := handle(ctx, outcomeMessage(t, OutcomeEvent{BookingID: "b3", Outcome: "refunded"}))
	assert.Equal(t, kafka.ErrorTypePermanent, kafka.ClassifyError(err))

	err = handle(ctx, outcomeMessage(t, OutcomeEvent{Outcome: "succeeded"}))
	assert.Equal(t, kafka.ErrorTypePermanent, kafka.ClassifyError(err))

	err = handle(ctx, outcomeMessage(t, OutcomeEvent{BookingID: "broken", Outcome: "succeeded"}))
	assert.Equal(t, kafka.ErrorTypeTransient, kafka.ClassifyError(err))

	err = handle(ctx, kafka.Message{Value: []byte("{not json"), Headers: map[string]string{}})
	assert.Equal(t, kafka.ErrorTypePermanent, kafka.ClassifyError(err))
}
