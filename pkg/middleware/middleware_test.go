package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"readerhub/pkg/identity"
	"readerhub/pkg/logger"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	id  identity.Identity
	err error
}

func (s stubVerifier) Verify(string) (identity.Identity, error) {
	return s.id, s.err
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestAuthenticate(t *testing.T) {
	log := logger.Discard()
	var seen identity.Identity
	var seenOK bool
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, seenOK = identity.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("anonymous passes through", func(t *testing.T) {
		h := Authenticate(stubVerifier{}, log)(capture)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.False(t, seenOK)
	})

	t.Run("valid token attaches identity", func(t *testing.T) {
		want := identity.Identity{Subject: "client-1", Role: identity.RoleActor}
		h := Authenticate(stubVerifier{id: want}, log)(capture)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.True(t, seenOK)
		assert.Equal(t, want, seen)
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		h := Authenticate(stubVerifier{err: identity.ErrInvalidToken}, log)(capture)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	})

	t.Run("wrong scheme is rejected", func(t *testing.T) {
		h := Authenticate(stubVerifier{}, log)(capture)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestInMemoryRateLimiter(t *testing.T) {
	rl := NewInMemoryRateLimiter(2, time.Minute)
	defer rl.Stop()

	h := RateLimit(rl, logger.Discard())(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRedisRateLimiter(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rl := NewRedisRateLimiter(db, 1, time.Minute, "rl")

	sha := fixedWindowScript.Hash()
	mock.ExpectEvalSha(sha, []string{"rl:ip:10.0.0.9"}, int64(60000)).SetVal(int64(1))
	mock.ExpectEvalSha(sha, []string{"rl:ip:10.0.0.9"}, int64(60000)).SetVal(int64(2))
	mock.ExpectEvalSha(sha, []string{"rl:ip:10.0.0.9"}, int64(60000)).SetErr(errors.New("connection refused"))

	h := RateLimit(rl, logger.Discard())(okHandler())
	serve := func() int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.9:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, serve())
	assert.Equal(t, http.StatusTooManyRequests, serve())
	// fails open
	assert.Equal(t, http.StatusOK, serve())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_ReplaysPerCaller(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Hour)
	defer store.Stop()

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"n":1}`))
	})
	h := Idempotency(store, "", logger.Discard())(next)

	send := func(subject string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader("{}"))
		req.Header.Set(DefaultIdempotencyHeader, "key-1")
		if subject != "" {
			req = req.WithContext(identity.WithIdentity(req.Context(), identity.Identity{Subject: subject, Role: identity.RoleActor}))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := send("client-1")
	second := send("client-1")
	third := send("client-2")

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, `{"n":1}`, second.Body.String())
	assert.Equal(t, 2, calls, "a different caller must not receive a replay")
	assert.Empty(t, third.Header().Get("Idempotent-Replayed"))
}

func TestIdempotency_DoesNotCacheFailures(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Hour)
	defer store.Stop()

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusConflict)
	})
	h := Idempotency(store, "", logger.Discard())(next)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set(DefaultIdempotencyHeader, "k")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
}

func TestContentTypeValidation(t *testing.T) {
	h := ContentTypeValidation(logger.Discard(), "/webhook")(okHandler())

	tests := []struct {
		name        string
		path        string
		body        string
		contentType string
		want        int
	}{
		{"json body", "/x", "{}", "application/json; charset=utf-8", http.StatusOK},
		{"form body", "/x", "a=b", "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"empty body", "/x", "", "", http.StatusOK},
		{"exempt path", "/webhook", "raw", "text/plain", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestRouteLabel(t *testing.T) {
	got := routeLabel("/api/v1/bookings/id/65f1c2a9e4b0a1b2c3d4e5f6/confirm")
	if got != "/api/v1/bookings/id/:id/confirm" {
		t.Errorf("unexpected route label %q", got)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(logger.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
