package httpmid

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/r3e-network/lottery-core/internal/logging"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRecoveryCatchesPanicAndReturns500(t *testing.T) {
	logger := logging.New("test", "error", "text")
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	Recovery(logger)(panicking).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after a recovered panic, got %d", rec.Code)
	}
}

func TestRecoveryPassesThroughNonPanickingHandler(t *testing.T) {
	logger := logging.New("test", "error", "text")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	Recovery(logger)(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRateLimiterAllowsWithinBurstThenThrottles(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	handler := rl.Handler(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("X-User-ID", "user-1")
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 within burst, got %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-User-ID", "user-1")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once burst is exhausted, got %d", rec.Code)
	}
}

func TestRateLimiterTracksDistinctKeysIndependently(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	handler := rl.Handler(okHandler())

	req1 := httptest.NewRequest(http.MethodGet, "/x", nil)
	req1.Header.Set("X-User-ID", "user-1")
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)

	req2 := httptest.NewRequest(http.MethodGet, "/x", nil)
	req2.Header.Set("X-User-ID", "user-2")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)

	if rec1.Code != http.StatusOK || rec2.Code != http.StatusOK {
		t.Fatalf("expected both distinct keys to pass their first request, got %d and %d", rec1.Code, rec2.Code)
	}
}

func TestAdminAuthRejectsMissingBearerToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-token"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	handler := AdminAuth(string(hash))(okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/x", nil)
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a bearer token, got %d", rec.Code)
	}
}

func TestAdminAuthRejectsWrongToken(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret-token"), bcrypt.MinCost)
	handler := AdminAuth(string(hash))(okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/x", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a wrong token, got %d", rec.Code)
	}
}

func TestAdminAuthAcceptsCorrectToken(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret-token"), bcrypt.MinCost)
	handler := AdminAuth(string(hash))(okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/x", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for the correct token, got %d", rec.Code)
	}
}

func TestAdminAuthRejectsWhenNotConfigured(t *testing.T) {
	handler := AdminAuth("")(okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/x", nil)
	req.Header.Set("Authorization", "Bearer anything")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when no admin token hash is configured, got %d", rec.Code)
	}
}
