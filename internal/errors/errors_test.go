package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorFormatsWithAndWithoutWrappedCause(t *testing.T) {
	plain := New(ErrCodeCampaignNotFound, "campaign not found", http.StatusNotFound)
	if got, want := plain.Error(), "[CFG_CAMPAIGN_NOT_FOUND] campaign not found"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	cause := stderrors.New("connection refused")
	wrapped := Wrap(ErrCodeTransientStore, "transient store error, safe to retry", http.StatusServiceUnavailable, cause)
	if got, want := wrapped.Error(), "[SYS_TRANSIENT_STORE_ERROR] transient store error, safe to retry: connection refused"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestUnwrapReturnsUnderlyingError(t *testing.T) {
	cause := stderrors.New("boom")
	wrapped := Wrap(ErrCodeInternal, "internal", http.StatusInternalServerError, cause)
	if stderrors.Unwrap(wrapped) != cause {
		t.Fatal("expected Unwrap to return the wrapped cause")
	}
}

func TestWithDetailsAccumulates(t *testing.T) {
	err := New(ErrCodeQuotaExceeded, "quota exceeded", http.StatusTooManyRequests).
		WithDetails("scope", "daily").
		WithDetails("limit", 10)

	if err.Details["scope"] != "daily" || err.Details["limit"] != 10 {
		t.Fatalf("expected both details to accumulate, got %+v", err.Details)
	}
}

func TestGetServiceErrorExtractsFromWrappedChain(t *testing.T) {
	svcErr := CampaignNotFound("camp-1")
	wrapped := stderrors.New("context: " + svcErr.Error())

	if GetServiceError(wrapped) != nil {
		t.Fatal("expected a plain wrapped string error not to unwrap to a ServiceError")
	}
	chained := fmt.Errorf("load campaign: %w", svcErr)
	if got := GetServiceError(chained); got != svcErr {
		t.Fatal("expected GetServiceError to find the ServiceError in a %w chain")
	}
	if got := GetServiceError(svcErr); got != svcErr {
		t.Fatal("expected GetServiceError to return the ServiceError itself")
	}
	if !IsServiceError(svcErr) {
		t.Fatal("expected IsServiceError to report true for a ServiceError")
	}
}

func TestCodeAndHTTPStatusForNonServiceError(t *testing.T) {
	plain := stderrors.New("not a service error")
	if Code(plain) != "" {
		t.Fatalf("expected empty code for a non-ServiceError, got %q", Code(plain))
	}
	if GetHTTPStatus(plain) != http.StatusInternalServerError {
		t.Fatalf("expected 500 fallback for a non-ServiceError, got %d", GetHTTPStatus(plain))
	}
}

func TestCodeAndHTTPStatusForServiceError(t *testing.T) {
	err := LockTimeout("user-1:camp-1")
	if Code(err) != ErrCodeLockTimeout {
		t.Fatalf("expected %q, got %q", ErrCodeLockTimeout, Code(err))
	}
	if GetHTTPStatus(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", GetHTTPStatus(err))
	}
}

func TestRetryableClassifiesConcurrencyAndTransientErrorsOnly(t *testing.T) {
	retryable := []error{
		InProgress("req-1"),
		LockTimeout("user-1:camp-1"),
		Timeout("pricing_load"),
		TransientStoreError("get_campaign", stderrors.New("timeout")),
	}
	for _, err := range retryable {
		if !Retryable(err) {
			t.Fatalf("expected %v to be retryable", err)
		}
	}

	terminal := []error{
		CampaignNotFound("camp-1"),
		InsufficientPoints(100, 50),
		GuaranteeMisconfigured("camp-1"),
		FallbackExhaustion("camp-1"),
	}
	for _, err := range terminal {
		if Retryable(err) {
			t.Fatalf("expected %v not to be retryable", err)
		}
	}
}

func TestFallbackExhaustionIsNonFatalOK(t *testing.T) {
	err := FallbackExhaustion("camp-1")
	if err.HTTPStatus != http.StatusOK {
		t.Fatalf("expected fallback exhaustion to carry a 200 status as a non-fatal degradation, got %d", err.HTTPStatus)
	}
}

func TestAssetIssueDeferredIsNonFatalOK(t *testing.T) {
	err := AssetIssueDeferred("idem-1")
	if err.HTTPStatus != http.StatusOK {
		t.Fatalf("expected deferred issuance to carry a 200 status, got %d", err.HTTPStatus)
	}
	if err.Details["idempotency_key"] != "idem-1" {
		t.Fatalf("expected idempotency_key detail, got %+v", err.Details)
	}
}
