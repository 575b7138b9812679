// Package errors provides unified error handling for the lottery decision core.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code in the taxonomy from spec §7.
type ErrorCode string

const (
	// Configuration errors: terminal, no state mutation.
	ErrCodeCampaignNotFound   ErrorCode = "CFG_CAMPAIGN_NOT_FOUND"
	ErrCodeCampaignInactive  ErrorCode = "CFG_CAMPAIGN_INACTIVE"
	ErrCodeNoActivePricing   ErrorCode = "CFG_NO_ACTIVE_PRICING"
	ErrCodeConfigViolation   ErrorCode = "CFG_CONFIG_VIOLATION"

	// Admission errors: terminal, no state mutation, no idempotency commit.
	ErrCodeQuotaExceeded         ErrorCode = "ADM_QUOTA_EXCEEDED"
	ErrCodeInsufficientPoints    ErrorCode = "ADM_INSUFFICIENT_POINTS"
	ErrCodeGuaranteeMisconfigured ErrorCode = "ADM_GUARANTEE_MISCONFIGURED"

	// Concurrency errors: retryable with the same client_request_id.
	ErrCodeInProgress   ErrorCode = "CONC_IN_PROGRESS"
	ErrCodeLockTimeout  ErrorCode = "CONC_LOCK_TIMEOUT"
	ErrCodeTimeout      ErrorCode = "CONC_TIMEOUT"

	// Degradation: non-fatal, committed as an empty outcome.
	ErrCodeFallbackExhaustion ErrorCode = "DEG_FALLBACK_EXHAUSTION"

	// Integrity errors.
	ErrCodeAssetDebitFailed   ErrorCode = "INT_ASSET_DEBIT_FAILED"
	ErrCodeAssetIssueDeferred ErrorCode = "INT_ASSET_ISSUE_DEFERRED"

	// Internal errors.
	ErrCodeTransientStore ErrorCode = "SYS_TRANSIENT_STORE_ERROR"
	ErrCodeInternal       ErrorCode = "SYS_INTERNAL"
)

// ServiceError represents a structured error with code, message, and HTTP status.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError.
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap wraps an existing error with a ServiceError.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Configuration errors.

func CampaignNotFound(campaignID string) *ServiceError {
	return New(ErrCodeCampaignNotFound, "campaign not found", http.StatusNotFound).
		WithDetails("campaign_id", campaignID)
}

func CampaignInactive(campaignID, status string) *ServiceError {
	return New(ErrCodeCampaignInactive, "campaign is not active", http.StatusConflict).
		WithDetails("campaign_id", campaignID).
		WithDetails("status", status)
}

func NoActivePricing(campaignID string) *ServiceError {
	return New(ErrCodeNoActivePricing, "campaign has no active pricing config", http.StatusConflict).
		WithDetails("campaign_id", campaignID)
}

func ConfigViolation(reason string) *ServiceError {
	return New(ErrCodeConfigViolation, "campaign configuration violates an invariant", http.StatusUnprocessableEntity).
		WithDetails("reason", reason)
}

// Admission errors.

func QuotaExceeded(scope string, limit int) *ServiceError {
	return New(ErrCodeQuotaExceeded, "daily quota exceeded", http.StatusTooManyRequests).
		WithDetails("scope", scope).
		WithDetails("limit", limit)
}

func InsufficientPoints(required, available int64) *ServiceError {
	return New(ErrCodeInsufficientPoints, "insufficient asset balance", http.StatusPaymentRequired).
		WithDetails("required", required).
		WithDetails("available", available)
}

func GuaranteeMisconfigured(campaignID string) *ServiceError {
	return New(ErrCodeGuaranteeMisconfigured, "campaign guarantee block is misconfigured", http.StatusUnprocessableEntity).
		WithDetails("campaign_id", campaignID)
}

// Concurrency errors.

func InProgress(clientRequestID string) *ServiceError {
	return New(ErrCodeInProgress, "a draw with this request id is already in flight", http.StatusConflict).
		WithDetails("client_request_id", clientRequestID)
}

func LockTimeout(lockKey string) *ServiceError {
	return New(ErrCodeLockTimeout, "could not acquire the per-user draw lock in time", http.StatusServiceUnavailable).
		WithDetails("lock_key", lockKey)
}

func Timeout(stage string) *ServiceError {
	return New(ErrCodeTimeout, "draw deadline elapsed", http.StatusGatewayTimeout).
		WithDetails("stage", stage)
}

// Degradation.

func FallbackExhaustion(campaignID string) *ServiceError {
	return New(ErrCodeFallbackExhaustion, "fallback tier prize stock exhausted", http.StatusOK).
		WithDetails("campaign_id", campaignID)
}

// Integrity errors.

func AssetDebitFailed(err error) *ServiceError {
	return Wrap(ErrCodeAssetDebitFailed, "asset service debit failed", http.StatusBadGateway, err)
}

func AssetIssueDeferred(idempotencyKey string) *ServiceError {
	return New(ErrCodeAssetIssueDeferred, "prize issuance deferred to outbox retry", http.StatusOK).
		WithDetails("idempotency_key", idempotencyKey)
}

// Internal errors.

func TransientStoreError(operation string, err error) *ServiceError {
	return Wrap(ErrCodeTransientStore, "transient store error, safe to retry", http.StatusServiceUnavailable, err).
		WithDetails("operation", operation)
}

func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

func NotFound(resource, id string) *ServiceError {
	return New(ErrCodeConfigViolation, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

// Helper functions.

// IsServiceError checks if an error is a ServiceError.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// Code returns the ErrorCode carried by err, or "" if err is not a ServiceError.
func Code(err error) ErrorCode {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Code
	}
	return ""
}

// GetHTTPStatus returns the HTTP status code for an error.
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Retryable reports whether the caller may retry the same client_request_id.
func Retryable(err error) bool {
	switch Code(err) {
	case ErrCodeInProgress, ErrCodeLockTimeout, ErrCodeTimeout, ErrCodeTransientStore:
		return true
	default:
		return false
	}
}
