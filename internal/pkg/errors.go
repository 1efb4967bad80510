package pkg

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError 带错误码的业务错误，handler 统一转换为响应
type AppError struct {
	Code   string
	Msg    string
	Status int
	cause  error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *AppError) Unwrap() error { return e.cause }

// Is 同错误码即视为同一错误
func (e *AppError) Is(target error) bool {
	var t *AppError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// WithMsg 复制一份并替换提示信息
func (e *AppError) WithMsg(msg string) *AppError {
	cp := *e
	cp.Msg = msg
	return &cp
}

// Wrap 附带底层错误
func (e *AppError) Wrap(cause error) *AppError {
	cp := *e
	cp.cause = cause
	return &cp
}

func newErr(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Msg: msg, Status: status}
}

var (
	ErrInvalidParams       = newErr("invalid_params", http.StatusBadRequest, "invalid params")
	ErrUnauthorized        = newErr("unauthorized", http.StatusUnauthorized, "unauthorized")
	ErrForbidden           = newErr("forbidden", http.StatusForbidden, "no permission")
	ErrNotFound            = newErr("not_found", http.StatusNotFound, "resource not found")
	ErrConflict            = newErr("conflict", http.StatusConflict, "resource already exists")
	ErrNotMember           = newErr("not_member", http.StatusForbidden, "not a member")
	ErrInvalidTransition   = newErr("invalid_transition", http.StatusConflict, "invalid status transition")
	ErrFundingGoalReached  = newErr("funding_goal_reached", http.StatusConflict, "funding goal already reached")
	ErrAmountExceedsRemain = newErr("amount_exceeds_remaining", http.StatusConflict, "amount exceeds remaining funding")
	ErrNotFundable         = newErr("not_fundable", http.StatusConflict, "content does not accept sponsorships")
	ErrDuplicateSubmission = newErr("duplicate_submission", http.StatusConflict, "request already submitted")
	ErrPaymentFailed       = newErr("payment_failed", http.StatusBadGateway, "payment provider error")
	ErrInvalidSignature    = newErr("invalid_signature", http.StatusBadRequest, "invalid webhook signature")
	ErrEmployeeLimit       = newErr("employee_limit", http.StatusConflict, "employee limit reached")
	ErrUnsupportedMedia    = newErr("unsupported_media", http.StatusUnsupportedMediaType, "unsupported file type")
	ErrTooLarge            = newErr("too_large", http.StatusRequestEntityTooLarge, "file too large")
	ErrRateLimited         = newErr("rate_limited", http.StatusTooManyRequests, "too many requests")
	ErrFeatureDisabled     = newErr("feature_disabled", http.StatusServiceUnavailable, "feature not configured")
	ErrVerificationFailed  = newErr("verification_failed", http.StatusBadRequest, "verification failed")
	ErrInternal            = newErr("internal", http.StatusInternalServerError, "internal error")
)

// AsAppError 非 AppError 一律视为 internal
func AsAppError(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return ErrInternal.Wrap(err)
}
