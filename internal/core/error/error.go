package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// DatabaseErrorMessage describes relational store failures.
	DatabaseErrorMessage = "database operation failed"
	// NotConfiguredMessage is returned when the agent or its configuration is missing.
	NotConfiguredMessage = "AI agent is not configured"
	// RateLimitedMessage is returned when the completion gateway throttles us.
	RateLimitedMessage = "Rate limit exceeded. Please try again later."
	// PaymentRequiredMessage is returned when the completion gateway refuses on billing grounds.
	PaymentRequiredMessage = "AI service temporarily unavailable. Please contact support."
	// UpstreamErrorMessage is returned for any other completion gateway failure.
	UpstreamErrorMessage = "AI gateway error"
)

// Kinds. Match with errors.Is against any *AppError.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotConfigured   = errors.New("agent not configured")
	ErrRateLimited     = errors.New("upstream rate limited")
	ErrPaymentRequired = errors.New("upstream payment required")
	ErrUpstream        = errors.New("upstream failure")
	ErrUnknownTool     = errors.New("unknown tool")
	ErrToolExecution   = errors.New("tool execution failed")
	ErrPersistence     = errors.New("persistence failure")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
	Kind    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether the target is this error's kind or matches the underlying error.
func (e *AppError) Is(target error) bool {
	if e.Kind != nil && e.Kind == target {
		return true
	}
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return errors.As(e.Err, target)
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

func newKind(kind, err error, status int, message string) *AppError {
	return &AppError{Err: err, Status: status, Message: message, Kind: kind}
}

// Validation reports a malformed inbound payload. The message is shown verbatim to the caller.
func Validation(message string) *AppError {
	return newKind(ErrValidation, nil, http.StatusBadRequest, message)
}

// NotConfigured reports a missing agent or agent configuration.
func NotConfigured(err error) *AppError {
	return newKind(ErrNotConfigured, err, http.StatusInternalServerError, NotConfiguredMessage)
}

// RateLimited maps a gateway 429.
func RateLimited(err error) *AppError {
	return newKind(ErrRateLimited, err, http.StatusTooManyRequests, RateLimitedMessage)
}

// PaymentRequired maps a gateway 402.
func PaymentRequired(err error) *AppError {
	return newKind(ErrPaymentRequired, err, http.StatusPaymentRequired, PaymentRequiredMessage)
}

// Upstream maps any other gateway failure.
func Upstream(err error) *AppError {
	return newKind(ErrUpstream, err, http.StatusInternalServerError, UpstreamErrorMessage)
}

// UnknownTool reports a tool name outside the registry.
func UnknownTool(name string) *AppError {
	return newKind(ErrUnknownTool, fmt.Errorf("tool %q is not registered", name), http.StatusInternalServerError, "unknown tool")
}

// InvalidArguments reports tool arguments the model got wrong. The message is safe to hand back to the model.
func InvalidArguments(err error) *AppError {
	return newKind(ErrValidation, err, http.StatusBadRequest, "invalid arguments: "+err.Error())
}

// ToolExecution wraps a failure inside a tool.
func ToolExecution(name string, err error) *AppError {
	return newKind(ErrToolExecution, fmt.Errorf("%s: %w", name, err), http.StatusInternalServerError, "tool execution failed")
}

// WrapDB wraps a relational store error with a consistent status code and message.
func WrapDB(err error) error {
	if err == nil {
		return nil
	}
	return newKind(ErrPersistence, err, http.StatusInternalServerError, DatabaseErrorMessage)
}

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOfKind returns the message of the first AppError of the given kind in err's chain.
func MessageOfKind(err error, kind error) (string, bool) {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return "", false
		}
		if appErr.Kind == kind {
			return appErr.Message, true
		}
		err = appErr.Err
	}
	return "", false
}

// MessageOf returns the caller-safe message carried by err.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return SystemErrorMessage
}
