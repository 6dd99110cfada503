package models

import "fmt"

// Error kinds surfaced by the core. Channel and filter faults are recovered
// locally and never reach API responses.
const (
	ErrInvalidInput         = "InvalidInput"
	ErrNotFound             = "NotFound"
	ErrAmbiguousRecipient   = "AmbiguousRecipient"
	ErrInvalidConversation  = "InvalidConversation"
	ErrConflictRetryExceeded = "ConflictRetryExceeded"
	ErrInsufficientSupply   = "InsufficientSupply"
	ErrStoreUnavailable     = "StoreUnavailable"
	ErrChannelFailure       = "ChannelFailure"
	ErrFilterError          = "FilterError"
)

// AppError is the structured error object returned by the API.
type AppError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewAppError(kind, message string, retryable bool) *AppError {
	return &AppError{Kind: kind, Message: message, Retryable: retryable}
}

// HTTPStatus maps an error kind to the status code controllers respond with.
func (e *AppError) HTTPStatus() int {
	switch e.Kind {
	case ErrInvalidInput, ErrAmbiguousRecipient, ErrInvalidConversation:
		return 400
	case ErrNotFound:
		return 404
	case ErrConflictRetryExceeded:
		return 409
	case ErrInsufficientSupply:
		return 422
	case ErrStoreUnavailable:
		return 503
	default:
		return 500
	}
}
