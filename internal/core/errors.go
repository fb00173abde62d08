package core

import (
	"errors"
	"fmt"
)

var ErrRoomClosed = errors.New("room closed")

// Rejection codes sent back to the client.
const (
	CodeBadPayload    = "bad_payload"
	CodeUnknownType   = "unknown_type"
	CodeForgedOrigin  = "forged_origin"
	CodeNotFound      = "not_found"
	CodeOutOfRange    = "out_of_range"
	CodeEmpty         = "empty"
	CodeTooLong       = "too_long"
	CodeNoCurrentItem = "no_current_item"
	CodeUnresolved    = "unresolved"
	CodeRateLimited   = "rate_limited"
	CodeInternal      = "internal"
)

// ValidationError rejects an action without touching room state.
type ValidationError struct {
	Type   ActionType
	Code   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("invalid action: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Type, e.Reason)
}

func invalid(t ActionType, code, format string, args ...any) *ValidationError {
	return &ValidationError{Type: t, Code: code, Reason: fmt.Sprintf(format, args...)}
}

func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// InternalError is an unexpected failure while applying an action.
// The room state is rolled back when it is returned.
type InternalError struct {
	Type  ActionType
	Cause any
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error applying %s: %v", e.Type, e.Cause)
}

type ErrorPayload struct {
	Code    string     `json:"code"`
	Action  ActionType `json:"action,omitempty"`
	Message string     `json:"message"`
}

// NewErrorEvent builds an ERROR frame for failures outside the dispatcher,
// such as credential or provider errors.
func NewErrorEvent(code string, action ActionType, message string) Event {
	return newEvent(ErrorNotice, ErrorPayload{Code: code, Action: action, Message: message})
}
