package errutil

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type BaseError struct {
	Code    CoreStatus `json:"code"`
	Message string     `json:"message"`
	Details []Detail   `json:"details,omitempty"`
	Err     error      `json:"-"`
}

func (e BaseError) Status() CoreStatus {
	return e.Code
}

// JSON is the body written to HTTP clients. The wrapped cause is never exposed.
func (e BaseError) JSON() map[string]any {
	body := map[string]any{"error": e.Message}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	return body
}

func (e BaseError) Unwrap() error {
	return e.Err
}

func (e BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

type Option func(*BaseError)

func WithDetails(details ...Detail) Option {
	return func(be *BaseError) { be.Details = details }
}

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func New(code CoreStatus, message string, opts ...Option) error {
	be := BaseError{Code: code, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

func newWithCause(code CoreStatus, msg string, err error, options []Option) error {
	if err != nil {
		options = append([]Option{WithErr(err)}, options...)
	}
	return New(code, msg, options...)
}

func NotFound(msg string, err error, options ...Option) error {
	return newWithCause(StatusNotFound, msg, err, options)
}

func UnprocessableEntity(msg string, err error, options ...Option) error {
	return newWithCause(StatusUnprocessableEntity, msg, err, options)
}

func Conflict(msg string, err error, options ...Option) error {
	return newWithCause(StatusConflict, msg, err, options)
}

func BadRequest(msg string, err error, options ...Option) error {
	return newWithCause(StatusBadRequest, msg, err, options)
}

func ValidationFailed(msg string, err error, options ...Option) error {
	return newWithCause(StatusValidationFailed, msg, err, options)
}

func Internal(msg string, err error, options ...Option) error {
	return newWithCause(StatusInternal, msg, err, options)
}

func Unauthorized(msg string, err error, options ...Option) error {
	return newWithCause(StatusUnauthorized, msg, err, options)
}

func Forbidden(msg string, err error, options ...Option) error {
	return newWithCause(StatusForbidden, msg, err, options)
}

func ServiceUnavailable(msg string, err error, options ...Option) error {
	return newWithCause(StatusServiceUnavailable, msg, err, options)
}

func BadGateway(msg string, err error, options ...Option) error {
	return newWithCause(StatusBadGateway, msg, err, options)
}

// FromDB classifies a gorm error. Duplicate keys are only detected when the
// connection was opened with TranslateError enabled.
func FromDB(err error, notFoundMsg string) error {
	if err == nil {
		return nil
	}

	var be BaseError
	if errors.As(err, &be) {
		return be
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NotFound(notFoundMsg, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return Conflict("Resource already exists", err)
	case errors.Is(err, context.Canceled):
		return newWithCause(StatusClientClosedRequest, "Request cancelled", err, nil)
	case errors.Is(err, context.DeadlineExceeded):
		return newWithCause(StatusTimeout, "Request timed out", err, nil)
	default:
		return Internal("Internal server error", err)
	}
}

// IsStatus reports whether err carries the given CoreStatus.
func IsStatus(err error, code CoreStatus) bool {
	var coder interface{ Status() CoreStatus }
	if errors.As(err, &coder) {
		return coder.Status() == code
	}
	return false
}
