package errors

import (
	stdErrors "errors"
	"net/http"
)

type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeStateConflict   Code = "STATE_CONFLICT"
	CodeIdempotency     Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRequestInFlight Code = "REQUEST_IN_PROGRESS"
	CodeRateLimit       Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal        Code = "INTERNAL_ERROR"
	CodeDependency      Code = "DEPENDENCY_ERROR"

	// Booking outcomes.
	CodeAlreadyProcessed       Code = "ALREADY_PROCESSED"
	CodeBedNotAvailable        Code = "BED_NOT_AVAILABLE"
	CodeBedOccupied            Code = "BED_OCCUPIED"
	CodeDuplicatePending       Code = "DUPLICATE_PENDING_APPLICATION"
	CodeNotCheckedIn           Code = "NOT_CHECKED_IN"
	CodeAlreadyCheckedIn       Code = "ALREADY_CHECKED_IN"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeSystem                 Code = "SYSTEM_ERROR"
)

// Metadata is how a code surfaces over HTTP.
type Metadata struct {
	HTTPStatus int
	// Retryable codes get a Retry-After header and are never cached by the
	// idempotency layer.
	Retryable     bool
	PublicMessage string
	// ExposeMessage lets the error's own message replace PublicMessage.
	ExposeMessage  bool
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:      {http.StatusBadRequest, false, "validation failed", true, true},
	CodeUnauthorized:    {http.StatusUnauthorized, false, "authentication required", true, false},
	CodeForbidden:       {http.StatusForbidden, false, "access denied", true, false},
	CodeNotFound:        {http.StatusNotFound, false, "resource not found", true, false},
	CodeConflict:        {http.StatusConflict, false, "conflict detected", true, false},
	CodeStateConflict:   {http.StatusUnprocessableEntity, false, "state transition disallowed", true, true},
	CodeIdempotency:     {http.StatusConflict, false, "idempotency key reused", true, true},
	CodeRequestInFlight: {http.StatusConflict, true, "request already in progress", true, false},
	CodeRateLimit:       {http.StatusTooManyRequests, false, "rate limit exceeded", true, false},
	CodeInternal:        {http.StatusInternalServerError, true, "internal server error", false, false},
	CodeDependency:      {http.StatusServiceUnavailable, true, "dependency unavailable", false, true},

	CodeAlreadyProcessed:       {http.StatusConflict, false, "application has already been processed", true, true},
	CodeBedNotAvailable:        {http.StatusConflict, false, "this bed was just taken, please pick another bed", true, true},
	CodeBedOccupied:            {http.StatusConflict, false, "bed is no longer available", true, true},
	CodeDuplicatePending:       {http.StatusConflict, false, "a pending application already exists", true, true},
	CodeNotCheckedIn:           {http.StatusConflict, false, "student is not checked in", true, false},
	CodeAlreadyCheckedIn:       {http.StatusConflict, false, "student is already checked in", true, false},
	CodeConcurrentModification: {http.StatusConflict, true, "the resource was modified concurrently, please retry", false, false},
	CodeSystem:                 {http.StatusServiceUnavailable, true, "system busy, please retry", false, false},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error. The message is safe to show clients when the
// code's metadata says so; the cause never is.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// PublicMessage is the text clients see for this error.
func (e *Error) PublicMessage() string {
	meta := MetadataFor(e.Code())
	if meta.ExposeMessage && e.Message() != "" {
		return e.message
	}
	return meta.PublicMessage
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.code) + ": " + e.message
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// IsRetryable is false for untyped errors.
func IsRetryable(err error) bool {
	typed := As(err)
	return typed != nil && MetadataFor(typed.code).Retryable
}
