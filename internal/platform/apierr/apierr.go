package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidation           = "validation_error"
	CodeNotFound             = "not_found"
	CodeReservedEntry        = "reserved_entry"
	CodeAnalysisUnavailable  = "analysis_unavailable"
	CodeAnalysisMalformed    = "analysis_malformed"
	CodeAnalysisInProgress   = "analysis_in_progress"
	CodeBackendUnavailable   = "backend_unavailable"
	CodeUnauthorized         = "unauthorized"
	CodeForbidden            = "forbidden"
	CodeConfirmationRequired = "confirmation_required"
	CodeInternal             = "internal"
)

// Credential rejection categories. Every auth failure carries exactly one.
const (
	CodeInvalidCredentials    = "invalid_credentials"
	CodeUnconfirmedIdentity   = "unconfirmed_identity"
	CodeNetworkUnreachable    = "network_unreachable"
	CodeDuplicateRegistration = "duplicate_registration"
	CodeRateLimited           = "rate_limited"
	CodeAuthUnknown           = "unknown"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Validation(format string, args ...any) *Error {
	return New(http.StatusBadRequest, CodeValidation, fmt.Errorf(format, args...))
}

func NotFound(what string) *Error {
	return New(http.StatusNotFound, CodeNotFound, fmt.Errorf("%s not found", what))
}

func ReservedEntry(id string) *Error {
	return New(http.StatusConflict, CodeReservedEntry, fmt.Errorf("entry %s is part of the default set and cannot be changed", id))
}

func AnalysisUnavailable(err error) *Error {
	return New(http.StatusBadGateway, CodeAnalysisUnavailable, fmt.Errorf("analysis service unavailable: %w", err))
}

func AnalysisMalformed(err error) *Error {
	return New(http.StatusBadGateway, CodeAnalysisMalformed, fmt.Errorf("analysis response malformed: %w", err))
}

func BackendUnavailable(err error) *Error {
	return New(http.StatusServiceUnavailable, CodeBackendUnavailable, fmt.Errorf("storage unavailable: %w", err))
}

func Unauthorized(msg string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, errors.New(msg))
}

func Forbidden(code, msg string) *Error {
	if code == "" {
		code = CodeForbidden
	}
	return New(http.StatusForbidden, code, errors.New(msg))
}

func Conflict(code, msg string) *Error {
	return New(http.StatusConflict, code, errors.New(msg))
}

func ConfirmationRequired(action string) *Error {
	return New(http.StatusPreconditionRequired, CodeConfirmationRequired, fmt.Errorf("%s requires explicit confirmation (confirm=true)", action))
}

// Auth builds a credential failure for one of the auth categories.
func Auth(code string, err error) *Error {
	status := http.StatusUnauthorized
	switch code {
	case CodeInvalidCredentials:
	case CodeUnconfirmedIdentity:
		status = http.StatusForbidden
	case CodeNetworkUnreachable:
		status = http.StatusServiceUnavailable
	case CodeDuplicateRegistration:
		status = http.StatusConflict
	case CodeRateLimited:
		status = http.StatusTooManyRequests
	default:
		code = CodeAuthUnknown
	}
	if err == nil {
		err = errors.New(code)
	}
	return New(status, code, err)
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of err, or CodeInternal for foreign errors.
func CodeOf(err error) string {
	if e, ok := As(err); ok && e.Code != "" {
		return e.Code
	}
	return CodeInternal
}

// StatusOf returns the HTTP status for err, 500 for foreign errors.
func StatusOf(err error) int {
	if e, ok := As(err); ok && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}
