// Package errors defines the service error taxonomy shared by the engine and
// the HTTP layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a service error for API mapping and metrics tagging.
type Code string

const (
	CodeValidation   Code = "validation"
	CodeNotFound     Code = "not_found"
	CodeUnauthorized Code = "unauthorized"
	CodeConflict     Code = "conflict"
	CodeBadRequest   Code = "bad_request"
	CodeInternal     Code = "internal"
)

// ServiceError is a classified error with a stable HTTP mapping.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
}

func (e *ServiceError) Error() string { return e.Message }

// Is matches two service errors on their code so callers can use errors.Is
// with a bare constructor result as target.
func (e *ServiceError) Is(target error) bool {
	var other *ServiceError
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// Validation reports a save-time definition error.
func Validation(format string, args ...interface{}) *ServiceError {
	return &ServiceError{Code: CodeValidation, Message: fmt.Sprintf(format, args...), HTTPStatus: http.StatusBadRequest}
}

// NotFound reports a missing workflow, execution, or version.
func NotFound(format string, args ...interface{}) *ServiceError {
	return &ServiceError{Code: CodeNotFound, Message: fmt.Sprintf(format, args...), HTTPStatus: http.StatusNotFound}
}

// Unauthorized reports a failed webhook authentication check.
func Unauthorized(format string, args ...interface{}) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: fmt.Sprintf(format, args...), HTTPStatus: http.StatusUnauthorized}
}

// Conflict reports a replay or an illegal state transition.
func Conflict(format string, args ...interface{}) *ServiceError {
	return &ServiceError{Code: CodeConflict, Message: fmt.Sprintf(format, args...), HTTPStatus: http.StatusConflict}
}

// BadRequest reports a request that is well-formed but not executable.
func BadRequest(format string, args ...interface{}) *ServiceError {
	return &ServiceError{Code: CodeBadRequest, Message: fmt.Sprintf(format, args...), HTTPStatus: http.StatusBadRequest}
}

// Internal reports an unexpected failure.
func Internal(format string, args ...interface{}) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: fmt.Sprintf(format, args...), HTTPStatus: http.StatusInternalServerError}
}

// CodeOf extracts the classification of err, defaulting to internal.
func CodeOf(err error) Code {
	var svc *ServiceError
	if errors.As(err, &svc) {
		return svc.Code
	}
	return CodeInternal
}

// StatusOf extracts the HTTP status of err, defaulting to 500.
func StatusOf(err error) int {
	var svc *ServiceError
	if errors.As(err, &svc) {
		return svc.HTTPStatus
	}
	return http.StatusInternalServerError
}
