// Package apperrors defines the error kinds the clawden core raises, modeled
// on the spec's closed set: NotFound, InvalidTransition, NoAdapter,
// NoRunningHandle, SelectionFailed, BindingConflict, AdapterFailure,
// SupervisorFailure, InvalidInput. Only the HTTP edge converts these to
// status codes; the core itself only ever returns *AppError.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies one of the closed error kinds.
type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeNoAdapter         Code = "NO_ADAPTER"
	CodeNoRunningHandle   Code = "NO_RUNNING_HANDLE"
	CodeSelectionFailed   Code = "SELECTION_FAILED"
	CodeBindingConflict   Code = "BINDING_CONFLICT"
	CodeAdapterFailure    Code = "ADAPTER_FAILURE"
	CodeSupervisorFailure Code = "SUPERVISOR_FAILURE"
	CodeInvalidInput      Code = "INVALID_INPUT"
)

var httpStatusByCode = map[Code]int{
	CodeNotFound:          http.StatusNotFound,
	CodeInvalidTransition: http.StatusBadRequest,
	CodeNoAdapter:         http.StatusBadRequest,
	CodeNoRunningHandle:   http.StatusBadRequest,
	CodeSelectionFailed:   http.StatusBadRequest,
	CodeBindingConflict:   http.StatusConflict,
	CodeAdapterFailure:    http.StatusInternalServerError,
	CodeSupervisorFailure: http.StatusInternalServerError,
	CodeInvalidInput:      http.StatusBadRequest,
}

// AppError is the single error type returned across subsystem boundaries.
type AppError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func newf(code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), HTTPStatus: httpStatusByCode[code]}
}

func NotFound(resource, id string) *AppError {
	return newf(CodeNotFound, "%s %q not found", resource, id)
}

func InvalidTransition(from, to string) *AppError {
	return newf(CodeInvalidTransition, "illegal transition from %s to %s", from, to)
}

func NoAdapter(kind string) *AppError {
	return newf(CodeNoAdapter, "no adapter registered for runtime %q", kind)
}

func NoRunningHandle(agentID string) *AppError {
	return newf(CodeNoRunningHandle, "agent %q has no running handle", agentID)
}

func SelectionFailed() *AppError {
	return newf(CodeSelectionFailed, "no running agent matches required capabilities")
}

func BindingConflict(channelType, ownerInstance string) *AppError {
	return newf(CodeBindingConflict, "active binding for channel %q already owned by instance %q", channelType, ownerInstance)
}

func AdapterFailure(op string, err error) *AppError {
	return &AppError{Code: CodeAdapterFailure, Message: fmt.Sprintf("adapter operation %q failed", op), HTTPStatus: httpStatusByCode[CodeAdapterFailure], Err: err}
}

func SupervisorFailure(op string, err error) *AppError {
	return &AppError{Code: CodeSupervisorFailure, Message: fmt.Sprintf("supervisor operation %q failed", op), HTTPStatus: httpStatusByCode[CodeSupervisorFailure], Err: err}
}

func InvalidInput(message string) *AppError {
	return newf(CodeInvalidInput, "%s", message)
}

// Is reports whether err is an *AppError with the given code.
func Is(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// HTTPStatus returns the HTTP status for err, defaulting to 500.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
