package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// ErrorCode is the machine readable kind carried in every error body.
type ErrorCode string

const (
	CodeValidation ErrorCode = "VALIDATION_ERROR" // 400
	CodeNotFound   ErrorCode = "NOT_FOUND"        // 404
	CodeInternal   ErrorCode = "INTERNAL_ERROR"   // 500
)

// FieldError points at one invalid input.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// APIError is an error that maps directly onto the error envelope.
type APIError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError creates a 400 error listing the offending fields.
func NewValidationError(details ...FieldError) *APIError {
	if details == nil {
		details = []FieldError{}
	}
	return &APIError{
		Code:    CodeValidation,
		Status:  http.StatusBadRequest,
		Message: "Invalid request",
		Details: details,
	}
}

// NewTodoNotFound creates a 404 error for a missing todo.
func NewTodoNotFound(id int64) *APIError {
	return &APIError{
		Code:    CodeNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("Todo %d not found", id),
		Details: map[string]any{"id": id},
	}
}

// NewRouteNotFound creates a 404 error for a request no route matches.
func NewRouteNotFound(method, path string) *APIError {
	return &APIError{
		Code:    CodeNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("Route %s %s not found", method, path),
		Details: map[string]any{"method": method, "path": path},
	}
}

// NewInternal creates the opaque 500 error shown to callers.
func NewInternal() *APIError {
	return &APIError{
		Code:    CodeInternal,
		Status:  http.StatusInternalServerError,
		Message: "Internal server error",
	}
}

type errorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details"`
}

type errorEnvelope struct {
	Error     errorBody `json:"error"`
	RequestID string    `json:"requestId"`
}

// toAPIError classifies any handler error. Errors that are neither
// *APIError nor a client-side *echo.HTTPError become INTERNAL_ERROR.
func toAPIError(err error, c echo.Context) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch {
		case he.Code == http.StatusNotFound || he.Code == http.StatusMethodNotAllowed:
			return NewRouteNotFound(c.Request().Method, c.Request().URL.Path)
		case he.Code == http.StatusRequestEntityTooLarge:
			return NewValidationError(FieldError{Path: "body", Message: "Request body too large"})
		case he.Code >= 400 && he.Code < 500:
			return NewValidationError(FieldError{Path: "request", Message: fmt.Sprint(he.Message)})
		}
	}
	return NewInternal()
}

// ErrorHandler renders every error as the uniform envelope. Internal
// errors are logged with full detail; the caller only sees a generic
// message and the request id.
func ErrorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		apiErr := toAPIError(err, c)
		reqID := requestID(c)
		if apiErr.Code == CodeInternal && logger != nil {
			logger.WithFields(log.Fields{
				"request_id": reqID,
				"method":     c.Request().Method,
				"path":       c.Request().URL.Path,
				"error":      err.Error(),
			}).Error("request.failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(apiErr.Status)
		} else {
			writeErr = c.JSON(apiErr.Status, errorEnvelope{
				Error: errorBody{
					Code:    apiErr.Code,
					Message: apiErr.Message,
					Details: apiErr.Details,
				},
				RequestID: reqID,
			})
		}
		if writeErr != nil && logger != nil {
			logger.WithField("request_id", reqID).Errorf("write error response: %v", writeErr)
		}
	}
}
