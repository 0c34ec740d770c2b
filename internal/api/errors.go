package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	apperrors "github.com/aloudapp/aloud-server/internal/errors"
	"github.com/aloudapp/aloud-server/internal/http/response"
)

// APIError is a custom error type that implements huma.StatusError.
// It maps domain errors to HTTP responses with consistent structure.
type APIError struct {
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

// RegisterErrorHandler configures huma to use domain errors.
// Call this after creating the huma.API but before registering routes.
func RegisterErrorHandler() {
	huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
		// Check if any of the errors are domain errors
		for _, err := range errs {
			var domainErr *apperrors.Error
			if errors.As(err, &domainErr) {
				return &APIError{
					status:  domainErr.HTTPStatus(),
					Code:    string(domainErr.Code),
					Message: domainErr.Message,
					Details: domainErr.Details,
				}
			}
		}

		// Request-shape failures: keep huma's field errors as details so
		// clients can see which field was rejected.
		var details []any
		for _, err := range errs {
			if err == nil {
				continue
			}
			if d, ok := err.(huma.ErrorDetailer); ok {
				details = append(details, d.ErrorDetail())
				continue
			}
			details = append(details, err.Error())
		}

		apiErr := &APIError{
			status:  status,
			Code:    statusToCode(status),
			Message: message,
		}
		if len(details) > 0 {
			apiErr.Details = details
		}
		return apiErr
	}
}

// statusToCode maps HTTP status codes to our domain error codes.
func statusToCode(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return string(apperrors.CodeValidation)
	case http.StatusUnauthorized, http.StatusForbidden:
		return string(apperrors.CodeUnauthorized)
	case http.StatusNotFound:
		return string(apperrors.CodeNotFound)
	case http.StatusConflict:
		return string(apperrors.CodeConflict)
	case http.StatusUnsupportedMediaType:
		return string(apperrors.CodeUnsupportedFormat)
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusBadGateway:
		return string(apperrors.CodeNarrationFault)
	case http.StatusServiceUnavailable:
		return string(apperrors.CodeEngineUnavailable)
	default:
		return string(apperrors.CodeInternal)
	}
}

// EnvelopeTransformer wraps every huma response body in the shared envelope:
// {"success": ..., "data": ...} for 2xx bodies, {"success": false, "error":
// code, "message": text} for errors. Raw routes mounted outside huma write
// the same shape through the response package.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	if v == nil {
		return v, nil
	}

	switch val := v.(type) {
	case *APIError:
		return &response.Envelope{
			Success: false,
			Error:   val.Code,
			Message: val.Message,
			Data:    val.Details,
		}, nil
	case response.Envelope, *response.Envelope:
		// Already wrapped; never double-wrap.
		return v, nil
	default:
		if len(status) > 0 && status[0] != '2' {
			// Some other error shape slipped through; wrap it as a failure
			// without inventing a code for it.
			return &response.Envelope{Success: false, Data: v}, nil
		}
		return &response.Envelope{Success: true, Data: v}, nil
	}
}
