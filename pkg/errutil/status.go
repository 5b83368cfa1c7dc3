package errutil

import "net/http"

// CoreStatus is a transport-agnostic status code used across the HTTP and
// gRPC boundaries. It is the single source of truth error kind: handlers
// map it to an HTTP status via HTTPStatus() and to a gRPC code via
// GRPCCode() (see grpc.go).
type CoreStatus string

const (
	StatusUnknown             CoreStatus = "UNKNOWN"
	StatusBadRequest          CoreStatus = "BAD_REQUEST"
	StatusValidationFailed    CoreStatus = "VALIDATION_FAILED"
	StatusNotFound            CoreStatus = "NOT_FOUND"
	StatusConflict            CoreStatus = "CONFLICT"
	StatusUnprocessableEntity CoreStatus = "UNPROCESSABLE_ENTITY"
	StatusUnsupportedMediaType CoreStatus = "UNSUPPORTED_MEDIA_TYPE"
	StatusUnauthorized        CoreStatus = "UNAUTHORIZED"
	StatusForbidden           CoreStatus = "FORBIDDEN"
	StatusTooManyRequests     CoreStatus = "TOO_MANY_REQUESTS"
	StatusClientClosedRequest CoreStatus = "CLIENT_CLOSED_REQUEST"
	StatusTimeout             CoreStatus = "TIMEOUT"
	StatusGatewayTimeout      CoreStatus = "GATEWAY_TIMEOUT"
	StatusNotImplemented      CoreStatus = "NOT_IMPLEMENTED"
	StatusBadGateway          CoreStatus = "BAD_GATEWAY"
	StatusServiceUnavailable  CoreStatus = "SERVICE_UNAVAILABLE"
	StatusInternal            CoreStatus = "INTERNAL"

	// Domain-specific kinds, §7 of the spec.
	StatusTransientStorage   CoreStatus = "TRANSIENT_STORAGE_ERROR"
	StatusSchemaError        CoreStatus = "SCHEMA_ERROR"
	StatusMarginGuardrail    CoreStatus = "MARGIN_GUARDRAIL_ERROR"
	StatusPartialCommit      CoreStatus = "PARTIAL_COMMIT_ERROR"
)

// HTTPStatus converts the CoreStatus to its closest net/http status code.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest, StatusValidationFailed, StatusUnsupportedMediaType, StatusSchemaError:
		return http.StatusBadRequest
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict:
		return http.StatusConflict
	case StatusUnprocessableEntity, StatusMarginGuardrail:
		return http.StatusUnprocessableEntity
	case StatusTooManyRequests:
		return http.StatusTooManyRequests
	case StatusClientClosedRequest:
		return 499
	case StatusTimeout:
		return http.StatusRequestTimeout
	case StatusGatewayTimeout:
		return http.StatusGatewayTimeout
	case StatusNotImplemented:
		return http.StatusNotImplemented
	case StatusBadGateway:
		return http.StatusBadGateway
	case StatusServiceUnavailable, StatusTransientStorage:
		return http.StatusServiceUnavailable
	case StatusPartialCommit, StatusInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
