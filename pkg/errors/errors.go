// Package errors carries coded domain errors so transport layers can
// translate failures into consistent responses without string matching.
package errors

import "net/http"

// Code classifies a failure for callers that need to act on it.
type Code string

const (
	CodeBadRequest    Code = "bad_request"
	CodeNotFound      Code = "not_found"
	CodeQuotaExceeded Code = "quota_exceeded"
	CodeInternal      Code = "internal"
)

// CodedError pairs a machine-readable code with a human-readable message.
type CodedError struct {
	Code    Code
	Message string
}

func (e CodedError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// New builds a CodedError.
func New(code Code, message string) CodedError {
	return CodedError{Code: code, Message: message}
}

// ToHTTPStatus maps an error code to the HTTP status handlers should return.
// Quota exhaustion maps to 507 so the caller can distinguish "free space or
// export" from a generic server fault.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeQuotaExceeded:
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}
