package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"xlend/native/lending"
)

// ErrorBody is the JSON document returned for failed requests.
type ErrorBody struct {
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"requestId,omitempty"`
}

// ErrorDetail carries a machine readable code and the error text.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// badRequest marks decoding and parameter errors raised before the engine is
// reached.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func invalidParam(err error) error { return badRequest{err: err} }

func statusFor(err error) (int, string) {
	var bad badRequest
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, errMissingSignature),
		errors.Is(err, errBadSignature),
		errors.Is(err, errStaleTimestamp),
		errors.Is(err, errReplayedNonce):
		return http.StatusUnauthorized, "unauthenticated"
	}
	kind := lending.KindOf(err)
	switch kind {
	case lending.KindAuthorization:
		return http.StatusForbidden, kind.String()
	case lending.KindState, lending.KindIntegrity:
		return http.StatusConflict, kind.String()
	case lending.KindValue:
		return http.StatusUnprocessableEntity, kind.String()
	case lending.KindNotFound:
		return http.StatusNotFound, kind.String()
	case lending.KindUnavailable:
		return http.StatusServiceUnavailable, kind.String()
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "request_id", requestID(r.Context()), "route", r.URL.Path, "error", err)
		message = "internal error"
	}
	writeJSON(w, status, ErrorBody{
		Error:     ErrorDetail{Code: code, Message: message},
		RequestID: requestID(r.Context()),
	})
}
