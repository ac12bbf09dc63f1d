package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/matzehuels/blockflow/pkg/errors"
)

// maxBody bounds request bodies.
const maxBody = 4 << 20

type errorBody struct {
	Code    errors.Code   `json:"code"`
	Reason  errors.Reason `json:"reason,omitempty"`
	Message string        `json:"message"`
}

// statusOf maps an error code to an HTTP status.
func statusOf(code errors.Code) int {
	switch code {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeDuplicateID, errors.ErrCodeInvalidState:
		return http.StatusConflict
	case errors.ErrCodeInvalidConnection, errors.ErrCodeInvalidPayload,
		errors.ErrCodeCorruptGraph, errors.ErrCodeUnknownKind:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.log.Warn("encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	status := statusOf(code)
	body := errorBody{Code: code, Reason: errors.ReasonOf(err), Message: errors.UserMessage(err)}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		if code == errors.ErrCodeInternal {
			body.Message = "internal error"
		}
	} else {
		s.log.Debug("request rejected", "path", r.URL.Path, "code", code, "err", err)
	}
	s.writeJSON(w, status, body)
}

// decode reads a JSON request body into v. Unknown fields are rejected.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "malformed request body")
	}
	return nil
}
