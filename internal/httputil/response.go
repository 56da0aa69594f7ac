// Package httputil writes the JSON envelopes used by the HTTP API.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

type Envelope map[string]any

// APIError is the error body. Code is the numeric protocol error code and is
// omitted for transport-level failures; Name is always set.
type APIError struct {
	Code    uint32 `json:"code,omitempty"`
	Name    string `json:"name"` // e.g. "HashMismatch", "bad_request"
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// JSON writes body wrapped in {"status":"ok","data":...}, or
// {"status":"error","error":...} for an APIError.
func JSON(w http.ResponseWriter, status int, body any, headers map[string]string) error {
	if body == nil && status == http.StatusNoContent {
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(status)
		return nil
	}

	var payload any
	switch body.(type) {
	case *APIError, APIError:
		payload = Envelope{
			"status": "error",
			"error":  body,
		}
	default:
		payload = Envelope{
			"status": "ok",
			"data":   body,
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	for k, v := range headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	return enc.Encode(payload)
}

// Error writes e with the request id attached.
func Error(w http.ResponseWriter, r *http.Request, status int, e APIError) error {
	e.TraceID = middleware.GetReqID(r.Context())
	return JSON(w, status, e, map[string]string{
		"Cache-Control": "no-store",
	})
}

// Decode reads a JSON request body into v, rejecting unknown fields.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
