package respond

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"biomagnet-assist/internal/platform/apierr"
)

const maxBodyBytes = 1 << 20

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func OK(w http.ResponseWriter, payload any) {
	JSON(w, http.StatusOK, payload)
}

func Created(w http.ResponseWriter, payload any) {
	JSON(w, http.StatusCreated, payload)
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes the error envelope. Foreign errors are reported as a generic
// internal error so storage or driver details never reach the client.
func Error(w http.ResponseWriter, err error) {
	status := apierr.StatusOf(err)
	code := apierr.CodeOf(err)
	msg := "internal error"
	if _, ok := apierr.As(err); ok {
		msg = err.Error()
	}
	JSON(w, status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// Decode reads a JSON body into v, rejecting unknown fields and trailing data.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apierr.Validation("request body is empty")
		}
		return apierr.Validation("invalid request body: %v", err)
	}
	if dec.More() {
		return apierr.Validation("invalid request body: trailing data")
	}
	return nil
}

// Confirmed reports whether a destructive request carries confirm=true.
func Confirmed(r *http.Request) bool {
	switch r.URL.Query().Get("confirm") {
	case "true", "1", "yes":
		return true
	}
	return false
}
