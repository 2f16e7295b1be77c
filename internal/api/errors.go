package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrSessionExpired is returned when a 401 could not be recovered by a token
// refresh. The token store has been cleared by the time it is returned.
var ErrSessionExpired = errors.New("session expired, please log in again")

// APIError is returned when a backend answers with a non-2xx status.
type APIError struct {
	Status int
	// Detail is the backend's detail message, or "HTTP <status> <text>".
	Detail string
}

func (e *APIError) Error() string {
	return e.Detail
}

// NetworkError wraps transport-level failures (DNS, refused connections,
// timeouts, cancelled contexts).
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

const maxErrorBody = 1 << 20

// errorFromResponse consumes and closes resp.Body.
func errorFromResponse(resp *http.Response) *APIError {
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{Status: resp.StatusCode, Detail: detailMessage(resp.StatusCode, data)}
}

func detailMessage(status int, body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if msg := decodeDetail(payload.Detail); msg != "" {
			return msg
		}
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return fmt.Sprintf("HTTP %d %s", status, http.StatusText(status))
}

// decodeDetail accepts a plain string or a list of validation items with a
// msg field.
func decodeDetail(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(raw, &items) == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized || errors.Is(err, ErrSessionExpired)
}

func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// IsGone reports an expired link or an exhausted download limit.
func IsGone(err error) bool {
	return StatusOf(err) == http.StatusGone
}

// IsPasswordRequired reports whether a public resource is asking for (or
// rejected) a password: a 401/403, or any detail mentioning a password.
func IsPasswordRequired(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden {
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Detail), "password")
}

// IsNetwork reports a transport-level failure.
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// UserMessage maps expected business errors to fixed messages and falls back
// to the error text, or to fallback when err carries no text.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrSessionExpired):
		return ErrSessionExpired.Error()
	case IsGone(err):
		var apiErr *APIError
		errors.As(err, &apiErr)
		if strings.Contains(strings.ToLower(apiErr.Detail), "download") {
			return "This link has reached its download limit."
		}
		return "This link has expired."
	case IsNotFound(err):
		return "The requested item was not found."
	case StatusOf(err) == http.StatusForbidden:
		var apiErr *APIError
		errors.As(err, &apiErr)
		if strings.Contains(strings.ToLower(apiErr.Detail), "invalid password") {
			return "Incorrect password."
		}
		return "You do not have access to this item."
	case IsNetwork(err):
		return "Could not reach the server. Check your connection and try again."
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
