package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingRefreshToken signals that a refresh was required but no refresh
// token is available; no refresh call is attempted.
var ErrMissingRefreshToken = errors.New("refresh token not found")

// ErrRefreshFailed signals that the refresh endpoint explicitly rejected the
// refresh token; the session is terminally expired.
var ErrRefreshFailed = errors.New("token refresh rejected")

// NetworkError wraps a transport failure where no response reached the
// caller; it is never a terminal session condition.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Message returns the human-readable rendition for presentation code.
func (e *NetworkError) Message() string {
	return "Unable to reach the server. Check your network connection."
}

// HTTPError describes a non-2xx response. Message carries the one
// human-readable rendition per status that presentation code may show.
type HTTPError struct {
	StatusCode int
	Body       []byte
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// statusMessages maps failure statuses to their user-facing message.
var statusMessages = map[int]string{
	http.StatusBadRequest:          "The request was invalid. Check your input and try again.",
	http.StatusUnauthorized:        "Authentication failed. Please sign in again.",
	http.StatusForbidden:           "You do not have permission to perform this action.",
	http.StatusNotFound:            "The requested resource was not found.",
	http.StatusConflict:            "The request conflicts with the current server state.",
	http.StatusTooManyRequests:     "Too many requests. Try again later.",
	http.StatusInternalServerError: "The server encountered a problem. Try again later.",
	http.StatusBadGateway:          "Bad gateway. Try again later.",
	http.StatusServiceUnavailable:  "The service is temporarily unavailable. Try again later.",
	http.StatusGatewayTimeout:      "The gateway timed out. Try again later.",
}

const unknownErrorMessage = "An unknown error occurred. Try again."

func newHTTPError(statusCode int, body []byte) *HTTPError {
	message := ""
	var payload struct {
		Message string `json:"message"`
	}
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		message = payload.Message
	}
	if message == "" {
		message = statusMessages[statusCode]
	}
	if message == "" {
		message = unknownErrorMessage
	}
	return &HTTPError{StatusCode: statusCode, Body: body, Message: message}
}
