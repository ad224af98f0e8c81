package telegrambot

import (
	"errors"
	"fmt"
)

// WebhookError represents an error with an associated HTTP status code.
// Message is the only part that reaches the HTTP response.
type WebhookError struct {
	Code    int
	Message string
	Err     error
}

func (e *WebhookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *WebhookError) Unwrap() error {
	return e.Err
}

// Is matches any WebhookError with the same status code, so wrapped
// variants of a sentinel compare equal to it.
func (e *WebhookError) Is(target error) bool {
	t, ok := target.(*WebhookError)
	return ok && t.Code == e.Code && t.Message == e.Message
}

// Sentinel errors for the webhook endpoint.
var (
	ErrInvalidJSON      = &WebhookError{Code: 400, Message: "invalid JSON payload"}
	ErrBodyReadFailed   = &WebhookError{Code: 400, Message: "failed to read request body"}
	ErrUnauthorized     = &WebhookError{Code: 401, Message: "unauthorized"}
	ErrMethodNotAllowed = &WebhookError{Code: 405, Message: "method not allowed"}
	ErrDispatchFailed   = &WebhookError{Code: 500, Message: "internal error"}
)

// Sentinel errors for configuration.
var (
	ErrBotTokenRequired   = errors.New("BOT_TOKEN is required")
	ErrInvalidBotToken    = errors.New("invalid bot token format")
	ErrUnsupportedBackend = errors.New("unsupported backend URL scheme")
)

// Sentinel errors for dispatch and runtime.
var (
	ErrNoChat                = errors.New("update has no chat to reply to")
	ErrHandlerPanic          = errors.New("handler panicked")
	ErrPollingAlreadyRunning = errors.New("long polling client is already running")
	ErrPollingStopped        = errors.New("long polling stopped after repeated failures")
	ErrNoUpdateProgress      = errors.New("getUpdates batch has no readable update_id")
	ErrRelayClosed           = errors.New("relay is closed")
)

// TelegramAPIError represents an error response from the Telegram Bot API.
type TelegramAPIError struct {
	Code        int
	Description string
	Err         error
}

func (e *TelegramAPIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("telegram API error [%d]: %s: %v", e.Code, e.Description, e.Err)
	}
	if e.Code != 0 {
		return fmt.Sprintf("telegram API error [%d]: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("telegram API error: %s", e.Description)
}

func (e *TelegramAPIError) Unwrap() error {
	return e.Err
}

// ForwardError describes a failed backend delivery.
type ForwardError struct {
	Backend    string
	StatusCode int
	Err        error
}

func (e *ForwardError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("forward to %s: %v", e.Backend, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("forward to %s: unexpected status %d", e.Backend, e.StatusCode)
	default:
		return fmt.Sprintf("forward to %s failed", e.Backend)
	}
}

func (e *ForwardError) Unwrap() error {
	return e.Err
}
