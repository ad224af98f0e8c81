package telegrambot

import (
	"context"
	"net/http"
)

// Replier sends text replies through the messaging platform.
// Implementations must be safe for concurrent use.
type Replier interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Ensure TelegramClient implements Replier at compile time.
var _ Replier = (*TelegramClient)(nil)

// Forwarder delivers an envelope to the external backend.
type Forwarder interface {
	Forward(ctx context.Context, env Envelope) error
	Close() error
}

var (
	_ Forwarder = (*HTTPForwarder)(nil)
	_ Forwarder = (*RedisForwarder)(nil)
	_ Forwarder = (*KafkaForwarder)(nil)
)

// ErrorReporter receives failures worth paging on, such as dispatch errors.
type ErrorReporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
	Flush()
}

// HTTPClient is an interface for HTTP client operations.
// This allows for mocking HTTP calls in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Ensure http.Client implements HTTPClient.
var _ HTTPClient = (*http.Client)(nil)

// Ensure WebhookHandler is an http.Handler.
var _ http.Handler = (*WebhookHandler)(nil)

// UpdateDispatcher routes one parsed update.
type UpdateDispatcher interface {
	Dispatch(ctx context.Context, update Update) (Outcome, error)
}

var _ UpdateDispatcher = (*Dispatcher)(nil)
