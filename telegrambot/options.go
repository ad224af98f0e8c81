package telegrambot

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Bot. Use With* functions to create options.
type Option interface {
	apply(*botOptions)
}

// optionFunc wraps a function to implement Option interface.
type optionFunc func(*botOptions)

func (f optionFunc) apply(o *botOptions) { f(o) }

// RouteBuilder produces a route table from the bot's collaborators.
type RouteBuilder func(replier Replier, relay *Relay) []Route

// botOptions holds collaborators that override what New would build from Config.
type botOptions struct {
	logger     *slog.Logger
	replier    Replier
	forwarder  Forwarder
	reporter   ErrorReporter
	registry   *prometheus.Registry
	httpClient HTTPClient
	routes     RouteBuilder
}

// WithLogger sets a custom slog.Logger.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(o *botOptions) { o.logger = logger })
}

// WithReplier replaces the Telegram client used for replies. The bot then
// makes no getMe call at startup.
func WithReplier(r Replier) Option {
	return optionFunc(func(o *botOptions) { o.replier = r })
}

// WithForwarder replaces the forwarder built from the backend URL.
func WithForwarder(f Forwarder) Option {
	return optionFunc(func(o *botOptions) { o.forwarder = f })
}

// WithReporter replaces the Sentry reporter built from SENTRY_DSN.
func WithReporter(r ErrorReporter) Option {
	return optionFunc(func(o *botOptions) { o.reporter = r })
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return optionFunc(func(o *botOptions) { o.registry = reg })
}

// WithHTTPClient sets the HTTP client for Bot API and HTTP backend calls
// (useful for testing).
func WithHTTPClient(client HTTPClient) Option {
	return optionFunc(func(o *botOptions) { o.httpClient = client })
}

// WithRoutes replaces DefaultRoutes.
func WithRoutes(build RouteBuilder) Option {
	return optionFunc(func(o *botOptions) { o.routes = build })
}
