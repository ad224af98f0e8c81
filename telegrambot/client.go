package telegrambot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"
)

// Version is reported to Sentry as the release. Set with -ldflags.
var Version = "dev"

// commandRegistrar is implemented by repliers that can publish a command menu.
type commandRegistrar interface {
	RegisterCommands(ctx context.Context, commands []BotCommand) error
}

// Bot wires configuration into a running webhook receiver or poller.
// Use New to create a Bot.
type Bot struct {
	cfg    Config
	logger *slog.Logger

	apiClient  HTTPClient
	replier    Replier
	relay      *Relay
	dispatcher *Dispatcher
	webhook    *WebhookHandler
	handler    http.Handler
	metrics    *Metrics
	reporter   ErrorReporter

	poller *Poller
}

// New validates cfg and builds every collaborator the bot needs. Unless a
// Replier is injected, the bot token is checked against Telegram here.
//
// Example:
//
//	bot, err := telegrambot.New(*cfg,
//	    telegrambot.WithLogger(logger),
//	)
func New(cfg Config, opts ...Option) (*Bot, error) {
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	var o botOptions
	for _, opt := range opts {
		opt.apply(&o)
	}

	b := &Bot{cfg: cfg, logger: o.logger}
	if b.logger == nil {
		b.logger = slog.Default()
	}

	b.apiClient = o.httpClient
	if b.apiClient == nil {
		b.apiClient = defaultHTTPClient(cfg.ReplyTimeout)
	}

	b.metrics = NewMetrics(o.registry)

	b.reporter = o.reporter
	if b.reporter == nil {
		r, err := NewSentryReporter(cfg.SentryDSN, cfg.Environment, Version)
		if err != nil {
			return nil, fmt.Errorf("init error reporter: %w", err)
		}
		b.reporter = r
	}

	b.replier = o.replier
	if b.replier == nil {
		tc, err := NewTelegramClient(SecretToken(cfg.BotToken), b.apiClient,
			rate.Limit(cfg.ReplyRateLimit), cfg.ReplyRateBurst, b.logger)
		if err != nil {
			return nil, fmt.Errorf("init telegram client: %w", err)
		}
		b.replier = tc
	}

	if cfg.DatabaseURLIgnored() {
		b.logger.Warn("DATABASE_URL is not a forwarding backend, forwarding stays off",
			"scheme", BackendScheme(cfg.DatabaseURL))
	}
	forwarder, backend := o.forwarder, "custom"
	if forwarder == nil && cfg.ForwardingEnabled() {
		client := o.httpClient
		if client == nil {
			client = defaultHTTPClient(cfg.ForwardTimeout)
		}
		f, err := NewForwarder(cfg, client, b.logger)
		if err != nil {
			return nil, err
		}
		forwarder, backend = f, BackendScheme(cfg.BackendAddress())
	}
	b.relay = NewRelay(forwarder, backend, cfg.ForwardTimeout, b.logger, b.metrics.ObserveForward)

	build := o.routes
	if build == nil {
		build = DefaultRoutes
	}
	d, err := NewDispatcher(b.logger, build(b.replier, b.relay)...)
	if err != nil {
		return nil, err
	}
	b.dispatcher = d

	b.webhook = NewWebhookHandler(b.logger, b.dispatcher,
		WithWebhookSecret(SecretToken(cfg.WebhookSecret), cfg.WebhookSecretHeader),
		WithMaxBodySize(cfg.MaxBodySize),
		WithWebhookMetrics(b.metrics),
		WithWebhookReporter(b.reporter),
	)
	b.handler = NewRouter(cfg.WebhookPath, b.webhook, b.metrics, NewStatusHandler(cfg.Mode, b.IsHealthy, b.logger), cfg.WebhookSecretHeader)

	if cfg.Mode == ModePolling {
		b.poller = b.newPoller(o.httpClient)
	}

	b.logger.Info("bot configured",
		"mode", cfg.Mode,
		"webhook_path", cfg.WebhookPath,
		"secret_check", cfg.WebhookSecret != "",
		"forwarding", b.relay.Enabled(),
		"routes", d.RouteNames(),
	)
	return b, nil
}

// Config returns a copy of the bot configuration.
func (b *Bot) Config() Config {
	return b.cfg
}

// Handler returns the HTTP handler with CORS, webhook and metrics routes.
// Use this to mount the bot in your own HTTP server.
func (b *Bot) Handler() http.Handler {
	return b.handler
}

// IsHealthy reports whether updates are still being received. It backs the
// status page at GET /.
func (b *Bot) IsHealthy() bool {
	if b.poller != nil {
		return b.poller.IsHealthy()
	}
	return true
}

// Run receives updates in the configured mode until ctx is cancelled, then
// drains in-flight forwards.
func (b *Bot) Run(ctx context.Context) error {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.ShutdownTimeout)
		defer cancel()
		if err := b.Close(closeCtx); err != nil {
			b.logger.Warn("bot close incomplete", "error", err)
		}
	}()

	b.registerCommands(ctx)

	switch b.cfg.Mode {
	case ModePolling:
		return b.runPolling(ctx)
	case ModeWebhook:
		return b.runWebhook(ctx)
	default:
		return fmt.Errorf("unknown mode: %s", b.cfg.Mode)
	}
}

// Close drains the relay and flushes pending error reports.
func (b *Bot) Close(ctx context.Context) error {
	err := b.relay.Close(ctx)
	b.reporter.Flush()
	return err
}

func (b *Bot) registerCommands(ctx context.Context) {
	reg, ok := b.replier.(commandRegistrar)
	if !ok {
		return
	}
	if err := reg.RegisterCommands(ctx, DefaultCommands); err != nil {
		b.logger.Warn("failed to register bot commands", "error", err)
	}
}

func (b *Bot) runWebhook(ctx context.Context) error {
	if b.cfg.WebhookURL != "" {
		err := SetWebhook(ctx, b.apiClient, SecretToken(b.cfg.BotToken), WebhookParams{
			URL:            b.cfg.WebhookURL,
			SecretToken:    b.cfg.WebhookSecret,
			AllowedUpdates: []string{"message", "edited_message", "callback_query"},
		})
		if err != nil {
			return fmt.Errorf("set webhook: %w", err)
		}
		b.logger.Info("webhook registered", "url", b.cfg.WebhookURL)
	}
	return StartServer(ctx, &b.cfg, b.handler, b.logger)
}

func (b *Bot) newPoller(client HTTPClient) *Poller {
	opts := []PollerOption{
		WithMaxErrors(b.cfg.PollingMaxErrors),
		WithDeleteWebhook(b.cfg.PollingDeleteWebhook),
		WithPollerBreaker(breakerSettings("telegram-polling", b.cfg, b.logger)),
	}
	// Without an injected client the poller builds one that outlives the long poll.
	if client != nil {
		opts = append(opts, WithPollerHTTPClient(client))
	}
	return NewPoller(SecretToken(b.cfg.BotToken), b.handleUpdate, b.logger,
		b.cfg.PollingTimeout, b.cfg.PollingLimit, opts...)
}

func (b *Bot) runPolling(ctx context.Context) error {
	if err := b.poller.Start(ctx); err != nil {
		return err
	}

	srvCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- StartServer(srvCtx, &b.cfg, b.handler, b.logger)
	}()

	var pollErr error
	select {
	case <-ctx.Done():
	case <-b.poller.Done():
		if ctx.Err() == nil {
			pollErr = ErrPollingStopped
		}
	case err := <-errCh:
		b.poller.Stop()
		return err
	}

	b.poller.Stop()
	cancel()
	return errors.Join(pollErr, <-errCh)
}

// handleUpdate runs a polled update through the dispatcher. Failures are
// logged and reported; the poller moves on regardless.
func (b *Bot) handleUpdate(ctx context.Context, u Update) {
	outcome, err := b.dispatcher.Dispatch(ctx, u)
	b.metrics.ObserveDispatch(outcome, err)
	if err != nil {
		b.logger.Error("polled update failed", "update_id", u.ID(), "error", err)
		b.reporter.Report(ctx, err, map[string]string{"update_id": strconv.FormatInt(u.ID(), 10)})
	}
}
