package telegrambot

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
)

// UpdateFunc receives each polled update, in order.
type UpdateFunc func(ctx context.Context, update Update)

// Poller pulls updates with getUpdates and hands them to an UpdateFunc.
// It is the alternative to the webhook for local runs; both paths end in the
// same dispatcher.
type Poller struct {
	botToken SecretToken
	handle   UpdateFunc
	logger   *slog.Logger

	// Polling configuration
	timeout              int
	limit                int
	maxErrors            int      // Max consecutive errors before stopping (0 = unlimited)
	allowedUpdates       []string // Optional: filter update types
	deleteWebhookOnStart bool

	// Retry configuration with exponential backoff
	retryInitialDelay  time.Duration
	retryMaxDelay      time.Duration
	retryBackoffFactor float64

	client  HTTPClient
	breaker *gobreaker.CircuitBreaker[json.RawMessage]

	// State management
	started           atomic.Bool
	running           atomic.Bool
	offset            atomic.Int64
	consecutiveErrors atomic.Int32
	stopCh            chan struct{}
	done              chan struct{}
	closeOnce         sync.Once
	wg                sync.WaitGroup
}

const defaultMaxConsecutiveErrors = 10

// Default retry configuration for exponential backoff
const (
	defaultRetryInitialDelay  = 1 * time.Second
	defaultRetryMaxDelay      = 60 * time.Second
	defaultRetryBackoffFactor = 2.0
)

// PollerOption configures the Poller.
type PollerOption func(*Poller)

// WithPollerHTTPClient sets a custom HTTP client for getUpdates calls.
func WithPollerHTTPClient(client HTTPClient) PollerOption {
	return func(p *Poller) {
		p.client = client
	}
}

// WithPollerBreaker replaces the default circuit breaker settings.
func WithPollerBreaker(settings gobreaker.Settings) PollerOption {
	return func(p *Poller) {
		p.breaker = gobreaker.NewCircuitBreaker[json.RawMessage](settings)
	}
}

// WithMaxErrors sets the maximum consecutive errors before stopping.
// Set to 0 for unlimited retries.
func WithMaxErrors(max int) PollerOption {
	return func(p *Poller) {
		p.maxErrors = max
	}
}

// WithAllowedUpdates sets the update types to receive.
func WithAllowedUpdates(types []string) PollerOption {
	return func(p *Poller) {
		p.allowedUpdates = types
	}
}

// WithDeleteWebhook deletes any existing webhook before polling starts.
func WithDeleteWebhook(delete bool) PollerOption {
	return func(p *Poller) {
		p.deleteWebhookOnStart = delete
	}
}

// WithRetryConfig sets exponential backoff parameters. Non-positive values
// keep the defaults (1s, 60s, 2.0).
func WithRetryConfig(initialDelay, maxDelay time.Duration, backoffFactor float64) PollerOption {
	return func(p *Poller) {
		if initialDelay > 0 {
			p.retryInitialDelay = initialDelay
		}
		if maxDelay > 0 {
			p.retryMaxDelay = maxDelay
		}
		if backoffFactor > 1.0 {
			p.retryBackoffFactor = backoffFactor
		}
	}
}

// NewPoller creates a poller. timeout is the long-poll wait in seconds and
// limit the maximum batch size.
func NewPoller(botToken SecretToken, handle UpdateFunc, logger *slog.Logger, timeout, limit int, opts ...PollerOption) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		botToken:           botToken,
		handle:             handle,
		logger:             logger.With("component", "poller"),
		timeout:            timeout,
		limit:              limit,
		maxErrors:          defaultMaxConsecutiveErrors,
		retryInitialDelay:  defaultRetryInitialDelay,
		retryMaxDelay:      defaultRetryMaxDelay,
		retryBackoffFactor: defaultRetryBackoffFactor,
		client:             defaultPollingHTTPClient(timeout),
		stopCh:             make(chan struct{}),
		done:               make(chan struct{}),
	}

	cfg := DefaultConfig()
	p.breaker = gobreaker.NewCircuitBreaker[json.RawMessage](breakerSettings("telegram-polling", cfg, p.logger))

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// defaultPollingHTTPClient creates an HTTP client that outlives the long-poll wait.
func defaultPollingHTTPClient(timeoutSeconds int) *http.Client {
	httpTimeout := time.Duration(timeoutSeconds+10) * time.Second

	return &http.Client{
		Timeout: httpTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: time.Duration(timeoutSeconds+5) * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}

// calculateBackoff returns min(maxDelay, initialDelay * factor^(attempt-1))
// plus up to 25% jitter from crypto/rand.
func (p *Poller) calculateBackoff(attempt int32) time.Duration {
	baseDelay := float64(p.retryInitialDelay) * math.Pow(p.retryBackoffFactor, float64(attempt-1))
	if baseDelay > float64(p.retryMaxDelay) {
		baseDelay = float64(p.retryMaxDelay)
	}

	jitterRange := int64(baseDelay * 0.25)
	if jitterRange > 0 {
		if jitter, err := rand.Int(rand.Reader, big.NewInt(jitterRange)); err == nil {
			baseDelay += float64(jitter.Int64())
		}
	}
	return time.Duration(baseDelay)
}

// Start launches the poll loop. A Poller runs at most once; later calls
// return ErrPollingAlreadyRunning.
func (p *Poller) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrPollingAlreadyRunning
	}

	if p.deleteWebhookOnStart {
		p.logger.Info("deleting existing webhook before starting long polling")
		if err := DeleteWebhook(ctx, p.client, p.botToken, false); err != nil {
			p.started.Store(false)
			return fmt.Errorf("failed to delete webhook: %w", err)
		}
	}

	p.running.Store(true)
	p.wg.Add(1)
	go p.pollLoop(ctx)

	p.logger.Info("long polling started",
		"timeout", p.timeout,
		"limit", p.limit,
		"max_errors", p.maxErrors,
	)
	return nil
}

// Stop signals the loop and waits for it to finish. Safe to call multiple times.
func (p *Poller) Stop() {
	p.closeOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
	p.logger.Info("long polling stopped")
}

// Done is closed when the poll loop exits, whether stopped, cancelled or
// past the error budget.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) pollLoop(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.done)
	defer p.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("polling stopped due to context cancellation")
			return
		case <-p.stopCh:
			return
		default:
		}

		updates, err := p.fetchUpdates(ctx)
		if err == nil {
			err = p.processBatch(ctx, updates)
		}
		if err != nil {
			errCount := p.consecutiveErrors.Add(1)
			backoff := p.calculateBackoff(errCount)
			p.logger.Error("failed to process updates",
				"error", err,
				"consecutive_errors", errCount,
				"retry_delay", backoff,
			)

			if p.maxErrors > 0 && int(errCount) >= p.maxErrors {
				p.logger.Error("max consecutive errors exceeded, stopping polling",
					"max_errors", p.maxErrors,
				)
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-time.After(backoff):
				continue
			}
		}

		p.consecutiveErrors.Store(0)
	}
}

// updateID is the one field every update carries.
type updateID struct {
	UpdateID *int64 `json:"update_id"`
}

// processBatch hands each update to the UpdateFunc. The offset moves past
// every update whose id can be read, including ones that fail to parse, so
// a bad update is never fetched again. A non-empty batch that moves the
// offset nowhere is an error.
func (p *Poller) processBatch(ctx context.Context, updates []json.RawMessage) error {
	before := p.offset.Load()

	for _, raw := range updates {
		var id updateID
		if err := json.Unmarshal(raw, &id); err != nil || id.UpdateID == nil {
			p.logger.Warn("skipping update without update_id", "error", err)
			continue
		}
		if *id.UpdateID >= p.offset.Load() {
			p.offset.Store(*id.UpdateID + 1)
		}

		update, err := ParseUpdate(raw)
		if err != nil {
			p.logger.Warn("skipping unparseable update", "update_id", *id.UpdateID, "error", err)
			continue
		}
		p.handle(ctx, update)
	}

	if len(updates) > 0 && p.offset.Load() == before {
		return ErrNoUpdateProgress
	}
	return nil
}

// getUpdatesRequest is the body of a getUpdates call.
type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// fetchUpdates calls getUpdates through the circuit breaker.
func (p *Poller) fetchUpdates(ctx context.Context) ([]json.RawMessage, error) {
	req := getUpdatesRequest{
		Offset:         p.offset.Load(),
		Limit:          p.limit,
		Timeout:        p.timeout,
		AllowedUpdates: p.allowedUpdates,
	}

	result, err := p.breaker.Execute(func() (json.RawMessage, error) {
		return callAPI(ctx, p.client, p.botToken, "getUpdates", req)
	})
	if err != nil {
		return nil, err
	}

	var updates []json.RawMessage
	if err := json.Unmarshal(result, &updates); err != nil {
		return nil, &TelegramAPIError{Description: "failed to parse updates", Err: err}
	}
	return updates, nil
}

// Running returns true if the poll loop is active.
func (p *Poller) Running() bool {
	return p.running.Load()
}

// IsHealthy reports false when stopped or past the error budget.
func (p *Poller) IsHealthy() bool {
	if p.maxErrors == 0 {
		return p.running.Load()
	}
	return p.running.Load() && int(p.consecutiveErrors.Load()) < p.maxErrors
}

// ConsecutiveErrors returns the current consecutive error count.
func (p *Poller) ConsecutiveErrors() int32 {
	return p.consecutiveErrors.Load()
}

// Offset returns the next update ID to request.
func (p *Poller) Offset() int64 {
	return p.offset.Load()
}
