package telegrambot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ForwardResult is reported once per relayed update.
type ForwardResult struct {
	UpdateID int64
	Backend  string
	Duration time.Duration
	Err      error
}

// Relay forwards updates to the backend on detached goroutines. The caller
// never waits for delivery; outcomes are only logged and passed to onResult.
type Relay struct {
	forwarder Forwarder
	backend   string
	timeout   time.Duration
	logger    *slog.Logger
	onResult  func(ForwardResult)

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewRelay creates a relay. A nil forwarder yields a disabled relay whose
// Submit is a no-op.
func NewRelay(forwarder Forwarder, backend string, timeout time.Duration, logger *slog.Logger, onResult func(ForwardResult)) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		forwarder: forwarder,
		backend:   backend,
		timeout:   timeout,
		logger:    logger.With("component", "relay", "backend", backend),
		onResult:  onResult,
	}
}

// Enabled reports whether a backend is configured.
func (r *Relay) Enabled() bool {
	return r != nil && r.forwarder != nil
}

// Submit starts forwarding u and returns immediately. Cancellation of ctx
// does not abort the forward; only the relay timeout does.
func (r *Relay) Submit(ctx context.Context, u Update) {
	if !r.Enabled() {
		return
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		r.report(ForwardResult{UpdateID: u.ID(), Backend: r.backend, Err: ErrRelayClosed})
		return
	}
	r.wg.Add(1)
	r.mu.RUnlock()

	env := NewEnvelope(u, time.Now().UTC())
	go r.forward(context.WithoutCancel(ctx), env)
}

func (r *Relay) forward(parent context.Context, env Envelope) {
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	start := time.Now()
	res := ForwardResult{UpdateID: env.UpdateID, Backend: r.backend}
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				res.Err = fmt.Errorf("forwarder panicked: %v", rec)
			}
		}()
		res.Err = r.forwarder.Forward(ctx, env)
	}()
	res.Duration = time.Since(start)

	r.report(res)
}

func (r *Relay) report(res ForwardResult) {
	if res.Err != nil {
		r.logger.Warn("forward failed",
			"update_id", res.UpdateID,
			"duration", res.Duration,
			"error", res.Err,
		)
	} else {
		r.logger.Debug("update forwarded", "update_id", res.UpdateID, "duration", res.Duration)
	}
	if r.onResult != nil {
		r.onResult(res)
	}
}

// Close stops accepting work, waits for in-flight forwards until ctx is done,
// then closes the forwarder.
func (r *Relay) Close(ctx context.Context) error {
	if !r.Enabled() {
		return nil
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("relay drain interrupted, abandoning in-flight forwards")
		_ = r.forwarder.Close()
		return ctx.Err()
	}
	return r.forwarder.Close()
}
