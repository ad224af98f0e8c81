package telegrambot

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

/* ---------- types ---------- */

// WebhookHandler serves the Telegram webhook endpoint. GET and HEAD answer a
// health check; POST authenticates, parses and dispatches one update.
type WebhookHandler struct {
	logger       *slog.Logger
	dispatcher   UpdateDispatcher
	secret       SecretToken
	secretHeader string
	maxBodySize  int64

	metrics  *Metrics
	reporter ErrorReporter

	bufferPool sync.Pool
}

// WebhookOption configures a WebhookHandler.
type WebhookOption func(*WebhookHandler)

// WithWebhookSecret requires every POST to carry secret in header.
// An empty secret disables the check.
func WithWebhookSecret(secret SecretToken, header string) WebhookOption {
	return func(wh *WebhookHandler) {
		wh.secret = secret
		if header != "" {
			wh.secretHeader = header
		}
	}
}

// WithMaxBodySize caps the accepted request body.
func WithMaxBodySize(size int64) WebhookOption {
	return func(wh *WebhookHandler) {
		if size > 0 {
			wh.maxBodySize = size
		}
	}
}

// WithWebhookMetrics records request outcomes in m.
func WithWebhookMetrics(m *Metrics) WebhookOption {
	return func(wh *WebhookHandler) { wh.metrics = m }
}

// WithWebhookReporter sends dispatch failures to r.
func WithWebhookReporter(r ErrorReporter) WebhookOption {
	return func(wh *WebhookHandler) {
		if r != nil {
			wh.reporter = r
		}
	}
}

/* ---------- constructor ---------- */

// NewWebhookHandler creates a handler dispatching into d.
func NewWebhookHandler(logger *slog.Logger, d UpdateDispatcher, opts ...WebhookOption) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	wh := &WebhookHandler{
		logger:       logger.With("component", "webhook"),
		dispatcher:   d,
		secretHeader: DefaultSecretHeader,
		maxBodySize:  1 << 20,
		reporter:     NopReporter{},
		bufferPool: sync.Pool{
			New: func() any { return new(bytes.Buffer) },
		},
	}
	for _, opt := range opts {
		opt(wh)
	}
	return wh
}

// DefaultSecretHeader is the header Telegram uses to echo the webhook secret.
const DefaultSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

/* ---------- HTTP handler ---------- */

func (wh *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", requestID)
	logger := wh.logger.With("request_id", requestID)

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		writeJSON(w, logger, http.StatusOK, ackBody)
		return
	case http.MethodPost:
	default:
		w.Header().Set("Allow", "GET, HEAD, POST, OPTIONS")
		wh.fail(w, logger, ErrMethodNotAllowed, "method_not_allowed")
		return
	}

	if wh.secret != "" &&
		subtle.ConstantTimeCompare([]byte(r.Header.Get(wh.secretHeader)), []byte(wh.secret.Value())) != 1 {
		wh.fail(w, logger, ErrUnauthorized, "unauthorized")
		return
	}

	buf := wh.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer wh.bufferPool.Put(buf)

	r.Body = http.MaxBytesReader(w, r.Body, wh.maxBodySize)
	defer r.Body.Close()
	if _, err := io.Copy(buf, r.Body); err != nil {
		wh.fail(w, logger, &WebhookError{Code: ErrBodyReadFailed.Code, Message: ErrBodyReadFailed.Message, Err: err}, "bad_request")
		return
	}

	update, err := ParseUpdate(buf.Bytes())
	if err != nil {
		wh.fail(w, logger, err, "bad_request")
		return
	}

	logger = logger.With("update_id", update.ID(), "kind", update.Kind())
	outcome, err := wh.dispatcher.Dispatch(r.Context(), update)
	wh.metrics.ObserveDispatch(outcome, err)
	if err != nil {
		wh.reporter.Report(r.Context(), err, map[string]string{
			"update_id":  strconv.FormatInt(update.ID(), 10),
			"request_id": requestID,
		})
		wh.fail(w, logger, &WebhookError{Code: ErrDispatchFailed.Code, Message: ErrDispatchFailed.Message, Err: err}, "dispatch_failed")
		return
	}

	logger.Info("update handled", "outcome", outcome.String(), "duration", time.Since(start))
	wh.metrics.ObserveRequest("ok", time.Since(start))
	writeJSON(w, logger, http.StatusOK, ackBody)
}

func (wh *WebhookHandler) fail(w http.ResponseWriter, logger *slog.Logger, err error, result string) {
	code := http.StatusInternalServerError
	msg := ErrDispatchFailed.Message
	var whErr *WebhookError
	if errors.As(err, &whErr) {
		code = whErr.Code
		msg = whErr.Message
	}

	if code >= 500 {
		logger.Error("webhook request failed", "status", code, "error", err)
	} else {
		logger.Warn("webhook request rejected", "status", code, "error", err)
	}
	wh.metrics.ObserveRequest(result, 0)
	writeJSON(w, logger, code, errorBody{OK: false, Description: msg})
}

/* ---------- response bodies ---------- */

type errorBody struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

var ackBody = []byte(`{"ok":true}`)

// writeJSON sends v, or raw JSON bytes, with code. The status line is already
// out when writing fails, so the error is only logged.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	var err error
	if b, ok := v.([]byte); ok {
		_, err = w.Write(b)
	} else {
		err = json.NewEncoder(w).Encode(v)
	}
	if err != nil && logger != nil {
		logger.Debug("failed to write response", "status", code, "error", err)
	}
}
