package telegrambot

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
)

const reporterFlushTimeout = 2 * time.Second

// NopReporter discards reports. It is used when no DSN is configured.
type NopReporter struct{}

func (NopReporter) Report(context.Context, error, map[string]string) {}
func (NopReporter) Flush()                                           {}

// SentryReporter sends errors to Sentry.
type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter initialises the global Sentry client. An empty dsn
// returns a NopReporter.
func NewSentryReporter(dsn, environment, release string) (ErrorReporter, error) {
	if dsn == "" {
		return NopReporter{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	})
	if err != nil {
		return nil, err
	}
	return NewSentryReporterWithHub(sentry.CurrentHub()), nil
}

// NewSentryReporterWithHub wraps an existing hub.
func NewSentryReporterWithHub(hub *sentry.Hub) *SentryReporter {
	return &SentryReporter{hub: hub}
}

// Report captures err with tags on a cloned hub so concurrent requests do
// not share scope.
func (r *SentryReporter) Report(_ context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	hub := r.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
	})
	hub.CaptureException(err)
}

// Flush waits briefly for buffered events to be sent.
func (r *SentryReporter) Flush() {
	r.hub.Flush(reporterFlushTimeout)
}

var (
	_ ErrorReporter = NopReporter{}
	_ ErrorReporter = (*SentryReporter)(nil)
)
