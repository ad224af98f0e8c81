package telegrambot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"
)

// newCapturingHub returns a hub whose events are handed to the returned
// function instead of being sent.
func newCapturingHub(t *testing.T) (*sentry.Hub, func() []*sentry.Event) {
	t.Helper()
	var mu sync.Mutex
	var events []*sentry.Event

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn: "https://public@example.com/1",
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
			return nil
		},
	})
	if err != nil {
		t.Fatalf("sentry.NewClient() error = %v", err)
	}

	return sentry.NewHub(client, sentry.NewScope()), func() []*sentry.Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]*sentry.Event(nil), events...)
	}
}

func TestNewSentryReporter_EmptyDSN(t *testing.T) {
	r, err := NewSentryReporter("", "test", "dev")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.(NopReporter); !ok {
		t.Errorf("reporter = %T, want NopReporter", r)
	}
}

func TestNewSentryReporter_InvalidDSN(t *testing.T) {
	if _, err := NewSentryReporter("not a dsn", "test", "dev"); err == nil {
		t.Error("expected error for invalid DSN")
	}
}

func TestSentryReporter_ReportTags(t *testing.T) {
	hub, events := newCapturingHub(t)
	r := NewSentryReporterWithHub(hub)

	r.Report(context.Background(), errors.New("reply failed"), map[string]string{
		"update_id":  "42",
		"request_id": "abc",
	})
	r.Flush()

	got := events()
	if len(got) != 1 {
		t.Fatalf("captured %d events, want 1", len(got))
	}
	if got[0].Tags["update_id"] != "42" || got[0].Tags["request_id"] != "abc" {
		t.Errorf("tags = %v", got[0].Tags)
	}
	if len(got[0].Exception) == 0 || got[0].Exception[len(got[0].Exception)-1].Value != "reply failed" {
		t.Errorf("exception = %+v", got[0].Exception)
	}
}

func TestSentryReporter_TagsDoNotLeakBetweenReports(t *testing.T) {
	hub, events := newCapturingHub(t)
	r := NewSentryReporterWithHub(hub)

	r.Report(context.Background(), errors.New("first"), map[string]string{"update_id": "1"})
	r.Report(context.Background(), errors.New("second"), nil)

	got := events()
	if len(got) != 2 {
		t.Fatalf("captured %d events, want 2", len(got))
	}
	if _, ok := got[1].Tags["update_id"]; ok {
		t.Errorf("second event inherited tags: %v", got[1].Tags)
	}
}

func TestSentryReporter_IgnoresNilError(t *testing.T) {
	hub, events := newCapturingHub(t)
	NewSentryReporterWithHub(hub).Report(context.Background(), nil, nil)

	if n := len(events()); n != 0 {
		t.Errorf("captured %d events for nil error", n)
	}
}
