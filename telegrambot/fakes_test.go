package telegrambot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"testing"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// sentText is one reply captured by fakeReplier.
type sentText struct {
	ChatID int64
	Text   string
}

type fakeReplier struct {
	mu   sync.Mutex
	sent []sentText
	err  error
}

func (f *fakeReplier) SendText(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentText{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeReplier) Sent() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentText(nil), f.sent...)
}

type fakeForwarder struct {
	mu     sync.Mutex
	envs   []Envelope
	err    error
	block  chan struct{}
	closed bool
}

func (f *fakeForwarder) Forward(ctx context.Context, env Envelope) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.envs = append(f.envs, env)
	return f.err
}

func (f *fakeForwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeForwarder) Envelopes() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Envelope(nil), f.envs...)
}

func (f *fakeForwarder) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeReporter struct {
	mu      sync.Mutex
	errs    []error
	tags    []map[string]string
	flushed int
}

func (f *fakeReporter) Report(_ context.Context, err error, tags map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
	f.tags = append(f.tags, tags)
}

func (f *fakeReporter) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed++
}

func (f *fakeReporter) Reports() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]error(nil), f.errs...)
}

// mustParse builds an Update from a JSON literal.
func mustParse(t *testing.T, body string) Update {
	t.Helper()
	u, err := ParseUpdate([]byte(body))
	if err != nil {
		t.Fatalf("ParseUpdate(%s): %v", body, err)
	}
	return u
}

func textUpdateJSON(updateID, chatID int64, text string) string {
	return fmt.Sprintf(`{"update_id":%d,"message":{"message_id":1,"date":0,"text":%q,"chat":{"id":%d,"type":"private"},"from":{"id":7,"is_bot":false,"first_name":"Player"}}}`,
		updateID, text, chatID)
}

// testTransport rewrites requests for api.telegram.org to a test server.
type testTransport struct {
	baseURL    string
	httpClient *http.Client
}

func (t *testTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Rewrite the URL to point to our test server
	newURL := t.baseURL + req.URL.Path
	if req.URL.RawQuery != "" {
		newURL += "?" + req.URL.RawQuery
	}

	newReq, err := http.NewRequestWithContext(req.Context(), req.Method, newURL, req.Body)
	if err != nil {
		return nil, err
	}
	newReq.Header = req.Header

	return t.httpClient.Transport.RoundTrip(newReq)
}
