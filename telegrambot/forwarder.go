package telegrambot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
)

// Envelope is the payload delivered to the backend.
type Envelope struct {
	UpdateID   int64           `json:"update_id"`
	Kind       UpdateKind      `json:"kind"`
	ChatID     int64           `json:"chat_id,omitempty"`
	UserID     int64           `json:"user_id,omitempty"`
	Text       string          `json:"text,omitempty"`
	Command    string          `json:"command,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	Update     json.RawMessage `json:"update"`
}

// NewEnvelope captures the forwardable parts of u.
func NewEnvelope(u Update, receivedAt time.Time) Envelope {
	return Envelope{
		UpdateID:   u.ID(),
		Kind:       u.Kind(),
		ChatID:     u.ChatID(),
		UserID:     u.UserID(),
		Text:       u.Text(),
		Command:    u.Command(),
		ReceivedAt: receivedAt,
		Update:     json.RawMessage(u.Raw()),
	}
}

// BackendScheme returns the lower-cased scheme of a backend address.
func BackendScheme(addr string) string {
	scheme, _, ok := strings.Cut(addr, "://")
	if !ok {
		return ""
	}
	return strings.ToLower(scheme)
}

// NewForwarder picks a forwarder implementation from the backend address
// scheme: http(s), redis(s) or kafka.
func NewForwarder(cfg Config, client HTTPClient, logger *slog.Logger) (Forwarder, error) {
	addr := cfg.BackendAddress()
	switch BackendScheme(addr) {
	case "http", "https":
		return NewHTTPForwarder(addr, client, breakerSettings("backend-forwarder", cfg, logger)), nil
	case "redis", "rediss":
		return NewRedisForwarder(addr, cfg.ForwardTopic)
	case "kafka":
		brokers, err := parseKafkaBrokers(addr)
		if err != nil {
			return nil, err
		}
		return NewKafkaForwarder(brokers, cfg.ForwardTopic), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, BackendScheme(addr))
	}
}

// breakerSettings builds circuit breaker settings shared by outbound clients.
func breakerSettings(name string, cfg Config, logger *slog.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger != nil {
				logger.Info("circuit breaker state changed",
					"name", name,
					"from", from.String(),
					"to", to.String(),
				)
			}
		},
	}
}

/* ---------- HTTP ---------- */

// HTTPForwarder POSTs envelopes as JSON. Calls go through a circuit breaker
// so a dead backend is not hammered on every message.
type HTTPForwarder struct {
	url     string
	client  HTTPClient
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewHTTPForwarder creates a forwarder posting to url.
func NewHTTPForwarder(url string, client HTTPClient, settings gobreaker.Settings) *HTTPForwarder {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPForwarder{
		url:     url,
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// Forward implements Forwarder.
func (f *HTTPForwarder) Forward(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return &ForwardError{Backend: "http", Err: err}
	}

	_, err = f.breaker.Execute(func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Telegram-Update-Id", strconv.FormatInt(env.UpdateID, 10))

		resp, err := f.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer func() {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return struct{}{}, &ForwardError{Backend: "http", StatusCode: resp.StatusCode}
		}
		return struct{}{}, nil
	})
	if err == nil {
		return nil
	}

	var fe *ForwardError
	if errors.As(err, &fe) {
		return err
	}
	return &ForwardError{Backend: "http", Err: err}
}

// State exposes the breaker state for health reporting.
func (f *HTTPForwarder) State() gobreaker.State {
	return f.breaker.State()
}

// Close implements Forwarder.
func (f *HTTPForwarder) Close() error { return nil }

/* ---------- Redis ---------- */

// RedisForwarder publishes envelopes on a Redis pub/sub channel.
type RedisForwarder struct {
	client  *redis.Client
	channel string
}

// NewRedisForwarder parses a redis:// URL. No connection is made until the
// first publish.
func NewRedisForwarder(rawURL, channel string) (*RedisForwarder, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisForwarder{client: redis.NewClient(opts), channel: channel}, nil
}

// Forward implements Forwarder.
func (f *RedisForwarder) Forward(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return &ForwardError{Backend: "redis", Err: err}
	}
	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		return &ForwardError{Backend: "redis", Err: err}
	}
	return nil
}

// Close implements Forwarder.
func (f *RedisForwarder) Close() error {
	return f.client.Close()
}

/* ---------- Kafka ---------- */

// KafkaForwarder writes envelopes to a Kafka topic keyed by chat ID, so
// messages of one chat keep their order within a partition.
type KafkaForwarder struct {
	writer *kafka.Writer
}

// NewKafkaForwarder creates a synchronous writer for topic.
func NewKafkaForwarder(brokers []string, topic string) *KafkaForwarder {
	return &KafkaForwarder{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Forward implements Forwarder.
func (f *KafkaForwarder) Forward(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return &ForwardError{Backend: "kafka", Err: err}
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(env.ChatID, 10)),
		Value: data,
		Time:  env.ReceivedAt,
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		return &ForwardError{Backend: "kafka", Err: err}
	}
	return nil
}

// Close implements Forwarder.
func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}

// parseKafkaBrokers reads "kafka://host1:9092,host2:9092[/...]".
func parseKafkaBrokers(addr string) ([]string, error) {
	_, rest, _ := strings.Cut(addr, "://")
	rest, _, _ = strings.Cut(rest, "/")

	var brokers []string
	for _, b := range strings.Split(rest, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka backend: no brokers in %q", addr)
	}
	return brokers, nil
}
