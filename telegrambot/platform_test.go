package telegrambot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strconv"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// fakeBotAPI answers the Bot API methods the bot uses and records what it
// was asked to send.
type fakeBotAPI struct {
	mu       sync.Mutex
	calls    []string
	messages []sentText
	commands string
	webhook  WebhookParams

	// failures maps a method name to an error description returned as ok=false.
	failures map[string]string
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := path.Base(r.URL.Path)

	f.mu.Lock()
	f.calls = append(f.calls, method)
	desc, fail := f.failures[method]
	f.mu.Unlock()

	if fail {
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 400, "description": desc})
		return
	}

	var result any = true
	switch method {
	case "getMe":
		result = map[string]any{"id": 1, "is_bot": true, "first_name": "Volleyball Bot", "username": "volleybot"}
	case "sendMessage":
		r.ParseForm()
		chatID, _ := strconv.ParseInt(r.PostForm.Get("chat_id"), 10, 64)
		f.mu.Lock()
		f.messages = append(f.messages, sentText{ChatID: chatID, Text: r.PostForm.Get("text")})
		f.mu.Unlock()
		result = map[string]any{"message_id": 10, "date": 0, "chat": map[string]any{"id": chatID, "type": "private"}}
	case "setMyCommands":
		r.ParseForm()
		f.mu.Lock()
		f.commands = r.PostForm.Get("commands")
		f.mu.Unlock()
	case "setWebhook":
		f.mu.Lock()
		json.NewDecoder(r.Body).Decode(&f.webhook)
		f.mu.Unlock()
	case "getUpdates":
		result = []any{}
	}
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func (f *fakeBotAPI) Messages() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentText(nil), f.messages...)
}

func (f *fakeBotAPI) Called(method string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == method {
			return true
		}
	}
	return false
}

func newFakeTelegram(t *testing.T, api *fakeBotAPI) *http.Client {
	t.Helper()
	return newAPIClient(t, api.ServeHTTP)
}

func TestNewTelegramClient_Authorizes(t *testing.T) {
	api := &fakeBotAPI{}
	client := newFakeTelegram(t, api)

	tc, err := NewTelegramClient(SecretToken(testBotToken), client, rate.Inf, 1, newTestLogger())
	if err != nil {
		t.Fatalf("NewTelegramClient() error = %v", err)
	}
	if tc.Username() != "volleybot" {
		t.Errorf("Username() = %q, want volleybot", tc.Username())
	}
	if !api.Called("getMe") {
		t.Error("getMe was not called")
	}
}

func TestNewTelegramClient_RejectedToken(t *testing.T) {
	api := &fakeBotAPI{failures: map[string]string{"getMe": "Unauthorized"}}
	client := newFakeTelegram(t, api)

	_, err := NewTelegramClient(SecretToken(testBotToken), client, rate.Inf, 1, newTestLogger())
	var apiErr *TelegramAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("NewTelegramClient() error = %v, want TelegramAPIError", err)
	}
	if apiErr.Description != "Unauthorized" {
		t.Errorf("Description = %q", apiErr.Description)
	}
}

func TestTelegramClient_SendText(t *testing.T) {
	api := &fakeBotAPI{}
	tc, err := NewTelegramClient(SecretToken(testBotToken), newFakeTelegram(t, api), rate.Inf, 1, newTestLogger())
	if err != nil {
		t.Fatal(err)
	}

	if err := tc.SendText(context.Background(), 42, GreetingText); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}

	msgs := api.Messages()
	if len(msgs) != 1 || msgs[0].ChatID != 42 || msgs[0].Text != GreetingText {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestTelegramClient_SendTextAPIError(t *testing.T) {
	api := &fakeBotAPI{failures: map[string]string{"sendMessage": "Bad Request: chat not found"}}
	tc, err := NewTelegramClient(SecretToken(testBotToken), newFakeTelegram(t, api), rate.Inf, 1, newTestLogger())
	if err != nil {
		t.Fatal(err)
	}

	err = tc.SendText(context.Background(), 42, "hi")
	var apiErr *TelegramAPIError
	if !errors.As(err, &apiErr) || apiErr.Code != 400 {
		t.Fatalf("SendText() error = %v, want TelegramAPIError 400", err)
	}
}

func TestTelegramClient_RateLimitHonoursContext(t *testing.T) {
	api := &fakeBotAPI{}
	tc, err := NewTelegramClient(SecretToken(testBotToken), newFakeTelegram(t, api), rate.Every(time.Hour), 1, newTestLogger())
	if err != nil {
		t.Fatal(err)
	}

	if err := tc.SendText(context.Background(), 1, "first"); err != nil {
		t.Fatalf("first send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tc.SendText(ctx, 1, "second"); err == nil {
		t.Error("second send should fail while rate limited")
	}
	if n := len(api.Messages()); n != 1 {
		t.Errorf("sent %d messages, want 1", n)
	}
}

func TestTelegramClient_RegisterCommands(t *testing.T) {
	api := &fakeBotAPI{}
	tc, err := NewTelegramClient(SecretToken(testBotToken), newFakeTelegram(t, api), rate.Inf, 1, newTestLogger())
	if err != nil {
		t.Fatal(err)
	}

	if err := tc.RegisterCommands(context.Background(), DefaultCommands); err != nil {
		t.Fatalf("RegisterCommands() error = %v", err)
	}

	var cmds []struct {
		Command     string `json:"command"`
		Description string `json:"description"`
	}
	api.mu.Lock()
	raw := api.commands
	api.mu.Unlock()
	if err := json.Unmarshal([]byte(raw), &cmds); err != nil {
		t.Fatalf("commands param %q: %v", raw, err)
	}
	if len(cmds) != 2 || cmds[0].Command != "start" || cmds[1].Command != "help" {
		t.Errorf("commands = %+v", cmds)
	}
}
