package telegrambot

import (
	"errors"
	"testing"
)

func TestParseUpdate(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantKind    UpdateKind
		wantID      int64
		wantChat    int64
		wantHasChat bool
		wantCommand string
		wantArgs    string
		wantText    string
	}{
		{
			name:        "start command",
			body:        `{"update_id":1,"message":{"message_id":1,"text":"/start","chat":{"id":42,"type":"private"},"from":{"id":7,"is_bot":false,"first_name":"A"}}}`,
			wantKind:    KindCommand,
			wantID:      1,
			wantChat:    42,
			wantHasChat: true,
			wantCommand: "start",
			wantText:    "/start",
		},
		{
			name:        "command with bot suffix and args",
			body:        `{"update_id":2,"message":{"message_id":1,"text":"/Start@VolleyBot  court 3 ","chat":{"id":-100,"type":"group"}}}`,
			wantKind:    KindCommand,
			wantID:      2,
			wantChat:    -100,
			wantHasChat: true,
			wantCommand: "start",
			wantArgs:    "court 3",
			wantText:    "/Start@VolleyBot  court 3 ",
		},
		{
			name:        "plain message",
			body:        `{"update_id":3,"message":{"message_id":1,"text":"see you at 7","chat":{"id":42,"type":"private"}}}`,
			wantKind:    KindMessage,
			wantID:      3,
			wantChat:    42,
			wantHasChat: true,
			wantText:    "see you at 7",
		},
		{
			name:        "lone slash is a message",
			body:        `{"update_id":4,"message":{"message_id":1,"text":"/","chat":{"id":42,"type":"private"}}}`,
			wantKind:    KindMessage,
			wantID:      4,
			wantChat:    42,
			wantHasChat: true,
			wantText:    "/",
		},
		{
			name:        "edited message",
			body:        `{"update_id":5,"edited_message":{"message_id":1,"text":"fixed","chat":{"id":9,"type":"private"}}}`,
			wantKind:    KindMessage,
			wantID:      5,
			wantChat:    9,
			wantHasChat: true,
			wantText:    "fixed",
		},
		{
			name:        "callback query",
			body:        `{"update_id":6,"callback_query":{"id":"cb","from":{"id":7,"is_bot":false,"first_name":"A"},"data":"join","message":{"message_id":2,"chat":{"id":42,"type":"private"}}}}`,
			wantKind:    KindCallback,
			wantID:      6,
			wantChat:    42,
			wantHasChat: true,
			wantText:    "join",
		},
		{
			name:     "unknown update type",
			body:     `{"update_id":7,"poll":{"id":"p"}}`,
			wantKind: KindOther,
			wantID:   7,
		},
		{
			name:     "empty object",
			body:     `{}`,
			wantKind: KindOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := ParseUpdate([]byte(tt.body))
			if err != nil {
				t.Fatalf("ParseUpdate() error = %v", err)
			}
			if u.Kind() != tt.wantKind {
				t.Errorf("Kind() = %s, want %s", u.Kind(), tt.wantKind)
			}
			if u.ID() != tt.wantID {
				t.Errorf("ID() = %d, want %d", u.ID(), tt.wantID)
			}
			if u.ChatID() != tt.wantChat || u.HasChat() != tt.wantHasChat {
				t.Errorf("chat = (%d, %v), want (%d, %v)", u.ChatID(), u.HasChat(), tt.wantChat, tt.wantHasChat)
			}
			if u.Command() != tt.wantCommand {
				t.Errorf("Command() = %q, want %q", u.Command(), tt.wantCommand)
			}
			if u.Args() != tt.wantArgs {
				t.Errorf("Args() = %q, want %q", u.Args(), tt.wantArgs)
			}
			if u.Text() != tt.wantText {
				t.Errorf("Text() = %q, want %q", u.Text(), tt.wantText)
			}
		})
	}
}

func TestParseUpdate_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json"},
		{"empty", ""},
		{"whitespace", "   "},
		{"array", `[{"update_id":1}]`},
		{"string", `"hello"`},
		{"number", `42`},
		{"truncated", `{"update_id":1,`},
		{"wrong field type", `{"update_id":"one"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUpdate([]byte(tt.body))
			if !errors.Is(err, ErrInvalidJSON) {
				t.Errorf("ParseUpdate(%q) error = %v, want ErrInvalidJSON", tt.body, err)
			}
		})
	}
}

func TestUpdate_RawIsCopy(t *testing.T) {
	body := []byte(`{"update_id":1,"message":{"message_id":1,"text":"hi","chat":{"id":1,"type":"private"}}}`)
	u, err := ParseUpdate(body)
	if err != nil {
		t.Fatal(err)
	}

	body[2] = 'X'
	raw := u.Raw()
	raw[3] = 'Y'

	if got := string(u.Raw()); got[2] != 'u' || got[3] != 'p' {
		t.Errorf("Raw() was affected by outside writes: %s", got)
	}
}

func TestUpdate_IsCommand(t *testing.T) {
	u, err := ParseUpdate([]byte(`{"update_id":1,"message":{"message_id":1,"text":"/help","chat":{"id":1,"type":"private"}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if !u.IsCommand("help") {
		t.Error("IsCommand(help) = false")
	}
	if u.IsCommand("start") {
		t.Error("IsCommand(start) = true")
	}
	if u.Payload().Message == nil || u.Payload().Message.Text != "/help" {
		t.Error("Payload() should expose the decoded message")
	}
}
