package telegrambot

import (
	"bytes"
	"encoding/json"
	"strings"
)

// TelegramUpdate is the wire form of an update delivered by Telegram.
// See https://core.telegram.org/bots/api#update
type TelegramUpdate struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	EditedMessage *Message       `json:"edited_message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message represents a Telegram message.
// See https://core.telegram.org/bots/api#message
type Message struct {
	MessageID       int             `json:"message_id"`
	From            *User           `json:"from,omitempty"`
	Chat            *Chat           `json:"chat"`
	Date            int             `json:"date"`
	Text            string          `json:"text,omitempty"`
	ReplyToMessage  *Message        `json:"reply_to_message,omitempty"`
	Entities        []MessageEntity `json:"entities,omitempty"`
	Photo           []PhotoSize     `json:"photo,omitempty"`
	Document        *Document       `json:"document,omitempty"`
	Caption         string          `json:"caption,omitempty"`
	CaptionEntities []MessageEntity `json:"caption_entities,omitempty"`
	Contact         *Contact        `json:"contact,omitempty"`
	Location        *Location       `json:"location,omitempty"`
}

// User represents a Telegram user or bot.
type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// Chat represents a Telegram chat.
type Chat struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// CallbackQuery represents an incoming callback query from a callback button.
type CallbackQuery struct {
	ID              string   `json:"id"`
	From            *User    `json:"from"`
	Message         *Message `json:"message,omitempty"`
	InlineMessageID string   `json:"inline_message_id,omitempty"`
	ChatInstance    string   `json:"chat_instance"`
	Data            string   `json:"data,omitempty"`
}

// MessageEntity represents a special entity in a text message (hashtag, URL, etc.).
type MessageEntity struct {
	Type     string `json:"type"`
	Offset   int    `json:"offset"`
	Length   int    `json:"length"`
	URL      string `json:"url,omitempty"`
	User     *User  `json:"user,omitempty"`
	Language string `json:"language,omitempty"`
}

// PhotoSize represents one size of a photo or file/sticker thumbnail.
type PhotoSize struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	FileSize     int    `json:"file_size,omitempty"`
}

// Document represents a general file.
type Document struct {
	FileID       string     `json:"file_id"`
	FileUniqueID string     `json:"file_unique_id"`
	Thumbnail    *PhotoSize `json:"thumbnail,omitempty"`
	FileName     string     `json:"file_name,omitempty"`
	MimeType     string     `json:"mime_type,omitempty"`
	FileSize     int64      `json:"file_size,omitempty"`
}

// Contact represents a phone contact.
type Contact struct {
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name,omitempty"`
	UserID      int64  `json:"user_id,omitempty"`
	VCard       string `json:"vcard,omitempty"`
}

// Location represents a point on the map.
type Location struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// UpdateKind classifies an update for routing.
type UpdateKind string

const (
	KindCommand  UpdateKind = "command"
	KindMessage  UpdateKind = "message"
	KindCallback UpdateKind = "callback"
	KindOther    UpdateKind = "other"
)

// Update is a parsed, read-only view of one delivery. It is built once by
// ParseUpdate and never modified afterwards; handlers receive it by value.
type Update struct {
	id      int64
	kind    UpdateKind
	chatID  int64
	hasChat bool
	userID  int64
	text    string
	command string
	args    string
	raw     []byte
	payload TelegramUpdate
}

// ParseUpdate decodes a raw request body into an Update. The body must be a
// single JSON object; anything else yields ErrInvalidJSON.
func ParseUpdate(body []byte) (Update, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Update{}, ErrInvalidJSON
	}

	var tu TelegramUpdate
	if err := json.Unmarshal(trimmed, &tu); err != nil {
		return Update{}, &WebhookError{Code: ErrInvalidJSON.Code, Message: ErrInvalidJSON.Message, Err: err}
	}

	return newUpdate(tu, bytes.Clone(trimmed)), nil
}

func newUpdate(tu TelegramUpdate, raw []byte) Update {
	u := Update{
		id:      tu.UpdateID,
		kind:    KindOther,
		raw:     raw,
		payload: tu,
	}

	msg := tu.Message
	if msg == nil {
		msg = tu.EditedMessage
	}

	switch {
	case msg != nil:
		u.text = msg.Text
		if msg.Chat != nil {
			u.chatID, u.hasChat = msg.Chat.ID, true
		}
		if msg.From != nil {
			u.userID = msg.From.ID
		}
		if name, args, ok := parseCommand(msg.Text); ok {
			u.kind, u.command, u.args = KindCommand, name, args
		} else {
			u.kind = KindMessage
		}
	case tu.CallbackQuery != nil:
		u.kind = KindCallback
		u.text = tu.CallbackQuery.Data
		if tu.CallbackQuery.From != nil {
			u.userID = tu.CallbackQuery.From.ID
		}
		if m := tu.CallbackQuery.Message; m != nil && m.Chat != nil {
			u.chatID, u.hasChat = m.Chat.ID, true
		}
	}
	return u
}

// parseCommand splits "/start@VolleyBot arg1 arg2" into ("start", "arg1 arg2").
func parseCommand(text string) (name, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// ID returns the update identifier.
func (u Update) ID() int64 { return u.id }

// Kind returns the routing class of the update.
func (u Update) Kind() UpdateKind { return u.kind }

// ChatID returns the chat a reply should be addressed to.
func (u Update) ChatID() int64 { return u.chatID }

// HasChat reports whether the update carries a chat to reply to.
func (u Update) HasChat() bool { return u.hasChat }

// UserID returns the sender's user ID, or 0 when unknown.
func (u Update) UserID() int64 { return u.userID }

// Text returns the message text or callback data.
func (u Update) Text() string { return u.text }

// Command returns the lower-cased command name without the leading slash.
func (u Update) Command() string { return u.command }

// Args returns everything after the command name.
func (u Update) Args() string { return u.args }

// IsCommand reports whether the update is the given command.
func (u Update) IsCommand(name string) bool {
	return u.kind == KindCommand && u.command == name
}

// Raw returns a copy of the original JSON body.
func (u Update) Raw() []byte { return bytes.Clone(u.raw) }

// Payload returns the decoded Telegram object. Treat it as read-only.
func (u Update) Payload() TelegramUpdate { return u.payload }
