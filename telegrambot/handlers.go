package telegrambot

import (
	"context"
	"strings"
)

// GreetingText is the reply to /start.
const GreetingText = "Volleyball Bot is active!"

// BotCommand is a command advertised to Telegram clients.
type BotCommand struct {
	Command     string
	Description string
}

// DefaultCommands lists the commands answered by DefaultRoutes.
var DefaultCommands = []BotCommand{
	{Command: "start", Description: "Check that the bot is running"},
	{Command: "help", Description: "List available commands"},
}

// DefaultRoutes returns the built-in route table: start, help, then relay of
// plain messages. relay may be nil, in which case messages are accepted and
// dropped.
func DefaultRoutes(replier Replier, relay *Relay) []Route {
	return []Route{
		StartRoute(replier),
		HelpRoute(replier, DefaultCommands),
		RelayRoute(relay),
	}
}

// StartRoute answers /start with GreetingText.
func StartRoute(replier Replier) Route {
	return Route{
		Name:   "start",
		Match:  func(u Update) bool { return u.IsCommand("start") },
		Action: replyWith(replier, GreetingText),
	}
}

// HelpRoute answers /help with the advertised commands.
func HelpRoute(replier Replier, commands []BotCommand) Route {
	return Route{
		Name:   "help",
		Match:  func(u Update) bool { return u.IsCommand("help") },
		Action: replyWith(replier, helpText(commands)),
	}
}

// RelayRoute hands plain messages to the relay without waiting for delivery.
func RelayRoute(relay *Relay) Route {
	return Route{
		Name:  "relay",
		Match: func(u Update) bool { return u.Kind() == KindMessage },
		Action: func(ctx context.Context, u Update) error {
			relay.Submit(ctx, u)
			return nil
		},
	}
}

func replyWith(replier Replier, text string) Action {
	return func(ctx context.Context, u Update) error {
		if !u.HasChat() {
			return ErrNoChat
		}
		return replier.SendText(ctx, u.ChatID(), text)
	}
}

func helpText(commands []BotCommand) string {
	var b strings.Builder
	b.WriteString("Available commands:")
	for _, c := range commands {
		b.WriteString("\n/")
		b.WriteString(c.Command)
		if c.Description != "" {
			b.WriteString(" - ")
			b.WriteString(c.Description)
		}
	}
	return b.String()
}
