package telegrambot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// TelegramClient sends replies and registers commands through the Bot API.
// It is created once at startup and shared by all requests.
type TelegramClient struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewTelegramClient authorizes the token with getMe; an invalid token fails
// here, before the server starts. The HTTP client's timeout bounds every
// outbound call.
func NewTelegramClient(token SecretToken, client HTTPClient, limit rate.Limit, burst int, logger *slog.Logger) (*TelegramClient, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token.Value(), tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, translateAPIError("getMe", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("telegram client authorized", "username", api.Self.UserName)

	return &TelegramClient{
		api:     api,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With("component", "telegram_client"),
	}, nil
}

// Username returns the bot's @username as reported by getMe.
func (c *TelegramClient) Username() string {
	return c.api.Self.UserName
}

// SendText sends a plain text message to chatID. It waits for the outbound
// rate limiter, which gives up when ctx is done.
func (c *TelegramClient) SendText(ctx context.Context, chatID int64, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("reply rate limit: %w", err)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := c.api.Send(msg); err != nil {
		return translateAPIError("sendMessage", err)
	}
	c.logger.Debug("reply sent", "chat_id", chatID)
	return nil
}

// RegisterCommands publishes the command menu shown in Telegram clients.
func (c *TelegramClient) RegisterCommands(ctx context.Context, commands []BotCommand) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("register commands rate limit: %w", err)
	}

	tgCommands := make([]tgbotapi.BotCommand, 0, len(commands))
	for _, cmd := range commands {
		tgCommands = append(tgCommands, tgbotapi.BotCommand{
			Command:     cmd.Command,
			Description: cmd.Description,
		})
	}

	if _, err := c.api.Request(tgbotapi.NewSetMyCommands(tgCommands...)); err != nil {
		return translateAPIError("setMyCommands", err)
	}
	c.logger.Info("bot commands registered", "count", len(commands))
	return nil
}

// translateAPIError converts library errors into TelegramAPIError.
func translateAPIError(method string, err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return &TelegramAPIError{Code: apiErr.Code, Description: apiErr.Message}
	}
	var apiErrVal tgbotapi.Error
	if errors.As(err, &apiErrVal) {
		return &TelegramAPIError{Code: apiErrVal.Code, Description: apiErrVal.Message}
	}
	return &TelegramAPIError{Description: method + " failed", Err: err}
}
