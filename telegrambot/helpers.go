package telegrambot

import (
	"os"
	"path/filepath"
	"regexp"
)

var botTokenPattern = regexp.MustCompile(`^[0-9]{3,}:[A-Za-z0-9_-]{30,}$`)

// ensureLogPath creates all parent directories for the log file.
func ensureLogPath(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}

// ValidateBotToken checks the "<bot id>:<secret>" shape issued by BotFather.
func ValidateBotToken(token SecretToken) error {
	if token.Value() == "" {
		return ErrBotTokenRequired
	}
	if !botTokenPattern.MatchString(token.Value()) {
		return ErrInvalidBotToken
	}
	return nil
}
