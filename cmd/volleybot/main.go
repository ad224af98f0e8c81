package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/prilive-com/volleybot/telegrambot"
)

// Configuration comes from the environment, optionally seeded from a .env
// file and a YAML config file:
//
//	BOT_TOKEN=123456:ABC... volleybot -config config.yaml
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("volleybot exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("volleybot", flag.ContinueOnError)
	configPath := fset.String("config", "", "optional YAML config file")
	envFile := fset.String("env-file", ".env", "optional dotenv file loaded before reading the environment")
	if err := fset.Parse(args); err != nil {
		return err
	}

	// Variables already set in the environment win over the file.
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", *envFile, err)
		}
	}

	cfg, err := telegrambot.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	logger, err := telegrambot.NewLogger(telegrambot.ParseLogLevel(cfg.LogLevel), cfg.LogFilePath)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	slog.SetDefault(logger)

	bot, err := telegrambot.New(*cfg, telegrambot.WithLogger(logger))
	if err != nil {
		return err
	}

	logger.Info("volleybot starting",
		"mode", cfg.Mode,
		"port", cfg.Port,
		"version", telegrambot.Version,
	)
	if err := bot.Run(ctx); err != nil {
		return err
	}
	logger.Info("volleybot stopped")
	return nil
}
