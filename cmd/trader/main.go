package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bitget-trade-bot-go/internal/config"
	"bitget-trade-bot-go/internal/engine"
	"bitget-trade-bot-go/internal/exchange"
	"bitget-trade-bot-go/internal/logger"
	"bitget-trade-bot-go/internal/marketdata"
	"bitget-trade-bot-go/internal/notify"
	"bitget-trade-bot-go/internal/report"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Credentials live in .env locally; missing file is fine in containers
	// where the environment is injected directly.
	_ = godotenv.Load()

	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize the report store
	store, err := report.NewStore(cfg.Database.DSN, log)
	if err != nil {
		log.Fatal("Failed to open report database", zap.Error(err))
	}
	log.Info("Report database ready.")

	// Initialize the exchange client
	var client exchange.Client = exchange.NewRestClient(&cfg.Exchange, log)
	if cfg.Trading.DryRun {
		client = exchange.NewSimClient(client, log)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := client.GetServerTime(ctx); err != nil {
		log.Fatal("Failed to connect to exchange API", zap.Error(err))
	}
	log.Info("Successfully connected to exchange API.")

	// Event sinks: durable records always, Telegram when configured.
	sinks := []engine.Sink{store}
	if cfg.Telegram.Enabled {
		sinks = append(sinks, notify.NewTelegram(cfg.Telegram, log))
		log.Info("Telegram notifications enabled")
	}
	reporter := engine.NewReporter(log, 256, sinks...)

	adapter := marketdata.NewAdapter(cfg.Exchange.WsURL, client, reporter, log)

	tradeEngine, err := engine.NewEngine(log, &cfg, client, adapter, reporter)
	if err != nil {
		log.Fatal("Failed to build trading engine", zap.Error(err))
	}

	// Graceful shutdown on SIGINT/SIGTERM
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	tradeEngine.Run(ctx)

	log.Info("Bot has been shut down.")
}
