package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"gridscalper/analysis"
	"gridscalper/api"
	"gridscalper/bot"
	"gridscalper/config"
	"gridscalper/logger"
	"gridscalper/market"
	"gridscalper/notify"
	"gridscalper/store"
	"gridscalper/trader"
)

func main() {
	// Load environment variables from .env file if present (for local/dev runs)
	// In Docker Compose, variables are injected by the runtime and this is harmless.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("❌ Invalid configuration: %v", err)
	}

	if err := logger.Init(&logger.Config{Level: cfg.LogLevel}); err != nil {
		logger.Fatalf("❌ Failed to initialize logger: %v", err)
	}

	logger.Info("╔════════════════════════════════════════════╗")
	logger.Info("║        🤖 Grid Scalper Trading Bot         ║")
	logger.Info("╚════════════════════════════════════════════╝")
	logger.Infof("📋 Symbol=%s mode=%s grid=[%.2f, %.2f]/%d leverage=%dx",
		cfg.Symbol, cfg.Mode, cfg.StartPrice, cfg.EndPrice, cfg.GridSize, cfg.Leverage)

	st, err := store.New(cfg.DBPath)
	if err != nil {
		logger.Fatalf("❌ Failed to initialize database: %v", err)
	}
	defer st.Close()

	exchange := buildExchange(cfg)
	notifier := notify.FromConfig(cfg.TelegramBotToken, cfg.TelegramChatID)

	var analyzer *analysis.Analyzer
	if cfg.EnableMarketPositionLogic {
		analyzer = analysis.NewAnalyzer(exchange, cfg.AnalysisKlineInterval, cfg.AnalysisKlineLimit, cfg.AnalysisMaxRetries)
	}

	stream := market.NewPriceStream(cfg.Symbol)
	if err := stream.Connect(); err != nil {
		logger.Warnf("⚠️ Price stream unavailable, using REST only: %v", err)
		stream = nil
	} else {
		defer stream.Close()
	}

	b := bot.New(cfg, exchange, analyzer, stream, st, notifier)

	var apiServer *api.Server
	if cfg.APIServerPort > 0 {
		apiServer = api.NewServer(b, st, cfg.APIServerPort)
		go func() {
			if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("❌ API server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("⚠️ Received %s, shutting down...", sig)
		cancel()
	}()

	if err := b.Run(ctx); err != nil {
		logger.Errorf("❌ Bot stopped with error: %v", err)
	}

	if apiServer != nil {
		if err := apiServer.Shutdown(); err != nil {
			logger.Errorf("❌ API server shutdown failed: %v", err)
		}
	}

	logger.Info("👋 Shutdown complete")
}

// buildExchange creates the live or simulated exchange and applies account
// setup (position mode, leverage) where it matters.
func buildExchange(cfg *config.Config) trader.Trader {
	if cfg.PaperTrading {
		logger.Info("🧪 Paper trading enabled: orders are simulated against live prices")
		// Price data comes from the keyless public API.
		return trader.NewPaperTrader(trader.NewFuturesTrader("", "", cfg.Testnet))
	}

	ft := trader.NewFuturesTrader(cfg.BinanceAPIKey, cfg.BinanceAPISecret, cfg.Testnet)
	if err := ft.SetPositionMode(cfg.DualSidePosition); err != nil {
		logger.Fatalf("❌ Failed to set position mode: %v", err)
	}
	if err := ft.SetLeverage(cfg.Symbol, cfg.Leverage); err != nil {
		logger.Fatalf("❌ Failed to set leverage: %v", err)
	}
	return ft
}
