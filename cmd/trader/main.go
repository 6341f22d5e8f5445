package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"kraken-trade-bot-go/internal/config"
	"kraken-trade-bot-go/internal/kraken"
	"kraken-trade-bot-go/internal/logger"
	"kraken-trade-bot-go/internal/trader"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize Kraken REST client and verify connectivity
	restClient := kraken.NewRestClient(&cfg.Kraken, log)
	ctx := context.Background()

	status, err := restClient.GetSystemStatus(ctx)
	if err != nil {
		log.Fatal("Failed to connect to Kraken API", zap.Error(err))
	}
	log.Info("Kraken system status", zap.String("status", status.Status))

	// Startup diagnostics: tradable pairs, trading balance, current holdings.
	if pairs, err := restClient.TradablePairs(ctx, cfg.Trading.Quote); err != nil {
		log.Warn("Could not fetch tradable pairs", zap.Error(err))
	} else {
		log.Info("Fetched tradable pairs",
			zap.String("quote", cfg.Trading.Quote),
			zap.Int("count", len(pairs)),
		)
	}

	if balances, err := restClient.GetBalance(ctx); err != nil {
		log.Warn("Could not fetch account balance", zap.Error(err))
	} else {
		log.Info("Trading balance",
			zap.String("asset", cfg.Trading.Quote),
			zap.Float64("amount", balances[cfg.Trading.Quote]),
		)
		holdings := make(map[string]float64)
		for asset, amount := range balances {
			// Skip dust so the startup log stays readable.
			if amount > 0.0001 {
				holdings[asset] = amount
			}
		}
		log.Info("Current assets", zap.Any("holdings", holdings))
	}

	// Restore the position ledger and open the trade log.
	positions := trader.NewPositionLedger(cfg.Ledger.PositionsPath, log)
	positions.Load()
	trades := trader.NewTradeLedger(cfg.Ledger.TradesPath)

	// Wire up the decision engine and the webhook/status server.
	executor := trader.NewKrakenExecutor(restClient, &cfg.Trading, log)
	engine := trader.NewEngine(log, &cfg, executor, positions, trades)

	apiServer := trader.NewAPIServer(engine, cfg.Server.Port, log)
	apiServer.Start()

	// Setup context for graceful shutdown
	runCtx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Interactive console: 'o' lists open positions, 'q' quits.
	go runConsole(runCtx, cancel, engine)

	<-runCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	log.Info("Bot has been shut down.")
}

// runConsole reads single-letter commands from stdin until the context is
// cancelled or the user confirms quitting.
func runConsole(ctx context.Context, cancel context.CancelFunc, engine *trader.Engine) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Press 'q' to quit, 'o' to see open positions")

	for {
		if !scanner.Scan() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch strings.TrimSpace(scanner.Text()) {
		case "q":
			fmt.Print("Are you sure you want to quit? (y/n) ")
			if scanner.Scan() && strings.EqualFold(strings.TrimSpace(scanner.Text()), "y") {
				cancel()
				return
			}
		case "o":
			positions := engine.OpenPositions()
			if len(positions) == 0 {
				fmt.Println("No open positions")
				continue
			}
			for _, pos := range positions {
				fmt.Printf("%s  %s  entry=%g  opened=%s\n",
					pos.ID, pos.Pair, pos.EntryPrice, pos.OpenedAt.Format(time.RFC3339))
			}
		}
	}
}
