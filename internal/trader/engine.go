package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kraken-trade-bot-go/internal/config"
)

// Engine is the decision core of the bot. Given a parsed signal it applies
// the entry/exit policy against the position ledger, invokes the order
// executor and records the outcome.
//
// Per pair the engine is a two-state machine: FLAT (no open position) and
// OPEN (exactly one). Signals for the same pair are serialized with a
// per-pair mutex because the check-then-act sequence on the position ledger
// must not interleave; signals for different pairs run fully in parallel.
type Engine struct {
	logger    *zap.Logger
	cfg       *config.Config
	executor  OrderExecutor
	positions *PositionLedger
	trades    *TradeLedger

	mu        sync.Mutex
	pairLocks map[string]*sync.Mutex

	now func() time.Time
}

// NewEngine creates a new decision engine.
func NewEngine(logger *zap.Logger, cfg *config.Config, executor OrderExecutor, positions *PositionLedger, trades *TradeLedger) *Engine {
	return &Engine{
		logger:    logger.Named("engine"),
		cfg:       cfg,
		executor:  executor,
		positions: positions,
		trades:    trades,
		pairLocks: make(map[string]*sync.Mutex),
		now:       time.Now,
	}
}

// pairLock returns the mutex for a pair, creating it on first use.
func (e *Engine) pairLock(pair string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.pairLocks[pair]
	if !ok {
		lock = &sync.Mutex{}
		e.pairLocks[pair] = lock
	}
	return lock
}

// OnSignal processes one signal to completion. It is safe to call from
// multiple goroutines. Policy no-ops (duplicate entry, sell without an open
// position, unprofitable exit) are logged and return nil; real failures are
// returned so the caller decides whether to ignore them.
func (e *Engine) OnSignal(ctx context.Context, sig Signal) error {
	lock := e.pairLock(sig.Pair)
	lock.Lock()
	defer lock.Unlock()

	switch sig.Action {
	case ActionBuy:
		return e.handleBuy(ctx, sig)
	case ActionSell:
		return e.handleSell(ctx, sig)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrMalformedSignal, sig.Action)
	}
}

func (e *Engine) handleBuy(ctx context.Context, sig Signal) error {
	l := e.logger.With(zap.String("pair", sig.Pair), zap.Float64("price", sig.Price))

	if _, open := e.positions.Find(sig.Pair); open {
		l.Info("Pair already in open positions, skipping buy")
		return nil
	}

	if sig.Price <= 0 {
		return fmt.Errorf("%w: non-positive price %v", ErrMalformedSignal, sig.Price)
	}
	volume := e.cfg.Trading.Notional / sig.Price

	// Buy attempts are not retried; on failure the pair stays FLAT and the
	// next signal gets a fresh chance.
	if err := e.executor.Buy(ctx, sig.Pair, volume); err != nil {
		l.Error("Buy order failed", zap.Error(err))
		return err
	}

	pos := OpenPosition{
		ID:         uuid.NewString(),
		Pair:       sig.Pair,
		EntryPrice: sig.Price,
		OpenedAt:   e.now().UTC(),
	}
	if err := e.positions.Add(pos); err != nil {
		// Cannot happen while the pair lock is held; log loudly if it does.
		l.Error("Failed to record open position", zap.Error(err))
		return err
	}

	// In-memory state stays authoritative if the snapshot write fails.
	if err := e.positions.Persist(); err != nil {
		l.Warn("Failed to persist open positions", zap.Error(err))
	}

	l.Info("Buy order executed successfully",
		zap.String("position_id", pos.ID),
		zap.Float64("volume", volume),
	)
	return nil
}

func (e *Engine) handleSell(ctx context.Context, sig Signal) error {
	l := e.logger.With(zap.String("pair", sig.Pair), zap.Float64("price", sig.Price))

	pos, open := e.positions.Find(sig.Pair)
	if !open {
		l.Info("Pair is not in the list of open positions, skipping sell")
		return nil
	}

	// Exit gate: only sell strictly above the entry price. Long-only bull
	// market policy; there is no stop-loss and no timeout, a losing position
	// waits indefinitely.
	if sig.Price/pos.EntryPrice-1 <= 0 {
		l.Info("Waiting for a better price",
			zap.String("position_id", pos.ID),
			zap.Float64("entry_price", pos.EntryPrice),
		)
		return nil
	}

	// Ledger mutations only happen after the exchange confirms the sell.
	if err := e.executor.Sell(ctx, sig.Pair); err != nil {
		l.Error("Sell order failed", zap.Error(err))
		return err
	}

	e.positions.Remove(pos.ID)
	if err := e.positions.Persist(); err != nil {
		l.Warn("Failed to persist open positions", zap.Error(err))
	}

	trade := CompletedTrade{
		ID:         pos.ID,
		Pair:       pos.Pair,
		OpenedAt:   pos.OpenedAt,
		EntryPrice: pos.EntryPrice,
		ClosedAt:   e.now().UTC(),
		ExitPrice:  sig.Price,
	}
	// The trade is economically final once the exchange confirmed the sell;
	// a failed append is bookkeeping loss, not a rollback.
	if err := e.trades.Append(trade); err != nil {
		l.Error("Failed to append completed trade", zap.Error(err))
	}

	l.Info("Sell order executed successfully",
		zap.String("position_id", pos.ID),
		zap.Float64("entry_price", pos.EntryPrice),
	)
	return nil
}

// OpenPositions returns a snapshot of the currently open positions.
func (e *Engine) OpenPositions() []OpenPosition {
	return e.positions.List()
}
