package trader

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// OpenPosition is an unresolved long entry awaiting a profitable exit.
// Positions are never mutated in place; they are only created and removed.
type OpenPosition struct {
	ID         string    `json:"id"`
	Pair       string    `json:"pair"`
	EntryPrice float64   `json:"entry_price"`
	OpenedAt   time.Time `json:"opened_at"`
}

// PositionLedger owns the set of currently open positions. It enforces the
// one-position-per-pair rule and persists the whole set as a JSON snapshot.
// The set is expected to stay small, so a full-file overwrite is fine.
type PositionLedger struct {
	mu        sync.Mutex
	path      string
	positions map[string]OpenPosition // keyed by pair
	logger    *zap.Logger
}

// NewPositionLedger creates an empty ledger backed by the given snapshot file.
func NewPositionLedger(path string, logger *zap.Logger) *PositionLedger {
	return &PositionLedger{
		path:      path,
		positions: make(map[string]OpenPosition),
		logger:    logger,
	}
}

// Load restores the snapshot from disk. A missing or corrupt file is not
// fatal: the ledger starts empty and the bot keeps running.
func (l *PositionLedger) Load() {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("Could not read open positions file, starting empty",
				zap.String("path", l.path), zap.Error(err))
		}
		return
	}

	var positions []OpenPosition
	if err := json.Unmarshal(data, &positions); err != nil {
		l.logger.Warn("Open positions file is corrupt, starting empty",
			zap.String("path", l.path), zap.Error(err))
		return
	}

	for _, pos := range positions {
		l.positions[pos.Pair] = pos
	}
	l.logger.Info("Loaded open positions", zap.Int("count", len(l.positions)))
}

// Persist writes the full position set to the snapshot file. The lock is
// held across the write so concurrent persists cannot interleave.
func (l *PositionLedger) Persist() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(l.listLocked())
	if err != nil {
		return fmt.Errorf("failed to encode open positions: %w", err)
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write open positions file: %w", err)
	}
	return nil
}

// Find returns the open position for a pair, if any.
func (l *PositionLedger) Find(pair string) (OpenPosition, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[pair]
	return pos, ok
}

// Add inserts a position. Adding a second position for the same pair is a
// programming error and is rejected.
func (l *PositionLedger) Add(pos OpenPosition) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.positions[pos.Pair]; exists {
		return fmt.Errorf("position already open for pair %s", pos.Pair)
	}
	l.positions[pos.Pair] = pos
	return nil
}

// Remove deletes the position with the given id.
func (l *PositionLedger) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for pair, pos := range l.positions {
		if pos.ID == id {
			delete(l.positions, pair)
			return
		}
	}
}

// List returns a copy of all open positions, ordered by pair.
func (l *PositionLedger) List() []OpenPosition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listLocked()
}

func (l *PositionLedger) listLocked() []OpenPosition {
	positions := make([]OpenPosition, 0, len(l.positions))
	for _, pos := range l.positions {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Pair < positions[j].Pair
	})
	return positions
}
