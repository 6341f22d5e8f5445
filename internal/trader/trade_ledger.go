package trader

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CompletedTrade is one closed round trip. Records are immutable once written.
type CompletedTrade struct {
	ID         string
	Pair       string
	OpenedAt   time.Time
	EntryPrice float64
	ClosedAt   time.Time
	ExitPrice  float64
}

// TradeLedger is the append-only record of completed trades. Each record is
// one CSV line: id,pair,openedAt,entryPrice,closedAt,exitPrice. Prior records
// are never rewritten or reordered.
type TradeLedger struct {
	mu   sync.Mutex
	path string
}

// NewTradeLedger creates a ledger backed by the given append file.
func NewTradeLedger(path string) *TradeLedger {
	return &TradeLedger{path: path}
}

// Append durably appends one completed trade.
func (l *TradeLedger) Append(trade CompletedTrade) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open trade log: %w", err)
	}
	defer f.Close()

	line := strings.Join([]string{
		trade.ID,
		trade.Pair,
		trade.OpenedAt.UTC().Format(time.RFC3339),
		strconv.FormatFloat(trade.EntryPrice, 'f', -1, 64),
		trade.ClosedAt.UTC().Format(time.RFC3339),
		strconv.FormatFloat(trade.ExitPrice, 'f', -1, 64),
	}, ",")

	if _, err := fmt.Fprintln(f, line); err != nil {
		return fmt.Errorf("failed to append trade record: %w", err)
	}
	return nil
}

// ReadAll returns every recorded trade in append order. Unparseable lines are
// skipped rather than failing the whole read.
func (l *TradeLedger) ReadAll() ([]CompletedTrade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open trade log: %w", err)
	}
	defer f.Close()

	var trades []CompletedTrade
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		trade, err := parseTradeLine(scanner.Text())
		if err != nil {
			continue
		}
		trades = append(trades, trade)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trade log: %w", err)
	}
	return trades, nil
}

func parseTradeLine(line string) (CompletedTrade, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 6 {
		return CompletedTrade{}, fmt.Errorf("expected 6 fields, got %d", len(fields))
	}

	openedAt, err := time.Parse(time.RFC3339, fields[2])
	if err != nil {
		return CompletedTrade{}, err
	}
	entryPrice, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return CompletedTrade{}, err
	}
	closedAt, err := time.Parse(time.RFC3339, fields[4])
	if err != nil {
		return CompletedTrade{}, err
	}
	exitPrice, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return CompletedTrade{}, err
	}

	return CompletedTrade{
		ID:         fields[0],
		Pair:       fields[1],
		OpenedAt:   openedAt,
		EntryPrice: entryPrice,
		ClosedAt:   closedAt,
		ExitPrice:  exitPrice,
	}, nil
}
