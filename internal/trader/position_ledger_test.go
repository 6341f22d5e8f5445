package trader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPositionLedger_AddFindRemove(t *testing.T) {
	// Arrange
	ledger := NewPositionLedger(filepath.Join(t.TempDir(), "opentrades.json"), zap.NewNop())
	pos := OpenPosition{ID: "id-1", Pair: "DOTUSDT", EntryPrice: 9.38, OpenedAt: time.Now().UTC()}

	// Act & Assert
	assert.NoError(t, ledger.Add(pos))

	found, ok := ledger.Find("DOTUSDT")
	assert.True(t, ok)
	assert.Equal(t, pos, found)

	// A second position for the same pair is rejected
	err := ledger.Add(OpenPosition{ID: "id-2", Pair: "DOTUSDT", EntryPrice: 10})
	assert.Error(t, err)
	assert.Len(t, ledger.List(), 1)

	ledger.Remove("id-1")
	_, ok = ledger.Find("DOTUSDT")
	assert.False(t, ok)
	assert.Empty(t, ledger.List())
}

func TestPositionLedger_SnapshotRoundTrip(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "opentrades.json")
	ledger := NewPositionLedger(path, zap.NewNop())

	openedA := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	openedB := time.Date(2024, 2, 15, 12, 30, 0, 0, time.UTC)
	assert.NoError(t, ledger.Add(OpenPosition{ID: "a", Pair: "ABCUSDT", EntryPrice: 2.0, OpenedAt: openedA}))
	assert.NoError(t, ledger.Add(OpenPosition{ID: "b", Pair: "XYZUSDT", EntryPrice: 0.05, OpenedAt: openedB}))

	// Act
	assert.NoError(t, ledger.Persist())
	reloaded := NewPositionLedger(path, zap.NewNop())
	reloaded.Load()

	// Assert
	assert.Equal(t, ledger.List(), reloaded.List())
}

func TestPositionLedger_LoadMissingFile(t *testing.T) {
	ledger := NewPositionLedger(filepath.Join(t.TempDir(), "does-not-exist.json"), zap.NewNop())

	ledger.Load()

	assert.Empty(t, ledger.List())
}

func TestPositionLedger_LoadCorruptFile(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "opentrades.json")
	assert.NoError(t, os.WriteFile(path, []byte("this is not json"), 0o644))
	ledger := NewPositionLedger(path, zap.NewNop())

	// Act
	ledger.Load()

	// Assert: corrupt state degrades to an empty set, never a crash.
	assert.Empty(t, ledger.List())
}

func TestPositionLedger_PersistFailureReturnsError(t *testing.T) {
	// Arrange: the snapshot path sits below a regular file, so the write
	// fails no matter which uid runs the tests.
	blocker := filepath.Join(t.TempDir(), "blocker")
	assert.NoError(t, os.WriteFile(blocker, []byte{}, 0o644))
	ledger := NewPositionLedger(filepath.Join(blocker, "opentrades.json"), zap.NewNop())
	assert.NoError(t, ledger.Add(OpenPosition{ID: "a", Pair: "ABCUSDT", EntryPrice: 2.0, OpenedAt: time.Now().UTC()}))

	// Act
	err := ledger.Persist()

	// Assert: the failure is reported; the in-memory set is untouched.
	assert.Error(t, err)
	assert.Len(t, ledger.List(), 1)
}

func TestPositionLedger_PersistCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "opentrades.json")
	ledger := NewPositionLedger(path, zap.NewNop())
	assert.NoError(t, ledger.Add(OpenPosition{ID: "a", Pair: "ABCUSDT", EntryPrice: 2.0, OpenedAt: time.Now().UTC()}))

	assert.NoError(t, ledger.Persist())

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
