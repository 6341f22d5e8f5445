package trader

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"kraken-trade-bot-go/internal/config"
)

// setupAPIServer builds an APIServer over a real engine with a counting
// executor, exposed through an httptest server.
func setupAPIServer(t *testing.T) (*httptest.Server, *countingExecutor, *PositionLedger) {
	dir := t.TempDir()
	positions := NewPositionLedger(filepath.Join(dir, "opentrades.json"), zap.NewNop())
	trades := NewTradeLedger(filepath.Join(dir, "completedtrades.csv"))
	exec := &countingExecutor{}
	cfg := &config.Config{Trading: config.Trading{Quote: "USDT", Notional: 100}}
	engine := NewEngine(zap.NewNop(), cfg, exec, positions, trades)

	apiServer := NewAPIServer(engine, 0, zap.NewNop())
	server := httptest.NewServer(apiServer.server.Handler)
	t.Cleanup(server.Close)

	return server, exec, positions
}

func TestWebhook_ValidSignal(t *testing.T) {
	// Arrange
	server, exec, positions := setupAPIServer(t)
	payload := "ABCUSDT - BUY - Price = 2.00 - Alert Time = 2024-01-01T00:00:00Z"

	// Act
	resp, err := http.Post(server.URL+"/webhook", "text/plain", strings.NewReader(payload))

	// Assert
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The decision runs asynchronously after the webhook is acknowledged.
	assert.Eventually(t, func() bool {
		_, ok := positions.Find("ABCUSDT")
		return ok && exec.buyCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWebhook_MalformedSignal(t *testing.T) {
	// Arrange
	server, exec, positions := setupAPIServer(t)

	// Act
	resp, err := http.Post(server.URL+"/webhook", "text/plain", strings.NewReader("not a signal"))

	// Assert: dropped with an error status, no state change.
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, positions.List())
	assert.Equal(t, 0, exec.buyCount())
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	server, _, _ := setupAPIServer(t)

	resp, err := http.Get(server.URL + "/webhook")

	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	// Arrange
	server, _, positions := setupAPIServer(t)
	assert.NoError(t, positions.Add(OpenPosition{ID: "p1", Pair: "ABCUSDT", EntryPrice: 2.0, OpenedAt: time.Now().UTC()}))

	// Act
	resp, err := http.Get(server.URL + "/status")

	// Assert
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var status struct {
		UUID          string `json:"uuid"`
		Name          string `json:"name"`
		StartTime     string `json:"start_time"`
		Uptime        string `json:"uptime"`
		OpenPositions int    `json:"open_positions"`
	}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.NotEmpty(t, status.UUID)
	assert.Equal(t, "kraken-trade-bot", status.Name)
	assert.NotEmpty(t, status.StartTime)
	assert.Equal(t, 1, status.OpenPositions)
}

func TestPositionsEndpoint(t *testing.T) {
	// Arrange
	server, _, positions := setupAPIServer(t)
	assert.NoError(t, positions.Add(OpenPosition{ID: "p1", Pair: "ABCUSDT", EntryPrice: 2.0, OpenedAt: time.Now().UTC()}))

	// Act
	resp, err := http.Get(server.URL + "/positions")

	// Assert
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := setupAPIServer(t)

	resp, err := http.Get(server.URL + "/health")

	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
