package main

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"kraken-trade-bot-go/internal/config"
	"kraken-trade-bot-go/internal/trader"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log    *zap.Logger
	cfg    *config.Config
	trades *trader.TradeLedger
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, cfg *config.Config) *APIHandler {
	return &APIHandler{
		log:    log,
		cfg:    cfg,
		trades: trader.NewTradeLedger(cfg.Ledger.TradesPath),
	}
}

// PositionsHandler returns the currently open positions. The snapshot file is
// re-read on every request so the dashboard never holds stale state.
func (h *APIHandler) PositionsHandler(w http.ResponseWriter, r *http.Request) {
	positions := trader.NewPositionLedger(h.cfg.Ledger.PositionsPath, h.log)
	positions.Load()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(positions.List())
}

// TradesHandler returns all completed trades, most recent first.
func (h *APIHandler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	trades, err := h.trades.ReadAll()
	if err != nil {
		h.log.Error("Failed to read trade log", zap.Error(err))
		http.Error(w, "Failed to get trades", http.StatusInternalServerError)
		return
	}

	// Reverse append order
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trades)
}

// StatsDetail holds calculated statistics for a given period.
type StatsDetail struct {
	TotalTrades      int     `json:"total_trades"`
	ProfitableTrades int     `json:"profitable_trades"`
	WinRate          float64 `json:"win_rate"`
	TotalProfit      float64 `json:"total_profit"`
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	Since24h StatsDetail `json:"since_24h"`
	AllTime  StatsDetail `json:"all_time"`
}

// StatisticsHandler calculates and returns trading statistics. Profit per
// trade is estimated from the configured notional and the entry/exit prices,
// since every entry allocates the same fiat amount.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	trades, err := h.trades.ReadAll()
	if err != nil {
		h.log.Error("Failed to read trade log for statistics", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	since24h := now.Add(-24 * time.Hour)

	stats24h := StatsDetail{}
	statsAllTime := StatsDetail{}

	for _, trade := range trades {
		profit := 0.0
		if trade.EntryPrice > 0 {
			profit = h.cfg.Trading.Notional * (trade.ExitPrice/trade.EntryPrice - 1)
		}

		// Calculate for all time
		statsAllTime.TotalTrades++
		if profit > 0 {
			statsAllTime.ProfitableTrades++
		}
		statsAllTime.TotalProfit += profit

		// Calculate for last 24 hours
		if trade.ClosedAt.After(since24h) {
			stats24h.TotalTrades++
			if profit > 0 {
				stats24h.ProfitableTrades++
			}
			stats24h.TotalProfit += profit
		}
	}

	if statsAllTime.TotalTrades > 0 {
		statsAllTime.WinRate = float64(statsAllTime.ProfitableTrades) / float64(statsAllTime.TotalTrades)
	}
	if stats24h.TotalTrades > 0 {
		stats24h.WinRate = float64(stats24h.ProfitableTrades) / float64(stats24h.TotalTrades)
	}

	response := StatisticsResponse{
		Since24h: stats24h,
		AllTime:  statsAllTime,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
