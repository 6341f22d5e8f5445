package trader

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"kraken-trade-bot-go/internal/config"
	"kraken-trade-bot-go/internal/kraken"
)

// OrderExecutor translates a pair and side into an exchange order call.
type OrderExecutor interface {
	// Buy places a market buy for the given volume of the base asset.
	Buy(ctx context.Context, pair string, volume float64) error

	// Sell liquidates the full base-asset holding for the pair.
	Sell(ctx context.Context, pair string) error

	// Balances returns the account holdings keyed by asset.
	Balances(ctx context.Context) (map[string]float64, error)
}

// KrakenExecutor executes orders against the Kraken REST API.
// It implements the OrderExecutor interface.
type KrakenExecutor struct {
	client  kraken.RestClientInterface
	trading *config.Trading
	logger  *zap.Logger
}

var _ OrderExecutor = (*KrakenExecutor)(nil)

// NewKrakenExecutor creates a new executor.
func NewKrakenExecutor(client kraken.RestClientInterface, trading *config.Trading, logger *zap.Logger) *KrakenExecutor {
	return &KrakenExecutor{
		client:  client,
		trading: trading,
		logger:  logger.Named("executor"),
	}
}

// orderPair maps an alerting-source pair name to the name Kraken expects
// on AddOrder (e.g. BTCUSDT -> XBTUSDT).
func (e *KrakenExecutor) orderPair(pair string) string {
	if alias, ok := e.trading.OrderPairAliases[pair]; ok {
		return alias
	}
	return pair
}

// baseAsset strips the quote suffix from a pair name.
func (e *KrakenExecutor) baseAsset(pair string) string {
	if base, found := strings.CutSuffix(pair, e.trading.Quote); found && base != "" {
		return base
	}
	return pair
}

// balanceKey maps a base asset to the key Kraken uses in Balance results
// (e.g. BTC -> XXBT).
func (e *KrakenExecutor) balanceKey(base string) string {
	if alias, ok := e.trading.BalanceAliases[base]; ok {
		return alias
	}
	return base
}

// Buy places a market buy order.
func (e *KrakenExecutor) Buy(ctx context.Context, pair string, volume float64) error {
	orderPair := e.orderPair(pair)
	if _, err := e.client.AddOrder(ctx, orderPair, kraken.OrderSideBuy, volume); err != nil {
		return fmt.Errorf("buy order for %s failed: %w", pair, err)
	}
	e.logger.Info("Buy order executed",
		zap.String("pair", pair),
		zap.String("order_pair", orderPair),
		zap.Float64("volume", volume),
	)
	return nil
}

// Sell looks up the current base-asset balance and sells all of it.
// A zero or missing balance is treated as a failure so the position is kept.
func (e *KrakenExecutor) Sell(ctx context.Context, pair string) error {
	base := e.baseAsset(pair)
	key := e.balanceKey(base)

	balances, err := e.client.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("could not get balance before selling %s: %w", pair, err)
	}

	volume, ok := balances[key]
	if !ok || volume <= 0 {
		return fmt.Errorf("no %s balance available to sell for %s", key, pair)
	}

	orderPair := e.orderPair(pair)
	if _, err := e.client.AddOrder(ctx, orderPair, kraken.OrderSideSell, volume); err != nil {
		return fmt.Errorf("sell order for %s failed: %w", pair, err)
	}
	e.logger.Info("Sell order executed",
		zap.String("pair", pair),
		zap.String("order_pair", orderPair),
		zap.Float64("volume", volume),
	)
	return nil
}

// Balances returns the account holdings.
func (e *KrakenExecutor) Balances(ctx context.Context) (map[string]float64, error) {
	return e.client.GetBalance(ctx)
}
