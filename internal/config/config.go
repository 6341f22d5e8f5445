package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Kraken  Kraken  `mapstructure:"kraken"`
	Trading Trading `mapstructure:"trading"`
	Logger  Logger  `mapstructure:"logger"`
	Server  Server  `mapstructure:"server"`
	Ledger  Ledger  `mapstructure:"ledger"`
}

// Kraken holds the configuration for the Kraken API.
type Kraken struct {
	ApiKey         string  `mapstructure:"apiKey"`
	SecretKey      string  `mapstructure:"secretKey"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Server holds the configuration for the webhook/status server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Ledger holds the file paths for the persisted trading state.
type Ledger struct {
	PositionsPath string `mapstructure:"positions_path"`
	TradesPath    string `mapstructure:"trades_path"`
}

// Trading holds the configuration for the trading logic.
//
// OrderPairAliases maps the pair names used by the alerting source to the
// names Kraken expects on AddOrder (e.g. BTCUSDT -> XBTUSDT). BalanceAliases
// maps a base asset to the key Kraken uses in Balance results (e.g. BTC -> XXBT).
type Trading struct {
	Quote            string            `mapstructure:"quote"`
	Notional         float64           `mapstructure:"notional"`
	OrderPairAliases map[string]string `mapstructure:"order_pair_aliases"`
	BalanceAliases   map[string]string `mapstructure:"balance_aliases"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("kraken.rate_limit", 1) // requests per second, Kraken is strict
	viper.SetDefault("kraken.rate_limit_burst", 3)
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("trading.quote", "USDT")
	viper.SetDefault("ledger.positions_path", "data/opentrades.json")
	viper.SetDefault("ledger.trades_path", "data/completedtrades.csv")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
