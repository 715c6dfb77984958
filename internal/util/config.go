package util

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	AllowedOrigins        []string      `mapstructure:"ALLOWED_ORIGINS"`
	ListenAddress         string        `mapstructure:"LISTEN_ADDRESS"`
	DatabaseURL           string        `mapstructure:"DATABASE_URL"`
	RedisServerAddress    string        `mapstructure:"REDIS_SERVER_ADDRESS"`
	EventBusAddress       string        `mapstructure:"EVENT_BUS_ADDRESS"`
	TokenSecretKey        string        `mapstructure:"TOKEN_SECRET_KEY"`
	AccessTokenDuration   time.Duration `mapstructure:"ACCESS_TOKEN_DURATION"`
	BidRateLimitCount     int64         `mapstructure:"BID_RATE_LIMIT_COUNT"`
	BidRateWindow         time.Duration `mapstructure:"BID_RATE_WINDOW"`
	ConnectionInflightCap int           `mapstructure:"CONNECTION_INFLIGHT_CAP"`
	SchedulerTick         time.Duration `mapstructure:"SCHEDULER_TICK"`
	MaxBidAmount          string        `mapstructure:"MAX_BID_AMOUNT"`
	SessionTTL            time.Duration `mapstructure:"SESSION_TTL"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	// Set defaults for non-sensitive config
	viper.SetDefault("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	viper.SetDefault("LISTEN_ADDRESS", "0.0.0.0:8080")
	viper.SetDefault("ACCESS_TOKEN_DURATION", "24h")
	viper.SetDefault("BID_RATE_LIMIT_COUNT", 5)
	viper.SetDefault("BID_RATE_WINDOW", "30s")
	viper.SetDefault("CONNECTION_INFLIGHT_CAP", 10)
	viper.SetDefault("SCHEDULER_TICK", "30s")
	viper.SetDefault("MAX_BID_AMOUNT", "100000000")
	viper.SetDefault("SESSION_TTL", "2h")

	// Prefer environment variables over config file
	viper.AutomaticEnv()

	// Load config file
	viper.SetConfigFile(path)
	if err = viper.ReadInConfig(); err != nil {
		return
	}

	// Unmarshal config into struct
	err = viper.UnmarshalExact(&config)
	if err != nil {
		return
	}

	// Validate required configuration
	err = validateConfig(config)
	return
}

func validateConfig(config Config) error {
	if config.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if config.RedisServerAddress == "" {
		return fmt.Errorf("REDIS_SERVER_ADDRESS is required")
	}
	if config.EventBusAddress == "" {
		return fmt.Errorf("EVENT_BUS_ADDRESS is required")
	}
	if config.TokenSecretKey == "" {
		return fmt.Errorf("TOKEN_SECRET_KEY is required")
	}
	if _, err := decimal.NewFromString(config.MaxBidAmount); err != nil {
		return fmt.Errorf("MAX_BID_AMOUNT must be a decimal number: %w", err)
	}

	return nil
}

// MaxBid returns the configured bid ceiling as a decimal. LoadConfig has
// already validated the string form.
func (c Config) MaxBid() decimal.Decimal {
	max, _ := decimal.NewFromString(c.MaxBidAmount)
	return max
}
