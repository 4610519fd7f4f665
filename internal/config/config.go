package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/brainsait/reconciler/internal/domain"
	"github.com/brainsait/reconciler/internal/fraud"
)

type Config struct {
	Env            string `validate:"oneof=development staging production test"`
	Server         ServerConfig
	Database       DatabaseConfig
	Logging        LoggingConfig
	Redis          RedisConfig
	Reconciliation ReconciliationConfig
	Gateways       []GatewayConfig `validate:"dive"`
	Fraud          fraud.Config    `validate:"-"`
	GeoPrefixes    map[string]string
}

type ServerConfig struct {
	Port            string        `validate:"required,numeric"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	IdleTimeout     time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

type DatabaseConfig struct {
	Path string `validate:"required"`
	// SeedFile is a JSON array of ledger entries loaded into an empty ledger.
	SeedFile string
}

type LoggingConfig struct {
	ServiceName string `validate:"required"`
	Level       string `validate:"oneof=debug info warn error"`
	Format      string `validate:"oneof=console json"`
}

type RedisConfig struct {
	Enabled      bool
	Address      string `validate:"required_if=Enabled true"`
	Password     string
	DB           int `validate:"min=0"`
	PoolSize     int `validate:"min=1"`
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTTL      time.Duration `validate:"gt=0"`
	KeyPrefix    string
}

type ReconciliationConfig struct {
	MatchTimeWindow time.Duration `validate:"gte=0"`
}

// GatewayConfig enables live settlement fetching for one provider.
type GatewayConfig struct {
	Provider  string `validate:"required"`
	BaseURL   string `validate:"required,url"`
	APIKey    string
	Format    string
	Timeout   time.Duration `validate:"gte=0"`
	RateLimit float64       `validate:"gte=0"`
	Burst     int           `validate:"gte=0"`
}

var validate = validator.New()

// Load reads the optional .env file, then RECON_* environment variables.
// Variables already set in the environment win over .env entries.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Env: getEnv("RECON_ENV", "development"),
		Server: ServerConfig{
			Port:            getEnv("RECON_SERVER_PORT", "8080"),
			ReadTimeout:     getEnvDuration("RECON_SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("RECON_SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvDuration("RECON_SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("RECON_SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Path:     getEnv("RECON_DB_PATH", "brainsait-reconciler.db"),
			SeedFile: getEnv("RECON_DB_SEED_FILE", ""),
		},
		Logging: LoggingConfig{
			ServiceName: getEnv("RECON_SERVICE_NAME", "brainsait-reconciler"),
			Level:       getEnv("RECON_LOG_LEVEL", "info"),
			Format:      getEnv("RECON_LOG_FORMAT", "console"),
		},
		Redis: RedisConfig{
			Enabled:      getEnvBool("RECON_REDIS_ENABLED", false),
			Address:      getEnv("RECON_REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnv("RECON_REDIS_PASSWORD", ""),
			DB:           getEnvInt("RECON_REDIS_DB", 0),
			PoolSize:     getEnvInt("RECON_REDIS_POOL_SIZE", 10),
			DialTimeout:  getEnvDuration("RECON_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("RECON_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("RECON_REDIS_WRITE_TIMEOUT", 3*time.Second),
			LockTTL:      getEnvDuration("RECON_REDIS_LOCK_TTL", 5*time.Minute),
			KeyPrefix:    getEnv("RECON_REDIS_KEY_PREFIX", "brainsait:"),
		},
		Reconciliation: ReconciliationConfig{
			MatchTimeWindow: getEnvDuration("RECON_MATCH_TIME_WINDOW", time.Hour),
		},
		Gateways:    loadGateways(),
		Fraud:       loadFraud(),
		GeoPrefixes: getEnvMap("RECON_FRAUD_GEO_PREFIXES"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s failed %q check", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	for _, g := range c.Gateways {
		if !domain.Provider(g.Provider).Valid() {
			return fmt.Errorf("config: gateway provider %q is not supported", g.Provider)
		}
	}
	return validateFraud(c.Fraud)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// loadGateways reads RECON_GATEWAY_<PROVIDER>_URL and friends. Providers
// without a URL stay on the stored feed.
func loadGateways() []GatewayConfig {
	var out []GatewayConfig
	for _, p := range domain.Providers {
		prefix := "RECON_GATEWAY_" + strings.ToUpper(string(p)) + "_"
		base := getEnv(prefix+"URL", "")
		if base == "" {
			continue
		}
		out = append(out, GatewayConfig{
			Provider:  string(p),
			BaseURL:   base,
			APIKey:    getEnv(prefix+"API_KEY", ""),
			Format:    getEnv(prefix+"FORMAT", ""),
			Timeout:   getEnvDuration(prefix+"TIMEOUT", 10*time.Second),
			RateLimit: getEnvFloat(prefix+"RPS", 5),
			Burst:     getEnvInt(prefix+"BURST", 1),
		})
	}
	return out
}

func loadFraud() fraud.Config {
	d := fraud.DefaultConfig()
	return fraud.Config{
		HourlyCountLimit:    getEnvInt("RECON_FRAUD_HOURLY_COUNT_LIMIT", d.HourlyCountLimit),
		DailyCountLimit:     getEnvInt("RECON_FRAUD_DAILY_COUNT_LIMIT", d.DailyCountLimit),
		HourlyAmountLimit:   getEnvDecimal("RECON_FRAUD_HOURLY_AMOUNT_LIMIT", d.HourlyAmountLimit),
		DailyAmountLimit:    getEnvDecimal("RECON_FRAUD_DAILY_AMOUNT_LIMIT", d.DailyAmountLimit),
		HighAmount:          getEnvDecimal("RECON_FRAUD_HIGH_AMOUNT", d.HighAmount),
		SuspiciousAmounts:   getEnvDecimals("RECON_FRAUD_SUSPICIOUS_AMOUNTS", d.SuspiciousAmounts),
		NewCustomerAmount:   getEnvDecimal("RECON_FRAUD_NEW_CUSTOMER_AMOUNT", d.NewCustomerAmount),
		CardTestingLookback: getEnvInt("RECON_FRAUD_CARD_TESTING_LOOKBACK", d.CardTestingLookback),
		CardTestingMinSmall: getEnvInt("RECON_FRAUD_CARD_TESTING_MIN_SMALL", d.CardTestingMinSmall),
		CardTestingSmall:    getEnvDecimal("RECON_FRAUD_CARD_TESTING_SMALL", d.CardTestingSmall),
		RestrictedCountries: getEnvSlice("RECON_FRAUD_RESTRICTED_COUNTRIES", d.RestrictedCountries),
		HighRiskRegions:     getEnvSlice("RECON_FRAUD_HIGH_RISK_REGIONS", d.HighRiskRegions),
		HistoryLookback:     getEnvDuration("RECON_FRAUD_HISTORY_LOOKBACK", d.HistoryLookback),
	}
}

func validateFraud(f fraud.Config) error {
	switch {
	case f.HourlyCountLimit < 0 || f.DailyCountLimit < 0:
		return fmt.Errorf("config: fraud count limits must not be negative")
	case f.HourlyAmountLimit.IsNegative() || f.DailyAmountLimit.IsNegative():
		return fmt.Errorf("config: fraud amount limits must not be negative")
	case f.HighAmount.IsNegative() || f.NewCustomerAmount.IsNegative() || f.CardTestingSmall.IsNegative():
		return fmt.Errorf("config: fraud amount thresholds must not be negative")
	case f.CardTestingLookback < 1 || f.CardTestingMinSmall < 1:
		return fmt.Errorf("config: card testing lookback and minimum must be at least 1")
	case f.CardTestingMinSmall > f.CardTestingLookback:
		return fmt.Errorf("config: card testing minimum exceeds lookback")
	case f.HistoryLookback < 24*time.Hour:
		return fmt.Errorf("config: fraud history lookback must cover the daily velocity window")
	}
	return nil
}

// Helper functions for parsing env vars
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return fallback
}

func getEnvDecimals(key string, fallback []decimal.Decimal) []decimal.Decimal {
	values := getEnvSlice(key, nil)
	if values == nil {
		return fallback
	}
	out := make([]decimal.Decimal, 0, len(values))
	for _, s := range values {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fallback
		}
		out = append(out, d)
	}
	return out
}

// getEnvMap parses "k1=v1,k2=v2". Malformed pairs are skipped.
func getEnvMap(key string) map[string]string {
	out := map[string]string{}
	for _, pair := range getEnvSlice(key, nil) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
