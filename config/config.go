package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	priceTierPrefix = "BET_PRICE_"
	priceTierSuffix = "_PLAN_ID"
)

type Config struct {
	App       AppConfig
	HTTP      ServerConfig
	MySQL     MySQLConfig
	Log       LogConfig
	Whop      WhopConfig
	Purchases PurchasesConfig
	Jobs      JobsConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type WhopConfig struct {
	APIKey                    string
	WebhookSecret             string
	APIBaseURL                string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

type PurchasesConfig struct {
	// PriceTierPlans maps a listing price in minor currency units to the
	// Whop plan id that sells it.
	PriceTierPlans      map[int64]string
	ReceiptPageSize     int32
	ReconcileStaleAfter time.Duration
	JobBatchSize        int32
}

type JobsConfig struct {
	ReconcileInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	priceTierPlans, err := loadPriceTierPlans(os.Environ())
	if err != nil {
		return nil, err
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "bet-payments"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Whop: WhopConfig{
			APIKey:                    getEnv("WHOP_API_KEY", ""),
			WebhookSecret:             getEnv("WHOP_WEBHOOK_SECRET", ""),
			APIBaseURL:                getEnv("WHOP_API_BASE_URL", "https://api.whop.com"),
			SignatureToleranceSeconds: int64(getIntEnv("WHOP_SIGNATURE_TOLERANCE_SECONDS", 300)),
			HTTPTimeout:               getSecondsEnv("WHOP_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Purchases: PurchasesConfig{
			PriceTierPlans:      priceTierPlans,
			ReceiptPageSize:     int32(getIntEnv("PURCHASES_RECEIPT_PAGE_SIZE", 50)),
			ReconcileStaleAfter: getMinutesEnv("PURCHASES_RECONCILE_STALE_AFTER_MINUTES", 15*time.Minute),
			JobBatchSize:        int32(getIntEnv("PURCHASES_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			ReconcileInterval: getMinutesEnv("PURCHASES_RECONCILE_INTERVAL_MINUTES", 2*time.Minute),
		},
	}, nil
}

// loadPriceTierPlans collects every BET_PRICE_<cents>_PLAN_ID variable into a
// price-to-plan map. Malformed tiers fail the whole load so that a missing
// plan surfaces at startup instead of as a nil deep inside a request.
func loadPriceTierPlans(environ []string) (map[int64]string, error) {
	plans := map[int64]string{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, priceTierPrefix) || !strings.HasSuffix(key, priceTierSuffix) {
			continue
		}
		rawCents := strings.TrimSuffix(strings.TrimPrefix(key, priceTierPrefix), priceTierSuffix)
		cents, err := strconv.ParseInt(rawCents, 10, 64)
		if err != nil || cents < 0 {
			return nil, fmt.Errorf("invalid price tier variable %s: price must be a non-negative integer", key)
		}
		if strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("invalid price tier variable %s: plan id is empty", key)
		}
		plans[cents] = strings.TrimSpace(value)
	}
	return plans, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
