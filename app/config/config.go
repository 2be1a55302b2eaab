package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Logs   LogConfig
	Server ServerConfig
	DB     PostgresConfig
	Redis  RedisConfig
	Auth   AuthConfig
	LLM    LLMConfig
	Quota  QuotaConfig
	Stripe StripeConfig
}

type LogConfig struct {
	Style string // "json" or "console"
	Level string
}

type ServerConfig struct {
	Addr         string
	AllowOrigins []string
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	Issuer    string
	Audience  string
	JWKSURL   string
	JWTSecret string
	Disabled  bool
}

type LLMConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
}

type QuotaConfig struct {
	Backend           string // postgres, redis or memory
	TierCatalogPath   string
	ReferenceDataPath string
	UnlimitedAccounts []string
	StorageTimeout    time.Duration
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	FrontendURL   string
	PriceIDs      map[string]string // tier id -> stripe price id
}

// DSN builds the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.Username, p.Password),
		Host:   p.URL + ":" + p.Port,
		Path:   "/" + p.Name,
	}
	q := u.Query()
	q.Set("sslmode", p.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

func LoadConfig() (*Config, error) {
	llmTimeout, err := durationEnv("LLM_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	storageTimeout, err := durationEnv("QUOTA_STORAGE_TIMEOUT", 3*time.Second)
	if err != nil {
		return nil, err
	}

	rps, err := floatEnv("LLM_REQUESTS_PER_SECOND", 5)
	if err != nil {
		return nil, err
	}

	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	authDisabled, err := boolEnv("AUTH_DISABLED", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Logs: LogConfig{
			Style: stringEnv("LOG_STYLE", "json"),
			Level: stringEnv("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Addr:         stringEnv("SERVER_ADDR", "0.0.0.0:8080"),
			AllowOrigins: listEnv("CORS_ALLOW_ORIGINS", []string{"*"}),
		},
		DB: PostgresConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			URL:      stringEnv("POSTGRES_URL", "localhost"),
			Port:     stringEnv("POSTGRES_PORT", "5432"),
			Name:     stringEnv("POSTGRES_DB", "postgres"),
			SSLMode:  stringEnv("POSTGRES_SSLMODE", "require"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			Issuer:    os.Getenv("AUTH_ISSUER"),
			Audience:  stringEnv("AUTH_AUDIENCE", "authenticated"),
			JWKSURL:   os.Getenv("AUTH_JWKS_URL"),
			JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
			Disabled:  authDisabled,
		},
		LLM: LLMConfig{
			APIKey:            os.Getenv("OPENAI_API_KEY"),
			BaseURL:           stringEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:             stringEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout:           llmTimeout,
			RequestsPerSecond: rps,
		},
		Quota: QuotaConfig{
			Backend:           stringEnv("QUOTA_BACKEND", "postgres"),
			TierCatalogPath:   os.Getenv("TIER_CATALOG_PATH"),
			ReferenceDataPath: os.Getenv("HS_REFERENCE_PATH"),
			UnlimitedAccounts: listEnv("QUOTA_UNLIMITED_ACCOUNTS", nil),
			StorageTimeout:    storageTimeout,
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			FrontendURL:   os.Getenv("FRONTEND_URL"),
			PriceIDs: map[string]string{
				"pro":        os.Getenv("STRIPE_PRICE_ID_PRO_MONTHLY"),
				"enterprise": os.Getenv("STRIPE_PRICE_ID_ENTERPRISE_MONTHLY"),
			},
		},
	}

	switch cfg.Quota.Backend {
	case "postgres", "redis", "memory":
	default:
		return nil, fmt.Errorf("QUOTA_BACKEND: unknown backend %q", cfg.Quota.Backend)
	}

	return cfg, nil
}

func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func listEnv(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func intEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("error converting string to int: %s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("error converting string to float: %s: %w", key, err)
	}
	return f, nil
}

func boolEnv(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("error parsing %s: %w", key, err)
	}
	return b, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("error parsing %s: %w", key, err)
	}
	return d, nil
}
