package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	BaseURL     string
	NodeID      int64

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis   RedisConfig
	PayHero PayHeroConfig
	Pesapal PesapalConfig
	Poll    PollConfig
	Sync    SyncConfig
	Email   EmailConfig
	Admin   AdminConfig

	RateLimit RateLimitConfig

	CatalogPath string
}

// TelemetryConfig carries logging and OpenTelemetry settings.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PayHeroConfig struct {
	APIURL        string
	AuthToken     string
	ChannelID     int
	Provider      string
	WebhookSecret string
	Timeout       time.Duration
}

type PesapalConfig struct {
	APIURL         string
	ConsumerKey    string
	ConsumerSecret string
	IPNID          string
	CallbackURL    string
	Currency       string
	CountryCode    string
	Timeout        time.Duration
}

type PollConfig struct {
	PendingInterval time.Duration
	ErrorInterval   time.Duration
	Timeout         time.Duration
}

type SyncConfig struct {
	Interval time.Duration
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type AdminConfig struct {
	TokenHash string
}

type RateLimitConfig struct {
	Enabled         bool
	DonationRate    float64
	DonationBurst   int
	InFlightLockTTL time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	baseURL := strings.TrimRight(getenv("BASE_URL", "http://localhost:8080"), "/")

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "donate-artist"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("DEPLOYMENT_ENV", getenv("APP_ENV", "development")),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		BaseURL:     baseURL,
		NodeID:      int64(getenvInt("NODE_ID", 1)),
		Telemetry: TelemetryConfig{
			LogLevel:      getenv("LOG_LEVEL", "info"),
			LogFormat:     getenv("LOG_FORMAT", "json"),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OTLPEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
			OTLPProtocol:  getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DB_TYPE", "sqlite"),
		DBHost:            getenv("DB_HOST", "localhost"),
		DBPort:            getenv("DB_PORT", "5432"),
		DBName:            getenv("DB_NAME", "donate_artist"),
		DBUser:            getenv("DB_USER", "postgres"),
		DBPassword:        getenv("DB_PASSWORD", ""),
		DBSSLMode:         getenv("DB_SSL_MODE", "disable"),
		DBMaxIdleConn:     getenvInt("DB_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DB_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DB_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DB_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		PayHero: PayHeroConfig{
			APIURL:        strings.TrimRight(getenv("PAYHERO_API_URL", "https://backend.payhero.co.ke/api/v2"), "/"),
			AuthToken:     strings.TrimSpace(getenv("PAYHERO_AUTH_TOKEN", "")),
			ChannelID:     getenvInt("PAYHERO_CHANNEL_ID", 3054),
			Provider:      getenv("PAYHERO_PROVIDER", "m-pesa"),
			WebhookSecret: strings.TrimSpace(getenv("PAYHERO_WEBHOOK_SECRET", "")),
			Timeout:       getenvDuration("PAYHERO_TIMEOUT", 15*time.Second),
		},
		Pesapal: PesapalConfig{
			APIURL:         strings.TrimRight(getenv("PESAPAL_API_URL", "https://pay.pesapal.com/v3/api"), "/"),
			ConsumerKey:    strings.TrimSpace(getenv("PESAPAL_CONSUMER_KEY", "")),
			ConsumerSecret: strings.TrimSpace(getenv("PESAPAL_CONSUMER_SECRET", "")),
			IPNID:          strings.TrimSpace(getenv("PESAPAL_IPN_ID", "")),
			CallbackURL:    getenv("PESAPAL_CALLBACK_URL", baseURL+"/api/pesapal-callback"),
			Currency:       getenv("PESAPAL_CURRENCY", "KES"),
			CountryCode:    getenv("PESAPAL_COUNTRY_CODE", "KE"),
			Timeout:        getenvDuration("PESAPAL_TIMEOUT", 15*time.Second),
		},
		Poll: PollConfig{
			PendingInterval: getenvDuration("POLL_PENDING_INTERVAL", 2*time.Second),
			ErrorInterval:   getenvDuration("POLL_ERROR_INTERVAL", 3*time.Second),
			Timeout:         getenvDuration("POLL_TIMEOUT", 60*time.Second),
		},
		Sync: SyncConfig{
			Interval: getenvDuration("SYNC_INTERVAL", 5*time.Second),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "donations@artistbattle.local"),
		},
		Admin: AdminConfig{
			TokenHash: strings.TrimSpace(getenv("ADMIN_TOKEN_HASH", "")),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getenvBool("RATE_LIMIT_ENABLED", true),
			DonationRate:    getenvFloat("RATE_LIMIT_DONATION_RATE", 0.2),
			DonationBurst:   getenvInt("RATE_LIMIT_DONATION_BURST", 5),
			InFlightLockTTL: getenvDuration("DONATION_INFLIGHT_TTL", 2*time.Minute),
		},
		CatalogPath: strings.TrimSpace(getenv("BATTLE_CATALOG_PATH", "")),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// CallbackURL is the webhook address handed to the push gateway.
func (c Config) CallbackURL() string {
	return c.BaseURL + "/api/payments/callback"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
