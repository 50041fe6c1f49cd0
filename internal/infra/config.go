package infra

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// builtinUnlimitedEmails are operator accounts that always bypass credit checks.
var builtinUnlimitedEmails = []string{
	"ops@tryon.studio",
}

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string
	GeoIPDBPath string

	ProviderBaseURL   string
	ProviderUploadURL string
	ProviderAPIKey    string
	ProviderTimeout   time.Duration

	StorageDriver   string
	StoragePath     string
	StorageBaseURL  string
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool
	MinioPublicBase string

	AMQPURL   string
	AMQPQueue string

	MailerSendAPIKey string
	MailFrom         string
	MailFromName     string

	ModelPolicyFile     string
	UnlimitedEmails     []string
	ChargeSubmittedOnly bool
	WorkerConcurrency   int

	AllowedOrigins   []string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        port,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		ProviderBaseURL:   getEnv("PROVIDER_BASE_URL", "https://api.kie.ai"),
		ProviderUploadURL: getEnv("PROVIDER_UPLOAD_URL", "https://kieai.redpandaai.co"),
		ProviderAPIKey:    os.Getenv("PROVIDER_API_KEY"),
		ProviderTimeout:   time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 60)),

		StorageDriver:   strings.ToLower(getEnv("STORAGE_DRIVER", "filesystem")),
		StoragePath:     getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:  getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		MinioEndpoint:   os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:  os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:  os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:     getEnv("MINIO_BUCKET", "gallery"),
		MinioUseSSL:     getEnvBool("MINIO_USE_SSL", true),
		MinioPublicBase: os.Getenv("MINIO_PUBLIC_BASE_URL"),

		AMQPURL:   os.Getenv("AMQP_URL"),
		AMQPQueue: getEnv("AMQP_QUEUE", "generation_tasks"),

		MailerSendAPIKey: os.Getenv("MAILERSEND_API_KEY"),
		MailFrom:         getEnv("MAIL_FROM", "no-reply@tryon.studio"),
		MailFromName:     getEnv("MAIL_FROM_NAME", "TryOn Studio"),

		ModelPolicyFile:     os.Getenv("MODEL_POLICY_FILE"),
		UnlimitedEmails:     mergeEmails(builtinUnlimitedEmails, os.Getenv("UNLIMITED_EMAILS")),
		ChargeSubmittedOnly: getEnvBool("CHARGE_SUBMITTED_ONLY", false),
		WorkerConcurrency:   getEnvInt("WORKER_CONCURRENCY", 8),

		AllowedOrigins:   splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.StorageDriver {
	case "filesystem":
	case "minio":
		if cfg.MinioEndpoint == "" {
			return nil, fmt.Errorf("MINIO_ENDPOINT is required when STORAGE_DRIVER=minio")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 1
	}

	return cfg, nil
}

// IsUnlimited reports whether email is on the configured unlimited allow-list.
func (c *Config) IsUnlimited(email string) bool {
	email = normalizeEmail(email)
	if email == "" {
		return false
	}
	for _, e := range c.UnlimitedEmails {
		if e == email {
			return true
		}
	}
	return false
}

func mergeEmails(builtin []string, raw string) []string {
	seen := make(map[string]struct{})
	for _, e := range builtin {
		if n := normalizeEmail(e); n != "" {
			seen[n] = struct{}{}
		}
	}
	for _, e := range splitList(raw) {
		if n := normalizeEmail(e); n != "" {
			seen[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
