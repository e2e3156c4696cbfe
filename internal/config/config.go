package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL   string
	DBMaxConns    int
	Storage       string
	ServerAddr    string
	LogLevel      string
	MigrationsDir string

	SessionTTL          time.Duration
	SessionCookieName   string
	SessionCookieSecure bool

	WebhookSecret             string
	WebhookSecrets            string
	WebhookTimestampTolerance time.Duration
	WebhookMaxBodyMB          int
	SignatureProvider         string

	DocuSign              DocuSignConfig
	NativeSignDocumentURL string
	Minio                 MinioConfig

	AuditSigningKey string
	CORSOrigins     []string
	AlertRules      []AlertRule

	// BootstrapAdminPassword creates the first admin at startup when no
	// operator exists yet.
	BootstrapAdminUsername string
	BootstrapAdminPassword string
}

// DocuSignConfig configures the DocuSign adapter. AccessToken wins over the
// JWT grant when both are set.
type DocuSignConfig struct {
	BaseURL        string
	AuthServer     string
	AccountID      string
	AccessToken    string
	IntegrationKey string
	UserID         string
	PrivateKeyPath string
	HTTPTimeout    time.Duration
}

// UsesJWT reports whether the JWT bearer grant is configured.
func (c DocuSignConfig) UsesJWT() bool {
	return c.AccessToken == "" && c.IntegrationKey != "" && c.UserID != "" && c.PrivateKeyPath != ""
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
	// PublicURL overrides the scheme://endpoint prefix of stored document URLs.
	PublicURL string
}

func (c MinioConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// AlertRule routes alerts matching Condition to Group.
type AlertRule struct {
	Name      string `yaml:"name"`
	Condition string `yaml:"condition"`
	Group     string `yaml:"group"`
}

// fileConfig is the optional YAML file. Env holds defaults for environment
// keys; real environment variables take precedence.
type fileConfig struct {
	Env        map[string]string `yaml:"env"`
	AlertRules []AlertRule       `yaml:"alertRules"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present, and CONFIG_FILE names an optional
// YAML file that supplies defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	file, err := loadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	getenv := func(key, def string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		if val := file.Env[key]; val != "" {
			return val
		}
		return def
	}

	dsn := getenv("DATABASE_URL", "")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "dealdesk")
		pass := getenv("POSTGRES_PASSWORD", "dealdesk_pass")
		db := getenv("POSTGRES_DB", "dealdesk")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	cfg := &Config{
		DatabaseURL:   dsn,
		DBMaxConns:    parseInt(getenv("DB_MAX_CONNS", "10"), 10),
		Storage:       strings.ToLower(getenv("STORAGE", "postgres")),
		ServerAddr:    getenv("SERVER_ADDR", "0.0.0.0:8080"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		MigrationsDir: getenv("MIGRATIONS_DIR", "internal/migrations"),

		SessionTTL:          parseDuration(getenv("SESSION_TTL", "24h"), 24*time.Hour),
		SessionCookieName:   getenv("SESSION_COOKIE_NAME", "dealdesk_session"),
		SessionCookieSecure: parseBool(getenv("SESSION_COOKIE_SECURE", "false"), false),

		WebhookSecret:             getenv("WEBHOOK_SECRET", ""),
		WebhookSecrets:            getenv("WEBHOOK_SECRETS", ""),
		WebhookTimestampTolerance: parseDuration(getenv("WEBHOOK_TIMESTAMP_TOLERANCE", ""), 0),
		WebhookMaxBodyMB:          parseInt(getenv("WEBHOOK_MAX_BODY_MB", "25"), 25),
		SignatureProvider:         strings.ToLower(getenv("SIGNATURE_PROVIDER", "docusign")),

		DocuSign: DocuSignConfig{
			BaseURL:        getenv("DOCUSIGN_API_BASE_URL", "https://demo.docusign.net/restapi"),
			AuthServer:     getenv("DOCUSIGN_AUTH_SERVER", "account-d.docusign.com"),
			AccountID:      getenv("DOCUSIGN_ACCOUNT_ID", ""),
			AccessToken:    getenv("DOCUSIGN_ACCESS_TOKEN", ""),
			IntegrationKey: getenv("DOCUSIGN_INTEGRATION_KEY", ""),
			UserID:         getenv("DOCUSIGN_USER_ID", ""),
			PrivateKeyPath: getenv("DOCUSIGN_PRIVATE_KEY_PATH", ""),
			HTTPTimeout:    parseDuration(getenv("DOCUSIGN_HTTP_TIMEOUT", "30s"), 30*time.Second),
		},
		NativeSignDocumentURL: getenv("NATIVE_SIGN_DOCUMENT_URL", ""),
		Minio: MinioConfig{
			Endpoint:  getenv("MINIO_ENDPOINT", ""),
			AccessKey: getenv("MINIO_ACCESS_KEY", ""),
			SecretKey: getenv("MINIO_SECRET_KEY", ""),
			Bucket:    getenv("MINIO_BUCKET", "dealdesk-documents"),
			UseSSL:    parseBool(getenv("MINIO_USE_SSL", "false"), false),
			Region:    getenv("MINIO_REGION", "us-east-1"),
			PublicURL: getenv("MINIO_PUBLIC_URL", ""),
		},

		AuditSigningKey: getenv("AUDIT_SIGNING_KEY", ""),
		CORSOrigins:     splitList(getenv("CORS_ORIGINS", "")),
		AlertRules:      file.AlertRules,

		BootstrapAdminUsername: getenv("BOOTSTRAP_ADMIN_USERNAME", "admin"),
		BootstrapAdminPassword: getenv("BOOTSTRAP_ADMIN_PASSWORD", ""),
	}

	switch cfg.Storage {
	case "postgres", "memory":
	default:
		return nil, fmt.Errorf("invalid STORAGE %q: want postgres or memory", cfg.Storage)
	}
	return cfg, nil
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	path = strings.TrimSpace(path)
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fc, nil
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file: %w", err)
	}
	return fc, nil
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

func parseBool(val string, def bool) bool {
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}
