// Package config loads the flat, environment-driven configuration the
// authorization-server core and its bootstrap wiring need.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-authgate/oauth2core/internal/token"

	"github.com/joho/godotenv"
)

// PKCEEnforcement mirrors validate.PKCEMode as a config-facing string
// so config has no import-time dependency on the validate package.
type PKCEEnforcement string

const (
	PKCEEnforceAll    PKCEEnforcement = "all"
	PKCEEnforcePublic PKCEEnforcement = "public"
	PKCEEnforceNo     PKCEEnforcement = "no"
)

type Config struct {
	// Server settings
	ServerAddr string
	BaseURL    string

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string

	// Crypto base secret; all field keys and the grant-code HMAC key
	// are derived from this at startup via HKDF-SHA256.
	BaseSecret string

	// Session/token minting
	SessionSecret          string
	AccessTokenExpiration  time.Duration
	RefreshTokenExpiration time.Duration
	EnableRefreshTokens    bool
	EnableTokenRotation    bool

	// Token provider: "local" (internal/token.LocalMinter) or
	// "http_api" (internal/token.HTTPMinter).
	TokenProviderMode     string
	TokenAPIURL           string
	TokenAPITimeout       time.Duration
	TokenAPIAuthMode      string
	TokenAPIAuthSecret    string
	TokenAPIAuthHeader    string
	TokenAPIMaxRetries    int
	TokenAPIRetryDelay    time.Duration
	TokenAPIMaxRetryDelay time.Duration

	// OAuth protocol configuration (spec.md §6.5)
	Scopes                                []string
	EnforcePKCE                           PKCEEnforcement
	GrantTTL                              time.Duration
	TokenEndpointAdditionalAllowedHeaders []string

	// Resource owner identity: which table/column holds the user
	// primary key the core stores verbatim as Authorization/Grant
	// ResourceOwnerID and as the minted token's sub claim.
	ResourceOwnerTable  string
	ResourceOwnerColumn string
	ResourceOwnerType   string

	// CustomizeSessionUpsertArgs is an integrator hook over the session
	// upsert args (transport, session_type, cid, scope, user_id). The
	// token handlers do not call it: minted tokens carry only the
	// claims the core sets, whether or not it is set.
	CustomizeSessionUpsertArgs func(token.UpsertArgs) token.UpsertArgs

	// VerifyRefreshToken overrides the default LocalMinter-backed
	// RefreshVerifier. Left nil, the server wires up LocalMinter (or
	// HTTPMinter, per TokenProviderMode) as its own verifier.
	VerifyRefreshToken token.RefreshVerifier

	// Rate limiting
	RateLimitEnabled           bool
	RateLimitRequestsPerMinute int
	RateLimitStoreType         string // "memory" or "redis"
	RedisAddr                  string
	RedisPassword              string
	RedisDB                    int

	// Audit & metrics
	EnableAuditLogging bool
	AuditBufferSize    int
	AuditLogRetention  time.Duration
	MetricsEnabled     bool

	// MetricsCacheBackend selects the read-through cache backing the
	// active-grants gauge: "memory" (single instance) or "redis"
	// (rueidisaside, shared across instances via RedisAddr).
	MetricsCacheBackend        string
	MetricsCacheTTL            time.Duration
	MetricsGaugeUpdateInterval time.Duration

	// GrantSweepInterval is how often the expired-grant sweep
	// (store.DeleteExpiredGrants) runs as a background job.
	GrantSweepInterval time.Duration
}

func Load() *Config {
	_ = godotenv.Load()

	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", getEnv("DATABASE_PATH", "oauth2core.db"))
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		BaseURL:    getEnv("BASE_URL", "http://localhost:8080"),

		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		BaseSecret:    getEnv("BASE_SECRET", "base-secret-change-in-production"),
		SessionSecret: getEnv("SESSION_SECRET", "session-secret-change-in-production"),

		AccessTokenExpiration:  getEnvDuration("ACCESS_TOKEN_EXPIRATION", time.Hour),
		RefreshTokenExpiration: getEnvDuration("REFRESH_TOKEN_EXPIRATION", 720*time.Hour),
		EnableRefreshTokens:    getEnvBool("ENABLE_REFRESH_TOKENS", true),
		EnableTokenRotation:    getEnvBool("ENABLE_TOKEN_ROTATION", false),

		TokenProviderMode:     getEnv("TOKEN_PROVIDER_MODE", "local"),
		TokenAPIURL:           getEnv("TOKEN_API_URL", ""),
		TokenAPITimeout:       getEnvDuration("TOKEN_API_TIMEOUT", 10*time.Second),
		TokenAPIAuthMode:      getEnv("TOKEN_API_AUTH_MODE", "none"),
		TokenAPIAuthSecret:    getEnv("TOKEN_API_AUTH_SECRET", ""),
		TokenAPIAuthHeader:    getEnv("TOKEN_API_AUTH_HEADER", "X-API-Secret"),
		TokenAPIMaxRetries:    getEnvInt("TOKEN_API_MAX_RETRIES", 3),
		TokenAPIRetryDelay:    getEnvDuration("TOKEN_API_RETRY_DELAY", time.Second),
		TokenAPIMaxRetryDelay: getEnvDuration("TOKEN_API_MAX_RETRY_DELAY", 10*time.Second),

		Scopes:                                getEnvSlice("SCOPES", []string{"read", "write"}),
		EnforcePKCE:                           PKCEEnforcement(getEnv("ENFORCE_PKCE", string(PKCEEnforceAll))),
		GrantTTL:                              getEnvDuration("GRANT_TTL", 600*time.Second),
		TokenEndpointAdditionalAllowedHeaders: getEnvSlice("TOKEN_ENDPOINT_ADDITIONAL_ALLOWED_HEADERS", nil),

		ResourceOwnerTable:  getEnv("RESOURCE_OWNER_TABLE", "users"),
		ResourceOwnerColumn: getEnv("RESOURCE_OWNER_COLUMN", "id"),
		ResourceOwnerType:   getEnv("RESOURCE_OWNER_TYPE", "string"),

		RateLimitEnabled:           getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequestsPerMinute: getEnvInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 60),
		RateLimitStoreType:         getEnv("RATE_LIMIT_STORE_TYPE", "memory"),
		RedisAddr:                  getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:              getEnv("REDIS_PASSWORD", ""),
		RedisDB:                    getEnvInt("REDIS_DB", 0),

		EnableAuditLogging: getEnvBool("ENABLE_AUDIT_LOGGING", true),
		AuditBufferSize:    getEnvInt("AUDIT_BUFFER_SIZE", 1000),
		AuditLogRetention:  getEnvDuration("AUDIT_LOG_RETENTION", 90*24*time.Hour),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),

		MetricsCacheBackend:        getEnv("METRICS_CACHE_BACKEND", "memory"),
		MetricsCacheTTL:            getEnvDuration("METRICS_CACHE_TTL", 30*time.Second),
		MetricsGaugeUpdateInterval: getEnvDuration("METRICS_GAUGE_UPDATE_INTERVAL", 30*time.Second),

		GrantSweepInterval: getEnvDuration("GRANT_SWEEP_INTERVAL", 5*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
