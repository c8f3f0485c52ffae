package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// セッションの保存先
const (
	SessionBackendPostgres = "postgres"
	SessionBackendBadger   = "badger"
	SessionBackendMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Environment
	AppEnv string

	// Upstream API
	APIBaseURL      string
	APIKey          string
	UpstreamTimeout time.Duration
	ClientVersion   string

	// Wechat
	WechatAppID       string
	WechatRedirectURL string

	// Session
	SessionBackend string
	DatabaseURL    string
	BadgerPath     string
	SessionMaxAge  int

	// Paywall
	PaywallTTL time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitAuth    int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string
	TrustProxy bool

	// Cookie
	CookieSecure bool
	CookieDomain string
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.APIBaseURL = os.Getenv("API_BASE_URL")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "API_BASE_URL")
	}

	cfg.APIKey = os.Getenv("API_KEY")
	if cfg.APIKey == "" {
		missing = append(missing, "API_KEY")
	}

	cfg.WechatAppID = os.Getenv("WECHAT_APP_ID")
	if cfg.WechatAppID == "" {
		missing = append(missing, "WECHAT_APP_ID")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.SessionBackend = getEnvString("SESSION_BACKEND", SessionBackendPostgres)
	switch cfg.SessionBackend {
	case SessionBackendPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case SessionBackendBadger, SessionBackendMemory:
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q: want postgres, badger or memory", cfg.SessionBackend)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AppEnv = getEnvString("APP_ENV", "production")
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second)
	cfg.ClientVersion = getEnvString("CLIENT_VERSION", "1.0.0")
	cfg.WechatRedirectURL = getEnvString("WECHAT_REDIRECT_URL", strings.TrimRight(cfg.BaseURL, "/")+"/login/wechat/callback")
	cfg.BadgerPath = getEnvString("BADGER_PATH", "data/sessions")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400*7)
	cfg.PaywallTTL = getEnvDuration("PAYWALL_TTL", 10*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.TrustProxy = getEnvBool("TRUST_PROXY", false)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
