package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret             string
	JWTAccessExpiry       time.Duration
	JWTRefreshExpiry      time.Duration
	JWTResetExpiry        time.Duration
	JWTVerificationExpiry time.Duration
	TokenSources          []string
	TokenRefreshThreshold time.Duration

	// Sessions and cookies
	SessionTTL   time.Duration
	CookieDomain string

	// Redis (optional: sessions + token blacklist)
	RedisAddr     string
	RedisPassword string

	// OAuth providers
	GoogleClientID       string
	GoogleClientSecret   string
	GitHubClientID       string
	GitHubClientSecret   string
	OAuthRedirectBase    string
	OAuthSuccessRedirect string

	// Admin
	AdminEmails string

	// Server
	Port           string
	CORSOrigins    string
	RequestTimeout time.Duration
	LogLevel       string
}

// Load reads .env files when present, then the process environment.
func Load() *Config {
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err == nil {
			slog.Debug("loaded env file", "file", f)
		}
	}

	return &Config{
		Environment: getEnv("APP_ENV", "development"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "rsk"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:             getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:       parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m"), 15*time.Minute),
		JWTRefreshExpiry:      parseDuration(getEnv("JWT_REFRESH_EXPIRY", "720h"), 720*time.Hour),
		JWTResetExpiry:        parseDuration(getEnv("JWT_RESET_EXPIRY", "1h"), time.Hour),
		JWTVerificationExpiry: parseDuration(getEnv("JWT_VERIFICATION_EXPIRY", "24h"), 24*time.Hour),
		TokenSources:          ParseCSV(getEnv("TOKEN_SOURCES", "cookie,header,query")),
		TokenRefreshThreshold: parseDuration(getEnv("TOKEN_REFRESH_THRESHOLD", "5m"), 5*time.Minute),

		SessionTTL:   parseDuration(getEnv("SESSION_TTL", "24h"), 24*time.Hour),
		CookieDomain: getEnv("COOKIE_DOMAIN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		GoogleClientID:       getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:   getEnv("GOOGLE_CLIENT_SECRET", ""),
		GitHubClientID:       getEnv("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret:   getEnv("GITHUB_CLIENT_SECRET", ""),
		OAuthRedirectBase:    getEnv("OAUTH_REDIRECT_BASE", "http://localhost:8080"),
		OAuthSuccessRedirect: getEnv("OAUTH_SUCCESS_REDIRECT", "/"),

		AdminEmails: getEnv("ADMIN_EMAILS", ""),

		Port:           getEnv("PORT", "8080"),
		CORSOrigins:    getEnv("CORS_ORIGINS", "*"),
		RequestTimeout: parseDuration(getEnv("REQUEST_TIMEOUT", "30s"), 30*time.Second),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

// AdminEmailList returns ADMIN_EMAILS lower-cased.
func (c *Config) AdminEmailList() []string {
	list := ParseCSV(c.AdminEmails)
	for i, e := range list {
		list[i] = strings.ToLower(e)
	}
	return list
}

// ParseCSV splits a comma separated value and drops empty entries.
func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
