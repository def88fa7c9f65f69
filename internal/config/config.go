package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort string

	// Logging
	LogLevel string

	// Acceptance window
	DateWindowFutureDays int
	DateWindowPastDays   int

	// Parsing
	MaxHTMLEvents int
	CivicMaxPages int
	DefaultCity   string

	// Detail fetch budget
	DetailFetchMaxTotal   int
	DetailFetchMaxPerHost int

	// Fetch
	FetchTimeout        time.Duration
	FetchMaxSize        int64
	FetchMaxRetries     int
	FetchBackoffInitial time.Duration
	FetchUserAgent      string
	FetchAllowPrivate   bool
	SourceDelay         time.Duration
	HostDelay           time.Duration

	// Files
	SourcesFile     string
	HostPolicyFile  string
	AuditSQLitePath string
	MetricsTextfile string

	// Serve mode
	RunTimeout          time.Duration
	RateLimitGeneral    int
	RateLimitRunTrigger int

	// Schedules (cron式、空なら無効)
	DiscoverySchedule string
	ArchiveSchedule   string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。数値として解釈できない値は既定値になる。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	cfg.DateWindowFutureDays = getEnvInt("DATE_WINDOW_DAYS_FUTURE", 365)
	cfg.DateWindowPastDays = getEnvInt("DATE_WINDOW_ALLOW_PAST_DAYS", 0)

	cfg.MaxHTMLEvents = getEnvInt("MAX_HTML_EVENTS", 80)
	cfg.CivicMaxPages = getEnvInt("CIVIC_MAX_PAGES", 5)
	cfg.DefaultCity = getEnvString("DEFAULT_CITY", "Bocholt")

	cfg.DetailFetchMaxTotal = getEnvInt("DETAIL_FETCH_MAX_TOTAL", 40)
	cfg.DetailFetchMaxPerHost = getEnvInt("DETAIL_FETCH_MAX_PER_HOST", 8)

	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 20*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.FetchMaxRetries = getEnvInt("FETCH_MAX_RETRIES", 2)
	cfg.FetchBackoffInitial = getEnvDuration("FETCH_BACKOFF_INITIAL", 2*time.Second)
	cfg.FetchUserAgent = getEnvString("FETCH_USER_AGENT", "BocholtErlebenDiscovery/1.0")
	cfg.FetchAllowPrivate = getEnvBool("FETCH_ALLOW_PRIVATE", false)
	cfg.SourceDelay = getEnvDuration("SOURCE_DELAY", time.Second)
	cfg.HostDelay = getEnvDuration("HOST_DELAY", 500*time.Millisecond)

	cfg.SourcesFile = getEnvString("SOURCES_FILE", "")
	cfg.HostPolicyFile = getEnvString("HOST_POLICY_FILE", "")
	cfg.AuditSQLitePath = getEnvString("AUDIT_SQLITE_PATH", "")
	cfg.MetricsTextfile = getEnvString("METRICS_TEXTFILE", "")

	cfg.RunTimeout = getEnvDuration("DISCOVERY_RUN_TIMEOUT", 30*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitRunTrigger = getEnvInt("RATE_LIMIT_RUN_TRIGGER", 6)

	cfg.DiscoverySchedule = strings.TrimSpace(os.Getenv("DISCOVERY_SCHEDULE"))
	cfg.ArchiveSchedule = strings.TrimSpace(os.Getenv("ARCHIVE_SCHEDULE"))

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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
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

func getEnvBool(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
