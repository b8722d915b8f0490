package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// StorageConfig selects where artifacts are written.
type StorageConfig struct {
	Backend      string // "local"|"s3"
	OutputDir    string
	BaseURL      string
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	AccessKeyID  string
	SecretKey    string
	SealPassword string
	URLTTL       time.Duration
}

// RedisConfig holds the history store connection. An empty URL keeps history in memory.
type RedisConfig struct {
	URL        string
	HistoryTTL time.Duration
	MaxEntries int
}

// LimitsConfig bounds request sizes and concurrency.
type LimitsConfig struct {
	MaxUploadBytes int64
	MaxMergeFiles  int
	MaxBatchFiles  int
	MaxInflight    int
	FetchTimeout   time.Duration
	FetchMaxBytes  int64

	// FetchAllowedHosts restricts remote http(s) inputs to these hosts and
	// their subdomains; empty allows any public host.
	FetchAllowedHosts []string
	// FetchAllowPrivate permits loopback, private and link-local fetch targets.
	FetchAllowPrivate bool
}

// EngineConfig holds document defaults.
type EngineConfig struct {
	PageSize string
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Server  ServerConfig
	Storage StorageConfig
	Redis   RedisConfig
	Limits  LimitsConfig
	Engine  EngineConfig
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load(envFiles ...string) Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
	return FromEnv()
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/pdftoolkit.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_pdftoolkit",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Server = ServerConfig{
		Port:            getEnv("PORT", "3002"),
		ReadTimeout:     parseDuration(getEnv("HTTP_READ_TIMEOUT", "60s"), 60*time.Second),
		WriteTimeout:    parseDuration(getEnv("HTTP_WRITE_TIMEOUT", "120s"), 120*time.Second),
		ShutdownTimeout: parseDuration(getEnv("HTTP_SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
	}

	cfg.Storage = StorageConfig{
		Backend:      strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
		OutputDir:    getEnv("OUTPUT_DIR", "outputs"),
		BaseURL:      getEnv("OUTPUT_BASE_URL", "/outputs/"),
		Bucket:       getEnv("AWS_S3_BUCKET", ""),
		Prefix:       getEnv("S3_PREFIX", "outputs/"),
		Region:       getEnv("AWS_REGION", ""),
		Endpoint:     getEnv("S3_ENDPOINT", ""),
		AccessKeyID:  getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
		SealPassword: getEnv("STORAGE_SEAL_PASSWORD", ""),
		URLTTL:       parseDuration(getEnv("S3_URL_TTL", "1h"), time.Hour),
	}

	cfg.Redis = RedisConfig{
		URL:        getEnv("REDIS_URL", ""),
		HistoryTTL: parseDuration(getEnv("HISTORY_TTL", "168h"), 7*24*time.Hour),
		MaxEntries: parseInt(getEnv("HISTORY_MAX_ENTRIES", "500"), 500),
	}

	cfg.Limits = LimitsConfig{
		MaxUploadBytes: int64(parseInt(getEnv("MAX_UPLOAD_MB", "64"), 64)) << 20,
		MaxMergeFiles:  parseInt(getEnv("MAX_MERGE_FILES", "10"), 10),
		MaxBatchFiles:  parseInt(getEnv("MAX_BATCH_FILES", "20"), 20),
		MaxInflight:    parseInt(getEnv("MAX_INFLIGHT", "4"), 4),
		FetchTimeout:   parseDuration(getEnv("FETCH_TIMEOUT", "30s"), 30*time.Second),
		FetchMaxBytes:  int64(parseInt(getEnv("FETCH_MAX_MB", "64"), 64)) << 20,

		FetchAllowedHosts: parseList(getEnv("FETCH_ALLOWED_HOSTS", "")),
		FetchAllowPrivate: parseBool(getEnv("FETCH_ALLOW_PRIVATE", "0")),
	}

	cfg.Engine = EngineConfig{
		PageSize: getEnv("PAGE_SIZE", "A4"),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, strings.ToLower(v))
		}
	}
	return out
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
