package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port               string
	CORSAllowedOrigins []string

	// Backend selection
	DataBackend string
	DataDir     string

	// SQLite
	SQLiteDBPath string

	// PostgreSQL
	DBHost           string
	DBPort           int
	DBName           string
	DBUser           string
	DBPassword       string
	DBSSLMode        string
	DBConnectTimeout int

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID   string
	GoogleRecordsSheet    string
	GoogleKeywordsSheet   string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string

	// Caching
	RedisURL  string
	CacheSize int
	CacheTTL  time.Duration

	// Trend
	TrendTopN       int
	TrendStableBand float64
	OtherLabel      string

	// Gallery
	ImageBaseURL string
	ImageLimit   int

	// Worker
	RefreshInterval time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// PublicDB is the database configuration that is safe to expose.
type PublicDB struct {
	Backend string `json:"backend"`
	Host    string `json:"host,omitempty"`
	Port    int    `json:"port,omitempty"`
	Name    string `json:"name,omitempty"`
	User    string `json:"user,omitempty"`
	SSLMode string `json:"ssl_mode,omitempty"`
	Path    string `json:"path,omitempty"`
}

var validBackends = []string{"memory", "sqlite", "postgres", "sheets"}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8001"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3001"}),

		DataBackend: getEnv("DATA_BACKEND", "memory"),
		DataDir:     getEnv("DATA_DIR", "./data"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/trendai.db"),

		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnvInt("DB_PORT", 5432),
		DBName:           getEnv("DB_NAME", "trendai_db"),
		DBUser:           getEnv("DB_USER", "postgres"),
		DBPassword:       getEnv("DB_PASSWORD", ""),
		DBSSLMode:        getEnv("DB_SSL_MODE", "disable"),
		DBConnectTimeout: getEnvInt("DB_CONNECT_TIMEOUT", 5),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "trendai"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "trend_refresh"),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleRecordsSheet:    getEnv("GOOGLE_RECORDS_SHEET", "records"),
		GoogleKeywordsSheet:   getEnv("GOOGLE_KEYWORDS_SHEET", "mood_keywords"),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_CREDENTIALS_JSON", ""),

		RedisURL:  getEnv("REDIS_URL", ""),
		CacheSize: getEnvInt("CACHE_SIZE", 256),
		CacheTTL:  getEnvDuration("CACHE_TTL", 5*time.Minute),

		TrendTopN:       getEnvInt("TREND_TOP_N", 10),
		TrendStableBand: getEnvFloat("TREND_STABLE_BAND", 5),
		OtherLabel:      getEnv("OTHER_LABEL", "기타"),

		ImageBaseURL: getEnv("IMAGE_BASE_URL", ""),
		ImageLimit:   getEnvInt("IMAGE_LIMIT", 30),

		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 15*time.Minute),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "postgres":
		if c.DBHost == "" {
			errors = append(errors, "DB_HOST is required when using postgres backend")
		}
		if c.DBName == "" {
			errors = append(errors, "DB_NAME is required when using postgres backend")
		}
		if c.DBUser == "" {
			errors = append(errors, "DB_USER is required when using postgres backend")
		}
		if c.DBPort < 1 || c.DBPort > 65535 {
			errors = append(errors, fmt.Sprintf("invalid DB port %d: must be between 1 and 65535", c.DBPort))
		}
		if c.DBConnectTimeout < 1 {
			errors = append(errors, fmt.Sprintf("invalid DB connect timeout %d: must be at least 1 second", c.DBConnectTimeout))
		}
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleRecordsSheet == "" {
			errors = append(errors, "Google records sheet name is required when using sheets backend")
		}
		if c.GoogleCredentialsFile == "" && c.GoogleCredentialsJSON == "" {
			errors = append(errors, "either GOOGLE_CREDENTIALS_FILE or GOOGLE_CREDENTIALS_JSON must be provided for sheets backend")
		}
		if c.GoogleCredentialsFile != "" {
			if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RedisURL != "" {
		if parsedURL, err := url.Parse(c.RedisURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': %v", c.RedisURL, err))
		} else if parsedURL.Scheme != "redis" && parsedURL.Scheme != "rediss" {
			errors = append(errors, fmt.Sprintf("invalid Redis URL scheme '%s': must be 'redis' or 'rediss'", parsedURL.Scheme))
		}
	}

	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}

	if c.TrendTopN < 1 || c.TrendTopN > 100 {
		errors = append(errors, fmt.Sprintf("invalid trend top N %d: must be between 1 and 100", c.TrendTopN))
	}
	if c.TrendStableBand < 0 {
		errors = append(errors, fmt.Sprintf("invalid trend stable band %v: must not be negative", c.TrendStableBand))
	}
	if c.ImageLimit < 1 || c.ImageLimit > 500 {
		errors = append(errors, fmt.Sprintf("invalid image limit %d: must be between 1 and 500", c.ImageLimit))
	}
	if c.ImageBaseURL != "" {
		if _, err := url.ParseRequestURI(c.ImageBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid image base URL '%s': %v", c.ImageBaseURL, err))
		}
	}

	if c.RefreshInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at least 1 minute", c.RefreshInterval))
	} else if c.RefreshInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at most 24 hours", c.RefreshInterval))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// PostgresDSN builds a libpq-style connection string.
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	q := u.Query()
	q.Set("sslmode", c.DBSSLMode)
	q.Set("connect_timeout", strconv.Itoa(c.DBConnectTimeout))
	u.RawQuery = q.Encode()
	return u.String()
}

// PublicDB returns the backend settings without credentials.
func (c *Config) PublicDB() PublicDB {
	p := PublicDB{Backend: c.DataBackend}
	switch c.DataBackend {
	case "postgres":
		p.Host, p.Port, p.Name, p.User, p.SSLMode = c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBSSLMode
	case "sqlite":
		p.Path = c.SQLiteDBPath
	case "memory":
		p.Path = c.DataDir
	}
	return p
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
