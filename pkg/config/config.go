package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port        string
	Env         string // development, staging, production
	FrontendURL string // CORS allowed origin

	// Database (optional: symbol master table)
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// External APIs
	KIS        KISConfig
	TwelveData TwelveDataConfig
	Naver      NaverConfig

	// Market data
	FX          FXConfig
	Stream      StreamConfig
	StockMaster StockMasterConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled reports whether a database is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// KISConfig holds KIS (한국투자증권) API configuration
type KISConfig struct {
	AppKey    string
	AppSecret string
	BaseURL   string
	WSURL     string
	IsVirtual bool // 모의투자 여부

	// OverseasExchange is the foreign venue used for rankings and symbol inference
	OverseasExchange string
}

// TwelveDataConfig holds the exchange-rate API configuration
type TwelveDataConfig struct {
	APIKey  string
	BaseURL string
}

// NaverConfig holds Naver Finance configuration (FX fallback source)
type NaverConfig struct {
	BaseURL string
}

// FXConfig holds exchange-rate cache settings
type FXConfig struct {
	DefaultRate     float64
	RefreshInterval time.Duration
	Timeout         time.Duration
}

// StreamConfig holds push-feed settings
type StreamConfig struct {
	ReconnectDelay   time.Duration
	ResubscribeDelay time.Duration
}

// StockMasterConfig holds the location of vendor master files
type StockMasterConfig struct {
	Dir string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port:        getEnv("PORT", "8000"),
		Env:         getEnv("ENV", "development"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		// External APIs
		KIS: KISConfig{
			AppKey:           getEnv("KIS_APP_KEY", ""),
			AppSecret:        getEnv("KIS_SECRET_KEY", ""),
			BaseURL:          getEnv("KIS_BASE_URL", "https://openapi.koreainvestment.com:9443"),
			WSURL:            getEnv("KIS_WS_URL", "ws://ops.koreainvestment.com:21000"),
			IsVirtual:        getEnvAsBool("KIS_IS_VIRTUAL", false),
			OverseasExchange: getEnv("KIS_OVERSEAS_EXCHANGE", "NAS"),
		},

		TwelveData: TwelveDataConfig{
			APIKey:  getEnv("TWLEVEDATA_API_KEY", ""),
			BaseURL: getEnv("TWLEVEDATA_BASE_URL", "https://api.twelvedata.com"),
		},

		Naver: NaverConfig{
			BaseURL: getEnv("NAVER_BASE_URL", "https://finance.naver.com"),
		},

		FX: FXConfig{
			DefaultRate:     getEnvAsFloat("FX_DEFAULT_RATE", 1350.0),
			RefreshInterval: getEnvAsDuration("FX_REFRESH_INTERVAL", "1h"),
			Timeout:         getEnvAsDuration("FX_TIMEOUT", "3s"),
		},

		Stream: StreamConfig{
			ReconnectDelay:   getEnvAsDuration("STREAM_RECONNECT_DELAY", "3s"),
			ResubscribeDelay: getEnvAsDuration("STREAM_RESUBSCRIBE_DELAY", "100ms"),
		},

		StockMaster: StockMasterConfig{
			Dir: getEnv("STOCK_MASTER_DIR", "data"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// KIS credentials are required: nothing works without the brokerage
	if c.KIS.AppKey == "" {
		return fmt.Errorf("KIS_APP_KEY is required")
	}
	if c.KIS.AppSecret == "" {
		return fmt.Errorf("KIS_SECRET_KEY is required")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env",         // Current directory
		"backend/.env", // From project root
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
