package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Политики переполнения исходящего буфера соединения
const (
	OverflowDropOldest = "drop-oldest"
	OverflowDisconnect = "disconnect"
)

// Config - структура для хранения конфигурации приложения
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	// Redis Config
	RedisAddr string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string        `env:"REDIS_PASSWORD"`
	RedisDB   int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL  time.Duration `env:"CACHE_TTL" envDefault:"5m"`

	// Auth Config
	JWTSecret   string        `env:"JWT_SECRET"`
	JWTIssuer   string        `env:"JWT_ISSUER"`
	AuthTimeout time.Duration `env:"AUTH_TIMEOUT" envDefault:"2s"`

	// Spatial Config
	GridPrecision    int     `env:"GRID_PRECISION" envDefault:"2"`
	HotspotPrecision int     `env:"HOTSPOT_PRECISION" envDefault:"3"`
	CreatedFanoutKm  float64 `env:"CREATED_FANOUT_KM" envDefault:"10"`
	UpdatedFanoutKm  float64 `env:"UPDATED_FANOUT_KM" envDefault:"5"`

	// Realtime Config
	OutboundBuffer int           `env:"OUTBOUND_BUFFER" envDefault:"64"`
	OverflowPolicy string        `env:"OVERFLOW_POLICY" envDefault:"drop-oldest"`
	ShutdownGrace  time.Duration `env:"SHUTDOWN_GRACE" envDefault:"1s"`

	// Relay Config
	RelayEnabled bool   `env:"RELAY_ENABLED" envDefault:"true"`
	RelayChannel string `env:"RELAY_CHANNEL" envDefault:"realtime:fanout"`
	NodeID       string `env:"NODE_ID"`

	// Analytics Config
	AnalyticsTimeout time.Duration `env:"ANALYTICS_TIMEOUT" envDefault:"5s"`
}

// LoadConfig загружает конфигурацию из переменных окружения и .env файла
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла (если есть)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ошибка загрузки файла .env: %w", err)
	}

	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getEnvAsInt("REDIS_DB", 0),
		CacheTTL:         getEnvAsDuration("CACHE_TTL", 5*time.Minute),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTIssuer:        os.Getenv("JWT_ISSUER"),
		AuthTimeout:      getEnvAsDuration("AUTH_TIMEOUT", 2*time.Second),
		GridPrecision:    getEnvAsInt("GRID_PRECISION", 2),
		HotspotPrecision: getEnvAsInt("HOTSPOT_PRECISION", 3),
		CreatedFanoutKm:  getEnvAsFloat("CREATED_FANOUT_KM", 10),
		UpdatedFanoutKm:  getEnvAsFloat("UPDATED_FANOUT_KM", 5),
		OutboundBuffer:   getEnvAsInt("OUTBOUND_BUFFER", 64),
		OverflowPolicy:   strings.ToLower(getEnv("OVERFLOW_POLICY", OverflowDropOldest)),
		ShutdownGrace:    getEnvAsDuration("SHUTDOWN_GRACE", time.Second),
		RelayEnabled:     getEnvAsBool("RELAY_ENABLED", true),
		RelayChannel:     getEnv("RELAY_CHANNEL", "realtime:fanout"),
		NodeID:           os.Getenv("NODE_ID"),
		AnalyticsTimeout: getEnvAsDuration("ANALYTICS_TIMEOUT", 5*time.Second),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет значения, которые нельзя исправить значением по умолчанию
func (c *Config) Validate() error {
	if c.GridPrecision < 0 || c.GridPrecision > 6 {
		return fmt.Errorf("GRID_PRECISION must be between 0 and 6, got %d", c.GridPrecision)
	}
	if c.HotspotPrecision < 0 || c.HotspotPrecision > 6 {
		return fmt.Errorf("HOTSPOT_PRECISION must be between 0 and 6, got %d", c.HotspotPrecision)
	}
	if c.CreatedFanoutKm <= 0 || c.UpdatedFanoutKm <= 0 {
		return fmt.Errorf("fan-out radii must be positive")
	}
	if c.OutboundBuffer < 1 {
		return fmt.Errorf("OUTBOUND_BUFFER must be at least 1, got %d", c.OutboundBuffer)
	}
	switch c.OverflowPolicy {
	case OverflowDropOldest, OverflowDisconnect:
	default:
		return fmt.Errorf("unknown OVERFLOW_POLICY %q", c.OverflowPolicy)
	}
	return nil
}

// getEnv возвращает значение переменной окружения или значение по умолчанию
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt возвращает значение переменной окружения как int или значение по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat возвращает значение переменной окружения как float64 или значение по умолчанию
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsBool возвращает значение переменной окружения как bool или значение по умолчанию
func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration возвращает значение переменной окружения как time.Duration или значение по умолчанию
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}
