package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type AuthConfig struct {
	AccessSecret      string
	AccessTTL         time.Duration
	AdminUsername     string
	AdminPasswordHash string
}

type RedisConfig struct {
	URL string
}

type CacheConfig struct {
	DashboardTTL time.Duration
	DraftTTL     time.Duration
}

type TrafficConfig struct {
	DetectionWindow  int
	MinCycleFloor    int
	LightYellowShare float64
}

type CORSConfig struct {
	AllowedOrigins []string
}

type Config struct {
	Environment string
	LogLevel    string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Redis       RedisConfig
	Cache       CacheConfig
	Traffic     TrafficConfig
	CORS        CORSConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("JWT_ACCESS_TTL", "12h")
	v.SetDefault("ADMIN_USERNAME", "admin")
	v.SetDefault("CACHE_DASHBOARD_TTL", "5s")
	v.SetDefault("DRAFT_TTL", "2h")
	v.SetDefault("DETECTION_WINDOW", 500)
	v.SetDefault("CYCLE_MIN_FLOOR", 10)
	v.SetDefault("LIGHT_YELLOW_SHARE", 0.10)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			AutoMigrate:     v.GetBool("DB_AUTO_MIGRATE"),
		},
		Auth: AuthConfig{
			AccessSecret:      v.GetString("JWT_ACCESS_SECRET"),
			AccessTTL:         v.GetDuration("JWT_ACCESS_TTL"),
			AdminUsername:     v.GetString("ADMIN_USERNAME"),
			AdminPasswordHash: v.GetString("ADMIN_PASSWORD_HASH"),
		},
		Redis: RedisConfig{
			URL: strings.TrimSpace(v.GetString("REDIS_URL")),
		},
		Cache: CacheConfig{
			DashboardTTL: v.GetDuration("CACHE_DASHBOARD_TTL"),
			DraftTTL:     v.GetDuration("DRAFT_TTL"),
		},
		Traffic: TrafficConfig{
			DetectionWindow:  v.GetInt("DETECTION_WINDOW"),
			MinCycleFloor:    v.GetInt("CYCLE_MIN_FLOOR"),
			LightYellowShare: v.GetFloat64("LIGHT_YELLOW_SHARE"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", cfg.HTTP.Port)
	}
	if cfg.Auth.AccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be positive")
	}
	if cfg.Traffic.DetectionWindow <= 0 {
		return fmt.Errorf("DETECTION_WINDOW must be positive, got %d", cfg.Traffic.DetectionWindow)
	}
	if cfg.Traffic.MinCycleFloor <= 0 {
		return fmt.Errorf("CYCLE_MIN_FLOOR must be positive, got %d", cfg.Traffic.MinCycleFloor)
	}
	if cfg.Traffic.LightYellowShare < 0 || cfg.Traffic.LightYellowShare > 1 {
		return fmt.Errorf("LIGHT_YELLOW_SHARE must be within [0, 1], got %v", cfg.Traffic.LightYellowShare)
	}
	return nil
}
