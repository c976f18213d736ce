package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Drain    DrainConfig
	Settings SettingsConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	// PostgresURL is optional: when empty the service runs on the in-memory
	// stores, which is only suitable for tests and local experiments.
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
}

type DrainConfig struct {
	Interval  time.Duration
	BatchSize int
}

type SettingsConfig struct {
	Path string
}

func LoadAll() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: os.Getenv("POSTGRES_URL"),
		},
		Drain: DrainConfig{
			Interval:  time.Duration(getEnvInt("DRAIN_INTERVAL_SECONDS", 30)) * time.Second,
			BatchSize: getEnvInt("DRAIN_BATCH_SIZE", 50),
		},
		Settings: SettingsConfig{
			Path: getEnv("DISPATCH_SETTINGS_FILE", ""),
		},
		Redis: loadRedisConfig(),
	}

	validate(cfg)
	return cfg, nil
}

func loadRedisConfig() RedisConfig {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvInt("REDIS_DB", 0),
	}
}

func validate(cfg *Config) {
	if cfg.Drain.BatchSize <= 0 {
		panic("DRAIN_BATCH_SIZE must be > 0")
	}
	if cfg.Drain.Interval <= 0 {
		panic("DRAIN_INTERVAL_SECONDS must be > 0")
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("invalid int for env %s: %s", key, v))
	}
	return i
}
