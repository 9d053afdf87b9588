package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env  string
	Port string

	RedisURL  string
	RedisPass string
	RedisDB   int

	JWTSecret string

	// Game rules. House edge and bet limits are shared by every game;
	// the crash settings only drive the live multiplier round.
	HouseEdge float64
	MinBet    float64
	MaxBet    float64

	CrashGrowthRate   float64
	CrashMaxMult      float64
	CrashTickInterval time.Duration
	CrashMaxDuration  time.Duration
	CrashIntermission time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "8080"),

		RedisURL:  getEnv("REDIS_URL", "localhost:6379"),
		RedisPass: getEnv("REDIS_PASSWORD", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		HouseEdge: getEnvFloat("HOUSE_EDGE", 0.01),
		MinBet:    getEnvFloat("MIN_BET", 1),
		MaxBet:    getEnvFloat("MAX_BET", 10000),

		CrashGrowthRate:   getEnvFloat("CRASH_GROWTH_RATE", 0.10),
		CrashMaxMult:      getEnvFloat("CRASH_MAX_MULTIPLIER", 1000000),
		CrashTickInterval: getEnvDuration("CRASH_TICK_INTERVAL", 100*time.Millisecond),
		CrashMaxDuration:  getEnvDuration("CRASH_MAX_DURATION", 2*time.Minute),
		CrashIntermission: getEnvDuration("CRASH_INTERMISSION", 5*time.Second),
	}

	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %v", err)
	}
	cfg.RedisDB = db

	if cfg.JWTSecret == "" {
		if cfg.Env == "production" {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "dev-secret-do-not-use-in-production"
	}

	if cfg.HouseEdge <= 0 || cfg.HouseEdge >= 1 {
		return nil, fmt.Errorf("HOUSE_EDGE must be in (0, 1), got %f", cfg.HouseEdge)
	}
	if cfg.MinBet <= 0 || cfg.MaxBet < cfg.MinBet {
		return nil, fmt.Errorf("invalid bet limits: min %f, max %f", cfg.MinBet, cfg.MaxBet)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
