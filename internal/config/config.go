// Package config loads runtime configuration for the allocation service
// from environment variables, following the same load order the reference
// system uses for its own .env-backed configuration: load .env if present,
// then read environment variables, applying defaults for anything unset.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/WCLondon/habitat-allocator/internal/domain"
	"github.com/joho/godotenv"
)

// SolverMode selects which solver the allocation engine tries first.
type SolverMode string

const (
	SolverLPFirst    SolverMode = "LP_FIRST"
	SolverGreedyOnly SolverMode = "GREEDY_ONLY"
)

// Config holds all tunables named in spec §6 "Configuration".
type Config struct {
	DataDir  string
	LogLevel string
	Port     int
	DevMode  bool

	// Job cache & queue
	CacheTTL     time.Duration
	JobTimeout   time.Duration
	WorkerCount  int

	// Reference store
	ReferenceTTL time.Duration

	// Geography resolver
	GeoNeighbourTTL time.Duration
	GeocodeTTL      time.Duration

	// Solver selection
	Solver SolverMode

	// Contract-size thresholds (aggregate area-ledger effective units)
	ContractThresholdSmall  float64
	ContractThresholdMedium float64
	ContractThresholdLarge  float64
}

// Load reads configuration from .env (if present) and the environment,
// applying defaults for every field. It never fails on a missing .env
// file — only malformed numeric/duration values for variables that are
// actually set produce an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:                 getEnv("DATA_DIR", "./data"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		Port:                    8080,
		DevMode:                 getEnvBool("DEV_MODE", false),
		CacheTTL:                12 * time.Hour,
		JobTimeout:              120 * time.Second,
		WorkerCount:             4,
		ReferenceTTL:            10 * time.Minute,
		GeoNeighbourTTL:         1 * time.Hour,
		GeocodeTTL:              24 * time.Hour,
		Solver:                  SolverLPFirst,
		ContractThresholdSmall:  0.5,
		ContractThresholdMedium: 2.0,
		ContractThresholdLarge:  10.0,
	}

	var err error
	if cfg.Port, err = getEnvInt("PORT", cfg.Port); err != nil {
		return nil, err
	}
	if cfg.WorkerCount, err = getEnvInt("WORKER_COUNT", cfg.WorkerCount); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getEnvDuration("JOB_CACHE_TTL", cfg.CacheTTL); err != nil {
		return nil, err
	}
	if cfg.JobTimeout, err = getEnvDuration("JOB_TIMEOUT", cfg.JobTimeout); err != nil {
		return nil, err
	}
	if cfg.ReferenceTTL, err = getEnvDuration("REFERENCE_TTL", cfg.ReferenceTTL); err != nil {
		return nil, err
	}
	if cfg.GeoNeighbourTTL, err = getEnvDuration("GEO_NEIGHBOUR_TTL", cfg.GeoNeighbourTTL); err != nil {
		return nil, err
	}
	if cfg.GeocodeTTL, err = getEnvDuration("GEOCODE_TTL", cfg.GeocodeTTL); err != nil {
		return nil, err
	}
	if cfg.ContractThresholdSmall, err = getEnvFloat("CONTRACT_THRESHOLD_SMALL", cfg.ContractThresholdSmall); err != nil {
		return nil, err
	}
	if cfg.ContractThresholdMedium, err = getEnvFloat("CONTRACT_THRESHOLD_MEDIUM", cfg.ContractThresholdMedium); err != nil {
		return nil, err
	}
	if cfg.ContractThresholdLarge, err = getEnvFloat("CONTRACT_THRESHOLD_LARGE", cfg.ContractThresholdLarge); err != nil {
		return nil, err
	}

	if v := os.Getenv("SOLVER"); v != "" {
		cfg.Solver = SolverMode(v)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

// ContractSizeFor selects the contract size bucket for the aggregate
// area-ledger effective units demanded, per spec §4.4.1.
func (c *Config) ContractSizeFor(totalAreaUnits float64) domain.ContractSize {
	switch {
	case totalAreaUnits < c.ContractThresholdSmall:
		return domain.ContractFractional
	case totalAreaUnits < c.ContractThresholdMedium:
		return domain.ContractSmall
	case totalAreaUnits < c.ContractThresholdLarge:
		return domain.ContractMedium
	default:
		return domain.ContractLarge
	}
}
