package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Default isobaric levels, in hPa, expected in the source fields. Ordered
// surface-up to match the vertical axis of the model files.
var defaultPressureLevels = []float64{
	1000, 975, 950, 925, 900, 875, 850, 825, 800, 775, 750, 725, 700,
	675, 650, 625, 600, 575, 550, 525, 500,
}

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaJobTopic    string
	KafkaResultTopic string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	// Model serving endpoint.
	ModelEndpoint string
	ModelTimeout  time.Duration

	// ScalerPath is optional; when empty features go to the model unscaled.
	ScalerPath string

	// Source data locations. FieldDir holds the model output files, both
	// pre-staged and downloaded.
	FieldDir        string
	DownloadBaseURL string
	DownloadRPS     float64

	// Run ledger and grid storage.
	DBPath string

	// Vertical interpolation grid, meters above ground.
	HeightLow      float64
	HeightHigh     float64
	HeightInterval float64
	InterpWorkers  int

	PressureLevels []float64
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	modelTimeoutStr := sharedcfg.EnvOrDefault("MODEL_TIMEOUT", "30s")
	modelTimeout, err := time.ParseDuration(modelTimeoutStr)
	if err != nil || modelTimeout <= 0 {
		return nil, errors.New("invalid MODEL_TIMEOUT")
	}

	heightLow, err := parseFloat("HEIGHT_LOW", "0")
	if err != nil {
		return nil, err
	}
	heightHigh, err := parseFloat("HEIGHT_HIGH", "3000")
	if err != nil {
		return nil, err
	}
	heightInterval, err := parseFloat("HEIGHT_INTERVAL", "250")
	if err != nil {
		return nil, err
	}

	downloadRPS, err := parseFloat("DOWNLOAD_RPS", "2")
	if err != nil {
		return nil, err
	}
	if downloadRPS <= 0 {
		return nil, errors.New("DOWNLOAD_RPS must be positive")
	}

	interpWorkers := 0
	if s := os.Getenv("INTERP_WORKERS"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return nil, errors.New("invalid INTERP_WORKERS")
		}
		interpWorkers = n
	}

	pressureLevels, err := parsePressureLevels()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaJobTopic:    sharedcfg.EnvOrDefault("KAFKA_JOB_TOPIC", "forecast-jobs"),
		KafkaResultTopic: sharedcfg.EnvOrDefault("KAFKA_RESULT_TOPIC", "ptype-run-results"),
		KafkaGroupID:     sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "ptype-inference"),
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,

		ModelEndpoint: sharedcfg.EnvOrDefault("MODEL_ENDPOINT", "http://localhost:8501/v1/predict"),
		ModelTimeout:  modelTimeout,

		ScalerPath: os.Getenv("SCALER_PATH"),

		FieldDir:        sharedcfg.EnvOrDefault("FIELD_DIR", "/data/fields"),
		DownloadBaseURL: sharedcfg.EnvOrDefault("DOWNLOAD_BASE_URL", "https://nomads.ncep.noaa.gov/pub/data/nccf/com"),
		DownloadRPS:     downloadRPS,

		DBPath: sharedcfg.EnvOrDefault("DB_PATH", "/data/ptype.db"),

		HeightLow:      heightLow,
		HeightHigh:     heightHigh,
		HeightInterval: heightInterval,
		InterpWorkers:  interpWorkers,

		PressureLevels: pressureLevels,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaJobTopic == "" {
		return nil, errors.New("KAFKA_JOB_TOPIC is required")
	}
	if cfg.KafkaResultTopic == "" {
		return nil, errors.New("KAFKA_RESULT_TOPIC is required")
	}
	if cfg.ModelEndpoint == "" {
		return nil, errors.New("MODEL_ENDPOINT is required")
	}
	if cfg.HeightInterval <= 0 {
		return nil, errors.New("HEIGHT_INTERVAL must be positive")
	}
	if cfg.HeightHigh < cfg.HeightLow {
		return nil, errors.New("HEIGHT_HIGH must not be below HEIGHT_LOW")
	}

	return cfg, nil
}

func parseFloat(key, def string) (float64, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// parsePressureLevels reads PRESSURE_LEVELS as a comma-separated list of hPa
// values, falling back to the standard set when unset.
func parsePressureLevels() ([]float64, error) {
	s := os.Getenv("PRESSURE_LEVELS")
	if s == "" {
		levels := make([]float64, len(defaultPressureLevels))
		copy(levels, defaultPressureLevels)
		return levels, nil
	}

	parts := strings.Split(s, ",")
	levels := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid PRESSURE_LEVELS entry %q", p)
		}
		levels = append(levels, v)
	}
	if len(levels) < 2 {
		return nil, errors.New("PRESSURE_LEVELS needs at least two levels")
	}
	return levels, nil
}
