package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Fusion modes.
const (
	FusionMean = "mean"
	FusionVote = "vote"
)

// Label join policies.
const (
	LabelJoinLeft  = "left"
	LabelJoinInner = "inner"
)

// Database drivers, named after their database/sql registrations.
const (
	DBDriverSQLite = "sqlite"
	DBDriverPgx    = "pgx"
)

// Artifact backends.
const (
	ArtifactBackendFS    = "fs"
	ArtifactBackendAzure = "azure"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// History and catalog storage.
	DBDriver string
	DBDSN    string

	// Model artifact storage.
	ArtifactBackend string
	ArtifactDir     string
	AzureConnString string
	AzureContainer  string

	// Live weather source.
	WeatherBaseURL   string
	WeatherTimeout   time.Duration
	WeatherCacheSize int
	WeatherCacheTTL  time.Duration

	FusionMode   string
	LabelJoin    string
	HistoryLimit int

	// Training pipeline.
	DataDir           string
	TrainSampleLimit  int
	TrainMinRows      int
	TrainTestFraction float64
	TrainFailFast     bool

	// Evaluation event publishing.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	weatherTimeout, err := parsePositiveDuration("WEATHER_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	weatherTTL, err := parsePositiveDuration("WEATHER_CACHE_TTL", "10m")
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("WEATHER_CACHE_SIZE", 512, 1)
	if err != nil {
		return nil, err
	}
	historyLimit, err := parseInt("HISTORY_LIMIT", 30, 1)
	if err != nil {
		return nil, err
	}
	sampleLimit, err := parseInt("TRAIN_SAMPLE_LIMIT", 0, 0)
	if err != nil {
		return nil, err
	}
	minRows, err := parseInt("TRAIN_MIN_ROWS", 20, 1)
	if err != nil {
		return nil, err
	}
	testFraction, err := parseFraction("TRAIN_TEST_FRACTION", 0.2)
	if err != nil {
		return nil, err
	}
	failFast, err := parseBool("TRAIN_FAIL_FAST", false)
	if err != nil {
		return nil, err
	}
	kafkaEnabled, err := parseBool("KAFKA_ENABLED", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DBDriver: strings.ToLower(sharedcfg.EnvOrDefault("DB_DRIVER", DBDriverSQLite)),
		DBDSN:    sharedcfg.EnvOrDefault("DB_DSN", "flood.db"),

		ArtifactBackend: strings.ToLower(sharedcfg.EnvOrDefault("ARTIFACT_BACKEND", ArtifactBackendFS)),
		ArtifactDir:     sharedcfg.EnvOrDefault("ARTIFACT_DIR", "artifacts"),
		AzureConnString: sharedcfg.EnvOrDefault("AZURE_STORAGE_CONNECTION_STRING", ""),
		AzureContainer:  sharedcfg.EnvOrDefault("AZURE_STORAGE_CONTAINER", "flood-models"),

		WeatherBaseURL:   sharedcfg.EnvOrDefault("WEATHER_BASE_URL", "https://api.open-meteo.com/v1/forecast"),
		WeatherTimeout:   weatherTimeout,
		WeatherCacheSize: cacheSize,
		WeatherCacheTTL:  weatherTTL,

		FusionMode:   strings.ToLower(sharedcfg.EnvOrDefault("FUSION_MODE", FusionMean)),
		LabelJoin:    strings.ToLower(sharedcfg.EnvOrDefault("LABEL_JOIN", LabelJoinLeft)),
		HistoryLimit: historyLimit,

		DataDir:           sharedcfg.EnvOrDefault("DATA_DIR", "dados"),
		TrainSampleLimit:  sampleLimit,
		TrainMinRows:      minRows,
		TrainTestFraction: testFraction,
		TrainFailFast:     failFast,

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "flood-evaluations"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.FusionMode {
	case FusionMean, FusionVote:
	default:
		return fmt.Errorf("invalid FUSION_MODE %q: want mean or vote", c.FusionMode)
	}
	switch c.LabelJoin {
	case LabelJoinLeft, LabelJoinInner:
	default:
		return fmt.Errorf("invalid LABEL_JOIN %q: want left or inner", c.LabelJoin)
	}
	switch c.DBDriver {
	case DBDriverSQLite, DBDriverPgx:
	default:
		return fmt.Errorf("invalid DB_DRIVER %q: want sqlite or pgx", c.DBDriver)
	}
	switch c.ArtifactBackend {
	case ArtifactBackendFS:
	case ArtifactBackendAzure:
		if c.AzureConnString == "" {
			return errors.New("ARTIFACT_BACKEND is azure but AZURE_STORAGE_CONNECTION_STRING is not set")
		}
	default:
		return fmt.Errorf("invalid ARTIFACT_BACKEND %q: want fs or azure", c.ArtifactBackend)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if c.KafkaEnabled && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
	}
	return nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def, lowerBound int) (int, error) {
	s := sharedcfg.EnvOrDefault(key, "")
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lowerBound {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseFraction(key string, def float64) (float64, error) {
	s := sharedcfg.EnvOrDefault(key, "")
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || f >= 1 {
		return 0, fmt.Errorf("invalid %s: must be between 0 and 1", key)
	}
	return f, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := sharedcfg.EnvOrDefault(key, "")
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}
