package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, DBDriverSQLite, cfg.DBDriver)
	assert.Equal(t, "flood.db", cfg.DBDSN)
	assert.Equal(t, ArtifactBackendFS, cfg.ArtifactBackend)
	assert.Equal(t, "artifacts", cfg.ArtifactDir)
	assert.Equal(t, "flood-models", cfg.AzureContainer)
	assert.Equal(t, "https://api.open-meteo.com/v1/forecast", cfg.WeatherBaseURL)
	assert.Equal(t, 5*time.Second, cfg.WeatherTimeout)
	assert.Equal(t, 512, cfg.WeatherCacheSize)
	assert.Equal(t, 10*time.Minute, cfg.WeatherCacheTTL)
	assert.Equal(t, FusionMean, cfg.FusionMode)
	assert.Equal(t, LabelJoinLeft, cfg.LabelJoin)
	assert.Equal(t, 30, cfg.HistoryLimit)
	assert.Equal(t, "dados", cfg.DataDir)
	assert.Equal(t, 0, cfg.TrainSampleLimit)
	assert.Equal(t, 20, cfg.TrainMinRows)
	assert.InDelta(t, 0.2, cfg.TrainTestFraction, 1e-12)
	assert.False(t, cfg.TrainFailFast)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "flood-evaluations", cfg.KafkaTopic)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("DB_DRIVER", "pgx")
	t.Setenv("DB_DSN", "postgres://flood@localhost/flood")
	t.Setenv("WEATHER_TIMEOUT", "2s")
	t.Setenv("WEATHER_CACHE_SIZE", "64")
	t.Setenv("WEATHER_CACHE_TTL", "1m")
	t.Setenv("FUSION_MODE", "VOTE")
	t.Setenv("LABEL_JOIN", "inner")
	t.Setenv("HISTORY_LIMIT", "7")
	t.Setenv("DATA_DIR", "/data")
	t.Setenv("TRAIN_SAMPLE_LIMIT", "1000")
	t.Setenv("TRAIN_MIN_ROWS", "5")
	t.Setenv("TRAIN_TEST_FRACTION", "0.25")
	t.Setenv("TRAIN_FAIL_FAST", "true")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_TOPIC", "evals")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, DBDriverPgx, cfg.DBDriver)
	assert.Equal(t, "postgres://flood@localhost/flood", cfg.DBDSN)
	assert.Equal(t, 2*time.Second, cfg.WeatherTimeout)
	assert.Equal(t, 64, cfg.WeatherCacheSize)
	assert.Equal(t, time.Minute, cfg.WeatherCacheTTL)
	assert.Equal(t, FusionVote, cfg.FusionMode)
	assert.Equal(t, LabelJoinInner, cfg.LabelJoin)
	assert.Equal(t, 7, cfg.HistoryLimit)
	assert.Equal(t, "/data", cfg.DataDir)
	assert.Equal(t, 1000, cfg.TrainSampleLimit)
	assert.Equal(t, 5, cfg.TrainMinRows)
	assert.InDelta(t, 0.25, cfg.TrainTestFraction, 1e-12)
	assert.True(t, cfg.TrainFailFast)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "evals", cfg.KafkaTopic)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"shutdown timeout", "SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"negative shutdown timeout", "SHUTDOWN_TIMEOUT", "-1s"},
		{"weather timeout", "WEATHER_TIMEOUT", "bad"},
		{"weather cache ttl", "WEATHER_CACHE_TTL", "0s"},
		{"weather cache size", "WEATHER_CACHE_SIZE", "0"},
		{"history limit", "HISTORY_LIMIT", "abc"},
		{"sample limit", "TRAIN_SAMPLE_LIMIT", "-1"},
		{"test fraction", "TRAIN_TEST_FRACTION", "1.5"},
		{"fail fast", "TRAIN_FAIL_FAST", "maybe"},
		{"fusion mode", "FUSION_MODE", "median"},
		{"label join", "LABEL_JOIN", "outer"},
		{"db driver", "DB_DRIVER", "mysql"},
		{"artifact backend", "ARTIFACT_BACKEND", "s3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_AzureWithoutConnectionString(t *testing.T) {
	t.Setenv("ARTIFACT_BACKEND", "azure")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AZURE_STORAGE_CONNECTION_STRING")
}

func TestLoad_AzureWithConnectionString(t *testing.T) {
	t.Setenv("ARTIFACT_BACKEND", "azure")
	t.Setenv("AZURE_STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ArtifactBackendAzure, cfg.ArtifactBackend)
}
