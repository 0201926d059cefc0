package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg := Load()
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, StorageDriverPostgres, cfg.StorageDriver)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, []string{"workout_scored"}, cfg.ConsumerTopics)
	require.Equal(t, 1, cfg.BackfillWorkers)
	require.Equal(t, 5*time.Minute, cfg.BackfillInterval)
	require.Equal(t, time.UTC, cfg.ReportLocation)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("STORAGE_DRIVER", "Memory")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("BACKFILL_WORKERS", "8")
	t.Setenv("OUTBOX_BATCH_SIZE", "not-a-number")
	t.Setenv("DLQ_BASE_DELAY", "90s")
	t.Setenv("REPORT_TIMEZONE", "Europe/Berlin")

	cfg := Load()
	require.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 8, cfg.BackfillWorkers)
	require.Equal(t, 25, cfg.OutboxBatchSize)
	require.Equal(t, 90*time.Second, cfg.DLQBaseDelay)
	require.Equal(t, "Europe/Berlin", cfg.ReportLocation.String())
}

func TestLoadReadsDotEnvWithoutOverridingEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	contents := "CONSUMER_GROUP_ID=from-dotenv\nJWT_ISSUER=dotenv-issuer\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	t.Setenv("ENV_FILE", path)
	t.Setenv("JWT_ISSUER", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("CONSUMER_GROUP_ID") })

	cfg := Load()
	require.Equal(t, "from-dotenv", cfg.ConsumerGroupID)
	require.Equal(t, "from-env", cfg.JWTIssuer)
}
