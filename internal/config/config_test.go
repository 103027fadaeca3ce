package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, BrokerNone, cfg.Events.Broker)
	assert.False(t, cfg.OtelEnabled())
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
port: 9090
store_driver: memory
events:
  broker: kafka
  kafka:
    brokers: ["k1:9092"]
    custody_topic: custody-events
outbox:
  poll_interval: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7070")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("OUTBOX_MAX_RETRIES", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Events.Kafka.Brokers)
	assert.Equal(t, "custody-events", cfg.Events.Kafka.CustodyTopic)
	assert.Equal(t, "orders", cfg.Events.Kafka.OrdersTopic)
	assert.Equal(t, 2*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 8, cfg.Outbox.MaxRetries)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	t.Setenv("PORT", "eighty")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("PORT", "8080")
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("EVENT_BROKER", "pigeon")
	_, err = Load()
	assert.Error(t, err)
}

func TestDBConnString(t *testing.T) {
	cfg := Default()
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=postgres dbname=trusttrace sslmode=disable",
		cfg.GetDBConnString())
}
