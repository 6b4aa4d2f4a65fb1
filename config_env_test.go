package openperm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porthorian/openperm/pkg/storage"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := loadConfig(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, StorageBackendMemory, config.Runtime.Storage.Backend)
	assert.Equal(t, CacheBackendNone, config.Runtime.Cache.Backend)
	assert.Equal(t, "openperm", config.Runtime.Cache.Redis.Namespace)
	assert.Equal(t, 5*time.Second, config.Runtime.Storage.Postgres.PingTimeout)
	assert.Equal(t, storage.DefaultGrantPolicy(), config.GrantPolicy)
}

func TestLoadConfigReadsPrefixedVariables(t *testing.T) {
	config, err := loadConfig(map[string]string{
		"OPENPERM_STORAGE_BACKEND":          "postgres",
		"OPENPERM_POSTGRES_DSN":             "postgres://localhost/openperm",
		"OPENPERM_POSTGRES_MAX_OPEN_CONNS":  "20",
		"OPENPERM_CACHE_BACKEND":            "redis",
		"OPENPERM_REDIS_ADDRESS":            "localhost:6379",
		"OPENPERM_REDIS_DATABASE":           "2",
		"OPENPERM_GRANT_CACHE_TTL":          "30s",
		"OPENPERM_GRANT_CACHE_FAILURE_MODE": "fail_closed",
		"STORAGE_BACKEND":                   "none",
	})
	require.NoError(t, err)

	assert.Equal(t, StorageBackendPostgres, config.Runtime.Storage.Backend)
	assert.Equal(t, "postgres://localhost/openperm", config.Runtime.Storage.Postgres.DSN)
	assert.Equal(t, 20, config.Runtime.Storage.Postgres.MaxOpenConns)
	assert.Equal(t, CacheBackendRedis, config.Runtime.Cache.Backend)
	assert.Equal(t, "localhost:6379", config.Runtime.Cache.Redis.Address)
	assert.Equal(t, 2, config.Runtime.Cache.Redis.Database)
	assert.Equal(t, 30*time.Second, config.GrantPolicy.MaxCacheTTL)
	assert.Equal(t, storage.FailureModeClosed, config.GrantPolicy.FailureMode)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name        string
		environment map[string]string
	}{
		{name: "bad duration", environment: map[string]string{"OPENPERM_GRANT_CACHE_TTL": "soon"}},
		{name: "bad cache role", environment: map[string]string{"OPENPERM_GRANT_CACHE_ROLE": "write_behind"}},
		{name: "bad failure mode", environment: map[string]string{"OPENPERM_GRANT_CACHE_FAILURE_MODE": "retry"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(tt.environment)
			require.Error(t, err)
		})
	}
}
