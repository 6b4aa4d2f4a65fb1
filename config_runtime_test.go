package openperm

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memorycache "github.com/porthorian/openperm/pkg/cache/memory"
	rediscache "github.com/porthorian/openperm/pkg/cache/redis"
	"github.com/porthorian/openperm/pkg/storage"
	memorystorage "github.com/porthorian/openperm/pkg/storage/memory"
)

func TestInitializeDefaultsToNoBackends(t *testing.T) {
	closeResource, config, err := Config{}.initialize(context.Background())
	require.NoError(t, err)
	require.NoError(t, closeResource())

	assert.Nil(t, config.RoleStore.Role)
	assert.Nil(t, config.CacheStore.Grants)
	assert.Equal(t, storage.DefaultGrantPolicy(), config.GrantPolicy)
}

func TestInitializeMemoryBackends(t *testing.T) {
	closeResource, config, err := Config{
		Runtime: RuntimeConfig{
			Storage: StorageConfig{Backend: StorageBackendMemory},
			Cache:   CacheConfig{Backend: CacheBackendMemory},
		},
	}.initialize(context.Background())
	require.NoError(t, err)
	defer closeResource()

	assert.IsType(t, &memorystorage.Adapter{}, config.RoleStore.Role)
	assert.IsType(t, &memorystorage.Adapter{}, config.RoleStore.Permission)
	assert.IsType(t, &memorystorage.Adapter{}, config.TxStore)
	assert.IsType(t, &memorycache.Adapter{}, config.CacheStore.Grants)
}

func TestInitializeKeepsProvidedStores(t *testing.T) {
	provided := memorystorage.NewAdapter()

	closeResource, config, err := Config{
		RoleStore: storage.RoleMaterial{Role: provided, Permission: provided},
		Runtime: RuntimeConfig{
			Storage: StorageConfig{Backend: StorageBackendMemory},
		},
	}.initialize(context.Background())
	require.NoError(t, err)
	defer closeResource()

	assert.Same(t, provided, config.RoleStore.Role)
}

func TestInitializeRedisCache(t *testing.T) {
	server := miniredis.RunT(t)

	closeResource, config, err := Config{
		Runtime: RuntimeConfig{
			Cache: CacheConfig{
				Backend: CacheBackendRedis,
				Redis:   RedisCacheConfig{Address: server.Addr(), Namespace: "test"},
			},
		},
	}.initialize(context.Background())
	require.NoError(t, err)

	adapter, ok := config.CacheStore.Grants.(*rediscache.Adapter)
	require.True(t, ok)
	require.NoError(t, adapter.Ping(context.Background()))
	require.NoError(t, closeResource())
}

func TestInitializeRejectsUnknownBackends(t *testing.T) {
	_, _, err := Config{Runtime: RuntimeConfig{Storage: StorageConfig{Backend: "sqlite"}}}.initialize(context.Background())
	require.Error(t, err)

	_, _, err = Config{Runtime: RuntimeConfig{Cache: CacheConfig{Backend: "memcached"}}}.initialize(context.Background())
	require.Error(t, err)

	_, _, err = Config{Runtime: RuntimeConfig{Cache: CacheConfig{Backend: CacheBackendRedis}}}.initialize(context.Background())
	require.Error(t, err)
}

func TestInitializePostgresRequiresDSN(t *testing.T) {
	_, _, err := Config{Runtime: RuntimeConfig{Storage: StorageConfig{Backend: StorageBackendPostgres}}}.initialize(context.Background())
	require.ErrorContains(t, err, "dsn is required")
}

func TestInitializePostgresSurfacesOpenErrors(t *testing.T) {
	openErr := errors.New("no driver")

	_, _, err := Config{
		Runtime: RuntimeConfig{
			Storage: StorageConfig{
				Backend: StorageBackendPostgres,
				Postgres: PostgresConfig{
					DSN: "postgres://localhost/openperm",
					OpenDB: func(driverName string, dsn string) (*sql.DB, error) {
						assert.Equal(t, "pgx", driverName)
						return nil, openErr
					},
				},
			},
		},
	}.initialize(context.Background())
	require.ErrorIs(t, err, openErr)
}

func TestJoinClosersRunsInReverseOrder(t *testing.T) {
	var order []string
	first := errors.New("first")

	closeAll := joinClosers(
		func() error {
			order = append(order, "storage")
			return first
		},
		nil,
		func() error {
			order = append(order, "cache")
			return nil
		},
	)

	err := closeAll()
	require.ErrorIs(t, err, first)
	assert.Equal(t, []string{"cache", "storage"}, order)
}
