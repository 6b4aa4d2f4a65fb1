package openperm

import (
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/porthorian/openperm/pkg/storage"
)

const EnvPrefix = "OPENPERM_"

var dotenvLoaded sync.Once

type envConfig struct {
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"memory"`
	CacheBackend   string `env:"CACHE_BACKEND" envDefault:"none"`

	PostgresDSN             string        `env:"POSTGRES_DSN"`
	PostgresMaxOpenConns    int           `env:"POSTGRES_MAX_OPEN_CONNS" envDefault:"10"`
	PostgresMaxIdleConns    int           `env:"POSTGRES_MAX_IDLE_CONNS" envDefault:"5"`
	PostgresConnMaxLifetime time.Duration `env:"POSTGRES_CONN_MAX_LIFETIME" envDefault:"30m"`
	PostgresConnMaxIdleTime time.Duration `env:"POSTGRES_CONN_MAX_IDLE_TIME" envDefault:"10m"`
	PostgresPingTimeout     time.Duration `env:"POSTGRES_PING_TIMEOUT" envDefault:"5s"`

	RedisAddress     string        `env:"REDIS_ADDRESS"`
	RedisUsername    string        `env:"REDIS_USERNAME"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDatabase    int           `env:"REDIS_DATABASE" envDefault:"0"`
	RedisNamespace   string        `env:"REDIS_NAMESPACE" envDefault:"openperm"`
	RedisDialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`

	GrantCacheRole        string        `env:"GRANT_CACHE_ROLE" envDefault:"read_through"`
	GrantCacheTTL         time.Duration `env:"GRANT_CACHE_TTL" envDefault:"5m"`
	GrantCacheFailureMode string        `env:"GRANT_CACHE_FAILURE_MODE" envDefault:"fail_open"`
}

// LoadConfig reads OPENPERM_* variables, after loading a .env file from the
// working directory when one exists, into a Config ready for New.
func LoadConfig() (Config, error) {
	dotenvLoaded.Do(func() {
		// .env is optional
		_ = godotenv.Load()
	})
	return loadConfig(nil)
}

// loadConfig parses environment, or the process environment when it is nil.
func loadConfig(environment map[string]string) (Config, error) {
	opts := env.Options{Prefix: EnvPrefix}
	if environment != nil {
		opts.Environment = environment
	}

	var values envConfig
	if err := env.ParseWithOptions(&values, opts); err != nil {
		return Config{}, fmt.Errorf("openperm config: parse environment: %w", err)
	}

	config := Config{
		Runtime: RuntimeConfig{
			Storage: StorageConfig{
				Backend: StorageBackend(values.StorageBackend),
				Postgres: PostgresConfig{
					DSN:             values.PostgresDSN,
					MaxOpenConns:    values.PostgresMaxOpenConns,
					MaxIdleConns:    values.PostgresMaxIdleConns,
					ConnMaxLifetime: values.PostgresConnMaxLifetime,
					ConnMaxIdleTime: values.PostgresConnMaxIdleTime,
					PingTimeout:     values.PostgresPingTimeout,
				},
			},
			Cache: CacheConfig{
				Backend: CacheBackend(values.CacheBackend),
				Redis: RedisCacheConfig{
					Address:     values.RedisAddress,
					Username:    values.RedisUsername,
					Password:    values.RedisPassword,
					Database:    values.RedisDatabase,
					Namespace:   values.RedisNamespace,
					DialTimeout: values.RedisDialTimeout,
				},
			},
		},
		GrantPolicy: storage.GrantPolicy{
			CacheRole:   storage.CacheRole(values.GrantCacheRole),
			MaxCacheTTL: values.GrantCacheTTL,
			FailureMode: storage.FailureMode(values.GrantCacheFailureMode),
		},
	}

	if err := validatePolicy(config.GrantPolicy); err != nil {
		return Config{}, err
	}
	return config, nil
}

func validatePolicy(policy storage.GrantPolicy) error {
	switch policy.CacheRole {
	case "", storage.CacheRoleNone, storage.CacheRoleReadThrough:
	default:
		return fmt.Errorf("openperm config: unsupported grant cache role %q", policy.CacheRole)
	}

	switch policy.FailureMode {
	case "", storage.FailureModeOpen, storage.FailureModeClosed:
	default:
		return fmt.Errorf("openperm config: unsupported grant cache failure mode %q", policy.FailureMode)
	}
	return nil
}
