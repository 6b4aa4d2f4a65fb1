package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/porthorian/openperm/pkg/authz"
	"github.com/porthorian/openperm/pkg/cache"
)

const (
	defaultNamespace = "openperm"

	roleField  = "!role"
	adminField = "!admin"
)

var (
	ErrInvalidTTL        = errors.New("redis cache: ttl must be greater than zero")
	ErrEmptyKey          = errors.New("redis cache: key is required")
	ErrBackend           = errors.New("redis cache: backend unavailable")
	ErrCorruptedSnapshot = errors.New("redis cache: corrupted grant snapshot")
)

type Config struct {
	Address     string
	Username    string
	Password    string
	Database    int
	Namespace   string
	DialTimeout time.Duration
}

// Adapter stores one hash per role. Fields are "bundle:name" with the decimal
// mask as value, plus the reserved role and admin fields.
type Adapter struct {
	client    goredis.UniversalClient
	namespace string
	owned     bool
}

var _ cache.GrantCache = (*Adapter)(nil)

// NewAdapter dials a client from config. Close releases it.
func NewAdapter(config Config) *Adapter {
	client := goredis.NewClient(&goredis.Options{
		Addr:        config.Address,
		Username:    config.Username,
		Password:    config.Password,
		DB:          config.Database,
		DialTimeout: config.DialTimeout,
	})

	adapter := NewAdapterWithClient(client, config.Namespace)
	adapter.owned = true
	return adapter
}

// NewAdapterWithClient wraps an existing client; Close leaves it open.
func NewAdapterWithClient(client goredis.UniversalClient, namespace string) *Adapter {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &Adapter{
		client:    client,
		namespace: namespace,
	}
}

func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func (a *Adapter) Close() error {
	if a == nil || !a.owned || a.client == nil {
		return nil
	}
	return a.client.Close()
}

func (a *Adapter) key(key string) string {
	return a.namespace + ":grants:" + key
}

func (a *Adapter) SetGrants(ctx context.Context, key string, snapshot cache.GrantSnapshot, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	fields := map[string]any{
		roleField:  snapshot.RoleID,
		adminField: strconv.FormatBool(snapshot.IsAdmin),
	}
	for bundle, granted := range snapshot.Grants {
		for name, mask := range granted {
			fields[bundle+":"+name] = strconv.FormatUint(uint64(mask), 10)
		}
	}

	redisKey := a.key(key)
	_, err := a.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, redisKey)
		pipe.HSet(ctx, redisKey, fields)
		pipe.Expire(ctx, redisKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func (a *Adapter) GetGrants(ctx context.Context, key string) (cache.GrantSnapshot, bool, error) {
	if key == "" {
		return cache.GrantSnapshot{}, false, ErrEmptyKey
	}

	fields, err := a.client.HGetAll(ctx, a.key(key)).Result()
	if err != nil {
		return cache.GrantSnapshot{}, false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if len(fields) == 0 {
		return cache.GrantSnapshot{}, false, nil
	}

	snapshot, err := decodeSnapshot(fields)
	if err != nil {
		return cache.GrantSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func (a *Adapter) DeleteGrants(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := a.client.Del(ctx, a.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func decodeSnapshot(fields map[string]string) (cache.GrantSnapshot, error) {
	snapshot := cache.GrantSnapshot{
		RoleID: fields[roleField],
		Grants: authz.Grants{},
	}

	if raw, ok := fields[adminField]; ok {
		isAdmin, err := strconv.ParseBool(raw)
		if err != nil {
			return cache.GrantSnapshot{}, fmt.Errorf("%w: admin flag %q", ErrCorruptedSnapshot, raw)
		}
		snapshot.IsAdmin = isAdmin
	}

	for field, raw := range fields {
		if field == roleField || field == adminField {
			continue
		}

		bundle, name, ok := strings.Cut(field, ":")
		if !ok || bundle == "" || name == "" {
			return cache.GrantSnapshot{}, fmt.Errorf("%w: field %q", ErrCorruptedSnapshot, field)
		}

		mask, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return cache.GrantSnapshot{}, fmt.Errorf("%w: mask %q for %q", ErrCorruptedSnapshot, raw, field)
		}

		if snapshot.Grants[bundle] == nil {
			snapshot.Grants[bundle] = authz.GrantedMask{}
		}
		snapshot.Grants[bundle][name] = authz.Mask(mask)
	}

	return snapshot, nil
}
