package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/porthorian/openperm/pkg/cache"
)

var (
	ErrInvalidTTL = errors.New("memory cache: ttl must be greater than zero")
)

type grantEntry struct {
	snapshot cache.GrantSnapshot
	expires  time.Time
}

type Adapter struct {
	mu           sync.RWMutex
	grantEntries map[string]grantEntry
	now          func() time.Time
}

var _ cache.GrantCache = (*Adapter)(nil)

func NewAdapter() *Adapter {
	return &Adapter{
		grantEntries: map[string]grantEntry{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (a *Adapter) SetGrants(ctx context.Context, key string, snapshot cache.GrantSnapshot, ttl time.Duration) error {
	if err := validateSetInput(key, ttl); err != nil {
		return err
	}

	a.mu.Lock()
	a.grantEntries[key] = grantEntry{
		snapshot: cloneSnapshot(snapshot),
		expires:  a.now().Add(ttl),
	}
	a.mu.Unlock()
	return nil
}

func (a *Adapter) GetGrants(ctx context.Context, key string) (cache.GrantSnapshot, bool, error) {
	now := a.now()

	a.mu.RLock()
	entry, ok := a.grantEntries[key]
	a.mu.RUnlock()
	if !ok {
		return cache.GrantSnapshot{}, false, nil
	}

	if now.After(entry.expires) {
		a.mu.Lock()
		if current, ok := a.grantEntries[key]; ok && current.expires.Equal(entry.expires) {
			delete(a.grantEntries, key)
		}
		a.mu.Unlock()
		return cache.GrantSnapshot{}, false, nil
	}

	return cloneSnapshot(entry.snapshot), true, nil
}

func (a *Adapter) DeleteGrants(ctx context.Context, key string) error {
	a.mu.Lock()
	delete(a.grantEntries, key)
	a.mu.Unlock()
	return nil
}

func validateSetInput(key string, ttl time.Duration) error {
	if key == "" {
		return errors.New("memory cache: key is required")
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}

func cloneSnapshot(snapshot cache.GrantSnapshot) cache.GrantSnapshot {
	snapshot.Grants = cache.CloneGrants(snapshot.Grants)
	return snapshot
}
