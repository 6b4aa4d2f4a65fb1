package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/porthorian/openperm/pkg/storage"
)

var (
	ErrEmptyID       = errors.New("memory storage: id is required")
	ErrNilTxCallback = errors.New("memory storage: transaction callback is nil")
)

// Adapter keeps roles and permission rows in process memory.
type Adapter struct {
	mu          sync.RWMutex
	roles       map[string]storage.RoleRecord
	permissions map[string][]storage.PermissionRecord

	txMu sync.Mutex
	// touched is set on staged copies only.
	touched map[string]struct{}
}

var _ storage.Store = (*Adapter)(nil)
var _ storage.RoleTxStore = (*Adapter)(nil)

func NewAdapter() *Adapter {
	return &Adapter{
		roles:       map[string]storage.RoleRecord{},
		permissions: map[string][]storage.PermissionRecord{},
	}
}

func (a *Adapter) PutRole(ctx context.Context, record storage.RoleRecord) error {
	if record.ID == "" {
		return ErrEmptyID
	}

	now := time.Now().UTC()

	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.roles[record.ID]; ok {
		record.DateAdded = existing.DateAdded
		record.DateModified = &now
	} else if record.DateAdded.IsZero() {
		record.DateAdded = now
	}

	a.roles[record.ID] = record
	a.touch(record.ID)
	return nil
}

func (a *Adapter) GetRole(ctx context.Context, id string) (storage.RoleRecord, error) {
	a.mu.RLock()
	record, ok := a.roles[id]
	a.mu.RUnlock()

	if !ok {
		return storage.RoleRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (a *Adapter) DeleteRole(ctx context.Context, id string) error {
	a.mu.Lock()
	delete(a.roles, id)
	delete(a.permissions, id)
	a.touch(id)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) ReplaceRolePermissions(ctx context.Context, roleID string, records []storage.PermissionRecord) error {
	if roleID == "" {
		return ErrEmptyID
	}

	stored := make([]storage.PermissionRecord, 0, len(records))
	for _, record := range records {
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		record.RoleID = roleID
		stored = append(stored, record)
	}

	a.mu.Lock()
	a.permissions[roleID] = stored
	a.touch(roleID)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) ListPermissionsByRole(ctx context.Context, roleID string) ([]storage.PermissionRecord, error) {
	a.mu.RLock()
	stored := a.permissions[roleID]
	records := make([]storage.PermissionRecord, len(stored))
	copy(records, stored)
	a.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].Bundle != records[j].Bundle {
			return records[i].Bundle < records[j].Bundle
		}
		return records[i].Name < records[j].Name
	})
	return records, nil
}

func (a *Adapter) DeleteRolePermissions(ctx context.Context, roleID string) error {
	a.mu.Lock()
	delete(a.permissions, roleID)
	a.touch(roleID)
	a.mu.Unlock()
	return nil
}

// WithRoleTx runs fn against a snapshot of the adapter and copies back the
// roles fn wrote once it returns nil. Transactions are serialized.
func (a *Adapter) WithRoleTx(ctx context.Context, fn func(material storage.RoleMaterial) error) error {
	if fn == nil {
		return ErrNilTxCallback
	}

	a.txMu.Lock()
	defer a.txMu.Unlock()

	staged := a.snapshot()
	if err := fn(storage.RoleMaterial{Role: staged, Permission: staged}); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for id := range staged.touched {
		if role, ok := staged.roles[id]; ok {
			a.roles[id] = role
		} else {
			delete(a.roles, id)
		}
		if rows, ok := staged.permissions[id]; ok {
			a.permissions[id] = rows
		} else {
			delete(a.permissions, id)
		}
	}
	return nil
}

func (a *Adapter) snapshot() *Adapter {
	a.mu.RLock()
	defer a.mu.RUnlock()

	staged := &Adapter{
		roles:       make(map[string]storage.RoleRecord, len(a.roles)),
		permissions: make(map[string][]storage.PermissionRecord, len(a.permissions)),
		touched:     map[string]struct{}{},
	}
	for id, role := range a.roles {
		staged.roles[id] = role
	}
	for id, rows := range a.permissions {
		staged.permissions[id] = rows
	}
	return staged
}

func (a *Adapter) touch(id string) {
	if a.touched != nil {
		a.touched[id] = struct{}{}
	}
}
