package openperm

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/go-logr/logr"

	"github.com/porthorian/openperm/pkg/authz"
	ocache "github.com/porthorian/openperm/pkg/cache"
	oerrors "github.com/porthorian/openperm/pkg/errors"
	"github.com/porthorian/openperm/pkg/storage"
)

// RoleService evaluates and maintains role permissions on top of a registry,
// the role and permission stores, and an optional grant cache.
type RoleService struct {
	registry    *authz.Registry
	roles       storage.RoleStore
	permissions storage.PermissionStore
	tx          storage.RoleTxStore
	grants      ocache.GrantCache
	policy      storage.GrantPolicy
	logger      logr.Logger

	// fillMu orders cache fills against invalidations. generation counts
	// invalidations; a fill whose load started before one is dropped.
	fillMu     sync.Mutex
	generation uint64
}

var _ Authorizer = (*RoleService)(nil)
var _ RoleManager = (*RoleService)(nil)

func NewRoleService(registry *authz.Registry, config Config) *RoleService {
	return &RoleService{
		registry:    registry,
		roles:       config.RoleStore.Role,
		permissions: config.RoleStore.Permission,
		tx:          config.TxStore,
		grants:      config.CacheStore.Grants,
		policy:      config.GrantPolicy.Normalize(),
		logger:      resolveLogger(config.Logger),
	}
}

func (s *RoleService) IsGranted(ctx context.Context, roleID string, permission string) (bool, error) {
	parsed, err := parsePermissions([]string{permission})
	if err != nil {
		return false, err
	}

	snapshot, err := s.Grants(ctx, roleID)
	if err != nil {
		return false, err
	}
	return s.isGranted(snapshot, parsed[0]), nil
}

// IsGrantedAll reports whether every permission is granted. An empty list is
// not granted.
func (s *RoleService) IsGrantedAll(ctx context.Context, roleID string, permissions []string) (bool, error) {
	parsed, err := parsePermissions(permissions)
	if err != nil || len(parsed) == 0 {
		return false, err
	}

	snapshot, err := s.Grants(ctx, roleID)
	if err != nil {
		return false, err
	}

	for _, permission := range parsed {
		if !s.isGranted(snapshot, permission) {
			return false, nil
		}
	}
	return true, nil
}

func (s *RoleService) IsGrantedAny(ctx context.Context, roleID string, permissions []string) (bool, error) {
	parsed, err := parsePermissions(permissions)
	if err != nil || len(parsed) == 0 {
		return false, err
	}

	snapshot, err := s.Grants(ctx, roleID)
	if err != nil {
		return false, err
	}

	for _, permission := range parsed {
		if s.isGranted(snapshot, permission) {
			return true, nil
		}
	}
	return false, nil
}

// Admin roles hold every permission the registry supports.
func (s *RoleService) isGranted(snapshot ocache.GrantSnapshot, permission authz.Permission) bool {
	if snapshot.IsAdmin {
		return s.registry.IsSupported(permission)
	}
	return s.registry.IsGrantedPermission(snapshot.Grants, permission)
}

// Grants loads the stored masks of a role, reading through the grant cache
// when the policy allows it.
func (s *RoleService) Grants(ctx context.Context, roleID string) (ocache.GrantSnapshot, error) {
	if err := s.requireStores(); err != nil {
		return ocache.GrantSnapshot{}, err
	}
	if roleID == "" {
		return ocache.GrantSnapshot{}, oerrors.New(oerrors.CodeInvalidInput, "role id is required")
	}

	if s.cacheEnabled() {
		snapshot, ok, err := s.grants.GetGrants(ctx, roleID)
		switch {
		case err != nil && s.policy.FailureMode == storage.FailureModeClosed:
			return ocache.GrantSnapshot{}, oerrors.Wrap(oerrors.CodeCacheUnavailable, "failed to read cached grants", err)
		case err != nil:
			s.logger.Error(err, "grant cache read failed, falling back to storage", "role_id", roleID)
		case ok:
			return snapshot, nil
		}
	}

	generation := s.cacheGeneration()
	snapshot, err := s.loadGrants(ctx, roleID)
	if err != nil {
		return ocache.GrantSnapshot{}, err
	}

	if s.cacheEnabled() {
		if err := s.fillCache(ctx, roleID, snapshot, generation); err != nil {
			if s.policy.FailureMode == storage.FailureModeClosed {
				return ocache.GrantSnapshot{}, oerrors.Wrap(oerrors.CodeCacheUnavailable, "failed to cache grants", err)
			}
			s.logger.Error(err, "grant cache write failed", "role_id", roleID)
		}
	}

	return snapshot, nil
}

func (s *RoleService) loadGrants(ctx context.Context, roleID string) (ocache.GrantSnapshot, error) {
	role, err := s.roles.GetRole(ctx, roleID)
	if err != nil {
		return ocache.GrantSnapshot{}, storageError("failed to load role", err)
	}

	records, err := s.permissions.ListPermissionsByRole(ctx, roleID)
	if err != nil {
		return ocache.GrantSnapshot{}, storageError("failed to load role permissions", err)
	}

	grants := authz.Grants{}
	for _, record := range records {
		granted, ok := grants[record.Bundle]
		if !ok {
			granted = authz.GrantedMask{}
			grants[record.Bundle] = granted
		}
		granted[record.Name] |= authz.Mask(record.Bitwise)
	}

	return ocache.GrantSnapshot{
		RoleID:  role.ID,
		IsAdmin: role.IsAdmin,
		Grants:  grants,
	}, nil
}

// SaveRolePermissions expands the selection, stores the role with its masks
// and returns the expanded selection.
func (s *RoleService) SaveRolePermissions(ctx context.Context, input SaveRoleInput) (authz.Selection, error) {
	if err := s.requireStores(); err != nil {
		return nil, err
	}

	input = input.Normalize()
	if input.RoleID == "" {
		return nil, oerrors.New(oerrors.CodeInvalidInput, "role id is required")
	}
	if err := s.validateSelection(input.Permissions); err != nil {
		return nil, err
	}

	selection := input.Permissions
	s.registry.Expand(selection)
	records := permissionRecords(input.RoleID, s.registry.Encode(selection))

	role := storage.RoleRecord{
		ID:          input.RoleID,
		Name:        input.Name,
		Description: input.Description,
		IsAdmin:     input.IsAdmin,
	}

	err := s.withRoleTx(ctx, func(material storage.RoleMaterial) error {
		if err := material.Role.PutRole(ctx, role); err != nil {
			return err
		}
		return material.Permission.ReplaceRolePermissions(ctx, input.RoleID, records)
	})
	if err != nil {
		return nil, storageError("failed to save role permissions", err)
	}

	s.invalidate(ctx, input.RoleID)
	s.logger.V(1).Info("saved role permissions", "role_id", input.RoleID, "records", len(records))
	return selection, nil
}

// validateSelection rejects bundles, names and levels the registry does not
// support.
func (s *RoleService) validateSelection(selection authz.Selection) error {
	for bundle, requested := range selection {
		schema, ok := s.registry.Schema(bundle)
		if !ok {
			return oerrors.New(oerrors.CodeInvalidPermission, "unknown permission bundle "+bundle)
		}
		for name, levels := range requested {
			for _, level := range levels {
				if !schema.IsSupported(name, level) {
					permission := authz.Permission{Bundle: bundle, Name: name, Level: level}
					return oerrors.New(oerrors.CodeInvalidPermission, "unsupported permission "+permission.String())
				}
			}
		}
	}
	return nil
}

// RolePermissions returns the stored levels of a role per bundle.
func (s *RoleService) RolePermissions(ctx context.Context, roleID string) (authz.Selection, error) {
	snapshot, err := s.Grants(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return s.registry.Decode(snapshot.Grants), nil
}

// PermissionRatio returns the granted/available pair of every bundle. Admin
// roles report every bundle as fully granted.
func (s *RoleService) PermissionRatio(ctx context.Context, roleID string) (map[string]authz.Ratio, error) {
	snapshot, err := s.Grants(ctx, roleID)
	if err != nil {
		return nil, err
	}

	grants := snapshot.Grants
	if snapshot.IsAdmin {
		grants = s.registry.FullGrants()
	}
	return s.registry.Ratios(s.registry.Decode(grants)), nil
}

func (s *RoleService) DeleteRole(ctx context.Context, roleID string) error {
	if err := s.requireStores(); err != nil {
		return err
	}
	if roleID == "" {
		return oerrors.New(oerrors.CodeInvalidInput, "role id is required")
	}

	err := s.withRoleTx(ctx, func(material storage.RoleMaterial) error {
		if err := material.Permission.DeleteRolePermissions(ctx, roleID); err != nil {
			return err
		}
		return material.Role.DeleteRole(ctx, roleID)
	})
	if err != nil {
		return storageError("failed to delete role", err)
	}

	s.invalidate(ctx, roleID)
	s.logger.V(1).Info("deleted role", "role_id", roleID)
	return nil
}

func (s *RoleService) withRoleTx(ctx context.Context, fn func(material storage.RoleMaterial) error) error {
	if s.tx != nil {
		return s.tx.WithRoleTx(ctx, fn)
	}
	return fn(storage.RoleMaterial{Role: s.roles, Permission: s.permissions})
}

func (s *RoleService) cacheGeneration() uint64 {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	return s.generation
}

// fillCache stores snapshot unless grants were invalidated after generation
// was read, in which case snapshot may predate the write.
func (s *RoleService) fillCache(ctx context.Context, roleID string, snapshot ocache.GrantSnapshot, generation uint64) error {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()

	if s.generation != generation {
		s.logger.V(1).Info("skipped grant cache fill after concurrent write", "role_id", roleID)
		return nil
	}
	return s.grants.SetGrants(ctx, roleID, snapshot, s.policy.MaxCacheTTL)
}

// invalidate runs after a committed write. Bumping the generation first keeps
// in-flight loads of the old rows out of the cache.
func (s *RoleService) invalidate(ctx context.Context, roleID string) {
	s.fillMu.Lock()
	s.generation++
	s.fillMu.Unlock()

	if s.grants == nil {
		return
	}
	if err := s.grants.DeleteGrants(ctx, roleID); err != nil {
		s.logger.Error(err, "failed to invalidate cached grants", "role_id", roleID)
	}
}

func (s *RoleService) cacheEnabled() bool {
	return s.grants != nil && s.policy.UsesCache()
}

func (s *RoleService) requireStores() error {
	if s == nil || s.registry == nil {
		return oerrors.ErrMissingRegistry
	}
	if s.roles == nil || s.permissions == nil {
		return oerrors.ErrMissingStore
	}
	return nil
}

func parsePermissions(values []string) ([]authz.Permission, error) {
	parsed := make([]authz.Permission, 0, len(values))
	for _, value := range values {
		permission, err := authz.ParsePermission(value)
		if err != nil {
			return nil, oerrors.Wrap(oerrors.CodeInvalidPermission, "invalid permission", err)
		}
		parsed = append(parsed, permission)
	}
	return parsed, nil
}

// permissionRecords flattens grants into rows ordered by bundle then name.
// Zero masks are not stored.
func permissionRecords(roleID string, grants authz.Grants) []storage.PermissionRecord {
	records := []storage.PermissionRecord{}
	for bundle, granted := range grants {
		for name, mask := range granted {
			if mask == 0 {
				continue
			}
			records = append(records, storage.PermissionRecord{
				RoleID:  roleID,
				Bundle:  bundle,
				Name:    name,
				Bitwise: uint64(mask),
			})
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Bundle != records[j].Bundle {
			return records[i].Bundle < records[j].Bundle
		}
		return records[i].Name < records[j].Name
	})
	return records
}

func storageError(message string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return oerrors.Wrap(oerrors.CodeNotFound, "role not found", err)
	}
	if errors.Is(err, storage.ErrInvalidID) {
		return oerrors.Wrap(oerrors.CodeInvalidInput, message, err)
	}
	return oerrors.Wrap(oerrors.CodeStorageUnavailable, message, err)
}
