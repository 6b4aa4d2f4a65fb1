package openperm

import (
	"context"
	"strings"

	"github.com/porthorian/openperm/pkg/authz"
)

// Authorizer answers "bundle:name:level" checks for a role.
type Authorizer interface {
	IsGranted(ctx context.Context, roleID string, permission string) (bool, error)
	IsGrantedAll(ctx context.Context, roleID string, permissions []string) (bool, error)
	IsGrantedAny(ctx context.Context, roleID string, permissions []string) (bool, error)
}

type RoleManager interface {
	SaveRolePermissions(ctx context.Context, input SaveRoleInput) (authz.Selection, error)
	RolePermissions(ctx context.Context, roleID string) (authz.Selection, error)
	PermissionRatio(ctx context.Context, roleID string) (map[string]authz.Ratio, error)
	DeleteRole(ctx context.Context, roleID string) error
}

type SaveRoleInput struct {
	RoleID      string
	Name        string
	Description string
	IsAdmin     bool
	// Permissions is the raw form selection; it is expanded before it is stored.
	Permissions authz.Selection
}

// Normalize trims identifiers and returns a deep copy of the selection with
// empty bundles, names and levels dropped.
func (i SaveRoleInput) Normalize() SaveRoleInput {
	selection := make(authz.Selection, len(i.Permissions))
	for bundle, requested := range i.Permissions {
		bundle = strings.TrimSpace(bundle)
		if bundle == "" {
			continue
		}

		levels := selection[bundle]
		if levels == nil {
			levels = make(authz.RequestedLevels, len(requested))
		}
		for name, values := range requested {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}

			kept := make([]authz.Level, 0, len(values))
			for _, level := range values {
				level = authz.Level(strings.TrimSpace(string(level)))
				if level == "" {
					continue
				}
				kept = append(kept, level)
			}
			levels[name] = append(levels[name], kept...)
		}
		selection[bundle] = levels
	}

	return SaveRoleInput{
		RoleID:      strings.TrimSpace(i.RoleID),
		Name:        strings.TrimSpace(i.Name),
		Description: strings.TrimSpace(i.Description),
		IsAdmin:     i.IsAdmin,
		Permissions: selection,
	}
}
