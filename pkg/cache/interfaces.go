package cache

import (
	"context"
	"time"

	"github.com/porthorian/openperm/pkg/authz"
)

type GrantSnapshot struct {
	RoleID  string
	IsAdmin bool
	Grants  authz.Grants
}

type GrantCache interface {
	SetGrants(ctx context.Context, key string, snapshot GrantSnapshot, ttl time.Duration) error
	GetGrants(ctx context.Context, key string) (GrantSnapshot, bool, error)
	DeleteGrants(ctx context.Context, key string) error
}

type Dependencies struct {
	Grants GrantCache
}

// CloneGrants deep copies grants so cached values never alias caller maps.
func CloneGrants(grants authz.Grants) authz.Grants {
	cloned := make(authz.Grants, len(grants))
	for bundle, granted := range grants {
		masks := make(authz.GrantedMask, len(granted))
		for name, mask := range granted {
			masks[name] = mask
		}
		cloned[bundle] = masks
	}
	return cloned
}
