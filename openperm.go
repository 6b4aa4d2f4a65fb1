package openperm

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/porthorian/openperm/pkg/authz"
	ocache "github.com/porthorian/openperm/pkg/cache"
	oerrors "github.com/porthorian/openperm/pkg/errors"
	"github.com/porthorian/openperm/pkg/storage"
)

type Config struct {
	RoleStore   storage.RoleMaterial
	TxStore     storage.RoleTxStore
	CacheStore  ocache.Dependencies
	Logger      logr.Logger
	GrantPolicy storage.GrantPolicy
	Runtime     RuntimeConfig
}

type Client struct {
	registry      *authz.Registry
	service       *RoleService
	logger        logr.Logger
	closeResource func() error
}

var _ Authorizer = (*Client)(nil)
var _ RoleManager = (*Client)(nil)

// New freezes registry and wires the stores and caches described by config.
func New(registry *authz.Registry, config Config) (*Client, error) {
	if registry == nil {
		return nil, oerrors.ErrMissingRegistry
	}

	closeResource, resolvedConfig, err := config.initialize(context.Background())
	if err != nil {
		return nil, err
	}

	if resolvedConfig.RoleStore.Role == nil || resolvedConfig.RoleStore.Permission == nil {
		_ = closeResource()
		return nil, oerrors.ErrMissingStore
	}

	registry.Freeze()
	resolvedConfig.Logger.V(1).Info("initialized permission client", "bundles", registry.Bundles())

	return &Client{
		registry:      registry,
		service:       NewRoleService(registry, resolvedConfig),
		logger:        resolvedConfig.Logger,
		closeResource: closeResource,
	}, nil
}

func (c *Client) Registry() *authz.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Client) IsGranted(ctx context.Context, roleID string, permission string) (bool, error) {
	if c == nil || c.service == nil {
		return false, oerrors.ErrMissingRegistry
	}
	return c.service.IsGranted(ctx, roleID, permission)
}

func (c *Client) IsGrantedAll(ctx context.Context, roleID string, permissions []string) (bool, error) {
	if c == nil || c.service == nil {
		return false, oerrors.ErrMissingRegistry
	}
	return c.service.IsGrantedAll(ctx, roleID, permissions)
}

func (c *Client) IsGrantedAny(ctx context.Context, roleID string, permissions []string) (bool, error) {
	if c == nil || c.service == nil {
		return false, oerrors.ErrMissingRegistry
	}
	return c.service.IsGrantedAny(ctx, roleID, permissions)
}

func (c *Client) SaveRolePermissions(ctx context.Context, input SaveRoleInput) (authz.Selection, error) {
	if c == nil || c.service == nil {
		return nil, oerrors.ErrMissingRegistry
	}
	return c.service.SaveRolePermissions(ctx, input)
}

func (c *Client) RolePermissions(ctx context.Context, roleID string) (authz.Selection, error) {
	if c == nil || c.service == nil {
		return nil, oerrors.ErrMissingRegistry
	}
	return c.service.RolePermissions(ctx, roleID)
}

func (c *Client) PermissionRatio(ctx context.Context, roleID string) (map[string]authz.Ratio, error) {
	if c == nil || c.service == nil {
		return nil, oerrors.ErrMissingRegistry
	}
	return c.service.PermissionRatio(ctx, roleID)
}

func (c *Client) DeleteRole(ctx context.Context, roleID string) error {
	if c == nil || c.service == nil {
		return oerrors.ErrMissingRegistry
	}
	return c.service.DeleteRole(ctx, roleID)
}

func (c *Client) Close() error {
	if c == nil || c.closeResource == nil {
		return nil
	}

	err := c.closeResource()
	if err != nil {
		return oerrors.Wrap(oerrors.CodeUnknown, "failed to close client resources", err)
	}
	c.closeResource = nil
	c.service = nil
	return nil
}
