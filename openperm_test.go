package openperm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porthorian/openperm/pkg/authz"
	oerrors "github.com/porthorian/openperm/pkg/errors"
)

func newMemoryClient(t *testing.T) *Client {
	t.Helper()

	client, err := New(newTestRegistry(t), Config{
		Runtime: RuntimeConfig{
			Storage: StorageConfig{Backend: StorageBackendMemory},
			Cache:   CacheConfig{Backend: CacheBackendMemory},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestNewRequiresRegistryAndStores(t *testing.T) {
	_, err := New(nil, Config{})
	require.ErrorIs(t, err, oerrors.ErrMissingRegistry)

	_, err = New(newTestRegistry(t), Config{})
	require.ErrorIs(t, err, oerrors.ErrMissingStore)
}

func TestNewFreezesRegistry(t *testing.T) {
	client := newMemoryClient(t)

	err := client.Registry().Register(testBundle{name: "late", define: func(schema *authz.Schema) error {
		return schema.AddManagePermission([]string{"settings"})
	}})
	require.ErrorIs(t, err, authz.ErrRegistryFrozen)
}

func TestClientRoundTrip(t *testing.T) {
	client := newMemoryClient(t)
	ctx := context.Background()

	_, err := client.SaveRolePermissions(ctx, SaveRoleInput{
		RoleID: "publisher",
		Name:   "Publishers",
		Permissions: authz.Selection{
			"page": {"pages": {authz.LevelPublish}},
		},
	})
	require.NoError(t, err)

	granted, err := client.IsGranted(ctx, "publisher", "page:pages:view")
	require.NoError(t, err)
	assert.True(t, granted, "publish implies view")

	granted, err = client.IsGrantedAny(ctx, "publisher", []string{"page:pages:delete", "page:pages:publish"})
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = client.IsGrantedAll(ctx, "publisher", []string{"page:pages:edit", "page:pages:publish"})
	require.NoError(t, err)
	assert.False(t, granted)

	selection, err := client.RolePermissions(ctx, "publisher")
	require.NoError(t, err)
	assert.ElementsMatch(t, []authz.Level{authz.LevelView, authz.LevelPublish}, selection["page"]["pages"])

	ratios, err := client.PermissionRatio(ctx, "publisher")
	require.NoError(t, err)
	assert.Equal(t, authz.Ratio{Granted: 2, Available: 5}, ratios["page"])

	require.NoError(t, client.DeleteRole(ctx, "publisher"))
	_, err = client.IsGranted(ctx, "publisher", "page:pages:view")
	require.True(t, oerrors.IsCode(err, oerrors.CodeNotFound), "got %v", err)
}

func TestClosedClientRejectsCalls(t *testing.T) {
	client := newMemoryClient(t)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err := client.IsGranted(context.Background(), "role", "page:pages:view")
	require.ErrorIs(t, err, oerrors.ErrMissingRegistry)

	var nilClient *Client
	_, err = nilClient.IsGranted(context.Background(), "role", "page:pages:view")
	require.ErrorIs(t, err, oerrors.ErrMissingRegistry)
}
