// Package testsuite holds the behavior every storage adapter must share.
package testsuite

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porthorian/openperm/pkg/storage"
)

// Run exercises store against the storage contracts. Every case works on
// fresh role IDs, so newStore may hand out the same backing database.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Helper()

	t.Run("role round trip", func(t *testing.T) {
		testRoleRoundTrip(t, newStore(t))
	})
	t.Run("missing role", func(t *testing.T) {
		testMissingRole(t, newStore(t))
	})
	t.Run("replace permissions", func(t *testing.T) {
		testReplacePermissions(t, newStore(t))
	})
	t.Run("delete role drops permissions", func(t *testing.T) {
		testDeleteRole(t, newStore(t))
	})
	t.Run("high bits survive", func(t *testing.T) {
		testHighBits(t, newStore(t))
	})
	t.Run("malformed role id reads as missing", func(t *testing.T) {
		testMalformedRoleID(t, newStore(t))
	})
}

func testRoleRoundTrip(t *testing.T, store storage.Store) {
	ctx := context.Background()
	id := uuid.NewString()

	require.NoError(t, store.PutRole(ctx, storage.RoleRecord{ID: id, Name: "Sales", Description: "sales team"}))

	role, err := store.GetRole(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, role.ID)
	assert.Equal(t, "Sales", role.Name)
	assert.Equal(t, "sales team", role.Description)
	assert.False(t, role.IsAdmin)
	assert.False(t, role.DateAdded.IsZero())

	require.NoError(t, store.PutRole(ctx, storage.RoleRecord{ID: id, Name: "Sales Admins", IsAdmin: true}))

	role, err = store.GetRole(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Sales Admins", role.Name)
	assert.True(t, role.IsAdmin)
	require.NotNil(t, role.DateModified)
}

func testMissingRole(t *testing.T, store storage.Store) {
	_, err := store.GetRole(context.Background(), uuid.NewString())
	require.True(t, errors.Is(err, storage.ErrNotFound), "expected ErrNotFound, got %v", err)
}

func testReplacePermissions(t *testing.T, store storage.Store) {
	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, store.PutRole(ctx, storage.RoleRecord{ID: id, Name: "Editors"}))

	require.NoError(t, store.ReplaceRolePermissions(ctx, id, []storage.PermissionRecord{
		{Bundle: "lead", Name: "leads", Bitwise: 2 | 8},
		{Bundle: "email", Name: "emails", Bitwise: 1024},
	}))
	require.NoError(t, store.ReplaceRolePermissions(ctx, id, []storage.PermissionRecord{
		{Bundle: "lead", Name: "leads", Bitwise: 4},
		{Bundle: "lead", Name: "imports", Bitwise: 32},
	}))

	records, err := store.ListPermissionsByRole(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "lead", records[0].Bundle)
	assert.Equal(t, "imports", records[0].Name)
	assert.Equal(t, uint64(32), records[0].Bitwise)
	assert.Equal(t, "leads", records[1].Name)
	assert.Equal(t, uint64(4), records[1].Bitwise)
	for _, record := range records {
		assert.Equal(t, id, record.RoleID)
		assert.NotEmpty(t, record.ID)
	}

	require.NoError(t, store.DeleteRolePermissions(ctx, id))
	records, err = store.ListPermissionsByRole(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func testDeleteRole(t *testing.T, store storage.Store) {
	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, store.PutRole(ctx, storage.RoleRecord{ID: id, Name: "Temp"}))
	require.NoError(t, store.ReplaceRolePermissions(ctx, id, []storage.PermissionRecord{
		{Bundle: "lead", Name: "leads", Bitwise: 4},
	}))

	require.NoError(t, store.DeleteRole(ctx, id))

	_, err := store.GetRole(ctx, id)
	require.ErrorIs(t, err, storage.ErrNotFound)

	records, err := store.ListPermissionsByRole(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func testHighBits(t *testing.T, store storage.Store) {
	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, store.PutRole(ctx, storage.RoleRecord{ID: id, Name: "Wide"}))

	const mask = uint64(1)<<62 | 1024
	require.NoError(t, store.ReplaceRolePermissions(ctx, id, []storage.PermissionRecord{
		{Bundle: "lead", Name: "leads", Bitwise: mask},
	}))

	records, err := store.ListPermissionsByRole(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, mask, records[0].Bitwise)
}

// Role ids come from request headers; ids a backend cannot hold must look like
// unknown roles rather than failures.
func testMalformedRoleID(t *testing.T, store storage.Store) {
	ctx := context.Background()

	for _, id := range []string{"not-a-uuid", "'; drop table role; --", "123"} {
		_, err := store.GetRole(ctx, id)
		require.True(t, errors.Is(err, storage.ErrNotFound), "GetRole(%q): expected ErrNotFound, got %v", id, err)

		records, err := store.ListPermissionsByRole(ctx, id)
		require.NoError(t, err, id)
		assert.Empty(t, records, id)

		require.NoError(t, store.DeleteRolePermissions(ctx, id), id)
		require.NoError(t, store.DeleteRole(ctx, id), id)
	}
}
