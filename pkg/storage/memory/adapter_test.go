package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/porthorian/openperm/pkg/storage"
	"github.com/porthorian/openperm/pkg/storage/testsuite"
)

func TestAdapterContract(t *testing.T) {
	testsuite.Run(t, func(t *testing.T) storage.Store {
		return NewAdapter()
	})
}

func TestAdapterRejectsEmptyIDs(t *testing.T) {
	adapter := NewAdapter()

	require.ErrorIs(t, adapter.PutRole(context.Background(), storage.RoleRecord{Name: "nameless"}), ErrEmptyID)
	require.ErrorIs(t, adapter.ReplaceRolePermissions(context.Background(), "", nil), ErrEmptyID)
}

func TestWithRoleTxCommitsOnSuccess(t *testing.T) {
	adapter := NewAdapter()
	ctx := context.Background()

	err := adapter.WithRoleTx(ctx, func(material storage.RoleMaterial) error {
		if err := material.Role.PutRole(ctx, storage.RoleRecord{ID: "role-1", Name: "Sales"}); err != nil {
			return err
		}
		return material.Permission.ReplaceRolePermissions(ctx, "role-1", []storage.PermissionRecord{
			{Bundle: "lead", Name: "leads", Bitwise: 4},
		})
	})
	require.NoError(t, err)

	role, err := adapter.GetRole(ctx, "role-1")
	require.NoError(t, err)
	require.Equal(t, "Sales", role.Name)

	records, err := adapter.ListPermissionsByRole(ctx, "role-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestWithRoleTxDiscardsOnError(t *testing.T) {
	adapter := NewAdapter()
	ctx := context.Background()
	require.NoError(t, adapter.PutRole(ctx, storage.RoleRecord{ID: "role-1", Name: "Sales"}))

	boom := errors.New("boom")
	err := adapter.WithRoleTx(ctx, func(material storage.RoleMaterial) error {
		if err := material.Role.DeleteRole(ctx, "role-1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	role, err := adapter.GetRole(ctx, "role-1")
	require.NoError(t, err)
	require.Equal(t, "Sales", role.Name)
}

func TestWithRoleTxRejectsNilCallback(t *testing.T) {
	require.ErrorIs(t, NewAdapter().WithRoleTx(context.Background(), nil), ErrNilTxCallback)
}
