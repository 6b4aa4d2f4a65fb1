package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/porthorian/openperm/pkg/storage"
)

const (
	putPermissionQuery = `
INSERT INTO openperm.role_permission (
  id, role_id, bundle, name, bitwise, date_added
) VALUES ($1, $2, $3, $4, $5, $6)
`

	listPermissionByRoleIDQuery = `
SELECT
  id::text, role_id::text, bundle, name, bitwise
FROM openperm.role_permission
WHERE role_id = $1
ORDER BY bundle, name
`

	deletePermissionByRoleIDQuery = `
DELETE FROM openperm.role_permission
WHERE role_id = $1
`
)

func (a *Adapter) ReplaceRolePermissions(ctx context.Context, roleID string, records []storage.PermissionRecord) error {
	if roleID == "" {
		return ErrEmptyID
	}
	key, ok := roleKey(roleID)
	if !ok {
		return invalidRoleID(roleID)
	}
	roleID = key
	if err := a.requirePreparedStatements(); err != nil {
		return err
	}

	if a.tx != nil {
		return a.replacePermissionsInTx(ctx, a.tx, roleID, records)
	}

	db, err := a.requireDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := a.replacePermissionsInTx(ctx, tx, roleID, records); err != nil {
		return err
	}

	return tx.Commit()
}

func (a *Adapter) replacePermissionsInTx(ctx context.Context, tx *sql.Tx, roleID string, records []storage.PermissionRecord) error {
	deleteStmt := tx.StmtContext(ctx, a.stmts.deletePermissionByRole)
	if _, err := deleteStmt.ExecContext(ctx, roleID); err != nil {
		_ = deleteStmt.Close()
		return err
	}
	_ = deleteStmt.Close()

	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	putStmt := tx.StmtContext(ctx, a.stmts.putPermission)
	defer putStmt.Close()

	for _, record := range records {
		id := record.ID
		if id == "" {
			id = uuid.NewString()
		}

		// BIGINT is signed; the mask round-trips through int64 bit for bit.
		if _, err := putStmt.ExecContext(ctx, id, roleID, record.Bundle, record.Name, int64(record.Bitwise), now); err != nil {
			return err
		}
	}

	return nil
}

func (a *Adapter) ListPermissionsByRole(ctx context.Context, roleID string) ([]storage.PermissionRecord, error) {
	key, ok := roleKey(roleID)
	if !ok {
		return []storage.PermissionRecord{}, nil
	}
	if err := a.requirePreparedStatements(); err != nil {
		return nil, err
	}

	stmt, release := a.stmt(ctx, a.stmts.listPermissionByRoleID)
	defer release()

	rows, err := stmt.QueryContext(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []storage.PermissionRecord{}
	for rows.Next() {
		record, scanErr := scanPermission(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

func (a *Adapter) DeleteRolePermissions(ctx context.Context, roleID string) error {
	key, ok := roleKey(roleID)
	if !ok {
		return nil
	}
	if err := a.requirePreparedStatements(); err != nil {
		return err
	}

	stmt, release := a.stmt(ctx, a.stmts.deletePermissionByRole)
	defer release()

	_, err := stmt.ExecContext(ctx, key)
	return err
}

func scanPermission(row scanner) (storage.PermissionRecord, error) {
	var (
		record  storage.PermissionRecord
		bitwise int64
	)

	if err := row.Scan(
		&record.ID,
		&record.RoleID,
		&record.Bundle,
		&record.Name,
		&bitwise,
	); err != nil {
		return storage.PermissionRecord{}, err
	}

	record.Bitwise = uint64(bitwise)
	return record, nil
}
