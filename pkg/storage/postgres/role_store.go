package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/porthorian/openperm/pkg/storage"
)

const (
	putRoleQuery = `
INSERT INTO openperm.role (
  id, name, description, is_admin, date_added, date_modified
) VALUES ($1, $2, $3, $4, $5, NULL)
ON CONFLICT (id) DO UPDATE
SET
  name = EXCLUDED.name,
  description = EXCLUDED.description,
  is_admin = EXCLUDED.is_admin,
  date_modified = $6
`

	getRoleQuery = `
SELECT
  id::text, name, description, is_admin, date_added, date_modified
FROM openperm.role
WHERE id = $1
`

	deleteRoleQuery = `DELETE FROM openperm.role WHERE id = $1`
)

func (a *Adapter) PutRole(ctx context.Context, record storage.RoleRecord) error {
	if record.ID == "" {
		return ErrEmptyID
	}
	id, ok := roleKey(record.ID)
	if !ok {
		return invalidRoleID(record.ID)
	}
	if err := a.requirePreparedStatements(); err != nil {
		return err
	}

	now := time.Now().UTC()
	dateAdded := record.DateAdded
	if dateAdded.IsZero() {
		dateAdded = now
	}

	stmt, release := a.stmt(ctx, a.stmts.putRole)
	defer release()

	_, err := stmt.ExecContext(
		ctx,
		id,
		record.Name,
		record.Description,
		record.IsAdmin,
		dateAdded,
		now,
	)
	return err
}

func (a *Adapter) GetRole(ctx context.Context, id string) (storage.RoleRecord, error) {
	key, ok := roleKey(id)
	if !ok {
		return storage.RoleRecord{}, storage.ErrNotFound
	}
	if err := a.requirePreparedStatements(); err != nil {
		return storage.RoleRecord{}, err
	}

	stmt, release := a.stmt(ctx, a.stmts.getRole)
	defer release()

	record, err := scanRole(stmt.QueryRowContext(ctx, key))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.RoleRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.RoleRecord{}, err
	}
	return record, nil
}

// DeleteRole relies on the role_permission foreign key to drop the rows.
func (a *Adapter) DeleteRole(ctx context.Context, id string) error {
	key, ok := roleKey(id)
	if !ok {
		return nil
	}
	if err := a.requirePreparedStatements(); err != nil {
		return err
	}

	stmt, release := a.stmt(ctx, a.stmts.deleteRole)
	defer release()

	_, err := stmt.ExecContext(ctx, key)
	return err
}

// stmt binds a prepared statement to the adapter transaction when there is one.
func (a *Adapter) stmt(ctx context.Context, prepared *sql.Stmt) (*sql.Stmt, func()) {
	if a.tx == nil {
		return prepared, func() {}
	}

	txStmt := a.tx.StmtContext(ctx, prepared)
	return txStmt, func() {
		_ = txStmt.Close()
	}
}

func scanRole(row scanner) (storage.RoleRecord, error) {
	var (
		record       storage.RoleRecord
		dateAdded    time.Time
		dateModified sql.NullTime
	)

	if err := row.Scan(
		&record.ID,
		&record.Name,
		&record.Description,
		&record.IsAdmin,
		&dateAdded,
		&dateModified,
	); err != nil {
		return storage.RoleRecord{}, err
	}

	record.DateAdded = dateAdded.UTC()
	if dateModified.Valid {
		value := dateModified.Time.UTC()
		record.DateModified = &value
	}

	return record, nil
}
