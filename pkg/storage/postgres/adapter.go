package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/porthorian/openperm/pkg/storage"
)

type Adapter struct {
	db *sql.DB
	tx *sql.Tx

	stmts preparedStatements
}

type preparedStatements struct {
	putRole    *sql.Stmt
	getRole    *sql.Stmt
	deleteRole *sql.Stmt

	putPermission          *sql.Stmt
	listPermissionByRoleID *sql.Stmt
	deletePermissionByRole *sql.Stmt
}

type prepareStatementSpec struct {
	label  string
	query  string
	assign func(*preparedStatements, *sql.Stmt)
}

var fixedPrepareStatementSpecs = []prepareStatementSpec{
	{
		label: "put role",
		query: putRoleQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.putRole = stmt
		},
	},
	{
		label: "get role",
		query: getRoleQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.getRole = stmt
		},
	},
	{
		label: "delete role",
		query: deleteRoleQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.deleteRole = stmt
		},
	},
	{
		label: "put role permission",
		query: putPermissionQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.putPermission = stmt
		},
	},
	{
		label: "list role permission by role_id",
		query: listPermissionByRoleIDQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.listPermissionByRoleID = stmt
		},
	},
	{
		label: "delete role permission by role_id",
		query: deletePermissionByRoleIDQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.deletePermissionByRole = stmt
		},
	},
}

var (
	ErrNilDB                 = errors.New("postgres adapter: db is nil")
	ErrAdapterNotInitialized = errors.New("postgres adapter: adapter not initialized")
	ErrEmptyID               = errors.New("postgres adapter: id is required")
)

var _ storage.Store = (*Adapter)(nil)
var _ storage.RoleTxStore = (*Adapter)(nil)

func NewAdapter(db *sql.DB) (*Adapter, error) {
	adapter := &Adapter{db: db}

	if err := adapter.prepareStatements(); err != nil {
		_ = adapter.Close()
		return nil, err
	}

	return adapter, nil
}

func (a *Adapter) Close() error {
	if a == nil || a.tx != nil {
		return nil
	}

	return closeStatements(
		a.stmts.putRole,
		a.stmts.getRole,
		a.stmts.deleteRole,
		a.stmts.putPermission,
		a.stmts.listPermissionByRoleID,
		a.stmts.deletePermissionByRole,
	)
}

func (a *Adapter) prepareStatements() (err error) {
	db, err := a.requireDB()
	if err != nil {
		return err
	}

	prepared := make([]*sql.Stmt, 0, len(fixedPrepareStatementSpecs))
	defer func() {
		if err != nil {
			_ = closeStatements(prepared...)
		}
	}()

	for _, spec := range fixedPrepareStatementSpecs {
		stmt, prepErr := db.Prepare(spec.query)
		if prepErr != nil {
			err = fmt.Errorf("postgres adapter: prepare %s statement: %w", spec.label, prepErr)
			return err
		}
		prepared = append(prepared, stmt)
		spec.assign(&a.stmts, stmt)
	}
	return nil
}

func (a *Adapter) requirePreparedStatements() error {
	if _, err := a.requireDB(); err != nil {
		return err
	}

	if a.stmts.putRole == nil || a.stmts.getRole == nil || a.stmts.deleteRole == nil {
		return ErrAdapterNotInitialized
	}
	if a.stmts.putPermission == nil || a.stmts.listPermissionByRoleID == nil || a.stmts.deletePermissionByRole == nil {
		return ErrAdapterNotInitialized
	}

	return nil
}

func (a *Adapter) requireDB() (*sql.DB, error) {
	if a == nil || a.db == nil {
		return nil, ErrNilDB
	}
	return a.db, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func closeStatements(stmts ...*sql.Stmt) error {
	var errs []error
	for _, stmt := range stmts {
		if stmt == nil {
			continue
		}
		if err := stmt.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// roleKey canonicalizes id for the uuid role columns. ok is false for ids the
// column cannot hold; such roles cannot exist.
func roleKey(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

func invalidRoleID(id string) error {
	return fmt.Errorf("%w: role id %q is not a uuid", storage.ErrInvalidID, id)
}
