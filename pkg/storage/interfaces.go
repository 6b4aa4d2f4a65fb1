package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("storage: record not found")
	// ErrInvalidID is returned by writes whose id the backend cannot store.
	ErrInvalidID = errors.New("storage: invalid record id")
)

type RoleRecord struct {
	ID           string
	Name         string
	Description  string
	IsAdmin      bool
	DateAdded    time.Time
	DateModified *time.Time
}

// PermissionRecord is one stored mask: the OR of every level bit the role
// holds for Name in Bundle.
type PermissionRecord struct {
	ID      string
	RoleID  string
	Bundle  string
	Name    string
	Bitwise uint64
}

type RoleStore interface {
	PutRole(ctx context.Context, record RoleRecord) error
	GetRole(ctx context.Context, id string) (RoleRecord, error)
	DeleteRole(ctx context.Context, id string) error
}

type PermissionStore interface {
	// ReplaceRolePermissions drops every stored row of the role and writes records.
	ReplaceRolePermissions(ctx context.Context, roleID string, records []PermissionRecord) error
	ListPermissionsByRole(ctx context.Context, roleID string) ([]PermissionRecord, error)
	DeleteRolePermissions(ctx context.Context, roleID string) error
}

type RoleMaterial struct {
	Role       RoleStore
	Permission PermissionStore
}

// RoleTxStore runs fn with stores bound to a single transaction.
type RoleTxStore interface {
	WithRoleTx(ctx context.Context, fn func(material RoleMaterial) error) error
}

type Store interface {
	RoleStore
	PermissionStore
}
