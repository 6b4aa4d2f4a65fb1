// Package authz implements the bitwise permission model: per-bundle schemas
// of permission names and level bits, synonym resolution between the
// collapsed (view, edit, ...) and own/other vocabularies, implication
// expansion of submitted selections, grant evaluation and ratio reporting.
//
// # Bit layout
//
// Every level maps to one shared bit (see the Bit constants). The layout is
// persisted by callers as one integer per role and permission name, so the
// values are fixed. view and viewother share a bit, as do edit/editother,
// delete/deleteother and publish/publishother, which lets a bundle switch
// between the standard and extended sets without invalidating stored masks.
//
// # Lifecycle
//
// Bundles describe their permissions through [Bundle.DefinePermissions] and
// are registered once at startup with [Registry.Register]. Registered schemas
// are frozen; evaluation is pure, allocation-light and safe for concurrent use.
package authz
