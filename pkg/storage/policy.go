package storage

import "time"

type CacheRole string

const (
	CacheRoleNone        CacheRole = "none"
	CacheRoleReadThrough CacheRole = "read_through"
)

// FailureMode decides what a cache error does to a grant lookup.
type FailureMode string

const (
	// FailureModeClosed surfaces cache errors to the caller.
	FailureModeClosed FailureMode = "fail_closed"
	// FailureModeOpen logs cache errors and reads from the source of truth.
	FailureModeOpen FailureMode = "fail_open"
)

type GrantPolicy struct {
	CacheRole   CacheRole
	MaxCacheTTL time.Duration
	FailureMode FailureMode
}

func DefaultGrantPolicy() GrantPolicy {
	return GrantPolicy{
		CacheRole:   CacheRoleReadThrough,
		MaxCacheTTL: 5 * time.Minute,
		FailureMode: FailureModeOpen,
	}
}

// Normalize fills zero fields from DefaultGrantPolicy.
func (p GrantPolicy) Normalize() GrantPolicy {
	defaults := DefaultGrantPolicy()

	if p.CacheRole == "" {
		p.CacheRole = defaults.CacheRole
	}
	if p.MaxCacheTTL <= 0 {
		p.MaxCacheTTL = defaults.MaxCacheTTL
	}
	if p.FailureMode == "" {
		p.FailureMode = defaults.FailureMode
	}
	return p
}

func (p GrantPolicy) UsesCache() bool {
	return p.CacheRole == CacheRoleReadThrough && p.MaxCacheTTL > 0
}
