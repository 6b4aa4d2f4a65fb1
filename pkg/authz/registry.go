package authz

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Bundle defines the permissions of one resource group.
type Bundle interface {
	Name() string
	DefinePermissions(schema *Schema) error
}

// Enabler is implemented by bundles that can be switched off, for example when
// the feature behind them is disabled. Disabled bundles grant nothing.
type Enabler interface {
	Enabled() bool
}

// Analyzer replaces the built-in implication rules of a bundle. all is the
// whole selection across bundles; secondRound is set when the registry calls
// back after every other bundle was analyzed. Returning true from the first
// round requests that second call.
type Analyzer interface {
	AnalyzePermissions(schema *Schema, requested RequestedLevels, all Selection, secondRound bool) bool
}

// Selection holds requested levels per bundle.
type Selection map[string]RequestedLevels

// Grants holds stored masks per bundle.
type Grants map[string]GrantedMask

var (
	ErrNilBundle         = errors.New("authz: bundle is nil")
	ErrEmptyBundleName   = errors.New("authz: bundle name is empty")
	ErrInvalidBundleName = errors.New("authz: bundle name contains " + PermissionSeparator)
	ErrDuplicateBundle   = errors.New("authz: bundle already registered")
	ErrRegistryFrozen    = errors.New("authz: registry is frozen")
	ErrInvalidPermission = errors.New("authz: invalid permission")
)

// Permission addresses one level of one permission name in a bundle. Its
// string form is "bundle:name:level".
type Permission struct {
	Bundle string
	Name   string
	Level  Level
}

func ParsePermission(value string) (Permission, error) {
	parts := strings.Split(strings.TrimSpace(value), PermissionSeparator)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Permission{}, fmt.Errorf("%w %q: expected bundle:name:level", ErrInvalidPermission, value)
	}

	return Permission{
		Bundle: parts[0],
		Name:   parts[1],
		Level:  Level(parts[2]),
	}, nil
}

func (p Permission) String() string {
	return p.Bundle + PermissionSeparator + p.Name + PermissionSeparator + string(p.Level)
}

type registeredBundle struct {
	bundle Bundle
	schema *Schema
}

// Registry is the catalogue of bundle schemas. Bundles are registered at
// startup; lookups are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	bundles map[string]registeredBundle
	frozen  bool
}

func NewRegistry(bundles ...Bundle) (*Registry, error) {
	r := &Registry{
		bundles: map[string]registeredBundle{},
	}

	for _, bundle := range bundles {
		if err := r.Register(bundle); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register builds the bundle's schema through DefinePermissions and freezes it.
func (r *Registry) Register(bundle Bundle) error {
	if bundle == nil {
		return ErrNilBundle
	}

	name := bundle.Name()
	if name == "" {
		return ErrEmptyBundleName
	}
	if strings.Contains(name, PermissionSeparator) {
		return ErrInvalidBundleName
	}

	schema := NewSchema(name)
	if err := bundle.DefinePermissions(schema); err != nil {
		return fmt.Errorf("authz: define permissions for bundle %q: %w", name, err)
	}
	schema.freeze()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	if _, exists := r.bundles[name]; exists {
		return ErrDuplicateBundle
	}

	r.bundles[name] = registeredBundle{bundle: bundle, schema: schema}
	return nil
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Schema returns the schema of an enabled bundle.
func (r *Registry) Schema(bundle string) (*Schema, bool) {
	entry, ok := r.lookup(bundle)
	if !ok {
		return nil, false
	}
	return entry.schema, true
}

// Bundles returns the names of enabled bundles sorted.
func (r *Registry) Bundles() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.bundles))
	for name, entry := range r.bundles {
		if isEnabled(entry.bundle) {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

func (r *Registry) lookup(bundle string) (registeredBundle, bool) {
	r.mu.RLock()
	entry, ok := r.bundles[bundle]
	r.mu.RUnlock()

	if !ok || !isEnabled(entry.bundle) {
		return registeredBundle{}, false
	}
	return entry, true
}

func isEnabled(bundle Bundle) bool {
	enabler, ok := bundle.(Enabler)
	if !ok {
		return true
	}
	return enabler.Enabled()
}

// IsSupported reports whether the permission exists in an enabled bundle.
func (r *Registry) IsSupported(permission Permission) bool {
	schema, ok := r.Schema(permission.Bundle)
	if !ok {
		return false
	}
	return schema.IsSupported(permission.Name, permission.Level)
}

// IsGranted evaluates a "bundle:name:level" permission against grants.
// Malformed permissions and unknown or disabled bundles are denied.
func (r *Registry) IsGranted(grants Grants, permission string) bool {
	parsed, err := ParsePermission(permission)
	if err != nil {
		return false
	}
	return r.IsGrantedPermission(grants, parsed)
}

func (r *Registry) IsGrantedPermission(grants Grants, permission Permission) bool {
	schema, ok := r.Schema(permission.Bundle)
	if !ok {
		return false
	}
	return schema.IsGranted(grants[permission.Bundle], permission.Name, permission.Level)
}

// IsGrantedAll reports whether every permission is granted. An empty list is
// not granted.
func (r *Registry) IsGrantedAll(grants Grants, permissions []string) bool {
	if len(permissions) == 0 {
		return false
	}
	for _, permission := range permissions {
		if !r.IsGranted(grants, permission) {
			return false
		}
	}
	return true
}

// IsGrantedAny reports whether at least one permission is granted.
func (r *Registry) IsGrantedAny(grants Grants, permissions []string) bool {
	for _, permission := range permissions {
		if r.IsGranted(grants, permission) {
			return true
		}
	}
	return false
}

// Expand applies implication rules to every bundle of selection in place.
// Bundles whose analyzer asks for a second round are called again, in bundle
// name order, once all first-round expansions are done.
func (r *Registry) Expand(selection Selection) {
	if selection == nil {
		return
	}

	var secondRound []registeredBundle
	for _, name := range r.Bundles() {
		entry, ok := r.lookup(name)
		if !ok {
			continue
		}
		if analyze(entry, selection, false) {
			secondRound = append(secondRound, entry)
		}
	}

	for _, entry := range secondRound {
		analyze(entry, selection, true)
	}
}

func analyze(entry registeredBundle, selection Selection, secondRound bool) bool {
	requested := selection[entry.schema.Bundle()]

	analyzer, ok := entry.bundle.(Analyzer)
	if !ok {
		return entry.schema.Expand(requested)
	}

	if requested == nil {
		requested = RequestedLevels{}
		selection[entry.schema.Bundle()] = requested
	}
	return analyzer.AnalyzePermissions(entry.schema, requested, selection, secondRound)
}

// Encode converts a selection into masks per bundle, skipping unknown bundles.
func (r *Registry) Encode(selection Selection) Grants {
	grants := make(Grants, len(selection))
	for bundle, requested := range selection {
		schema, ok := r.Schema(bundle)
		if !ok {
			continue
		}
		grants[bundle] = schema.MaskForLevels(requested)
	}
	return grants
}

// Decode converts stored masks back to level names per bundle.
func (r *Registry) Decode(grants Grants) Selection {
	selection := make(Selection, len(grants))
	for bundle, granted := range grants {
		schema, ok := r.Schema(bundle)
		if !ok {
			continue
		}
		selection[bundle] = schema.LevelsForMask(granted)
	}
	return selection
}

// Ratios computes the granted/available pair of every enabled bundle.
func (r *Registry) Ratios(selection Selection) map[string]Ratio {
	ratios := map[string]Ratio{}
	for _, bundle := range r.Bundles() {
		schema, ok := r.Schema(bundle)
		if !ok {
			continue
		}
		granted, available := schema.Ratio(selection[bundle])
		ratios[bundle] = Ratio{Granted: granted, Available: available}
	}
	return ratios
}

// FullGrants returns every enabled bundle's full mask, used for admin roles.
func (r *Registry) FullGrants() Grants {
	grants := Grants{}
	for _, bundle := range r.Bundles() {
		schema, ok := r.Schema(bundle)
		if !ok {
			continue
		}

		granted := GrantedMask{}
		for name, levels := range schema.permissions {
			var mask Mask
			for _, bit := range levels {
				mask = mask.Set(bit)
			}
			granted[name] = mask
		}
		grants[bundle] = granted
	}
	return grants
}
