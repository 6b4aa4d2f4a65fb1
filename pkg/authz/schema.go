package authz

import (
	"errors"
	"sort"
	"strings"
)

// PermissionSeparator joins bundle, name and level in permission strings and
// may not appear in bundle or permission names.
const PermissionSeparator = ":"

var (
	ErrSchemaFrozen = errors.New("authz: schema is frozen")
	ErrEmptyName    = errors.New("authz: permission name is empty")
	ErrInvalidName  = errors.New("authz: permission name contains " + PermissionSeparator)
)

// Schema is the static permission definition of one bundle. It is populated
// by the bundle's DefinePermissions and frozen when registered; after that it
// is only read and may be shared between goroutines.
type Schema struct {
	bundle      string
	permissions map[string]map[Level]Mask
	frozen      bool

	levels *levelCache
}

func NewSchema(bundle string) *Schema {
	return &Schema{
		bundle:      bundle,
		permissions: map[string]map[Level]Mask{},
		levels:      newLevelCache(),
	}
}

func (s *Schema) Bundle() string {
	return s.bundle
}

// AddStandardPermissions installs view, edit, create, delete and full (plus
// publish when includePublish is set) for every name, replacing any previous
// definition.
func (s *Schema) AddStandardPermissions(names []string, includePublish bool) error {
	levels := []Level{LevelView, LevelEdit, LevelCreate, LevelDelete, LevelFull}
	if includePublish {
		levels = append(levels, LevelPublish)
	}
	return s.define(names, levels)
}

// AddExtendedPermissions installs the own/other split of view, edit and
// delete together with create and full. Publish is split the same way.
func (s *Schema) AddExtendedPermissions(names []string, includePublish bool) error {
	levels := []Level{
		LevelViewOwn, LevelViewOther,
		LevelEditOwn, LevelEditOther,
		LevelCreate,
		LevelDeleteOwn, LevelDeleteOther,
		LevelFull,
	}
	if includePublish {
		levels = append(levels, LevelPublishOwn, LevelPublishOther)
	}
	return s.define(names, levels)
}

// AddManagePermission installs a single manage bit, used by config-only bundles.
func (s *Schema) AddManagePermission(names []string) error {
	return s.define(names, []Level{LevelManage})
}

func (s *Schema) define(names []string, levels []Level) error {
	if s.frozen {
		return ErrSchemaFrozen
	}
	for _, name := range names {
		if name == "" {
			return ErrEmptyName
		}
		if strings.Contains(name, PermissionSeparator) {
			return ErrInvalidName
		}
	}

	for _, name := range names {
		bits := make(map[Level]Mask, len(levels))
		for _, level := range levels {
			bits[level] = levelBits[level]
		}
		s.permissions[name] = bits
	}
	return nil
}

func (s *Schema) freeze() {
	s.frozen = true
}

// IsSupported reports whether name is defined. When level is not empty it
// reports whether the synonym-resolved level is defined for name.
func (s *Schema) IsSupported(name string, level Level) bool {
	name, level = s.Resolve(name, level)

	levels, ok := s.permissions[name]
	if !ok {
		return false
	}
	if level == "" {
		return true
	}

	_, ok = levels[level]
	return ok
}

// Value returns the bit of the resolved level, or 0 when it is not supported.
func (s *Schema) Value(name string, level Level) Mask {
	name, level = s.Resolve(name, level)
	return s.permissions[name][level]
}

// Names returns the defined permission names sorted.
func (s *Schema) Names() []string {
	names := make([]string, 0, len(s.permissions))
	for name := range s.permissions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LevelsOf returns the levels defined for name in display order.
func (s *Schema) LevelsOf(name string) []Level {
	defined, ok := s.permissions[name]
	if !ok {
		return nil
	}

	levels := make([]Level, 0, len(defined))
	for _, level := range levelOrder {
		if _, ok := defined[level]; ok {
			levels = append(levels, level)
		}
	}
	return levels
}

// Permissions returns a copy of the schema definition.
func (s *Schema) Permissions() map[string]map[Level]Mask {
	out := make(map[string]map[Level]Mask, len(s.permissions))
	for name, levels := range s.permissions {
		cloned := make(map[Level]Mask, len(levels))
		for level, bit := range levels {
			cloned[level] = bit
		}
		out[name] = cloned
	}
	return out
}

func (s *Schema) defines(name string, level Level) bool {
	_, ok := s.permissions[name][level]
	return ok
}
