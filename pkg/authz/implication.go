package authz

import "slices"

// CategoriesPermission is the permission name that receives view access
// automatically whenever any permission of the same bundle is viewable.
const CategoriesPermission = "categories"

// RequestedLevels holds the levels submitted for each permission name of one
// bundle before they are encoded into masks.
type RequestedLevels map[string][]Level

var implications = map[Level][]Level{
	LevelEdit:         {LevelViewOther, LevelViewOwn},
	LevelEditOther:    {LevelViewOther, LevelViewOwn},
	LevelDelete:       {LevelEditOther, LevelViewOther, LevelViewOwn},
	LevelDeleteOther:  {LevelEditOther, LevelViewOther, LevelViewOwn},
	LevelPublish:      {LevelViewOther, LevelViewOwn},
	LevelPublishOther: {LevelViewOther, LevelViewOwn},
	LevelViewOther:    {LevelViewOwn},
	LevelEditOwn:      {LevelViewOwn},
	LevelDeleteOwn:    {LevelViewOwn},
	LevelPublishOwn:   {LevelViewOwn},
	LevelCreate:       {LevelViewOwn},
}

// Implied returns the levels that granting level also requires.
func Implied(level Level) []Level {
	implied := implications[level]
	out := make([]Level, len(implied))
	copy(out, implied)
	return out
}

// Expand adds every implied lower-privilege level to requested, in place.
// Implied levels are resolved against the permission name they belong to and
// only added when the schema supports them. Levels added during the pass are
// expanded too, so a second call changes nothing. Grown level slices are
// reallocated; backing arrays shared with the caller are never written.
//
// The return value asks for a second round once every other bundle has been
// expanded. The built-in rules never need one.
func (s *Schema) Expand(requested RequestedLevels) bool {
	if requested == nil {
		return false
	}

	hasViewAccess := false
	for name, levels := range requested {
		levels = slices.Clip(levels)
		for i := 0; i < len(levels); i++ {
			for _, implied := range implications[levels[i]] {
				_, resolved := s.Resolve(name, implied)
				if s.IsSupported(name, resolved) && !containsLevel(levels, resolved) {
					levels = append(levels, resolved)
				}
			}
		}
		requested[name] = levels

		if containsLevel(levels, LevelView) || containsLevel(levels, LevelViewOwn) {
			hasViewAccess = true
		}
	}

	if hasViewAccess && s.IsSupported(CategoriesPermission, "") {
		_, view := s.Resolve(CategoriesPermission, LevelView)
		if !containsLevel(requested[CategoriesPermission], view) {
			requested[CategoriesPermission] = append(slices.Clip(requested[CategoriesPermission]), view)
		}
	}

	return false
}

func containsLevel(levels []Level, level Level) bool {
	for _, l := range levels {
		if l == level {
			return true
		}
	}
	return false
}
