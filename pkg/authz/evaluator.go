package authz

// GrantedMask holds the stored bits of one role per permission name of a bundle.
type GrantedMask map[string]Mask

// IsGranted decides whether granted allows level on name. A name missing from
// granted is never allowed, a set full bit allows every level, and anything
// the schema does not support evaluates to false.
func (s *Schema) IsGranted(granted GrantedMask, name string, level Level) bool {
	name, level = s.Resolve(name, level)

	mask, ok := granted[name]
	if !ok {
		return false
	}

	if mask.HasAny(s.permissions[name][LevelFull]) {
		return true
	}

	return mask.HasAny(s.permissions[name][level])
}
