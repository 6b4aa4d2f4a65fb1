package authz

// synonyms maps a requested level to the alternate level used when the schema
// defines the alternate for the permission name. Resolution is applied once.
var synonyms = map[Level]Level{
	LevelViewOwn:      LevelView,
	LevelViewOther:    LevelView,
	LevelView:         LevelViewOwn,
	LevelEditOwn:      LevelEdit,
	LevelEditOther:    LevelEdit,
	LevelEdit:         LevelEditOwn,
	LevelDeleteOwn:    LevelDelete,
	LevelDeleteOther:  LevelDelete,
	LevelDelete:       LevelDeleteOwn,
	LevelPublishOwn:   LevelPublish,
	LevelPublishOther: LevelPublish,
	LevelPublish:      LevelPublishOwn,
}

// Resolve canonicalizes level against the levels the schema stores for name,
// so callers may use the collapsed or the own/other vocabulary regardless of
// the flavor the bundle chose.
func (s *Schema) Resolve(name string, level Level) (string, Level) {
	alternate, ok := synonyms[level]
	if ok && s.defines(name, alternate) {
		return name, alternate
	}
	return name, level
}
