package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveTable(t *testing.T) {
	extended := extendedLeads(t)
	standard := standardLeads(t)

	tests := []struct {
		level    Level
		standard Level
		extended Level
	}{
		{level: LevelViewOwn, standard: LevelView, extended: LevelViewOwn},
		{level: LevelViewOther, standard: LevelView, extended: LevelViewOther},
		{level: LevelView, standard: LevelView, extended: LevelViewOwn},
		{level: LevelEditOwn, standard: LevelEdit, extended: LevelEditOwn},
		{level: LevelEditOther, standard: LevelEdit, extended: LevelEditOther},
		{level: LevelEdit, standard: LevelEdit, extended: LevelEditOwn},
		{level: LevelDeleteOwn, standard: LevelDelete, extended: LevelDeleteOwn},
		{level: LevelDeleteOther, standard: LevelDelete, extended: LevelDeleteOther},
		{level: LevelDelete, standard: LevelDelete, extended: LevelDeleteOwn},
		{level: LevelPublishOwn, standard: LevelPublish, extended: LevelPublishOwn},
		{level: LevelPublishOther, standard: LevelPublish, extended: LevelPublishOther},
		{level: LevelPublish, standard: LevelPublish, extended: LevelPublishOwn},
		{level: LevelCreate, standard: LevelCreate, extended: LevelCreate},
		{level: LevelFull, standard: LevelFull, extended: LevelFull},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			name, got := standard.Resolve("leads", tt.level)
			assert.Equal(t, "leads", name)
			assert.Equal(t, tt.standard, got)

			_, got = extended.Resolve("leads", tt.level)
			assert.Equal(t, tt.extended, got)
		})
	}
}

func TestResolveUnknownNameIsUnchanged(t *testing.T) {
	schema := standardLeads(t)

	name, level := schema.Resolve("segments", LevelViewOwn)
	assert.Equal(t, "segments", name)
	assert.Equal(t, LevelViewOwn, level)
}

func TestIsGrantedFullShortCircuits(t *testing.T) {
	schema := standardLeads(t)
	granted := GrantedMask{"leads": BitFull}

	for _, level := range Levels() {
		if !schema.IsSupported("leads", level) {
			continue
		}
		assert.True(t, schema.IsGranted(granted, "leads", level), string(level))
	}
}

func TestIsGrantedOwnOtherMatchesCollapsedLevel(t *testing.T) {
	schema := standardLeads(t)

	for mask := Mask(0); mask < 2048; mask += 2 {
		granted := GrantedMask{"leads": mask}
		want := schema.IsGranted(granted, "leads", LevelView)
		assert.Equal(t, want, schema.IsGranted(granted, "leads", LevelViewOwn), "mask %d", mask)
		assert.Equal(t, want, schema.IsGranted(granted, "leads", LevelViewOther), "mask %d", mask)
	}
}

func TestIsGranted(t *testing.T) {
	extended := extendedLeads(t)
	standard := standardLeads(t)

	tests := []struct {
		name    string
		schema  *Schema
		granted GrantedMask
		perm    string
		level   Level
		want    bool
	}{
		{
			name:    "missing name has no implicit access",
			schema:  standard,
			granted: GrantedMask{"segments": BitFull},
			perm:    "leads",
			level:   LevelView,
			want:    false,
		},
		{
			name:    "nil grants",
			schema:  standard,
			granted: nil,
			perm:    "leads",
			level:   LevelView,
			want:    false,
		},
		{
			name:    "exact bit",
			schema:  standard,
			granted: GrantedMask{"leads": BitView | BitEdit},
			perm:    "leads",
			level:   LevelEdit,
			want:    true,
		},
		{
			name:    "bit not held",
			schema:  standard,
			granted: GrantedMask{"leads": BitView},
			perm:    "leads",
			level:   LevelDelete,
			want:    false,
		},
		{
			name:    "viewother held on extended",
			schema:  extended,
			granted: GrantedMask{"leads": BitViewOther},
			perm:    "leads",
			level:   LevelViewOther,
			want:    true,
		},
		{
			name:    "collapsed view resolves to viewown on extended",
			schema:  extended,
			granted: GrantedMask{"leads": BitViewOther},
			perm:    "leads",
			level:   LevelView,
			want:    false,
		},
		{
			name:    "collapsed edit resolves to editown on extended",
			schema:  extended,
			granted: GrantedMask{"leads": BitViewOther},
			perm:    "leads",
			level:   LevelEdit,
			want:    false,
		},
		{
			name:    "unsupported level never granted",
			schema:  standard,
			granted: GrantedMask{"leads": BitView | BitEdit | BitCreate},
			perm:    "leads",
			level:   "bogus",
			want:    false,
		},
		{
			name:    "unsupported name with stored mask",
			schema:  standard,
			granted: GrantedMask{"segments": BitView},
			perm:    "segments",
			level:   LevelView,
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.schema.IsGranted(tt.granted, tt.perm, tt.level))
		})
	}
}

func TestIsGrantedManageOnly(t *testing.T) {
	schema := NewSchema("config")
	if err := schema.AddManagePermission([]string{"config"}); err != nil {
		t.Fatalf("add manage permission: %v", err)
	}

	assert.True(t, schema.IsGranted(GrantedMask{"config": BitManage}, "config", LevelManage))
	assert.False(t, schema.IsGranted(GrantedMask{"config": BitView}, "config", LevelManage))
	assert.False(t, schema.IsGranted(GrantedMask{"config": BitManage}, "config", LevelView))
}
