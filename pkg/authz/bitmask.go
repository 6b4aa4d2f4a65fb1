package authz

// Mask holds the OR of every bit a role was granted for one permission name.
type Mask uint64

type Level string

const (
	LevelView         Level = "view"
	LevelViewOwn      Level = "viewown"
	LevelViewOther    Level = "viewother"
	LevelEdit         Level = "edit"
	LevelEditOwn      Level = "editown"
	LevelEditOther    Level = "editother"
	LevelCreate       Level = "create"
	LevelDelete       Level = "delete"
	LevelDeleteOwn    Level = "deleteown"
	LevelDeleteOther  Level = "deleteother"
	LevelPublish      Level = "publish"
	LevelPublishOwn   Level = "publishown"
	LevelPublishOther Level = "publishother"
	LevelFull         Level = "full"
	LevelManage       Level = "manage"
)

// Bit values are persisted in role permission rows and must never change.
// Collapsed and split levels share a bit (view == viewother) so a bundle can
// move between the standard and extended sets without rewriting stored masks.
const (
	BitViewOwn      Mask = 2
	BitViewOther    Mask = 4
	BitEditOwn      Mask = 8
	BitEditOther    Mask = 16
	BitCreate       Mask = 32
	BitDeleteOwn    Mask = 64
	BitDeleteOther  Mask = 128
	BitPublishOwn   Mask = 256
	BitPublishOther Mask = 512
	BitFull         Mask = 1024

	BitView    = BitViewOther
	BitEdit    = BitEditOther
	BitDelete  = BitDeleteOther
	BitPublish = BitPublishOther
	BitManage  = BitFull
)

var levelBits = map[Level]Mask{
	LevelView:         BitView,
	LevelViewOwn:      BitViewOwn,
	LevelViewOther:    BitViewOther,
	LevelEdit:         BitEdit,
	LevelEditOwn:      BitEditOwn,
	LevelEditOther:    BitEditOther,
	LevelCreate:       BitCreate,
	LevelDelete:       BitDelete,
	LevelDeleteOwn:    BitDeleteOwn,
	LevelDeleteOther:  BitDeleteOther,
	LevelPublish:      BitPublish,
	LevelPublishOwn:   BitPublishOwn,
	LevelPublishOther: BitPublishOther,
	LevelFull:         BitFull,
	LevelManage:       BitManage,
}

// levelOrder is the display order used when masks are decoded back to levels.
var levelOrder = []Level{
	LevelView,
	LevelViewOwn,
	LevelViewOther,
	LevelEdit,
	LevelEditOwn,
	LevelEditOther,
	LevelCreate,
	LevelDelete,
	LevelDeleteOwn,
	LevelDeleteOther,
	LevelPublish,
	LevelPublishOwn,
	LevelPublishOther,
	LevelFull,
	LevelManage,
}

// BitFor returns the shared bit assigned to level, or 0 for unknown levels.
func BitFor(level Level) Mask {
	return levelBits[level]
}

// Levels returns the full level vocabulary in display order.
func Levels() []Level {
	out := make([]Level, len(levelOrder))
	copy(out, levelOrder)
	return out
}

func (l Level) Valid() bool {
	_, ok := levelBits[l]
	return ok
}

func (m Mask) Has(bit Mask) bool {
	return bit != 0 && m&bit == bit
}

func (m Mask) HasAny(required Mask) bool {
	return m&required != 0
}

func (m Mask) HasAll(required Mask) bool {
	return m&required == required
}

func (m Mask) Set(bit Mask) Mask {
	return m | bit
}

func (m Mask) Clear(bit Mask) Mask {
	return m &^ bit
}
