package authz

import "sync"

type levelCacheKey struct {
	name string
	mask Mask
}

// levelCache memoizes mask decoding for one schema and lives as long as it.
// Keys only carry bits the name defines, so it holds at most 2^levels entries
// per name whatever masks are stored.
type levelCache struct {
	mu      sync.RWMutex
	entries map[levelCacheKey][]Level
}

func newLevelCache() *levelCache {
	return &levelCache{entries: map[levelCacheKey][]Level{}}
}

func (c *levelCache) get(key levelCacheKey) ([]Level, bool) {
	c.mu.RLock()
	levels, ok := c.entries[key]
	c.mu.RUnlock()
	return levels, ok
}

func (c *levelCache) put(key levelCacheKey, levels []Level) {
	c.mu.Lock()
	c.entries[key] = levels
	c.mu.Unlock()
}

// LevelsForMask converts stored masks into the level names they hold.
// Names the schema no longer defines are dropped; every defined name present
// in granted gets an entry, possibly empty.
func (s *Schema) LevelsForMask(granted GrantedMask) RequestedLevels {
	out := make(RequestedLevels, len(granted))
	for name, mask := range granted {
		if _, ok := s.permissions[name]; !ok {
			continue
		}
		out[name] = s.levelsFor(name, mask)
	}
	return out
}

func (s *Schema) levelsFor(name string, mask Mask) []Level {
	key := levelCacheKey{name: name, mask: mask & s.definedBits(name)}
	if cached, ok := s.levels.get(key); ok {
		return cloneLevels(cached)
	}

	levels := []Level{}
	for _, level := range s.LevelsOf(name) {
		if mask.HasAny(s.permissions[name][level]) {
			levels = append(levels, level)
		}
	}

	s.levels.put(key, levels)
	return cloneLevels(levels)
}

func (s *Schema) definedBits(name string) Mask {
	var bits Mask
	for _, bit := range s.permissions[name] {
		bits = bits.Set(bit)
	}
	return bits
}

// MaskForLevels ORs the resolved bits of requested into one mask per name,
// ready to be stored. Unsupported names and levels contribute nothing.
func (s *Schema) MaskForLevels(requested RequestedLevels) GrantedMask {
	out := make(GrantedMask, len(requested))
	for name, levels := range requested {
		if _, ok := s.permissions[name]; !ok {
			continue
		}

		var mask Mask
		for _, level := range levels {
			mask = mask.Set(s.Value(name, level))
		}
		out[name] = mask
	}
	return out
}

func cloneLevels(levels []Level) []Level {
	out := make([]Level, len(levels))
	copy(out, levels)
	return out
}
