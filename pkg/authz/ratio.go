package authz

// Ratio is a granted/available pair used for progress indicators.
type Ratio struct {
	Granted   int
	Available int
}

// Ratio counts how many of the schema's levels appear in granted. A full
// level that stands alone counts as one unit; next to other levels it is left
// out of the available total and, when held, counts as every other level.
func (s *Schema) Ratio(granted map[string][]Level) (int, int) {
	totalGranted, totalAvailable := 0, 0

	for name, defined := range s.permissions {
		totalAvailable += len(defined)
		held := granted[name]

		if _, hasFull := defined[LevelFull]; hasFull {
			if len(defined) == 1 {
				if containsLevel(held, LevelFull) {
					totalGranted++
				}
				continue
			}

			totalAvailable--
			if containsLevel(held, LevelFull) {
				totalGranted += len(defined) - 1
				continue
			}
		}

		totalGranted += len(held)
	}

	return totalGranted, totalAvailable
}
