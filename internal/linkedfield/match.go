package linkedfield

// matchRows pairs each submitted item with at most one existing row and returns, per submitted
// index, the index of its row or -1.
//
// Items carrying a uuid claim their row first, so a uuid match always wins over an identity match
// of another item. Remaining items then take the first unclaimed row with the same identity in load
// order. No row is claimed twice.
func matchRows[S, R any](
	submitted []S,
	existing []R,
	submittedUUID func(S) string,
	existingUUID func(R) string,
	sameIdentity func(S, R) bool,
) []int {
	pairs := make([]int, len(submitted))
	claimed := make([]bool, len(existing))
	for i := range pairs {
		pairs[i] = -1
	}

	if submittedUUID != nil && existingUUID != nil {
		byUUID := make(map[string]int, len(existing))
		for j, row := range existing {
			if id := existingUUID(row); id != "" {
				if _, dup := byUUID[id]; !dup {
					byUUID[id] = j
				}
			}
		}
		for i, item := range submitted {
			id := submittedUUID(item)
			if id == "" {
				continue
			}
			if j, ok := byUUID[id]; ok && !claimed[j] {
				pairs[i] = j
				claimed[j] = true
			}
		}
	}

	if sameIdentity == nil {
		return pairs
	}
	for i, item := range submitted {
		if pairs[i] >= 0 {
			continue
		}
		for j, row := range existing {
			if claimed[j] || !sameIdentity(item, row) {
				continue
			}
			pairs[i] = j
			claimed[j] = true
			break
		}
	}
	return pairs
}

// unclaimed returns the indexes of existing rows no submitted item was paired with. The result is
// never nil.
func unclaimed(pairs []int, existingLen int) []int {
	claimed := make([]bool, existingLen)
	for _, j := range pairs {
		if j >= 0 {
			claimed[j] = true
		}
	}
	rest := make([]int, 0, existingLen)
	for j, ok := range claimed {
		if !ok {
			rest = append(rest, j)
		}
	}
	return rest
}
