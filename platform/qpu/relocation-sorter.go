package qpu

import (
	"sort"

	"github.com/simonjhall/llvm-qpu/platform"
)

// Pointer identity tracks entries while the list is rebuilt.
type relocationEntry struct {
	platform.Relocation
}

// High halves (and GOT16 page references to local symbols) are only
// meaningful to the linker when immediately followed by their low half.
func needsMatchingLow(entry *relocationEntry) bool {
	if entry.Symbol == nil {
		return false
	}

	switch entry.Type {
	case R_QPU_HI16:
		return true
	case R_QPU_GOT16:
		return !entry.Symbol.IsExternal()
	default:
		return false
	}
}

func hasMatchingLow(list []*relocationEntry, idx int) bool {
	if idx+1 >= len(list) {
		return false
	}

	high := list[idx]
	next := list[idx+1]
	return next.Type == R_QPU_LO16 &&
		next.Symbol == high.Symbol &&
		next.Addend == high.Addend
}

// Rebuilds the list with entry moved right before target.
func moveBefore(
	list []*relocationEntry,
	entry *relocationEntry,
	target *relocationEntry,
) []*relocationEntry {
	result := make([]*relocationEntry, 0, len(list))
	for _, other := range list {
		if other == entry {
			continue
		}
		if other == target {
			result = append(result, entry)
		}
		result = append(result, other)
	}
	return result
}

// Orders the relocations such that every high half relocation is
// immediately followed (in ascending offset order) by a low half relocation
// referencing the same symbol and addend:
//
//  1. sort by descending offset (stable) and rebuild in ascending order.
//  2. collect the entries needing a low half partner that lack one.
//  3. for each, pick the low half entry referencing the same symbol with
//     the smallest addend no smaller than the high half's addend.  On equal
//     addends, a later candidate replaces the current pick only when that
//     candidate is not itself the partner of a correctly paired high half.
//  4. force the high half's addend to the partner's and move it in front of
//     the partner.
//  5. reverse back to descending order.
//
// High halves without any candidate stay where they are and are returned
// as the second result.
func (RelocationWriter) SortRelocations(
	relocations []platform.Relocation,
) (
	[]platform.Relocation,
	[]platform.Relocation,
) {
	sorted := make([]platform.Relocation, len(relocations))
	copy(sorted, relocations)
	sort.SliceStable(
		sorted,
		func(i int, j int) bool {
			return sorted[i].Offset > sorted[j].Offset
		})

	list := make([]*relocationEntry, 0, len(sorted))
	for idx := len(sorted) - 1; idx >= 0; idx-- {
		list = append(list, &relocationEntry{Relocation: sorted[idx]})
	}

	unmatched := []*relocationEntry{}
	for idx, entry := range list {
		if needsMatchingLow(entry) && !hasMatchingLow(list, idx) {
			unmatched = append(unmatched, entry)
		}
	}

	unpaired := []platform.Relocation{}
	for _, high := range unmatched {
		var low *relocationEntry
		isPairedLow := false
		for idx, candidate := range list {
			if candidate.Type == R_QPU_LO16 &&
				candidate.Symbol == high.Symbol &&
				candidate.Addend >= high.Addend &&
				(low == nil ||
					candidate.Addend < low.Addend ||
					(!isPairedLow && candidate.Addend == low.Addend)) {
				low = candidate
			}

			// Applies to the next candidate: it is the partner of a correctly
			// paired high half.
			isPairedLow = needsMatchingLow(candidate) && hasMatchingLow(list, idx)
		}

		if low == nil {
			unpaired = append(unpaired, high.Relocation)
			continue
		}

		high.Addend = low.Addend
		list = moveBefore(list, high, low)
	}

	result := make([]platform.Relocation, 0, len(list))
	for idx := len(list) - 1; idx >= 0; idx-- {
		result = append(result, list[idx].Relocation)
	}

	return result, unpaired
}
