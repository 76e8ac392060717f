package metricparser

import (
	"sort"

	"github.com/WCLondon/habitat-allocator/internal/domain"
)

// ledgerLine is a deficit or surplus row mid-offset: RemainingUnits tracks
// how much of the original NetChange magnitude is still unconsumed.
type ledgerLine struct {
	HabitatName     string
	Distinctiveness domain.Distinctiveness
	BroaderType     string
	RemainingUnits  float64 // magnitude, always >= 0
	Unresolvable    bool
}

// eligibilityFunc reports whether a surplus line may offset a deficit
// line under a ledger's trading rules.
type eligibilityFunc func(deficit, surplus ledgerLine) bool

func eligibleArea(deficit, surplus ledgerLine) bool {
	switch deficit.Distinctiveness {
	case domain.DistinctivenessVeryHigh, domain.DistinctivenessHigh:
		// Like-for-like habitat only.
		return surplus.HabitatName == deficit.HabitatName
	case domain.DistinctivenessMedium:
		if surplus.BroaderType == deficit.BroaderType && surplus.Distinctiveness == domain.DistinctivenessMedium {
			return true
		}
		return surplus.Distinctiveness == domain.DistinctivenessHigh || surplus.Distinctiveness == domain.DistinctivenessVeryHigh
	case domain.DistinctivenessLow:
		return surplus.Distinctiveness >= domain.DistinctivenessLow
	default:
		return false
	}
}

func eligibleHedgerow(deficit, surplus ledgerLine) bool {
	if deficit.Distinctiveness == domain.DistinctivenessVeryHigh {
		return false // never offsetable
	}
	return surplus.Distinctiveness > deficit.Distinctiveness
}

func eligibleWatercourse(deficit, surplus ledgerLine) bool {
	switch deficit.Distinctiveness {
	case domain.DistinctivenessVeryHigh:
		return false // never offsetable
	case domain.DistinctivenessHigh, domain.DistinctivenessMedium:
		return surplus.HabitatName == deficit.HabitatName && surplus.Distinctiveness >= deficit.Distinctiveness
	case domain.DistinctivenessLow:
		return surplus.HabitatName == deficit.HabitatName && surplus.Distinctiveness > deficit.Distinctiveness
	default:
		return false
	}
}

func eligibilityFor(l domain.Ledger) eligibilityFunc {
	switch l {
	case domain.LedgerArea:
		return eligibleArea
	case domain.LedgerHedgerow:
		return eligibleHedgerow
	case domain.LedgerWatercourse:
		return eligibleWatercourse
	default:
		return func(ledgerLine, ledgerLine) bool { return false }
	}
}

// applyOffsets runs on-site compensation for one ledger's deficits against
// its surpluses, per spec §4.2 step 3. It returns the remaining (unmet)
// deficits, the remaining (unabsorbed) surplus total, and any warnings
// raised for unresolvable-distinctiveness rows.
func applyOffsets(ledger domain.Ledger, deficits, surpluses []ledgerLine) (remainingDeficits []ledgerLine, remainingSurplusTotal float64, warnings []domain.Warning) {
	eligible := eligibilityFor(ledger)

	// Deficits with unresolvable distinctiveness are never used to offset
	// and are never offset themselves; they flow straight through.
	var offsettable []ledgerLine
	for _, d := range deficits {
		if d.Unresolvable || !d.Distinctiveness.Valid() {
			remainingDeficits = append(remainingDeficits, d)
			warnings = append(warnings, domain.Warning{
				Kind:    domain.WarnOffsetAmbiguous,
				Message: "deficit row for habitat " + d.HabitatName + " has unresolvable distinctiveness; carried forward unmet",
			})
			continue
		}
		offsettable = append(offsettable, d)
	}

	sort.SliceStable(offsettable, func(i, j int) bool {
		return offsettable[i].Distinctiveness > offsettable[j].Distinctiveness
	})

	surplusPool := make([]ledgerLine, len(surpluses))
	copy(surplusPool, surpluses)

	for _, d := range offsettable {
		remaining := d.RemainingUnits
		if remaining <= 0 {
			continue
		}

		var candidateIdx []int
		for i, s := range surplusPool {
			if s.RemainingUnits > 0 && !s.Unresolvable && eligible(d, s) {
				candidateIdx = append(candidateIdx, i)
			}
		}
		sort.SliceStable(candidateIdx, func(a, b int) bool {
			ia, ib := candidateIdx[a], candidateIdx[b]
			if surplusPool[ia].Distinctiveness != surplusPool[ib].Distinctiveness {
				return surplusPool[ia].Distinctiveness < surplusPool[ib].Distinctiveness
			}
			return surplusPool[ia].HabitatName < surplusPool[ib].HabitatName
		})

		for _, idx := range candidateIdx {
			if remaining <= 0 {
				break
			}
			avail := surplusPool[idx].RemainingUnits
			take := avail
			if take > remaining {
				take = remaining
			}
			surplusPool[idx].RemainingUnits -= take
			remaining -= take
		}

		if remaining > 1e-12 {
			d.RemainingUnits = remaining
			remainingDeficits = append(remainingDeficits, d)
		}
	}

	for _, s := range surplusPool {
		remainingSurplusTotal += s.RemainingUnits
	}

	return remainingDeficits, remainingSurplusTotal, warnings
}
