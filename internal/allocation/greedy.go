package allocation

import (
	"sort"

	"github.com/WCLondon/habitat-allocator/internal/domain"
)

// GreedyResult is the output of the greedy fallback oracle: per-option
// effective units drawn, plus any demand left unmet.
type GreedyResult struct {
	UnitsByOption map[string]float64
	Shortfalls    []domain.Shortfall
}

// SolveGreedy implements the LP's fallback of spec §4.4.5: demand lines are
// visited in descending (distinctiveness, units) order, each served by its
// cheapest legal options until the demand or a bank's stock is exhausted.
// It is also usable standalone as an always-available oracle for small
// reference-instance property tests, independent of the LP solver.
func SolveGreedy(ref ReferenceLookup, demand []domain.DemandLine, options []domain.AllocationOption) GreedyResult {
	remainingCapacity := make(map[stockComponent]float64)
	capacityOf := func(bankID, habitat string) float64 {
		key := stockComponent{bankID, habitat}
		if v, ok := remainingCapacity[key]; ok {
			return v
		}
		v := 0.0
		if stock, ok := ref.StockFor(bankID, habitat); ok {
			v = stock.FreeUnits()
		}
		remainingCapacity[key] = v
		return v
	}

	optionsByDemand := make(map[string][]domain.AllocationOption)
	for _, o := range options {
		key := demandKey(o.DemandLedger, o.DemandHabitat)
		optionsByDemand[key] = append(optionsByDemand[key], o)
	}
	for key, opts := range optionsByDemand {
		sorted := make([]domain.AllocationOption, len(opts))
		copy(sorted, opts)
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].UnitPrice != sorted[j].UnitPrice {
				return sorted[i].UnitPrice < sorted[j].UnitPrice
			}
			if sorted[i].BankID != sorted[j].BankID {
				return sorted[i].BankID < sorted[j].BankID
			}
			return sorted[i].SupplyHabitat < sorted[j].SupplyHabitat
		})
		optionsByDemand[key] = sorted
	}

	orderedDemand := make([]domain.DemandLine, len(demand))
	copy(orderedDemand, demand)
	sort.SliceStable(orderedDemand, func(i, j int) bool {
		if orderedDemand[i].Distinctiveness != orderedDemand[j].Distinctiveness {
			return orderedDemand[i].Distinctiveness > orderedDemand[j].Distinctiveness
		}
		return orderedDemand[i].UnitsRequired > orderedDemand[j].UnitsRequired
	})

	unitsByOption := make(map[string]float64)
	var shortfalls []domain.Shortfall

	for _, d := range orderedDemand {
		remaining := d.UnitsRequired
		for _, o := range optionsByDemand[demandKey(d.Ledger, d.HabitatName)] {
			if remaining <= 1e-12 {
				break
			}
			maxByOption := capacityOf(o.BankID, o.SupplyHabitat) / o.StockUseRatio
			if o.Kind == domain.OptionPaired {
				if compCap := capacityOf(o.BankID, o.CompanionHabitat) / o.CompanionStockUse; compCap < maxByOption {
					maxByOption = compCap
				}
			}
			take := remaining
			if take > maxByOption {
				take = maxByOption
			}
			if take <= 1e-12 {
				continue
			}

			unitsByOption[o.ID] += take
			remaining -= take

			remainingCapacity[stockComponent{o.BankID, o.SupplyHabitat}] -= take * o.StockUseRatio
			if o.Kind == domain.OptionPaired {
				remainingCapacity[stockComponent{o.BankID, o.CompanionHabitat}] -= take * o.CompanionStockUse
			}
		}
		if remaining > 1e-9 {
			shortfalls = append(shortfalls, domain.Shortfall{
				Ledger:        d.Ledger,
				DemandHabitat: d.HabitatName,
				UnitsRequired: d.UnitsRequired,
				UnitsSupplied: d.UnitsRequired - remaining,
				UnitsShort:    remaining,
			})
		}
	}

	return GreedyResult{UnitsByOption: unitsByOption, Shortfalls: shortfalls}
}
