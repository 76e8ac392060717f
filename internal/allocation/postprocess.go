package allocation

import (
	"math"
	"sort"

	"github.com/WCLondon/habitat-allocator/internal/domain"
)

type bundleKey struct {
	bankID    string
	supply    string
	tier      domain.Tier
	kind      domain.OptionKind
	companion string
}

// Bundle groups solved option draws by (bank, supply habitat, tier, kind,
// companion), rounds the summed effective units up to 0.01, re-derives
// cost from the rounded units, and splits paired groups into their main
// and companion component rows, per spec §4.4.6. Rounding happens exactly
// once, here, never upstream in the parser or the solver.
func Bundle(options []domain.AllocationOption, unitsByOption map[string]float64) []domain.AllocationRow {
	grouped := make(map[bundleKey]float64)
	optionByKey := make(map[bundleKey]domain.AllocationOption)

	for _, o := range options {
		units, ok := unitsByOption[o.ID]
		if !ok || units <= 1e-12 {
			continue
		}
		key := bundleKey{bankID: o.BankID, supply: o.SupplyHabitat, tier: o.Tier, kind: o.Kind, companion: o.CompanionHabitat}
		grouped[key] += units
		optionByKey[key] = o
	}

	keys := make([]bundleKey, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].bankID != keys[j].bankID {
			return keys[i].bankID < keys[j].bankID
		}
		if keys[i].supply != keys[j].supply {
			return keys[i].supply < keys[j].supply
		}
		return keys[i].companion < keys[j].companion
	})

	rows := make([]domain.AllocationRow, 0, len(keys))
	for _, key := range keys {
		o := optionByKey[key]
		bundledUnits := roundUp(grouped[key], 0.01)

		if o.Kind != domain.OptionPaired {
			rows = append(rows, domain.AllocationRow{
				BankID:             o.BankID,
				DemandHabitat:      o.DemandHabitat,
				Ledger:             o.DemandLedger,
				SupplyHabitat:      o.SupplyHabitat,
				Tier:               o.Tier,
				Kind:               o.Kind,
				UnitsSupplied:      bundledUnits,
				EffectiveUnits:     bundledUnits,
				StockUnitsConsumed: bundledUnits * o.StockUseRatio,
				UnitPrice:          o.UnitPrice,
				Cost:               bundledUnits * o.UnitPrice,
			})
			continue
		}

		pairGroupKey := o.BankID + "|" + o.SupplyHabitat + "|" + o.CompanionHabitat + "|" + string(o.Tier) + "|" + o.DemandHabitat
		mainUnits := bundledUnits * o.StockUseRatio
		companionUnits := bundledUnits * o.CompanionStockUse

		rows = append(rows,
			domain.AllocationRow{
				BankID:             o.BankID,
				DemandHabitat:      o.DemandHabitat,
				Ledger:             o.DemandLedger,
				SupplyHabitat:      o.SupplyHabitat,
				Tier:               o.Tier,
				Kind:               o.Kind,
				UnitsSupplied:      mainUnits,
				EffectiveUnits:     bundledUnits,
				StockUnitsConsumed: mainUnits,
				UnitPrice:          o.UnitPrice,
				Cost:               mainUnits * o.UnitPrice,
				PairedRole:         "main",
				PairGroupKey:       pairGroupKey,
			},
			domain.AllocationRow{
				BankID:             o.BankID,
				DemandHabitat:      o.DemandHabitat,
				Ledger:             o.DemandLedger,
				SupplyHabitat:      o.CompanionHabitat,
				Tier:               o.Tier,
				Kind:               o.Kind,
				UnitsSupplied:      companionUnits,
				EffectiveUnits:     bundledUnits,
				StockUnitsConsumed: companionUnits,
				UnitPrice:          o.UnitPrice,
				Cost:               companionUnits * o.UnitPrice,
				PairedRole:         "companion",
				PairGroupKey:       pairGroupKey,
			},
		)
	}

	return rows
}

func roundUp(v, step float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Ceil(v/step-1e-9) * step
}
