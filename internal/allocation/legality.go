package allocation

import "github.com/WCLondon/habitat-allocator/internal/domain"

// ReferenceLookup is the slice of *reference.Reference the engine needs for
// substitute-legality and pricing decisions. Defined here (rather than
// imported from the reference package) so engine tests can supply a fake
// without touching SQLite.
type ReferenceLookup interface {
	Habitat(name string) (domain.Habitat, bool)
	Bank(id string) (domain.Bank, bool)
	Banks() []domain.Bank
	StockFor(bankID, habitatName string) (domain.StockRow, bool)
	StockHabitatsFor(bankID string) []string
	PriceFor(bankID, habitatName string, cs domain.ContractSize, tier domain.Tier) (float64, bool)
	TradingRulesFor(demandHabitat string) []domain.TradingRule
	IsRuleScoped(demandHabitat string) bool
	SRM(tier domain.Tier) float64
}

// ladderFunc mirrors the metric parser's on-site offset ladders (spec
// §4.2 step 3), reused here per spec §4.4.3 for cross-bank substitute
// legality.
type ladderFunc func(demand domain.DemandLine, supply domain.Habitat) bool

func ladderArea(demand domain.DemandLine, supply domain.Habitat) bool {
	switch demand.Distinctiveness {
	case domain.DistinctivenessVeryHigh, domain.DistinctivenessHigh:
		return supply.Name == demand.HabitatName
	case domain.DistinctivenessMedium:
		if supply.BroaderType == demand.BroaderType && supply.Distinctiveness == domain.DistinctivenessMedium {
			return true
		}
		return supply.Distinctiveness == domain.DistinctivenessHigh || supply.Distinctiveness == domain.DistinctivenessVeryHigh
	case domain.DistinctivenessLow:
		return supply.Distinctiveness >= domain.DistinctivenessLow
	default:
		return false
	}
}

func ladderHedgerow(demand domain.DemandLine, supply domain.Habitat) bool {
	if demand.Distinctiveness == domain.DistinctivenessVeryHigh {
		return false
	}
	return supply.Distinctiveness > demand.Distinctiveness
}

func ladderWatercourse(demand domain.DemandLine, supply domain.Habitat) bool {
	switch demand.Distinctiveness {
	case domain.DistinctivenessVeryHigh:
		return false
	case domain.DistinctivenessHigh, domain.DistinctivenessMedium:
		return supply.Name == demand.HabitatName && supply.Distinctiveness >= demand.Distinctiveness
	case domain.DistinctivenessLow:
		return supply.Name == demand.HabitatName && supply.Distinctiveness > demand.Distinctiveness
	default:
		return false
	}
}

func ladderFor(l domain.Ledger) ladderFunc {
	switch l {
	case domain.LedgerArea:
		return ladderArea
	case domain.LedgerHedgerow:
		return ladderHedgerow
	case domain.LedgerWatercourse:
		return ladderWatercourse
	default:
		return func(domain.DemandLine, domain.Habitat) bool { return false }
	}
}

// IsLegalSubstitute reports whether supply may satisfy demand, per spec
// §4.4.3: rule-scoped demand habitats accept only their listed supplies (no
// ladder fallback); unscoped habitats use the ledger's distinctiveness
// ladder; the Net Gain sentinel accepts any Low-or-higher habitat in its
// own ledger.
func IsLegalSubstitute(ref ReferenceLookup, demand domain.DemandLine, supply domain.Habitat) bool {
	if domain.IsNetGain(demand.HabitatName) {
		return supply.Distinctiveness.Valid() && supply.Distinctiveness >= domain.DistinctivenessLow && supply.UmbrellaType == demand.Ledger
	}
	if ref.IsRuleScoped(demand.HabitatName) {
		for _, rule := range ref.TradingRulesFor(demand.HabitatName) {
			if rule.AllowedSupplyHabitat != supply.Name {
				continue
			}
			if rule.MinDistinctiveness != domain.DistinctivenessUnknown && supply.Distinctiveness < rule.MinDistinctiveness {
				continue
			}
			return true
		}
		return false
	}
	return ladderFor(demand.Ledger)(demand, supply)
}

// LegalCompanion reports whether companion may serve as the second habitat
// in a paired option alongside main for demand. Pairing represents a
// habitat-creation technique rather than a substitute supply, so a
// companion need not independently satisfy demand's distinctiveness
// ladder (a low-distinctiveness filler habitat created alongside the main
// one is the common real case) — it only needs to differ from the main
// supply, and when the demand is rule-scoped it must match the rule's
// named companion_habitat exactly.
func LegalCompanion(ref ReferenceLookup, demand domain.DemandLine, mainSupply, companion domain.Habitat) bool {
	if companion.Name == mainSupply.Name {
		return false
	}
	if ref.IsRuleScoped(demand.HabitatName) {
		for _, rule := range ref.TradingRulesFor(demand.HabitatName) {
			if rule.AllowedSupplyHabitat == mainSupply.Name && rule.CompanionHabitat == companion.Name {
				return true
			}
		}
		return false
	}
	return true
}
