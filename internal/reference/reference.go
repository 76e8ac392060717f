package reference

import (
	"sort"

	"github.com/WCLondon/habitat-allocator/internal/domain"
)

// Reference is an immutable, point-in-time snapshot of the catalog, bank
// registry, pricing table, stock ledger, trading rules, and SRM table. A
// job never sees two different snapshots: one is taken at job start and
// used for the whole pipeline (spec §4.1, §5).
type Reference struct {
	habitats map[string]domain.Habitat
	banks    map[string]domain.Bank

	// pricing[bankID][habitatName][contractSize][tier] = unit price
	pricing map[string]map[string]map[domain.ContractSize]map[domain.Tier]float64

	// stock[bankID][habitatName] = row
	stock map[string]map[string]domain.StockRow

	// tradingRulesByDemand[demandHabitat] = rules for that habitat
	tradingRulesByDemand map[string][]domain.TradingRule

	srm                   map[domain.Tier]float64
	distinctivenessLevels map[string]int
}

func newReference(
	habitats map[string]domain.Habitat,
	banks map[string]domain.Bank,
	pricingRows []domain.PricingRow,
	stockRows []domain.StockRow,
	rules []domain.TradingRule,
	srm map[domain.Tier]float64,
	levels map[string]int,
) *Reference {
	pricing := make(map[string]map[string]map[domain.ContractSize]map[domain.Tier]float64)
	for _, p := range pricingRows {
		byHabitat, ok := pricing[p.BankID]
		if !ok {
			byHabitat = make(map[string]map[domain.ContractSize]map[domain.Tier]float64)
			pricing[p.BankID] = byHabitat
		}
		byContract, ok := byHabitat[p.HabitatName]
		if !ok {
			byContract = make(map[domain.ContractSize]map[domain.Tier]float64)
			byHabitat[p.HabitatName] = byContract
		}
		byTier, ok := byContract[p.ContractSize]
		if !ok {
			byTier = make(map[domain.Tier]float64)
			byContract[p.ContractSize] = byTier
		}
		byTier[p.Tier] = p.UnitPrice
	}

	stock := make(map[string]map[string]domain.StockRow)
	for _, s := range stockRows {
		byHabitat, ok := stock[s.BankID]
		if !ok {
			byHabitat = make(map[string]domain.StockRow)
			stock[s.BankID] = byHabitat
		}
		byHabitat[s.HabitatName] = s
	}

	byDemand := make(map[string][]domain.TradingRule)
	for _, t := range rules {
		byDemand[t.DemandHabitat] = append(byDemand[t.DemandHabitat], t)
	}

	if srm == nil {
		srm = make(map[domain.Tier]float64)
	}

	return &Reference{
		habitats:              habitats,
		banks:                 banks,
		pricing:               pricing,
		stock:                 stock,
		tradingRulesByDemand:  byDemand,
		srm:                   srm,
		distinctivenessLevels: levels,
	}
}

// Habitat looks up a catalog entry by name.
func (r *Reference) Habitat(name string) (domain.Habitat, bool) {
	h, ok := r.habitats[name]
	return h, ok
}

// Bank looks up a bank by id.
func (r *Reference) Bank(id string) (domain.Bank, bool) {
	b, ok := r.banks[id]
	return b, ok
}

// Banks returns every bank in the registry, sorted by bank_id for
// deterministic iteration.
func (r *Reference) Banks() []domain.Bank {
	out := make([]domain.Bank, 0, len(r.banks))
	for _, b := range r.banks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StockFor returns the stock row for (bankID, habitatName), if any.
func (r *Reference) StockFor(bankID, habitatName string) (domain.StockRow, bool) {
	byHabitat, ok := r.stock[bankID]
	if !ok {
		return domain.StockRow{}, false
	}
	s, ok := byHabitat[habitatName]
	return s, ok
}

// StockHabitatsFor returns every habitat name with a stock row at
// bankID, regardless of remaining free units, sorted for deterministic
// iteration. Callers filter on FreeUnits() themselves.
func (r *Reference) StockHabitatsFor(bankID string) []string {
	byHabitat, ok := r.stock[bankID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(byHabitat))
	for h := range byHabitat {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// PriceFor looks up the unit price for (bankID, habitatName, contractSize, tier).
func (r *Reference) PriceFor(bankID, habitatName string, cs domain.ContractSize, tier domain.Tier) (float64, bool) {
	byHabitat, ok := r.pricing[bankID]
	if !ok {
		return 0, false
	}
	byContract, ok := byHabitat[habitatName]
	if !ok {
		return 0, false
	}
	byTier, ok := byContract[cs]
	if !ok {
		return 0, false
	}
	price, ok := byTier[tier]
	return price, ok
}

// TradingRulesFor returns the explicit rules for a demand habitat, or nil
// if none exist (in which case trading for that habitat is NOT
// rule-scoped and the distinctiveness ladder applies).
func (r *Reference) TradingRulesFor(demandHabitat string) []domain.TradingRule {
	return r.tradingRulesByDemand[demandHabitat]
}

// IsRuleScoped reports whether any trading rule exists for demandHabitat.
func (r *Reference) IsRuleScoped(demandHabitat string) bool {
	return len(r.tradingRulesByDemand[demandHabitat]) > 0
}

// SRM returns the spatial risk multiplier for a tier, falling back to the
// spec-mandated default when no override row exists.
func (r *Reference) SRM(tier domain.Tier) float64 {
	if m, ok := r.srm[tier]; ok {
		return m
	}
	return domain.DefaultSRM(tier)
}

// Validate checks the invariants of spec §4.1: every pricing row's bank
// must exist in the registry, every stock row's habitat must exist in the
// catalog, and the catalog, bank registry, pricing table and stock ledger
// must be non-empty. Trading rules, SRM rows and distinctiveness levels
// may be empty.
func (r *Reference) Validate() error {
	if len(r.habitats) == 0 {
		return domain.NewError(domain.ErrReferenceIncomplete, "HabitatCatalog is empty")
	}
	if len(r.banks) == 0 {
		return domain.NewError(domain.ErrReferenceIncomplete, "Banks is empty")
	}
	if len(r.pricing) == 0 {
		return domain.NewError(domain.ErrReferenceIncomplete, "Pricing is empty")
	}
	if len(r.stock) == 0 {
		return domain.NewError(domain.ErrReferenceIncomplete, "Stock is empty")
	}
	for bankID := range r.pricing {
		if _, ok := r.banks[bankID]; !ok {
			return domain.NewError(domain.ErrReferenceIncomplete, "Pricing references unknown bank_id "+bankID)
		}
	}
	for bankID, byHabitat := range r.stock {
		for habitatName := range byHabitat {
			if _, ok := r.habitats[habitatName]; !ok {
				return domain.NewError(domain.ErrReferenceIncomplete,
					"Stock row for bank "+bankID+" references unknown habitat "+habitatName)
			}
		}
	}
	return nil
}
