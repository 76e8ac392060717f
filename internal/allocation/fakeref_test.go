package allocation

import (
	"sort"

	"github.com/WCLondon/habitat-allocator/internal/domain"
)

// fakeRef is a minimal in-memory ReferenceLookup for engine tests, built
// the way the metric parser's tests build fake lookups rather than
// standing up a real SQLite-backed reference.Reference.
type fakeRef struct {
	habitats map[string]domain.Habitat
	banks    map[string]domain.Bank
	stock    map[string]map[string]domain.StockRow
	pricing  map[string]map[string]map[domain.ContractSize]map[domain.Tier]float64
	rules    map[string][]domain.TradingRule
	srm      map[domain.Tier]float64
}

func newFakeRef() *fakeRef {
	return &fakeRef{
		habitats: make(map[string]domain.Habitat),
		banks:    make(map[string]domain.Bank),
		stock:    make(map[string]map[string]domain.StockRow),
		pricing:  make(map[string]map[string]map[domain.ContractSize]map[domain.Tier]float64),
		rules:    make(map[string][]domain.TradingRule),
		srm:      make(map[domain.Tier]float64),
	}
}

func (f *fakeRef) addHabitat(h domain.Habitat) { f.habitats[h.Name] = h }
func (f *fakeRef) addBank(b domain.Bank)       { f.banks[b.ID] = b }

func (f *fakeRef) addStock(s domain.StockRow) {
	if f.stock[s.BankID] == nil {
		f.stock[s.BankID] = make(map[string]domain.StockRow)
	}
	f.stock[s.BankID][s.HabitatName] = s
}

func (f *fakeRef) addPrice(bankID, habitat string, cs domain.ContractSize, tier domain.Tier, price float64) {
	if f.pricing[bankID] == nil {
		f.pricing[bankID] = make(map[string]map[domain.ContractSize]map[domain.Tier]float64)
	}
	if f.pricing[bankID][habitat] == nil {
		f.pricing[bankID][habitat] = make(map[domain.ContractSize]map[domain.Tier]float64)
	}
	if f.pricing[bankID][habitat][cs] == nil {
		f.pricing[bankID][habitat][cs] = make(map[domain.Tier]float64)
	}
	f.pricing[bankID][habitat][cs][tier] = price
}

func (f *fakeRef) addRule(r domain.TradingRule) {
	f.rules[r.DemandHabitat] = append(f.rules[r.DemandHabitat], r)
}

func (f *fakeRef) Habitat(name string) (domain.Habitat, bool) {
	h, ok := f.habitats[name]
	return h, ok
}

func (f *fakeRef) Bank(id string) (domain.Bank, bool) {
	b, ok := f.banks[id]
	return b, ok
}

func (f *fakeRef) Banks() []domain.Bank {
	out := make([]domain.Bank, 0, len(f.banks))
	for _, b := range f.banks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeRef) StockFor(bankID, habitat string) (domain.StockRow, bool) {
	byHabitat, ok := f.stock[bankID]
	if !ok {
		return domain.StockRow{}, false
	}
	s, ok := byHabitat[habitat]
	return s, ok
}

func (f *fakeRef) StockHabitatsFor(bankID string) []string {
	byHabitat, ok := f.stock[bankID]
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

func (f *fakeRef) PriceFor(bankID, habitat string, cs domain.ContractSize, tier domain.Tier) (float64, bool) {
	byHabitat, ok := f.pricing[bankID]
	if !ok {
		return 0, false
	}
	byContract, ok := byHabitat[habitat]
	if !ok {
		return 0, false
	}
	byTier, ok := byContract[cs]
	if !ok {
		return 0, false
	}
	p, ok := byTier[tier]
	return p, ok
}

func (f *fakeRef) TradingRulesFor(demand string) []domain.TradingRule { return f.rules[demand] }
func (f *fakeRef) IsRuleScoped(demand string) bool                    { return len(f.rules[demand]) > 0 }

func (f *fakeRef) SRM(tier domain.Tier) float64 {
	if m, ok := f.srm[tier]; ok {
		return m
	}
	return domain.DefaultSRM(tier)
}
