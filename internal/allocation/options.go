package allocation

import (
	"fmt"
	"sort"

	"github.com/WCLondon/habitat-allocator/internal/domain"
)

// BuildOptions enumerates every legal (demand, bank, supply) option per
// spec §4.4.4: a normal option for each legal supply habitat with a price,
// plus — where pairing strictly lowers the blended price — the single best
// paired option for that (demand, bank, main supply) triple. The minimizer
// decides between them.
func BuildOptions(ref ReferenceLookup, site domain.SiteContext, demand []domain.DemandLine, contractSize domain.ContractSize) ([]domain.AllocationOption, []domain.Warning) {
	var options []domain.AllocationOption
	var warnings []domain.Warning
	warnedBank := make(map[string]bool)

	banks := ref.Banks()

	for _, d := range demand {
		for _, bank := range banks {
			tier, warn := AssignTier(bank, site, d.Ledger)
			if warn != nil && !warnedBank[bank.ID] {
				warnings = append(warnings, *warn)
				warnedBank[bank.ID] = true
			}

			ratio := StockUseRatio(ref, d.Ledger, tier)
			if ratio <= 0 {
				continue
			}

			for _, supplyName := range ref.StockHabitatsFor(bank.ID) {
				supply, ok := ref.Habitat(supplyName)
				if !ok || supply.UmbrellaType != d.Ledger {
					continue
				}
				if !IsLegalSubstitute(ref, d, supply) {
					continue
				}
				stock, ok := ref.StockFor(bank.ID, supplyName)
				if !ok || stock.FreeUnits() <= 0 {
					continue
				}
				price, ok := ref.PriceFor(bank.ID, supplyName, contractSize, tier)
				if !ok {
					continue
				}

				options = append(options, domain.AllocationOption{
					ID:                optionID(bank.ID, d.HabitatName, supplyName, tier, domain.OptionNormal, ""),
					BankID:            bank.ID,
					DemandHabitat:     d.HabitatName,
					DemandLedger:      d.Ledger,
					Tier:              tier,
					Kind:              domain.OptionNormal,
					UnitPrice:         price,
					SupplyHabitat:     supplyName,
					StockUseRatio:     ratio,
					MaxEffectiveUnits: stock.FreeUnits() / ratio,
				})

				if paired, ok := bestPairedOption(ref, bank, d, supply, stock, price, contractSize, tier); ok {
					options = append(options, paired)
				}
			}
		}
	}

	sort.SliceStable(options, func(i, j int) bool {
		if options[i].BankID != options[j].BankID {
			return options[i].BankID < options[j].BankID
		}
		if options[i].DemandHabitat != options[j].DemandHabitat {
			return options[i].DemandHabitat < options[j].DemandHabitat
		}
		return options[i].SupplyHabitat < options[j].SupplyHabitat
	})

	return options, warnings
}

// bestPairedOption finds the legal companion habitat at bank (distinct from
// mainSupply) minimising the blended price, per spec §4.4.4. Paired options
// are never emitted for the local tier.
func bestPairedOption(
	ref ReferenceLookup,
	bank domain.Bank,
	d domain.DemandLine,
	mainSupply domain.Habitat,
	mainStock domain.StockRow,
	mainPrice float64,
	contractSize domain.ContractSize,
	tier domain.Tier,
) (domain.AllocationOption, bool) {
	wMain, wCompanion, ok := domain.PairWeights(tier)
	if !ok {
		return domain.AllocationOption{}, false
	}

	var best *domain.AllocationOption
	var bestBlended float64

	for _, companionName := range ref.StockHabitatsFor(bank.ID) {
		if companionName == mainSupply.Name {
			continue
		}
		companion, ok := ref.Habitat(companionName)
		if !ok || companion.UmbrellaType != d.Ledger {
			continue
		}
		if !LegalCompanion(ref, d, mainSupply, companion) {
			continue
		}
		compStock, ok := ref.StockFor(bank.ID, companionName)
		if !ok || compStock.FreeUnits() <= 0 {
			continue
		}
		compPrice, ok := ref.PriceFor(bank.ID, companionName, contractSize, tier)
		if !ok {
			continue
		}

		blended := wMain*mainPrice + wCompanion*compPrice
		if blended >= mainPrice {
			// Pairing must strictly lower the price to be worth emitting.
			continue
		}
		if best == nil || blended < bestBlended {
			maxEffective := mainStock.FreeUnits() / wMain
			if companionMax := compStock.FreeUnits() / wCompanion; companionMax < maxEffective {
				maxEffective = companionMax
			}
			candidate := domain.AllocationOption{
				ID:                optionID(bank.ID, d.HabitatName, mainSupply.Name, tier, domain.OptionPaired, companionName),
				BankID:            bank.ID,
				DemandHabitat:     d.HabitatName,
				DemandLedger:      d.Ledger,
				Tier:              tier,
				Kind:              domain.OptionPaired,
				UnitPrice:         blended,
				SupplyHabitat:     mainSupply.Name,
				StockUseRatio:     wMain,
				CompanionHabitat:  companionName,
				CompanionStockUse: wCompanion,
				MaxEffectiveUnits: maxEffective,
			}
			best = &candidate
			bestBlended = blended
		}
	}

	if best == nil {
		return domain.AllocationOption{}, false
	}
	return *best, true
}

func optionID(bankID, demandHabitat, supplyHabitat string, tier domain.Tier, kind domain.OptionKind, companion string) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s", bankID, demandHabitat, supplyHabitat, tier, kind, companion)
}
