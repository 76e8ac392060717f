package allocation

import "github.com/WCLondon/habitat-allocator/internal/domain"

// AssignTier classifies a bank's spatial proximity to the site for a given
// ledger, per spec §4.4.2. Watercourse banks use catchment/waterbody
// membership instead of LPA/NCA; when that data is unavailable it degrades
// to far tier and returns a warning, per spec §9's open question.
func AssignTier(bank domain.Bank, site domain.SiteContext, ledger domain.Ledger) (domain.Tier, *domain.Warning) {
	if ledger == domain.LedgerWatercourse {
		return assignWatercourseTier(bank, site)
	}
	return assignAreaTier(bank, site), nil
}

func assignAreaTier(bank domain.Bank, site domain.SiteContext) domain.Tier {
	if (bank.LPAName != "" && bank.LPAName == site.LPAName) || (bank.NCAName != "" && bank.NCAName == site.NCAName) {
		return domain.TierLocal
	}
	if _, ok := site.LPANeighbours[bank.LPAName]; ok && bank.LPAName != "" {
		return domain.TierAdjacent
	}
	if _, ok := site.NCANeighbours[bank.NCAName]; ok && bank.NCAName != "" {
		return domain.TierAdjacent
	}
	return domain.TierFar
}

func assignWatercourseTier(bank domain.Bank, site domain.SiteContext) (domain.Tier, *domain.Warning) {
	if bank.WaterbodyID == "" || site.WaterbodyID == "" || bank.OperationalCatchmentID == "" || site.OperationalCatchmentID == "" {
		return domain.TierFar, &domain.Warning{
			Kind:    domain.WarnCatchmentUnavailable,
			Message: "catchment data unavailable for bank " + bank.ID + "; treated as far tier",
		}
	}
	if bank.WaterbodyID == site.WaterbodyID {
		return domain.TierLocal, nil
	}
	if bank.OperationalCatchmentID == site.OperationalCatchmentID {
		return domain.TierAdjacent, nil
	}
	return domain.TierFar, nil
}

// StockUseRatio returns the raw-stock-units-consumed-per-effective-unit for
// a normal (non-paired) option at tier on ledger, per spec §4.4.2 and
// §4.4.4: area/hedgerow use the SRM directly; watercourse uses the inverse
// of the tier's yield.
func StockUseRatio(ref ReferenceLookup, ledger domain.Ledger, tier domain.Tier) float64 {
	if ledger == domain.LedgerWatercourse {
		yield := domain.WatercourseYield(tier)
		if yield <= 0 {
			return 0
		}
		return 1.0 / yield
	}
	return ref.SRM(tier)
}
