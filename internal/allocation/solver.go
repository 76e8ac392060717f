package allocation

import (
	"github.com/WCLondon/habitat-allocator/internal/domain"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// tieBreakEpsilon nudges the LP toward earlier-sorted (lexicographically by
// bank_id, then demand/supply habitat) options when multiple assignments
// are equal-cost, giving the deterministic tie-break spec §4.4.5 asks for.
const tieBreakEpsilon = 1e-9

type stockComponent struct {
	bankID  string
	habitat string
}

// solveLP builds and solves the cost-minimisation LP of spec §4.4.5:
// nonnegative x_o per option, demand satisfied exactly, stock capacity
// per (bank, habitat) respected. A non-nil error means the LP reported
// infeasible; callers fall through to the greedy oracle.
func solveLP(ref ReferenceLookup, demand []domain.DemandLine, options []domain.AllocationOption) (map[string]float64, error) {
	if len(options) == 0 {
		if len(demand) == 0 {
			return map[string]float64{}, nil
		}
		return nil, domain.NewError(domain.ErrInfeasible, "no options available to satisfy demand")
	}

	componentIndex := make(map[stockComponent]int)
	var components []stockComponent
	componentIdx := func(bankID, habitat string) int {
		key := stockComponent{bankID, habitat}
		if idx, ok := componentIndex[key]; ok {
			return idx
		}
		idx := len(components)
		componentIndex[key] = idx
		components = append(components, key)
		return idx
	}
	for _, o := range options {
		componentIdx(o.BankID, o.SupplyHabitat)
		if o.Kind == domain.OptionPaired {
			componentIdx(o.BankID, o.CompanionHabitat)
		}
	}

	nOptions := len(options)
	nDemand := len(demand)
	nComponents := len(components)
	nVars := nOptions + nComponents
	nRows := nDemand + nComponents

	a := mat.NewDense(nRows, nVars, nil)
	b := make([]float64, nRows)
	c := make([]float64, nVars)

	demandIndex := make(map[string]int, nDemand)
	for i, d := range demand {
		demandIndex[demandKey(d.Ledger, d.HabitatName)] = i
		b[i] = d.UnitsRequired
	}

	for j, o := range options {
		c[j] = o.UnitPrice + tieBreakEpsilon*float64(j)

		if di, ok := demandIndex[demandKey(o.DemandLedger, o.DemandHabitat)]; ok {
			a.Set(di, j, 1.0)
		}

		mainRow := nDemand + componentIdx(o.BankID, o.SupplyHabitat)
		a.Set(mainRow, j, a.At(mainRow, j)+o.StockUseRatio)
		if o.Kind == domain.OptionPaired {
			compRow := nDemand + componentIdx(o.BankID, o.CompanionHabitat)
			a.Set(compRow, j, a.At(compRow, j)+o.CompanionStockUse)
		}
	}

	for k, comp := range components {
		row := nDemand + k
		slackCol := nOptions + k
		a.Set(row, slackCol, 1.0)
		if stock, ok := ref.StockFor(comp.bankID, comp.habitat); ok {
			b[row] = stock.FreeUnits()
		}
	}

	_, xStar, err := lp.Simplex(c, a, b, 0, nil)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInfeasible, "linear program reported infeasible", err)
	}

	result := make(map[string]float64, nOptions)
	for j, o := range options {
		if xStar[j] > 1e-9 {
			result[o.ID] = xStar[j]
		}
	}
	return result, nil
}

func demandKey(ledger domain.Ledger, habitat string) string {
	return string(ledger) + "::" + habitat
}
