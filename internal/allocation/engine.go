// Package allocation implements the cost-minimising allocation engine: it
// builds legal (demand, bank, supply) options from a reference snapshot and
// a resolved site, solves for the cheapest feasible draw with a linear
// program, falls back to a greedy oracle when the LP reports infeasible,
// then bundles and rounds the result into an allocation report.
package allocation

import (
	"github.com/WCLondon/habitat-allocator/internal/config"
	"github.com/WCLondon/habitat-allocator/internal/domain"
	"github.com/rs/zerolog"
)

// Engine runs the §4.4 pipeline for a single job.
type Engine struct {
	log zerolog.Logger
}

// NewEngine constructs an Engine.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "allocation_engine").Logger()}
}

// Run executes the full state machine: READY -> OPTIONS_BUILT -> LP_RUNNING
// -> {SOLVED | GREEDY | INFEASIBLE_REPORTED}, returning the completed
// report. Run never returns a Go error for an infeasible instance — that is
// a normal, reportable outcome; only a malformed reference snapshot would
// cause a caller-visible error, and this implementation has none left to
// surface once BuildOptions has run, so the error return is always nil.
func (e *Engine) Run(ref ReferenceLookup, site domain.SiteContext, demand []domain.DemandLine, cfg *config.Config) (*domain.AllocationReport, error) {
	state := domain.StateReady

	var totalAreaUnits float64
	for _, d := range demand {
		if d.Ledger == domain.LedgerArea {
			totalAreaUnits += d.UnitsRequired
		}
	}
	contractSize := cfg.ContractSizeFor(totalAreaUnits)

	options, warnings := BuildOptions(ref, site, demand, contractSize)
	state = domain.StateOptionsBuilt

	if len(demand) == 0 {
		return &domain.AllocationReport{
			Allocations:  nil,
			TotalCost:    0,
			ContractSize: contractSize,
			Warnings:     warnings,
			State:        domain.StateSolved,
		}, nil
	}

	state = domain.StateLPRunning

	var unitsByOption map[string]float64
	var shortfalls []domain.Shortfall

	useLP := cfg.Solver != config.SolverGreedyOnly
	if useLP {
		solved, err := solveLP(ref, demand, options)
		if err == nil {
			unitsByOption = solved
			state = domain.StateSolved
		} else {
			e.log.Warn().Err(err).Msg("LP reported infeasible, falling back to greedy")
		}
	}

	if unitsByOption == nil {
		greedyResult := SolveGreedy(ref, demand, options)
		unitsByOption = greedyResult.UnitsByOption
		shortfalls = greedyResult.Shortfalls
		if len(shortfalls) == 0 {
			state = domain.StateGreedy
		} else {
			state = domain.StateInfeasibleReport
		}
	}

	rows := Bundle(options, unitsByOption)

	var totalCost float64
	for _, r := range rows {
		totalCost += r.Cost
	}

	return &domain.AllocationReport{
		Allocations:  rows,
		TotalCost:    totalCost,
		ContractSize: contractSize,
		Shortfalls:   shortfalls,
		Warnings:     warnings,
		State:        state,
	}, nil
}
