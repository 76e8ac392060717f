// Package metricparser converts a biodiversity-metric spreadsheet
// workbook into a canonical per-ledger demand list, applying on-site
// trading-rule offsets before any bank-side allocation is considered
// (spec §4.2).
package metricparser

import (
	"bytes"

	"github.com/WCLondon/habitat-allocator/internal/domain"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Result is the parser's output: one demand list per ledger, plus
// structured warnings raised along the way.
type Result struct {
	Demand   map[domain.Ledger][]domain.DemandLine
	Warnings []domain.Warning
}

// HabitatLookup resolves a habitat name to its catalog entry, used to
// fill in BroaderType for rows the workbook itself doesn't carry it for.
// The reference store's snapshot satisfies this.
type HabitatLookup interface {
	Habitat(name string) (domain.Habitat, bool)
}

// Parser parses metric workbooks against a given reference snapshot.
type Parser struct {
	log zerolog.Logger
}

// New creates a Parser.
func New(log zerolog.Logger) *Parser {
	return &Parser{log: log.With().Str("component", "metric_parser").Logger()}
}

// Parse runs the full pipeline of spec §4.2 over workbook bytes.
func (p *Parser) Parse(data []byte, habitats HabitatLookup) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInputInvalid, "could not open metric workbook", err)
	}
	defer f.Close()

	result := &Result{Demand: make(map[domain.Ledger][]domain.DemandLine)}

	remainingSurplus := make(map[domain.Ledger]float64)

	for ledger, fragment := range sheetFragments {
		sheetName, ok := findSheet(f, fragment)
		if !ok {
			result.Warnings = append(result.Warnings, domain.Warning{
				Kind:    domain.WarnMissingSheet,
				Message: "no sheet found matching \"" + fragment + "\"",
			})
			continue
		}

		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInputInvalid, "reading sheet "+sheetName, err)
		}

		raw, found := extractRows(rows)
		if !found {
			result.Warnings = append(result.Warnings, domain.Warning{
				Kind:    domain.WarnMissingSheet,
				Message: "sheet " + sheetName + " has no recognisable header row",
			})
			continue
		}

		var deficits, surpluses []ledgerLine
		for _, r := range raw {
			broaderType := ""
			if habitats != nil {
				if h, ok := habitats.Habitat(r.HabitatName); ok {
					broaderType = h.BroaderType
				}
			}
			line := ledgerLine{
				HabitatName:     r.HabitatName,
				Distinctiveness: r.Distinctiveness,
				BroaderType:     broaderType,
				RemainingUnits:  abs(r.NetChange),
				Unresolvable:    r.BandUnresolved || !r.Distinctiveness.Valid(),
			}
			if line.RemainingUnits == 0 {
				continue
			}
			if r.NetChange < 0 {
				deficits = append(deficits, line)
			} else {
				surpluses = append(surpluses, line)
			}
		}

		remaining, surplusLeft, warnings := applyOffsets(ledger, deficits, surpluses)
		result.Warnings = append(result.Warnings, warnings...)
		remainingSurplus[ledger] = surplusLeft

		var demand []domain.DemandLine
		for _, d := range remaining {
			demand = append(demand, domain.DemandLine{
				Ledger:          ledger,
				HabitatName:     d.HabitatName,
				UnitsRequired:   d.RemainingUnits,
				Distinctiveness: d.Distinctiveness,
				BroaderType:     d.BroaderType,
			})
		}
		result.Demand[ledger] = demand
	}

	if headlineSheet, ok := findSheet(f, headlineResultsFragment); ok {
		rows, err := f.GetRows(headlineSheet)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInputInvalid, "reading headline results sheet", err)
		}
		targets := extractHeadlineTargets(rows)
		for _, t := range targets {
			residual := t.BaselineUnits*(t.TargetPercent/100.0) - remainingSurplus[t.Ledger]
			if residual > 1e-9 {
				result.Demand[t.Ledger] = append(result.Demand[t.Ledger], domain.DemandLine{
					Ledger:          t.Ledger,
					HabitatName:     domain.NetGainHabitatName(t.Ledger),
					UnitsRequired:   residual,
					Distinctiveness: domain.DistinctivenessLow,
				})
			}
		}
	}

	return result, nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
