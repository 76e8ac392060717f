package metricparser

import (
	"strconv"
	"strings"

	"github.com/WCLondon/habitat-allocator/internal/domain"
	"github.com/xuri/excelize/v2"
)

// sheetFragments names the case-insensitive substrings used to locate
// each ledger's trading-summary sheet, per spec §4.2/§6.
var sheetFragments = map[domain.Ledger]string{
	domain.LedgerArea:        "trading summary area habitats",
	domain.LedgerHedgerow:    "trading summary hedgerows",
	domain.LedgerWatercourse: "trading summary watercourses",
}

const headlineResultsFragment = "headline results"

// findSheet returns the name of the first sheet in f whose name contains
// fragment, case-insensitively. ok is false if no sheet matches.
func findSheet(f *excelize.File, fragment string) (name string, ok bool) {
	fragment = strings.ToLower(fragment)
	for _, s := range f.GetSheetList() {
		if strings.Contains(strings.ToLower(s), fragment) {
			return s, true
		}
	}
	return "", false
}

// rawRow is one extracted habitat line from a trading-summary sheet,
// tagged with the distinctiveness band in force when it was read.
type rawRow struct {
	HabitatName     string
	Distinctiveness domain.Distinctiveness
	BroaderType     string
	NetChange       float64
	BandUnresolved  bool // true when the section header above this row did not parse to a known band
}

// sectionHeaderBand inspects a candidate section-header cell (e.g. "Very
// High Distinctiveness Habitats") and returns the band it names. A cell
// that does not mention "distinctiveness" is not a section header at
// all; ok is false in that case. A cell that does mention
// "distinctiveness" but names no recognised band returns
// DistinctivenessUnknown with ok true, so the caller can tell "a new,
// unresolvable section started" apart from "no section header here".
func sectionHeaderBand(cell string) (band domain.Distinctiveness, ok bool) {
	lower := strings.ToLower(cell)
	if !strings.Contains(lower, "distinctiveness") {
		return domain.DistinctivenessUnknown, false
	}
	for _, name := range []string{"Very High", "Very Low", "High", "Medium", "Low"} {
		if strings.Contains(lower, strings.ToLower(name)) {
			return domain.ParseDistinctiveness(name), true
		}
	}
	return domain.DistinctivenessUnknown, true
}

// isTotalRow reports whether label is a subtotal/total marker row that
// should never be treated as a habitat data row.
func isTotalRow(label string) bool {
	lower := strings.ToLower(strings.TrimSpace(label))
	return lower == "" || strings.HasPrefix(lower, "total") || strings.HasPrefix(lower, "sub-total") || strings.HasPrefix(lower, "subtotal")
}

// extractRows reads a ledger trading-summary sheet's rows. It locates the
// header row (the first row containing a cell equal, case-insensitively,
// to "Habitat") to find the habitat-name column and the net-unit-change
// column (the first header column whose text contains "change"), then
// walks subsequent rows tracking the active distinctiveness band via
// section-header rows.
func extractRows(rows [][]string) ([]rawRow, bool) {
	habitatCol, changeCol, headerFound := -1, -1, false
	headerRowIdx := -1

	for i, row := range rows {
		for c, cell := range row {
			if strings.EqualFold(strings.TrimSpace(cell), "Habitat") {
				habitatCol = c
			}
			if strings.Contains(strings.ToLower(cell), "change") {
				changeCol = c
			}
		}
		if habitatCol != -1 && changeCol != -1 {
			headerFound = true
			headerRowIdx = i
			break
		}
		habitatCol, changeCol = -1, -1
	}
	if !headerFound {
		return nil, false
	}

	var out []rawRow
	currentBand := domain.DistinctivenessUnknown
	bandUnresolved := false

	for i := headerRowIdx + 1; i < len(rows); i++ {
		row := rows[i]
		label := cellAt(row, habitatCol)

		if band, isHeader := sectionHeaderBand(label); isHeader {
			currentBand = band
			bandUnresolved = band == domain.DistinctivenessUnknown
			continue
		}

		if isTotalRow(label) {
			continue
		}

		netChange := parseFloatCell(cellAt(row, changeCol))
		out = append(out, rawRow{
			HabitatName:     strings.TrimSpace(label),
			Distinctiveness: currentBand,
			NetChange:       netChange,
			BandUnresolved:  bandUnresolved,
		})
	}

	return out, true
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// parseFloatCell parses a numeric cell, treating blank as 0 per spec §6
// ("Numeric cells may be blank (treated as 0)").
func parseFloatCell(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// headlineTarget is one ledger's row from the Headline Results sheet.
type headlineTarget struct {
	Ledger        domain.Ledger
	BaselineUnits float64
	TargetPercent float64
}

var ledgerLabels = map[domain.Ledger][]string{
	domain.LedgerArea:        {"area"},
	domain.LedgerHedgerow:    {"hedgerow", "hedgerows"},
	domain.LedgerWatercourse: {"watercourse", "watercourses", "river"},
}

// extractHeadlineTargets reads the Headline Results sheet: a header row
// with a "Baseline" column and a "Target" (percent) column, followed by
// one row per ledger labelled by name in its first populated cell.
func extractHeadlineTargets(rows [][]string) []headlineTarget {
	labelCol, baselineCol, targetCol := -1, -1, -1
	headerRowIdx := -1

	for i, row := range rows {
		for c, cell := range row {
			lower := strings.ToLower(cell)
			if strings.Contains(lower, "baseline") {
				baselineCol = c
			}
			if strings.Contains(lower, "target") {
				targetCol = c
			}
		}
		if baselineCol != -1 && targetCol != -1 {
			headerRowIdx = i
			labelCol = 0
			break
		}
		baselineCol, targetCol = -1, -1
	}
	if headerRowIdx == -1 {
		return nil
	}

	var out []headlineTarget
	for i := headerRowIdx + 1; i < len(rows); i++ {
		row := rows[i]
		label := strings.ToLower(strings.TrimSpace(cellAt(row, labelCol)))
		if label == "" {
			continue
		}
	matchLedgers:
		for ledger, names := range ledgerLabels {
			for _, n := range names {
				if strings.Contains(label, n) {
					out = append(out, headlineTarget{
						Ledger:        ledger,
						BaselineUnits: parseFloatCell(cellAt(row, baselineCol)),
						TargetPercent: parseFloatCell(cellAt(row, targetCol)),
					})
					break matchLedgers
				}
			}
		}
	}
	return out
}
