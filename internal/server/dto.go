package server

import (
	"github.com/WCLondon/habitat-allocator/internal/domain"
	"github.com/WCLondon/habitat-allocator/internal/jobqueue"
)

// submitRequestDTO is the wire shape of POST /jobs, per spec §6.
type submitRequestDTO struct {
	Demand          []demandDTO `json:"demand"`
	Site            siteDTO     `json:"site"`
	MetricFileBytes []byte      `json:"metric_file_bytes,omitempty"`
	Options         optionsDTO  `json:"options"`
}

type demandDTO struct {
	Habitat string  `json:"habitat"`
	Units   float64 `json:"units"`
	Ledger  string  `json:"ledger,omitempty"`
}

type siteDTO struct {
	Postcode string `json:"postcode,omitempty"`
	Address  string `json:"address,omitempty"`
	LPA      string `json:"lpa,omitempty"`
	NCA      string `json:"nca,omitempty"`
}

type optionsDTO struct {
	PromoterMultiplier   float64 `json:"promoter_multiplier,omitempty"`
	LegacyPricingFormula bool    `json:"legacy_pricing_formula,omitempty"`
}

func (d submitRequestDTO) toRequest() jobqueue.Request {
	demand := make([]jobqueue.DemandInput, len(d.Demand))
	for i, line := range d.Demand {
		demand[i] = jobqueue.DemandInput{
			Habitat: line.Habitat,
			Units:   line.Units,
			Ledger:  domain.Ledger(line.Ledger),
		}
	}
	return jobqueue.Request{
		Demand:          demand,
		Site:            jobqueue.SiteInput(d.Site),
		MetricFileBytes: d.MetricFileBytes,
		Options: jobqueue.RequestOptions{
			PromoterMultiplier:   d.Options.PromoterMultiplier,
			LegacyPricingFormula: d.Options.LegacyPricingFormula,
		},
	}
}

// submitResponseDTO is the wire shape of POST /jobs's response.
type submitResponseDTO struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	Fingerprint string `json:"fingerprint"`
}

// statusResponseDTO is the wire shape of GET /jobs/{id}'s response.
type statusResponseDTO struct {
	Status string      `json:"status"`
	Result *resultDTO  `json:"result"`
	Error  *errorDTO   `json:"error"`
}

type errorDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type resultDTO struct {
	Allocations  []allocationRowDTO `json:"allocations"`
	TotalCost    float64            `json:"total_cost"`
	ContractSize string             `json:"contract_size"`
	Shortfalls   []shortfallDTO     `json:"shortfalls"`
	Warnings     []warningDTO       `json:"warnings"`
}

type allocationRowDTO struct {
	BankID             string  `json:"bank_id"`
	DemandHabitat      string  `json:"demand_habitat"`
	Ledger             string  `json:"ledger"`
	SupplyHabitat      string  `json:"supply_habitat"`
	Tier               string  `json:"tier"`
	Kind               string  `json:"kind"`
	UnitsSupplied      float64 `json:"units_supplied"`
	EffectiveUnits     float64 `json:"effective_units"`
	StockUnitsConsumed float64 `json:"stock_units_consumed"`
	UnitPrice          float64 `json:"unit_price"`
	Cost               float64 `json:"cost"`
	PairedRole         string  `json:"paired_role,omitempty"`
	PairGroupKey       string  `json:"pair_group_key,omitempty"`
}

type shortfallDTO struct {
	Ledger        string  `json:"ledger"`
	DemandHabitat string  `json:"demand_habitat"`
	UnitsRequired float64 `json:"units_required"`
	UnitsSupplied float64 `json:"units_supplied"`
	UnitsShort    float64 `json:"units_short"`
}

type warningDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// jobRecordToDTO projects a jobqueue.JobRecord onto the wire response
// shape of GET /jobs/{id}, per spec §6.
func jobRecordToDTO(rec *jobqueue.JobRecord) statusResponseDTO {
	dto := statusResponseDTO{Status: string(rec.State)}
	if rec.Result != nil {
		dto.Result = reportToDTO(rec.Result)
	}
	if rec.Err != nil {
		dto.Error = &errorDTO{Kind: string(rec.Err.Kind), Message: rec.Err.Message}
	}
	return dto
}

func reportToDTO(report *domain.AllocationReport) *resultDTO {
	allocations := make([]allocationRowDTO, len(report.Allocations))
	for i, row := range report.Allocations {
		allocations[i] = allocationRowDTO{
			BankID:             row.BankID,
			DemandHabitat:      row.DemandHabitat,
			Ledger:             string(row.Ledger),
			SupplyHabitat:      row.SupplyHabitat,
			Tier:               string(row.Tier),
			Kind:               string(row.Kind),
			UnitsSupplied:      row.UnitsSupplied,
			EffectiveUnits:     row.EffectiveUnits,
			StockUnitsConsumed: row.StockUnitsConsumed,
			UnitPrice:          row.UnitPrice,
			Cost:               row.Cost,
			PairedRole:         row.PairedRole,
			PairGroupKey:       row.PairGroupKey,
		}
	}
	shortfalls := make([]shortfallDTO, len(report.Shortfalls))
	for i, s := range report.Shortfalls {
		shortfalls[i] = shortfallDTO{
			Ledger:        string(s.Ledger),
			DemandHabitat: s.DemandHabitat,
			UnitsRequired: s.UnitsRequired,
			UnitsSupplied: s.UnitsSupplied,
			UnitsShort:    s.UnitsShort,
		}
	}
	warnings := make([]warningDTO, len(report.Warnings))
	for i, w := range report.Warnings {
		warnings[i] = warningDTO{Kind: w.Kind, Message: w.Message}
	}
	return &resultDTO{
		Allocations:  allocations,
		TotalCost:    report.TotalCost,
		ContractSize: string(report.ContractSize),
		Shortfalls:   shortfalls,
		Warnings:     warnings,
	}
}
