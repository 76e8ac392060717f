// Package pipeline wires the metric parser, geography resolver, and
// allocation engine into the single strictly-sequential per-job pipeline
// required by spec §5: parse -> resolve -> build options -> solve -> bundle.
// It implements jobqueue.Runner so the job queue's worker pool can drive it
// without depending on any of the component packages directly.
package pipeline

import (
	"context"
	"fmt"

	"github.com/WCLondon/habitat-allocator/internal/allocation"
	"github.com/WCLondon/habitat-allocator/internal/config"
	"github.com/WCLondon/habitat-allocator/internal/domain"
	"github.com/WCLondon/habitat-allocator/internal/geography"
	"github.com/WCLondon/habitat-allocator/internal/jobqueue"
	"github.com/WCLondon/habitat-allocator/internal/metricparser"
	"github.com/WCLondon/habitat-allocator/internal/reference"
	"github.com/rs/zerolog"
)

// ReferenceStore is the slice of *reference.Store the pipeline needs. Its
// snapshot type, *reference.Reference, already satisfies both
// metricparser.HabitatLookup and allocation.ReferenceLookup structurally,
// so no further adaptation interface is needed at the call sites below.
type ReferenceStore interface {
	Snapshot() *reference.Reference
}

// Pipeline runs one job end to end.
type Pipeline struct {
	referenceStore ReferenceStore
	parser         *metricparser.Parser
	resolver       *geography.Resolver
	engine         *allocation.Engine
	cfg            *config.Config
	log            zerolog.Logger
}

// New constructs a Pipeline from its already-wired collaborators.
func New(referenceStore ReferenceStore, parser *metricparser.Parser, resolver *geography.Resolver, engine *allocation.Engine, cfg *config.Config, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		referenceStore: referenceStore,
		parser:         parser,
		resolver:       resolver,
		engine:         engine,
		cfg:            cfg,
		log:            log.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes parse -> resolve -> build options -> solve -> bundle for a
// single job, per spec §5's ordering guarantee. It satisfies
// jobqueue.Runner.
func (p *Pipeline) Run(ctx context.Context, req jobqueue.Request) (*domain.AllocationReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if req.Options.LegacyPricingFormula {
		return nil, domain.NewError(domain.ErrInputInvalid,
			"the legacy paired-pricing formula (sum of component prices divided by SRM) is not supported; omit legacy_pricing_formula and let the engine compute the canonical weighted blend")
	}

	if len(req.Demand) == 0 && len(req.MetricFileBytes) == 0 {
		return nil, domain.NewError(domain.ErrInputInvalid, "request has neither explicit demand lines nor a metric file")
	}

	ref := p.referenceStore.Snapshot()
	if ref == nil {
		return nil, domain.NewError(domain.ErrReferenceIncomplete, "reference snapshot not yet loaded")
	}

	demandByLedger := make(map[domain.Ledger][]domain.DemandLine)
	var warnings []domain.Warning

	if len(req.MetricFileBytes) > 0 {
		result, err := p.parser.Parse(req.MetricFileBytes, ref)
		if err != nil {
			return nil, err
		}
		for ledger, lines := range result.Demand {
			demandByLedger[ledger] = append(demandByLedger[ledger], lines...)
		}
		warnings = append(warnings, result.Warnings...)
	}

	for _, d := range req.Demand {
		line, err := p.demandLineFor(ref, d)
		if err != nil {
			return nil, err
		}
		demandByLedger[line.Ledger] = append(demandByLedger[line.Ledger], line)
	}

	site, err := p.resolveSite(req.Site)
	if err != nil {
		return nil, err
	}

	demand := flattenDemand(demandByLedger)

	report, err := p.engine.Run(ref, site, demand, p.cfg)
	if err != nil {
		return nil, err
	}
	report.Warnings = append(warnings, report.Warnings...)

	applyPromoterMultiplier(report, req.Options.PromoterMultiplier)

	return report, nil
}

func (p *Pipeline) resolveSite(site jobqueue.SiteInput) (domain.SiteContext, error) {
	switch {
	case site.LPA != "" && site.NCA != "":
		return p.resolver.ResolveExplicit(site.LPA, site.NCA)
	case site.Postcode != "":
		return p.resolver.ResolvePostcode(site.Postcode)
	case site.Address != "":
		return p.resolver.ResolveAddress(site.Address)
	default:
		return domain.SiteContext{}, domain.NewError(domain.ErrGeographyUnresolved, "site has no postcode, address, or explicit lpa/nca")
	}
}

func (p *Pipeline) demandLineFor(ref *reference.Reference, d jobqueue.DemandInput) (domain.DemandLine, error) {
	if d.Units <= 0 {
		return domain.DemandLine{}, domain.NewError(domain.ErrInputInvalid, fmt.Sprintf("demand units for %q must be strictly positive", d.Habitat))
	}
	ledger := d.Ledger
	if ledger == "" {
		ledger = domain.LedgerArea
	}

	if domain.IsNetGain(d.Habitat) {
		return domain.DemandLine{Ledger: ledger, HabitatName: d.Habitat, UnitsRequired: d.Units}, nil
	}

	habitat, ok := ref.Habitat(d.Habitat)
	if !ok {
		return domain.DemandLine{}, domain.NewError(domain.ErrInputInvalid, fmt.Sprintf("unknown demand habitat %q", d.Habitat))
	}
	return domain.DemandLine{
		Ledger:          ledger,
		HabitatName:     d.Habitat,
		UnitsRequired:   d.Units,
		Distinctiveness: habitat.Distinctiveness,
		BroaderType:     habitat.BroaderType,
	}, nil
}

func flattenDemand(byLedger map[domain.Ledger][]domain.DemandLine) []domain.DemandLine {
	var out []domain.DemandLine
	for _, ledger := range []domain.Ledger{domain.LedgerArea, domain.LedgerHedgerow, domain.LedgerWatercourse} {
		out = append(out, byLedger[ledger]...)
	}
	return out
}

// applyPromoterMultiplier implements the narrow promoter/introducer price
// transformation named in spec §1 and SPEC_FULL EXPANSION C.4: it scales
// the buyer-facing cost after the minimizer has run, never the stock
// consumption the allocation already committed to.
func applyPromoterMultiplier(report *domain.AllocationReport, multiplier float64) {
	if multiplier <= 0 || multiplier == 1 {
		return
	}
	var total float64
	for i := range report.Allocations {
		report.Allocations[i].UnitPrice *= multiplier
		report.Allocations[i].Cost *= multiplier
		total += report.Allocations[i].Cost
	}
	report.TotalCost = total
}
