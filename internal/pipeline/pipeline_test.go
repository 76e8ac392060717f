package pipeline

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/WCLondon/habitat-allocator/internal/allocation"
	"github.com/WCLondon/habitat-allocator/internal/config"
	"github.com/WCLondon/habitat-allocator/internal/domain"
	"github.com/WCLondon/habitat-allocator/internal/geography"
	"github.com/WCLondon/habitat-allocator/internal/jobqueue"
	"github.com/WCLondon/habitat-allocator/internal/metricparser"
	"github.com/WCLondon/habitat-allocator/internal/reference"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func openReferenceDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedReference(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(reference.Schema())
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO HabitatCatalog (habitat_name, broader_type, distinctiveness, umbrella_type) VALUES
		('Other neutral grassland', 'Grassland', 'Medium', 'area')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO Banks (bank_id, bank_name, lpa_name, nca_name) VALUES ('B1', 'Bank One', 'Borough A', 'NCA X')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO Stock (bank_id, habitat_name, available_units) VALUES ('B1', 'Other neutral grassland', 10)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO Pricing (bank_id, habitat_name, contract_size, tier, unit_price) VALUES
		('B1', 'Other neutral grassland', 'small', 'local', 25000)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO SRM (tier, multiplier) VALUES ('local', 1.0), ('adjacent', 1.3333333333), ('far', 2.0)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO DistinctivenessLevels (name, rank) VALUES
		('Very Low', 0), ('Low', 1), ('Medium', 2), ('High', 3), ('Very High', 4)`)
	require.NoError(t, err)
}

func openGeographyDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(geography.Schema())
	require.NoError(t, err)
	return db
}

func seedGeography(t *testing.T, db *sql.DB) {
	t.Helper()
	ring, err := geography.EncodeRing(orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}})
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO LPAPolygons (lpa_name, ring_json) VALUES ('Borough A', ?)`, ring)
	require.NoError(t, err)
	ncaRing, err := geography.EncodeRing(orb.Ring{{0, 0}, {20, 0}, {20, 10}, {0, 10}, {0, 0}})
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO NCAPolygons (nca_name, ring_json) VALUES ('NCA X', ?)`, ncaRing)
	require.NoError(t, err)
}

type fakeGeocoder struct{ points map[string]orb.Point }

func (g *fakeGeocoder) GeocodePostcode(postcode string) (orb.Point, error) {
	pt, ok := g.points[postcode]
	if !ok {
		return orb.Point{}, domain.NewError(domain.ErrGeographyUnresolved, "unknown postcode")
	}
	return pt, nil
}
func (g *fakeGeocoder) GeocodeAddress(address string) (orb.Point, error) {
	return g.GeocodePostcode(address)
}

func buildTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	refDB := openReferenceDB(t)
	seedReference(t, refDB)
	repo := reference.NewRepository(refDB, zerolog.Nop())
	store := reference.NewStore(repo, time.Hour, zerolog.Nop())
	require.NoError(t, store.Refresh())

	geoDB := openGeographyDB(t)
	seedGeography(t, geoDB)
	geoStore, err := geography.Load(geoDB)
	require.NoError(t, err)
	geocoder := &fakeGeocoder{points: map[string]orb.Point{"AB1 2CD": {5, 5}}}
	resolver := geography.NewResolver(geoStore, geocoder, time.Hour, 24*time.Hour, zerolog.Nop())

	cfg := &config.Config{
		Solver:                  config.SolverLPFirst,
		ContractThresholdSmall:  0.5,
		ContractThresholdMedium: 2.0,
		ContractThresholdLarge:  10.0,
	}

	return New(store, metricparser.New(zerolog.Nop()), resolver, allocation.NewEngine(zerolog.Nop()), cfg, zerolog.Nop())
}

func TestPipelineRunsExplicitDemandEndToEnd(t *testing.T) {
	p := buildTestPipeline(t)
	req := jobqueue.Request{
		Demand: []jobqueue.DemandInput{{Habitat: "Other neutral grassland", Units: 0.5, Ledger: domain.LedgerArea}},
		Site:   jobqueue.SiteInput{Postcode: "AB1 2CD"},
	}

	report, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, domain.StateSolved, report.State)
	require.Len(t, report.Allocations, 1)
	require.InDelta(t, 12500, report.TotalCost, 1e-6)
}

func TestPipelineRejectsLegacyPricingFormula(t *testing.T) {
	p := buildTestPipeline(t)
	req := jobqueue.Request{
		Demand:  []jobqueue.DemandInput{{Habitat: "Other neutral grassland", Units: 0.5}},
		Site:    jobqueue.SiteInput{Postcode: "AB1 2CD"},
		Options: jobqueue.RequestOptions{LegacyPricingFormula: true},
	}

	_, err := p.Run(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, domain.ErrInputInvalid, domain.KindOf(err))
}

func TestPipelineRejectsRequestWithNoDemandSource(t *testing.T) {
	p := buildTestPipeline(t)
	req := jobqueue.Request{Site: jobqueue.SiteInput{Postcode: "AB1 2CD"}}

	_, err := p.Run(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, domain.ErrInputInvalid, domain.KindOf(err))
}

func TestPipelineUnresolvableSiteReturnsGeographyUnresolved(t *testing.T) {
	p := buildTestPipeline(t)
	req := jobqueue.Request{
		Demand: []jobqueue.DemandInput{{Habitat: "Other neutral grassland", Units: 0.5}},
		Site:   jobqueue.SiteInput{},
	}

	_, err := p.Run(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, domain.ErrGeographyUnresolved, domain.KindOf(err))
}

func TestPipelineAppliesPromoterMultiplierKeepingRowsSelfConsistent(t *testing.T) {
	p := buildTestPipeline(t)
	req := jobqueue.Request{
		Demand:  []jobqueue.DemandInput{{Habitat: "Other neutral grassland", Units: 0.5}},
		Site:    jobqueue.SiteInput{Postcode: "AB1 2CD"},
		Options: jobqueue.RequestOptions{PromoterMultiplier: 1.1},
	}

	report, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	require.InDelta(t, 12500*1.1, report.TotalCost, 1e-6)
	require.InDelta(t, 0.5, report.Allocations[0].UnitsSupplied, 1e-9)
	require.InDelta(t, 0.5, report.Allocations[0].StockUnitsConsumed, 1e-9)
	require.InDelta(t, 25000*1.1, report.Allocations[0].UnitPrice, 1e-6)
	require.InDelta(t, report.Allocations[0].UnitsSupplied*report.Allocations[0].UnitPrice, report.Allocations[0].Cost, 1e-6)
}
