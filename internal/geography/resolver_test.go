package geography

import (
	"database/sql"
	"testing"
	"time"

	"github.com/WCLondon/habitat-allocator/internal/domain"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type fakeGeocoder struct {
	points map[string]orb.Point
}

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

func squareRing(minX, minY, maxX, maxY float64) orb.Ring {
	return orb.Ring{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedBasicGeography(t *testing.T, db *sql.DB) {
	t.Helper()
	lpaA, err := EncodeRing(squareRing(0, 0, 10, 10))
	require.NoError(t, err)
	lpaB, err := EncodeRing(squareRing(10, 0, 20, 10))
	require.NoError(t, err)
	ncaX, err := EncodeRing(squareRing(0, 0, 20, 10))
	require.NoError(t, err)
	catchment1, err := EncodeRing(squareRing(0, 0, 10, 10))
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO LPAPolygons (lpa_name, ring_json) VALUES (?, ?), (?, ?)`,
		"Borough A", lpaA, "Borough B", lpaB)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO NCAPolygons (nca_name, ring_json) VALUES (?, ?)`, "NCA X", ncaX)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO CatchmentPolygons (operational_catchment_id, ring_json) VALUES (?, ?)`,
		"Catchment1", catchment1)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO LPAAdjacency (lpa_name, neighbour_lpa_name) VALUES (?, ?)`,
		"Borough A", "Borough B")
	require.NoError(t, err)
}

func TestResolvePostcodeFindsLPANCAAndNeighbours(t *testing.T) {
	db := openTestDB(t)
	seedBasicGeography(t, db)
	store, err := Load(db)
	require.NoError(t, err)

	geocoder := &fakeGeocoder{points: map[string]orb.Point{
		"AB1 2CD": {5, 5},
	}}
	r := NewResolver(store, geocoder, time.Hour, 24*time.Hour, zerolog.Nop())

	ctx, err := r.ResolvePostcode("AB1 2CD")
	require.NoError(t, err)
	require.Equal(t, "Borough A", ctx.LPAName)
	require.Equal(t, "NCA X", ctx.NCAName)
	require.Equal(t, "Catchment1", ctx.OperationalCatchmentID)
	_, adjacent := ctx.LPANeighbours["Borough B"]
	require.True(t, adjacent)
}

func TestResolvePostcodeUnknownPostcodeFails(t *testing.T) {
	db := openTestDB(t)
	seedBasicGeography(t, db)
	store, err := Load(db)
	require.NoError(t, err)

	r := NewResolver(store, &fakeGeocoder{points: map[string]orb.Point{}}, time.Hour, 24*time.Hour, zerolog.Nop())
	_, err = r.ResolvePostcode("ZZ9 9ZZ")
	require.Error(t, err)
	require.Equal(t, domain.ErrGeographyUnresolved, domain.KindOf(err))
}

func TestResolvePostcodeOutsideAllPolygonsFails(t *testing.T) {
	db := openTestDB(t)
	seedBasicGeography(t, db)
	store, err := Load(db)
	require.NoError(t, err)

	geocoder := &fakeGeocoder{points: map[string]orb.Point{"FAR 1AA": {500, 500}}}
	r := NewResolver(store, geocoder, time.Hour, 24*time.Hour, zerolog.Nop())

	_, err = r.ResolvePostcode("FAR 1AA")
	require.Error(t, err)
	require.Equal(t, domain.ErrGeographyUnresolved, domain.KindOf(err))
}

func TestResolveExplicitUsesAdjacencyAndCentroid(t *testing.T) {
	db := openTestDB(t)
	seedBasicGeography(t, db)
	store, err := Load(db)
	require.NoError(t, err)

	r := NewResolver(store, &fakeGeocoder{}, time.Hour, 24*time.Hour, zerolog.Nop())
	ctx, err := r.ResolveExplicit("Borough A", "NCA X")
	require.NoError(t, err)
	require.Equal(t, "Borough A", ctx.LPAName)
	require.Equal(t, "Catchment1", ctx.OperationalCatchmentID)
	_, adjacent := ctx.LPANeighbours["Borough B"]
	require.True(t, adjacent)
}

func TestResolveExplicitWithoutAdjacencyRowFallsBackToLiveAdjacency(t *testing.T) {
	db := openTestDB(t)
	seedBasicGeography(t, db)
	store, err := Load(db)
	require.NoError(t, err)

	r := NewResolver(store, &fakeGeocoder{}, time.Hour, 24*time.Hour, zerolog.Nop())
	ctx, err := r.ResolveExplicit("Borough B", "")
	require.NoError(t, err)
	_, adjacent := ctx.LPANeighbours["Borough A"]
	require.True(t, adjacent)
}

func TestResolveExplicitRejectsEmptyInput(t *testing.T) {
	db := openTestDB(t)
	seedBasicGeography(t, db)
	store, err := Load(db)
	require.NoError(t, err)

	r := NewResolver(store, &fakeGeocoder{}, time.Hour, 24*time.Hour, zerolog.Nop())
	_, err = r.ResolveExplicit("", "")
	require.Error(t, err)
	require.Equal(t, domain.ErrGeographyUnresolved, domain.KindOf(err))
}

func TestGeocodeCacheReusesResult(t *testing.T) {
	db := openTestDB(t)
	seedBasicGeography(t, db)
	store, err := Load(db)
	require.NoError(t, err)

	calls := 0
	geocoder := &countingGeocoder{inner: &fakeGeocoder{points: map[string]orb.Point{"AB1 2CD": {5, 5}}}, calls: &calls}
	r := NewResolver(store, geocoder, time.Hour, 24*time.Hour, zerolog.Nop())

	_, err = r.ResolvePostcode("AB1 2CD")
	require.NoError(t, err)
	_, err = r.ResolvePostcode("AB1 2CD")
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

type countingGeocoder struct {
	inner *fakeGeocoder
	calls *int
}

func (g *countingGeocoder) GeocodePostcode(postcode string) (orb.Point, error) {
	*g.calls++
	return g.inner.GeocodePostcode(postcode)
}

func (g *countingGeocoder) GeocodeAddress(address string) (orb.Point, error) {
	*g.calls++
	return g.inner.GeocodeAddress(address)
}
