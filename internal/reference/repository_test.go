package reference

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/WCLondon/habitat-allocator/internal/domain"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(Schema())
	require.NoError(t, err)
	return db
}

func seedFullCatalogue(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []string{
		`INSERT INTO HabitatCatalog (habitat_name, broader_type, distinctiveness, umbrella_type) VALUES
			('Other neutral grassland', 'Grassland', 'Medium', 'area'),
			('Species-rich hedgerow', 'Hedgerow', 'High', 'hedgerow')`,
		`INSERT INTO Banks (bank_id, bank_name, lpa_name, nca_name, postcode, latitude, longitude, waterbody_id, operational_catchment_id) VALUES
			('B1', 'Bank One', 'Borough A', 'NCA X', 'AB1 2CD', 51.5, -0.1, NULL, NULL)`,
		`INSERT INTO Stock (bank_id, habitat_name, available_units, reserved_units) VALUES
			('B1', 'Other neutral grassland', 10, 2)`,
		`INSERT INTO Pricing (bank_id, habitat_name, contract_size, tier, unit_price) VALUES
			('B1', 'Other neutral grassland', 'small', 'local', 25000)`,
		`INSERT INTO TradingRules (demand_habitat, allowed_supply_habitat, min_distinctiveness, companion_habitat) VALUES
			('Other neutral grassland', 'Other neutral grassland', '', '')`,
		`INSERT INTO SRM (tier, multiplier) VALUES ('local', 1.0), ('adjacent', 1.3333333333), ('far', 2.0)`,
		`INSERT INTO DistinctivenessLevels (name, rank) VALUES
			('Very Low', 0), ('Low', 1), ('Medium', 2), ('High', 3), ('Very High', 4)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}
}

func TestRepositoryLoadAll(t *testing.T) {
	db := openTestDB(t)
	seedFullCatalogue(t, db)

	repo := NewRepository(db, zerolog.Nop())
	ref, err := repo.LoadAll()
	require.NoError(t, err)
	require.NoError(t, ref.Validate())

	h, ok := ref.Habitat("Other neutral grassland")
	require.True(t, ok)
	require.Equal(t, domain.DistinctivenessMedium, h.Distinctiveness)

	b, ok := ref.Bank("B1")
	require.True(t, ok)
	require.True(t, b.HasCoordinates)
	require.Equal(t, 51.5, b.Latitude)

	stock, ok := ref.StockFor("B1", "Other neutral grassland")
	require.True(t, ok)
	require.Equal(t, 10.0, stock.AvailableUnits)
	require.Equal(t, 2.0, stock.ReservedUnits)

	price, ok := ref.PriceFor("B1", "Other neutral grassland", domain.ContractSmall, domain.TierLocal)
	require.True(t, ok)
	require.Equal(t, 25000.0, price)

	require.True(t, ref.IsRuleScoped("Other neutral grassland"))
	require.InDelta(t, 1.3333333333, ref.SRM(domain.TierAdjacent), 1e-9)
}

func TestRepositoryLoadAllHandlesNullableColumns(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`INSERT INTO HabitatCatalog (habitat_name, broader_type, distinctiveness, umbrella_type) VALUES
		('Mixed scrub', 'Scrub', 'Low', 'area')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO Banks (bank_id, bank_name, lpa_name, nca_name) VALUES ('B2', 'Bank Two', 'Borough B', 'NCA Y')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO Stock (bank_id, habitat_name, available_units) VALUES ('B2', 'Mixed scrub', 5)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO Pricing (bank_id, habitat_name, contract_size, tier, unit_price) VALUES
		('B2', 'Mixed scrub', 'fractional', 'far', 8000)`)
	require.NoError(t, err)

	repo := NewRepository(db, zerolog.Nop())
	ref, err := repo.LoadAll()
	require.NoError(t, err)

	b, ok := ref.Bank("B2")
	require.True(t, ok)
	require.False(t, b.HasCoordinates)
	require.Empty(t, b.Postcode)
	require.Empty(t, b.WaterbodyID)
}

func TestReferenceValidateRejectsOrphanPricing(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`INSERT INTO HabitatCatalog (habitat_name, broader_type, distinctiveness, umbrella_type) VALUES
		('Other neutral grassland', 'Grassland', 'Medium', 'area')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO Banks (bank_id, bank_name, lpa_name, nca_name) VALUES ('B1', 'Bank One', 'Borough A', 'NCA X')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO Stock (bank_id, habitat_name, available_units) VALUES ('B1', 'Other neutral grassland', 10)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO Pricing (bank_id, habitat_name, contract_size, tier, unit_price) VALUES
		('GHOST', 'Other neutral grassland', 'small', 'local', 25000)`)
	require.NoError(t, err)

	repo := NewRepository(db, zerolog.Nop())
	ref, err := repo.LoadAll()
	require.NoError(t, err)

	err = ref.Validate()
	require.Error(t, err)
	require.Equal(t, domain.ErrReferenceIncomplete, domain.KindOf(err))
}
