package reference

import (
	"database/sql"
	"fmt"

	"github.com/WCLondon/habitat-allocator/internal/domain"
	"github.com/rs/zerolog"
)

// Repository reads the seven reference tables from the configured
// database. It performs no caching itself — that is the Store's job.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a Repository bound to db.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{db: db, log: log.With().Str("component", "reference_repository").Logger()}
}

// LoadAll reads every reference table and returns a fully populated
// Reference. It does not validate completeness — that is Store.Refresh's
// responsibility so the ReferenceIncomplete error carries the store's
// framing.
func (r *Repository) LoadAll() (*Reference, error) {
	habitats, err := r.loadHabitats()
	if err != nil {
		return nil, fmt.Errorf("load habitats: %w", err)
	}
	banks, err := r.loadBanks()
	if err != nil {
		return nil, fmt.Errorf("load banks: %w", err)
	}
	pricing, err := r.loadPricing()
	if err != nil {
		return nil, fmt.Errorf("load pricing: %w", err)
	}
	stock, err := r.loadStock()
	if err != nil {
		return nil, fmt.Errorf("load stock: %w", err)
	}
	rules, err := r.loadTradingRules()
	if err != nil {
		return nil, fmt.Errorf("load trading rules: %w", err)
	}
	srm, err := r.loadSRM()
	if err != nil {
		return nil, fmt.Errorf("load SRM: %w", err)
	}
	levels, err := r.loadDistinctivenessLevels()
	if err != nil {
		return nil, fmt.Errorf("load distinctiveness levels: %w", err)
	}

	return newReference(habitats, banks, pricing, stock, rules, srm, levels), nil
}

func (r *Repository) loadHabitats() (map[string]domain.Habitat, error) {
	rows, err := r.db.Query(`SELECT habitat_name, broader_type, distinctiveness, umbrella_type FROM HabitatCatalog`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.Habitat)
	for rows.Next() {
		var h domain.Habitat
		var dist string
		if err := rows.Scan(&h.Name, &h.BroaderType, &dist, &h.UmbrellaType); err != nil {
			return nil, err
		}
		h.Distinctiveness = domain.ParseDistinctiveness(dist)
		out[h.Name] = h
	}
	return out, rows.Err()
}

func (r *Repository) loadBanks() (map[string]domain.Bank, error) {
	rows, err := r.db.Query(`SELECT bank_id, bank_name, lpa_name, nca_name,
		COALESCE(postcode,''), latitude, longitude,
		COALESCE(waterbody_id,''), COALESCE(operational_catchment_id,'')
		FROM Banks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.Bank)
	for rows.Next() {
		var b domain.Bank
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&b.ID, &b.Name, &b.LPAName, &b.NCAName, &b.Postcode,
			&lat, &lon, &b.WaterbodyID, &b.OperationalCatchmentID); err != nil {
			return nil, err
		}
		if lat.Valid && lon.Valid {
			b.Latitude, b.Longitude, b.HasCoordinates = lat.Float64, lon.Float64, true
		}
		out[b.ID] = b
	}
	return out, rows.Err()
}

func (r *Repository) loadPricing() ([]domain.PricingRow, error) {
	rows, err := r.db.Query(`SELECT bank_id, habitat_name, contract_size, tier, unit_price FROM Pricing`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PricingRow
	for rows.Next() {
		var p domain.PricingRow
		var cs, tier string
		if err := rows.Scan(&p.BankID, &p.HabitatName, &cs, &tier, &p.UnitPrice); err != nil {
			return nil, err
		}
		p.ContractSize, p.Tier = domain.ContractSize(cs), domain.Tier(tier)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) loadStock() ([]domain.StockRow, error) {
	rows, err := r.db.Query(`SELECT bank_id, habitat_name, available_units, reserved_units FROM Stock`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StockRow
	for rows.Next() {
		var s domain.StockRow
		if err := rows.Scan(&s.BankID, &s.HabitatName, &s.AvailableUnits, &s.ReservedUnits); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) loadTradingRules() ([]domain.TradingRule, error) {
	rows, err := r.db.Query(`SELECT demand_habitat, allowed_supply_habitat,
		COALESCE(min_distinctiveness,''), COALESCE(companion_habitat,'') FROM TradingRules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TradingRule
	for rows.Next() {
		var t domain.TradingRule
		var minDist string
		if err := rows.Scan(&t.DemandHabitat, &t.AllowedSupplyHabitat, &minDist, &t.CompanionHabitat); err != nil {
			return nil, err
		}
		if minDist != "" {
			t.MinDistinctiveness = domain.ParseDistinctiveness(minDist)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) loadSRM() (map[domain.Tier]float64, error) {
	rows, err := r.db.Query(`SELECT tier, multiplier FROM SRM`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.Tier]float64)
	for rows.Next() {
		var tier string
		var mult float64
		if err := rows.Scan(&tier, &mult); err != nil {
			return nil, err
		}
		out[domain.Tier(tier)] = mult
	}
	return out, rows.Err()
}

func (r *Repository) loadDistinctivenessLevels() (map[string]int, error) {
	rows, err := r.db.Query(`SELECT name, rank FROM DistinctivenessLevels`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var name string
		var rank int
		if err := rows.Scan(&name, &rank); err != nil {
			return nil, err
		}
		out[name] = rank
	}
	return out, rows.Err()
}
