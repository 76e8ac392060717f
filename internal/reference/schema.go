package reference

// schema creates the seven reference tables named in spec §6. Column
// names follow spec §3 exactly so the store can be swapped for a real
// warehouse connection without relabeling.
const schema = `
CREATE TABLE IF NOT EXISTS HabitatCatalog (
	habitat_name     TEXT PRIMARY KEY,
	broader_type     TEXT NOT NULL,
	distinctiveness  TEXT NOT NULL,
	umbrella_type    TEXT NOT NULL CHECK (umbrella_type IN ('area','hedgerow','watercourse'))
);

CREATE TABLE IF NOT EXISTS Banks (
	bank_id                   TEXT PRIMARY KEY,
	bank_name                 TEXT NOT NULL,
	lpa_name                  TEXT NOT NULL,
	nca_name                  TEXT NOT NULL,
	postcode                  TEXT,
	latitude                  REAL,
	longitude                 REAL,
	waterbody_id              TEXT,
	operational_catchment_id  TEXT
);

CREATE TABLE IF NOT EXISTS Pricing (
	bank_id        TEXT NOT NULL,
	habitat_name   TEXT NOT NULL,
	contract_size  TEXT NOT NULL CHECK (contract_size IN ('fractional','small','medium','large')),
	tier           TEXT NOT NULL CHECK (tier IN ('local','adjacent','far')),
	unit_price     REAL NOT NULL,
	PRIMARY KEY (bank_id, habitat_name, contract_size, tier)
);

CREATE TABLE IF NOT EXISTS Stock (
	bank_id          TEXT NOT NULL,
	habitat_name     TEXT NOT NULL,
	available_units  REAL NOT NULL CHECK (available_units >= 0),
	reserved_units   REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (bank_id, habitat_name)
);

CREATE TABLE IF NOT EXISTS TradingRules (
	demand_habitat          TEXT NOT NULL,
	allowed_supply_habitat  TEXT NOT NULL,
	min_distinctiveness     TEXT,
	companion_habitat       TEXT,
	PRIMARY KEY (demand_habitat, allowed_supply_habitat)
);

CREATE TABLE IF NOT EXISTS SRM (
	tier        TEXT PRIMARY KEY CHECK (tier IN ('local','adjacent','far')),
	multiplier  REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS DistinctivenessLevels (
	name  TEXT PRIMARY KEY,
	rank  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pricing_bank ON Pricing(bank_id);
CREATE INDEX IF NOT EXISTS idx_stock_bank ON Stock(bank_id);
CREATE INDEX IF NOT EXISTS idx_trading_rules_demand ON TradingRules(demand_habitat);
`

// Schema returns the DDL for the seven reference tables, for callers
// (cmd/server, tests in other packages) that need to migrate a database
// before constructing a Repository.
func Schema() string { return schema }
