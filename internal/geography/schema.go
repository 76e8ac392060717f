package geography

// schema creates the polygon and adjacency tables the resolver reads.
// Polygon rings are stored as JSON arrays of [lon, lat] pairs (a single
// outer ring is sufficient for this system's purposes).
const schema = `
CREATE TABLE IF NOT EXISTS LPAPolygons (
	lpa_name  TEXT PRIMARY KEY,
	ring_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS NCAPolygons (
	nca_name  TEXT PRIMARY KEY,
	ring_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS WaterbodyPolygons (
	waterbody_id TEXT PRIMARY KEY,
	ring_json    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS CatchmentPolygons (
	operational_catchment_id TEXT PRIMARY KEY,
	ring_json                TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS LPAAdjacency (
	lpa_name           TEXT NOT NULL,
	neighbour_lpa_name TEXT NOT NULL,
	PRIMARY KEY (lpa_name, neighbour_lpa_name)
);

CREATE TABLE IF NOT EXISTS NCAAdjacency (
	nca_name           TEXT NOT NULL,
	neighbour_nca_name TEXT NOT NULL,
	PRIMARY KEY (nca_name, neighbour_nca_name)
);
`

// Schema returns the DDL for the polygon and adjacency tables, for
// callers (cmd/server, tests in other packages) that need to migrate a
// database before calling Load.
func Schema() string { return schema }
