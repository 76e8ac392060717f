package geography

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
)

// Store holds the polygon and precomputed adjacency data the resolver
// needs. It is loaded once at startup (or refreshed) from the
// geography database; unlike the Reference Store it has no TTL of its
// own because boundary data changes on a geological timescale relative
// to a job's lifetime — callers that need hot-reload can call Load again.
type Store struct {
	lpaPolygons   []NamedPolygon
	ncaPolygons   []NamedPolygon
	waterbodies   []NamedPolygon
	catchments    []NamedPolygon
	lpaAdjacency  map[string]map[string]struct{}
	ncaAdjacency  map[string]map[string]struct{}
}

// Load reads every polygon and adjacency table from db.
func Load(db *sql.DB) (*Store, error) {
	s := &Store{
		lpaAdjacency: make(map[string]map[string]struct{}),
		ncaAdjacency: make(map[string]map[string]struct{}),
	}

	var err error
	if s.lpaPolygons, err = loadPolygons(db, "SELECT lpa_name, ring_json FROM LPAPolygons"); err != nil {
		return nil, fmt.Errorf("load LPA polygons: %w", err)
	}
	if s.ncaPolygons, err = loadPolygons(db, "SELECT nca_name, ring_json FROM NCAPolygons"); err != nil {
		return nil, fmt.Errorf("load NCA polygons: %w", err)
	}
	if s.waterbodies, err = loadPolygons(db, "SELECT waterbody_id, ring_json FROM WaterbodyPolygons"); err != nil {
		return nil, fmt.Errorf("load waterbody polygons: %w", err)
	}
	if s.catchments, err = loadPolygons(db, "SELECT operational_catchment_id, ring_json FROM CatchmentPolygons"); err != nil {
		return nil, fmt.Errorf("load catchment polygons: %w", err)
	}
	if s.lpaAdjacency, err = loadAdjacency(db, "SELECT lpa_name, neighbour_lpa_name FROM LPAAdjacency"); err != nil {
		return nil, fmt.Errorf("load LPA adjacency: %w", err)
	}
	if s.ncaAdjacency, err = loadAdjacency(db, "SELECT nca_name, neighbour_nca_name FROM NCAAdjacency"); err != nil {
		return nil, fmt.Errorf("load NCA adjacency: %w", err)
	}

	return s, nil
}

func loadPolygons(db *sql.DB, query string) ([]NamedPolygon, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NamedPolygon
	for rows.Next() {
		var name, ringJSON string
		if err := rows.Scan(&name, &ringJSON); err != nil {
			return nil, err
		}
		ring, err := decodeRing(ringJSON)
		if err != nil {
			return nil, fmt.Errorf("decode ring for %s: %w", name, err)
		}
		out = append(out, NamedPolygon{Name: name, Polygon: orb.Polygon{ring}})
	}
	return out, rows.Err()
}

func loadAdjacency(db *sql.DB, query string) (map[string]map[string]struct{}, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[string]struct{})
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return nil, err
		}
		if out[a] == nil {
			out[a] = make(map[string]struct{})
		}
		out[a][b] = struct{}{}
	}
	return out, rows.Err()
}

func decodeRing(ringJSON string) (orb.Ring, error) {
	var points [][2]float64
	if err := json.Unmarshal([]byte(ringJSON), &points); err != nil {
		return nil, err
	}
	ring := make(orb.Ring, len(points))
	for i, p := range points {
		ring[i] = orb.Point{p[0], p[1]}
	}
	return ring, nil
}

// EncodeRing is the inverse of decodeRing, exported for seed scripts and
// tests that build polygon fixtures.
func EncodeRing(ring orb.Ring) (string, error) {
	points := make([][2]float64, len(ring))
	for i, p := range ring {
		points[i] = [2]float64{p[0], p[1]}
	}
	b, err := json.Marshal(points)
	return string(b), err
}

// ContainingLPA returns the name of the LPA polygon containing pt, if any.
func (s *Store) ContainingLPA(pt orb.Point) (string, bool) {
	return containing(s.lpaPolygons, pt)
}

// ContainingNCA returns the name of the NCA polygon containing pt, if any.
func (s *Store) ContainingNCA(pt orb.Point) (string, bool) {
	return containing(s.ncaPolygons, pt)
}

// ContainingWaterbody returns the id of the waterbody polygon containing
// pt, if any.
func (s *Store) ContainingWaterbody(pt orb.Point) (string, bool) {
	return containing(s.waterbodies, pt)
}

// ContainingCatchment returns the id of the operational catchment
// polygon containing pt, if any.
func (s *Store) ContainingCatchment(pt orb.Point) (string, bool) {
	return containing(s.catchments, pt)
}

func containing(polys []NamedPolygon, pt orb.Point) (string, bool) {
	for _, p := range polys {
		if polygonContains(p.Polygon, pt) {
			return p.Name, true
		}
	}
	return "", false
}

// LPAPolygon returns the named LPA polygon, if known.
func (s *Store) LPAPolygon(name string) (orb.Polygon, bool) {
	for _, p := range s.lpaPolygons {
		if p.Name == name {
			return p.Polygon, true
		}
	}
	return nil, false
}

// LPANeighbours returns the precomputed neighbour set for lpaName. The
// second return value is false when no precomputed row exists, in which
// case the resolver falls back to a live bounding-box adjacency check.
func (s *Store) LPANeighbours(lpaName string) (map[string]struct{}, bool) {
	n, ok := s.lpaAdjacency[lpaName]
	return n, ok
}

// NCANeighbours returns the precomputed neighbour set for ncaName.
func (s *Store) NCANeighbours(ncaName string) (map[string]struct{}, bool) {
	n, ok := s.ncaAdjacency[ncaName]
	return n, ok
}

// LiveAdjacentLPAs computes a fallback adjacency set by bounding-box
// overlap against every other known LPA polygon. This is a coarse proxy
// for true polygon adjacency, used only when no precomputed row exists.
func (s *Store) LiveAdjacentLPAs(lpaName string) map[string]struct{} {
	return liveAdjacent(s.lpaPolygons, lpaName)
}

// LiveAdjacentNCAs is the NCA analogue of LiveAdjacentLPAs.
func (s *Store) LiveAdjacentNCAs(ncaName string) map[string]struct{} {
	return liveAdjacent(s.ncaPolygons, ncaName)
}

func liveAdjacent(polys []NamedPolygon, name string) map[string]struct{} {
	var target *orb.Polygon
	for i := range polys {
		if polys[i].Name == name {
			target = &polys[i].Polygon
			break
		}
	}
	out := make(map[string]struct{})
	if target == nil {
		return out
	}
	targetBound := target.Bound()
	for _, p := range polys {
		if p.Name == name {
			continue
		}
		if targetBound.Intersects(p.Polygon.Bound()) {
			out[p.Name] = struct{}{}
		}
	}
	return out
}
