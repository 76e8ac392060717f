// Package geography resolves a site identifier (postcode, address, or
// explicit LPA/NCA pair) into a domain.SiteContext: the LPA, NCA, their
// neighbour sets, and (for watercourse-bearing sites) a waterbody and
// operational catchment. It consumes precomputed adjacency tables for
// bank-boundary classification — the core never performs geometric
// analysis of bank boundaries, per spec §1 Non-goals — but it does use
// point-in-polygon geometry (github.com/paulmach/orb) to answer "which
// LPA/NCA/waterbody contains this coordinate", which is the resolver's
// actual job under spec §4.3.
package geography

import (
	"time"

	"github.com/paulmach/orb"
)

// NamedPolygon is a region polygon tagged with the name the resolver
// reports when a point falls inside it.
type NamedPolygon struct {
	Name    string
	Polygon orb.Polygon
}

// Geocoder resolves a postcode or free-text address to a coordinate.
// PostcodesIOGeocoder is the HTTP-backed implementation used by
// cmd/server; tests can supply a fixed lookup table instead.
type Geocoder interface {
	GeocodePostcode(postcode string) (orb.Point, error)
	GeocodeAddress(address string) (orb.Point, error)
}

// cacheEntry is a TTL-bounded cached value.
type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e cacheEntry[T]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}
