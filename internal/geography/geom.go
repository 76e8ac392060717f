package geography

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// polygonContains wraps orb/planar's point-in-polygon test.
func polygonContains(p orb.Polygon, pt orb.Point) bool {
	return planar.PolygonContains(p, pt)
}

// centroidOfVertices returns the arithmetic mean of a polygon's outer
// ring vertices. Spec §4.3 explicitly allows this simplified centroid
// ("centroid of vertices is acceptable") in place of an area-weighted
// centroid.
func centroidOfVertices(p orb.Polygon) (orb.Point, bool) {
	if len(p) == 0 || len(p[0]) == 0 {
		return orb.Point{}, false
	}
	ring := p[0]
	var sumX, sumY float64
	for _, pt := range ring {
		sumX += pt[0]
		sumY += pt[1]
	}
	n := float64(len(ring))
	return orb.Point{sumX / n, sumY / n}, true
}
