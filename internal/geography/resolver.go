package geography

import (
	"sync"
	"time"

	"github.com/WCLondon/habitat-allocator/internal/domain"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
)

// Resolver implements spec §4.3: turning a postcode, free-text address,
// or explicit (LPA, NCA) pair into a domain.SiteContext.
type Resolver struct {
	store    *Store
	geocoder Geocoder
	log      zerolog.Logger

	neighbourTTL time.Duration
	geocodeTTL   time.Duration

	mu            sync.Mutex
	geocodeCache  map[string]cacheEntry[orb.Point]
	neighbourCacheLPA map[string]cacheEntry[map[string]struct{}]
	neighbourCacheNCA map[string]cacheEntry[map[string]struct{}]
}

// NewResolver creates a Resolver.
func NewResolver(store *Store, geocoder Geocoder, neighbourTTL, geocodeTTL time.Duration, log zerolog.Logger) *Resolver {
	return &Resolver{
		store:             store,
		geocoder:          geocoder,
		neighbourTTL:      neighbourTTL,
		geocodeTTL:        geocodeTTL,
		log:               log.With().Str("component", "geography_resolver").Logger(),
		geocodeCache:      make(map[string]cacheEntry[orb.Point]),
		neighbourCacheLPA: make(map[string]cacheEntry[map[string]struct{}]),
		neighbourCacheNCA: make(map[string]cacheEntry[map[string]struct{}]),
	}
}

// ResolvePostcode geocodes postcode then resolves its containing
// LPA/NCA/waterbody/catchment and their neighbour sets.
func (r *Resolver) ResolvePostcode(postcode string) (domain.SiteContext, error) {
	pt, err := r.cachedGeocode("pc:"+postcode, func() (orb.Point, error) {
		return r.geocoder.GeocodePostcode(postcode)
	})
	if err != nil {
		return domain.SiteContext{}, domain.WrapError(domain.ErrGeographyUnresolved, "could not geocode postcode "+postcode, err)
	}
	return r.resolvePoint(pt)
}

// ResolveAddress geocodes a free-text address then resolves as above.
func (r *Resolver) ResolveAddress(address string) (domain.SiteContext, error) {
	pt, err := r.cachedGeocode("addr:"+address, func() (orb.Point, error) {
		return r.geocoder.GeocodeAddress(address)
	})
	if err != nil {
		return domain.SiteContext{}, domain.WrapError(domain.ErrGeographyUnresolved, "could not geocode address "+address, err)
	}
	return r.resolvePoint(pt)
}

// ResolveExplicit skips geocoding entirely: the caller already knows the
// LPA and/or NCA name. A representative point is computed as the
// centroid of the LPA polygon's vertices (if the polygon is known) so
// waterbody/catchment membership can still be determined; if the LPA
// polygon is unknown, waterbody/catchment are left empty and no warning
// is raised here (the allocation engine later treats watercourse banks
// as far tier with a catchment_unavailable warning).
func (r *Resolver) ResolveExplicit(lpa, nca string) (domain.SiteContext, error) {
	if lpa == "" && nca == "" {
		return domain.SiteContext{}, domain.NewError(domain.ErrGeographyUnresolved, "neither LPA nor NCA provided")
	}

	ctx := domain.NewSiteContext()
	ctx.LPAName = lpa
	ctx.NCAName = nca

	if lpa != "" {
		ctx.LPANeighbours = r.lpaNeighbours(lpa)
		if poly, ok := r.store.LPAPolygon(lpa); ok {
			if pt, ok := centroidOfVertices(poly); ok {
				if wb, ok := r.store.ContainingWaterbody(pt); ok {
					ctx.WaterbodyID = wb
				}
				if catchment, ok := r.store.ContainingCatchment(pt); ok {
					ctx.OperationalCatchmentID = catchment
				}
			}
		}
	}
	if nca != "" {
		ctx.NCANeighbours = r.ncaNeighbours(nca)
	}

	return ctx, nil
}

func (r *Resolver) resolvePoint(pt orb.Point) (domain.SiteContext, error) {
	ctx := domain.NewSiteContext()

	if lpa, ok := r.store.ContainingLPA(pt); ok {
		ctx.LPAName = lpa
		ctx.LPANeighbours = r.lpaNeighbours(lpa)
	}
	if nca, ok := r.store.ContainingNCA(pt); ok {
		ctx.NCAName = nca
		ctx.NCANeighbours = r.ncaNeighbours(nca)
	}
	if ctx.LPAName == "" && ctx.NCAName == "" {
		return domain.SiteContext{}, domain.NewError(domain.ErrGeographyUnresolved, "coordinate falls within no known LPA or NCA polygon")
	}
	if wb, ok := r.store.ContainingWaterbody(pt); ok {
		ctx.WaterbodyID = wb
	}
	if catchment, ok := r.store.ContainingCatchment(pt); ok {
		ctx.OperationalCatchmentID = catchment
	}
	return ctx, nil
}

func (r *Resolver) lpaNeighbours(lpa string) map[string]struct{} {
	r.mu.Lock()
	if e, ok := r.neighbourCacheLPA[lpa]; ok && !e.expired(time.Now()) {
		r.mu.Unlock()
		return e.value
	}
	r.mu.Unlock()

	set, ok := r.store.LPANeighbours(lpa)
	if !ok {
		set = r.store.LiveAdjacentLPAs(lpa)
	}

	r.mu.Lock()
	r.neighbourCacheLPA[lpa] = cacheEntry[map[string]struct{}]{value: set, expiresAt: time.Now().Add(r.neighbourTTL)}
	r.mu.Unlock()
	return set
}

func (r *Resolver) ncaNeighbours(nca string) map[string]struct{} {
	r.mu.Lock()
	if e, ok := r.neighbourCacheNCA[nca]; ok && !e.expired(time.Now()) {
		r.mu.Unlock()
		return e.value
	}
	r.mu.Unlock()

	set, ok := r.store.NCANeighbours(nca)
	if !ok {
		set = r.store.LiveAdjacentNCAs(nca)
	}

	r.mu.Lock()
	r.neighbourCacheNCA[nca] = cacheEntry[map[string]struct{}]{value: set, expiresAt: time.Now().Add(r.neighbourTTL)}
	r.mu.Unlock()
	return set
}

func (r *Resolver) cachedGeocode(key string, fn func() (orb.Point, error)) (orb.Point, error) {
	r.mu.Lock()
	if e, ok := r.geocodeCache[key]; ok && !e.expired(time.Now()) {
		r.mu.Unlock()
		return e.value, nil
	}
	r.mu.Unlock()

	pt, err := fn()
	if err != nil {
		return orb.Point{}, err
	}

	r.mu.Lock()
	r.geocodeCache[key] = cacheEntry[orb.Point]{value: pt, expiresAt: time.Now().Add(r.geocodeTTL)}
	r.mu.Unlock()
	return pt, nil
}
