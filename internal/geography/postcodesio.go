package geography

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/paulmach/orb"
)

// PostcodesIOGeocoder is the production Geocoder: an HTTP client for the
// postcodes.io lookup API, the standard free UK postcode geocoder.
type PostcodesIOGeocoder struct {
	baseURL string
	client  *http.Client
}

// NewPostcodesIOGeocoder constructs a PostcodesIOGeocoder. baseURL
// defaults to the public postcodes.io service when empty.
func NewPostcodesIOGeocoder(baseURL string) *PostcodesIOGeocoder {
	if baseURL == "" {
		baseURL = "https://api.postcodes.io"
	}
	return &PostcodesIOGeocoder{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type postcodesIOResponse struct {
	Status int `json:"status"`
	Result struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"result"`
}

// GeocodePostcode looks up a UK postcode via postcodes.io.
func (g *PostcodesIOGeocoder) GeocodePostcode(postcode string) (orb.Point, error) {
	u := fmt.Sprintf("%s/postcodes/%s", g.baseURL, url.PathEscape(postcode))
	return g.fetch(u)
}

// GeocodeAddress passes the address string unchanged to the same
// postcode lookup as GeocodePostcode, so it succeeds only when the
// address is itself a full postcode; street addresses are not geocoded.
func (g *PostcodesIOGeocoder) GeocodeAddress(address string) (orb.Point, error) {
	return g.GeocodePostcode(address)
}

func (g *PostcodesIOGeocoder) fetch(u string) (orb.Point, error) {
	resp, err := g.client.Get(u)
	if err != nil {
		return orb.Point{}, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return orb.Point{}, fmt.Errorf("geocode lookup returned status %d", resp.StatusCode)
	}

	var parsed postcodesIOResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return orb.Point{}, fmt.Errorf("decode geocode response: %w", err)
	}
	return orb.Point{parsed.Result.Longitude, parsed.Result.Latitude}, nil
}
