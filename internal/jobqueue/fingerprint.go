package jobqueue

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// canonicalRequest is the fingerprint input shape: demand sorted by
// (ledger, habitat) since array order is not meaningful to the caller,
// and the metric file reduced to its own content hash rather than carried
// in full (spec §4.5: "canonicalise inputs by sorting keys and arrays...
// serialise, hash"). encoding/json already emits struct fields in a fixed
// declaration order and sorts map keys, so no further key-sorting is
// needed once the slices are sorted.
type canonicalRequest struct {
	Demand         []DemandInput  `json:"demand"`
	Site           SiteInput      `json:"site"`
	MetricFileHash string         `json:"metric_file_hash,omitempty"`
	Options        RequestOptions `json:"options,omitempty"`
}

// Fingerprint computes the SHA-256 fingerprint for req. Two requests that
// differ only in demand-line order, or in incidental field ordering,
// produce the same fingerprint.
func Fingerprint(req Request) (string, error) {
	demand := make([]DemandInput, len(req.Demand))
	copy(demand, req.Demand)
	sort.Slice(demand, func(i, j int) bool {
		if demand[i].Ledger != demand[j].Ledger {
			return demand[i].Ledger < demand[j].Ledger
		}
		return demand[i].Habitat < demand[j].Habitat
	})

	canon := canonicalRequest{
		Demand:  demand,
		Site:    req.Site,
		Options: req.Options,
	}
	if len(req.MetricFileBytes) > 0 {
		sum := sha256.Sum256(req.MetricFileBytes)
		canon.MetricFileHash = hex.EncodeToString(sum[:])
	}

	encoded, err := json.Marshal(canon)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}
