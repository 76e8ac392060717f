// Package jobqueue implements the Job Cache & Queue of spec §4.5: it
// fingerprints submissions, serves cached results, and runs new work on a
// worker pool so the request thread never performs the optimisation
// itself (spec §5).
package jobqueue

import (
	"time"

	"github.com/WCLondon/habitat-allocator/internal/domain"
)

// JobState is the job's position in the queued -> running -> {done|failed}
// lifecycle of spec §3's Job Record.
type JobState string

const (
	JobQueued  JobState = "queued"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// DemandInput is one entry of the submit endpoint's "demand" array. Ledger
// is optional; an empty value defaults to the area ledger, the common case
// for a bare habitat/units pair supplied without a metric file.
type DemandInput struct {
	Habitat string        `json:"habitat"`
	Units   float64       `json:"units"`
	Ledger  domain.Ledger `json:"ledger,omitempty"`
}

// SiteInput is the submit endpoint's "site" object. Exactly one addressing
// mode is expected: Postcode, Address, or the (LPA, NCA) pair.
type SiteInput struct {
	Postcode string `json:"postcode,omitempty"`
	Address  string `json:"address,omitempty"`
	LPA      string `json:"lpa,omitempty"`
	NCA      string `json:"nca,omitempty"`
}

// RequestOptions is the submit endpoint's free-form "options" bag, narrowed
// to the two knobs spec §1 and §9 name: the promoter/introducer price
// transformation and the (refused) legacy paired-pricing formula.
type RequestOptions struct {
	PromoterMultiplier   float64 `json:"promoter_multiplier,omitempty"`
	LegacyPricingFormula bool    `json:"legacy_pricing_formula,omitempty"`
}

// Request is the canonical submit-endpoint body (spec §6).
type Request struct {
	Demand          []DemandInput   `json:"demand"`
	Site            SiteInput       `json:"site"`
	MetricFileBytes []byte          `json:"metric_file_bytes,omitempty"`
	Options         RequestOptions  `json:"options,omitempty"`
}

// JobRecord is the full lifecycle record for one submitted job.
type JobRecord struct {
	JobID       string
	Fingerprint string
	State       JobState
	Request     Request
	Result      *domain.AllocationReport
	Err         *domain.Error
	EnqueuedAt  time.Time
	CompletedAt time.Time
}
