package report

import (
	"time"

	"github.com/math15/visagate/internal/model"
	"github.com/math15/visagate/internal/pool"
)

// ExchangeReport aggregates the outcomes of one exchange run for output.
// It is assembled by the caller after the run completes; writers never
// mutate it.
type ExchangeReport struct {
	// TargetURL is the portal URL the exchanges were sent to.
	TargetURL string `json:"target_url"`

	// Region is the region filter used for identity selection, empty for any.
	Region string `json:"region,omitempty"`

	// GeneratedAt is when the report was assembled.
	GeneratedAt time.Time `json:"generated_at"`

	// Outcomes are the per-exchange results in submission order.
	Outcomes []*model.Outcome `json:"outcomes"`
}

// NewExchangeReport assembles an exchange report from run outcomes.
func NewExchangeReport(targetURL, region string, outcomes []*model.Outcome) *ExchangeReport {
	return &ExchangeReport{
		TargetURL:   targetURL,
		Region:      region,
		GeneratedAt: time.Now(),
		Outcomes:    outcomes,
	}
}

// AcceptedCount returns the number of accepted exchanges.
func (r *ExchangeReport) AcceptedCount() int {
	var n int
	for _, o := range r.Outcomes {
		if o.Accepted() {
			n++
		}
	}
	return n
}

// RejectedCount returns the number of exchanges that did not end accepted.
func (r *ExchangeReport) RejectedCount() int {
	return len(r.Outcomes) - r.AcceptedCount()
}

// SolvedCount returns the number of exchanges that solved a challenge
// mid-flight, whether or not the retry was ultimately accepted.
func (r *ExchangeReport) SolvedCount() int {
	var n int
	for _, o := range r.Outcomes {
		if o.ChallengeSolved {
			n++
		}
	}
	return n
}

// FailuresByClass groups failed outcomes by their failure class name.
func (r *ExchangeReport) FailuresByClass() map[string]int {
	byClass := make(map[string]int)
	for _, o := range r.Outcomes {
		if o.Failure == model.FailureNone {
			continue
		}
		byClass[o.Failure.String()]++
	}
	return byClass
}

// HasFailures reports whether any exchange in the run failed.
func (r *ExchangeReport) HasFailures() bool {
	return r.RejectedCount() > 0
}

// PoolReport summarizes the egress identity pool for output.
type PoolReport struct {
	// GeneratedAt is when the report was assembled.
	GeneratedAt time.Time `json:"generated_at"`

	// Stats holds the aggregate pool counters.
	Stats *pool.Stats `json:"stats"`

	// Identities lists the identities included in the report. May be nil
	// when only aggregate stats were requested.
	Identities []*model.EgressIdentity `json:"identities,omitempty"`
}

// NewPoolReport assembles a pool report from stats and an optional
// identity listing.
func NewPoolReport(stats *pool.Stats, identities []*model.EgressIdentity) *PoolReport {
	return &PoolReport{
		GeneratedAt: time.Now(),
		Stats:       stats,
		Identities:  identities,
	}
}
