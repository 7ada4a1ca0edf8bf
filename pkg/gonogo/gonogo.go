// Package gonogo computes the threshold-based release verdict over one
// import run's aggregate counters.
package gonogo

import "fmt"

const (
	// ResolutionThreshold is the minimum entity-resolution success rate.
	ResolutionThreshold = 0.90
	// ValidationThreshold is the minimum validation pass rate among
	// resolved events.
	ValidationThreshold = 0.95
	// OverallThreshold is the minimum created-events rate over all
	// fetched source events.
	OverallThreshold = 0.85
)

// Metrics are the inputs to the verdict, lifted from a run result.
type Metrics struct {
	TotalEvents       int `json:"totalEvents"`
	ResolutionSuccess int `json:"resolutionSuccess"`
	ValidationValid   int `json:"validationValid"`
	Created           int `json:"created"`
}

type Assessment struct {
	CanProceed      bool     `json:"canProceed"`
	ResolutionRate  float64  `json:"resolutionRate"`
	ValidationRate  float64  `json:"validationRate"`
	OverallRate     float64  `json:"overallRate"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Assess applies the three thresholds. A zero denominator is an automatic
// NO-GO for that ratio: a gate that passes vacuously on an empty run
// would promote a broken fetch.
func Assess(m Metrics) Assessment {
	a := Assessment{CanProceed: true}

	a.ResolutionRate = rate(m.ResolutionSuccess, m.TotalEvents)
	switch {
	case m.TotalEvents == 0:
		a.fail("No source events were fetched; there is nothing to assess. Do not promote this run.")
	case a.ResolutionRate < ResolutionThreshold:
		a.fail(fmt.Sprintf("Entity resolution rate %.1f%% is below the %.0f%% threshold. Review the unmatched-entities report and extend the resolver configuration.",
			a.ResolutionRate*100, ResolutionThreshold*100))
	}

	a.ValidationRate = rate(m.ValidationValid, m.ResolutionSuccess)
	switch {
	case m.ResolutionSuccess == 0:
		a.fail("No events passed entity resolution, so validation quality cannot be assessed. Do not promote this run.")
	case a.ValidationRate < ValidationThreshold:
		a.fail(fmt.Sprintf("Validation pass rate %.1f%% is below the %.0f%% threshold. Review the failed-events report for missing or malformed fields.",
			a.ValidationRate*100, ValidationThreshold*100))
	}

	a.OverallRate = rate(m.Created, m.TotalEvents)
	switch {
	case m.TotalEvents == 0:
		a.fail("Overall success cannot be computed without source events. Do not promote this run.")
	case a.OverallRate < OverallThreshold:
		a.fail(fmt.Sprintf("Overall success rate %.1f%% is below the %.0f%% threshold. Check the error log for creation failures.",
			a.OverallRate*100, OverallThreshold*100))
	}

	return a
}

func (a *Assessment) fail(recommendation string) {
	a.CanProceed = false
	a.Recommendations = append(a.Recommendations, recommendation)
}

func rate(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
