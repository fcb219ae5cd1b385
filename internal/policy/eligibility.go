package policy

// CheckResult is the outcome of one named check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// Report aggregates every check's outcome for an eligibility query.
type Report struct {
	Eligible     bool          `json:"eligible"`
	Checks       []CheckResult `json:"checks"`
	FailedChecks []string      `json:"failedChecks"`
}

// Evaluate runs the full check table and reports every pass/fail, unlike
// Admit which stops at the first failure.
func Evaluate(in Input) Report {
	rep := Report{Eligible: true, FailedChecks: []string{}}
	for _, c := range Checks {
		res := CheckResult{Name: c.Name, Passed: true}
		if err := c.Run(in); err != nil {
			res.Passed = false
			res.Reason = err.Message
			rep.Eligible = false
			rep.FailedChecks = append(rep.FailedChecks, c.Name)
		}
		rep.Checks = append(rep.Checks, res)
	}
	return rep
}
