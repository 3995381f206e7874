package domain

import "time"

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
	SeverityWarning  Severity = "warning"
)

type RuleOutcome struct {
	Code        string   `json:"code"`
	Category    string   `json:"category"`
	Severity    Severity `json:"severity"`
	Passed      bool     `json:"passed"`
	Explanation string   `json:"explanation"`
}

// ComplianceCheckResult is append-only; the most recent result for a lot is authoritative.
type ComplianceCheckResult struct {
	ID             string        `json:"id"`
	LotID          string        `json:"lotId"`
	Destination    string        `json:"destination"`
	Passed         bool          `json:"passed"`
	CriticalFailed bool          `json:"criticalFailed"`
	Outcomes       []RuleOutcome `json:"outcomes"`
	CheckedAt      time.Time     `json:"checkedAt"`
}

// Status collapses the result into the lot-level compliance status.
func (r ComplianceCheckResult) Status() ComplianceStatus {
	switch {
	case r.CriticalFailed:
		return ComplianceCriticalFailed
	case !r.Passed:
		return ComplianceFailed
	}
	return CompliancePassed
}
