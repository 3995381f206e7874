package compliance

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"lotauction/internal/domain"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func cert(typ string, status domain.CertificateStatus, until time.Time) domain.CertificationRecord {
	return domain.CertificationRecord{Type: typ, Status: status, ValidFrom: now.AddDate(-1, 0, 0), ValidUntil: until}
}

func f64(v float64) *float64 { return &v }
func str(s string) *string    { return &s }

func euReadyFacts() Facts {
	year := now.AddDate(1, 0, 0)
	return Facts{
		LotID:        "lot-1",
		QualityGrade: "A",
		Destination:  "EU",
		Now:          now,
		Certificates: []domain.CertificationRecord{
			cert("phytosanitary", domain.CertificateVerified, year),
			cert("global_gap", domain.CertificateVerified, year),
		},
		Stages: []domain.TraceabilityStage{
			{Stage: "harvest", MoisturePercent: f64(14), ResiduePPM: f64(0.01)},
			{Stage: "drying", MoisturePercent: f64(11.8), Packaging: str("jute")},
		},
	}
}

func TestEvaluate_AllPass(t *testing.T) {
	v, err := NewEngine(nil).Evaluate(euReadyFacts())
	assert.NoError(t, err)
	check.False(t, v.Failed)
	check.False(t, v.CriticalFailed)
	check.Equal(t, 7, len(v.Outcomes))
	for _, o := range v.Outcomes {
		check.True(t, o.Passed)
	}
}

func TestEvaluate_ExhaustiveOnFailure(t *testing.T) {
	f := euReadyFacts()
	f.Certificates = nil
	f.QualityGrade = "C"

	v, err := NewEngine(nil).Evaluate(f)
	assert.NoError(t, err)
	check.True(t, v.Failed)
	check.True(t, v.CriticalFailed)
	// every rule reports, not just the first failure
	check.Equal(t, 7, len(v.Outcomes))

	failed := map[string]bool{}
	for _, o := range v.Outcomes {
		if !o.Passed {
			failed[o.Code] = true
		}
	}
	check.True(t, failed["EU-PHYTO"])
	check.True(t, failed["EU-GAP"])
	check.True(t, failed["EU-GRADE"])
	check.False(t, failed["EU-MOIST"])
}

func TestEvaluate_MinorFailureIsNotCritical(t *testing.T) {
	f := euReadyFacts()
	f.Stages[1].Packaging = str("plastic")

	v, err := NewEngine(nil).Evaluate(f)
	assert.NoError(t, err)
	check.True(t, v.Failed)
	check.False(t, v.CriticalFailed)
}

func TestEvaluate_UsesLatestMoisture(t *testing.T) {
	f := euReadyFacts()
	f.Stages[1].MoisturePercent = f64(13)

	v, err := NewEngine(nil).Evaluate(f)
	assert.NoError(t, err)
	for _, o := range v.Outcomes {
		if o.Code == "EU-MOIST" {
			check.False(t, o.Passed)
		}
	}
}

func TestEvaluate_PendingOrExpiredCertificatesDoNotCount(t *testing.T) {
	f := euReadyFacts()
	f.Certificates = []domain.CertificationRecord{
		cert("phytosanitary", domain.CertificatePending, now.AddDate(1, 0, 0)),
		cert("global_gap", domain.CertificateVerified, now.Add(-time.Hour)),
	}
	v, err := NewEngine(nil).Evaluate(f)
	assert.NoError(t, err)

	byCode := map[string]domain.RuleOutcome{}
	for _, o := range v.Outcomes {
		byCode[o.Code] = o
	}
	check.False(t, byCode["EU-PHYTO"].Passed)
	check.False(t, byCode["EU-GAP"].Passed)
	check.False(t, byCode["EU-CERT-CURRENT"].Passed)
}

func TestEvaluate_PanickingRuleIsCaptured(t *testing.T) {
	reg := Registry{"XX": {
		{Code: "BOOM", Category: "test", Severity: domain.SeverityMajor, Check: func(Facts) (bool, string) {
			var stages []domain.TraceabilityStage
			_ = stages[3]
			return true, ""
		}},
		{Code: "OK", Category: "test", Severity: domain.SeverityMinor, Check: func(Facts) (bool, string) { return true, "fine" }},
	}}

	v, err := NewEngine(reg).Evaluate(Facts{Destination: "XX"})
	assert.NoError(t, err)
	check.Equal(t, 2, len(v.Outcomes))
	check.False(t, v.Outcomes[0].Passed)
	check.True(t, v.Outcomes[1].Passed)
	check.True(t, v.Failed)
	check.False(t, v.CriticalFailed)
}

func TestEvaluate_UnknownDestination(t *testing.T) {
	_, err := NewEngine(nil).Evaluate(Facts{Destination: "MARS"})
	check.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestDestinationsSorted(t *testing.T) {
	check.Equal(t, []string{"DOMESTIC", "EU", "JP", "US"}, DefaultRegistry().Destinations())
}
