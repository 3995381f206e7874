package compliance

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"lotauction/internal/domain"
)

// Facts is everything a rule may look at. Rules must treat it as read-only.
type Facts struct {
	LotID        string
	Variety      string
	QualityGrade string
	Certificates []domain.CertificationRecord
	Stages       []domain.TraceabilityStage
	Destination  string
	Now          time.Time
}

// HasValidCertificate reports whether a verified, in-window certificate of certType exists.
func (f Facts) HasValidCertificate(certType string) bool {
	for _, c := range f.Certificates {
		if strings.EqualFold(c.Type, certType) && c.ValidAt(f.Now) {
			return true
		}
	}
	return false
}

// LatestMoisture is the most recently recorded moisture reading.
func (f Facts) LatestMoisture() (float64, bool) {
	for i := len(f.Stages) - 1; i >= 0; i-- {
		if m := f.Stages[i].MoisturePercent; m != nil {
			return *m, true
		}
	}
	return 0, false
}

func (f Facts) LatestPackaging() (string, bool) {
	for i := len(f.Stages) - 1; i >= 0; i-- {
		if p := f.Stages[i].Packaging; p != nil && *p != "" {
			return *p, true
		}
	}
	return "", false
}

// MaxResidue is the highest residue reading across all stages.
func (f Facts) MaxResidue() (float64, bool) {
	var max float64
	found := false
	for _, s := range f.Stages {
		if s.ResiduePPM != nil && (!found || *s.ResiduePPM > max) {
			max, found = *s.ResiduePPM, true
		}
	}
	return max, found
}

// Temperatures returns every recorded temperature in stage order.
func (f Facts) Temperatures() []float64 {
	var out []float64
	for _, s := range f.Stages {
		if s.TemperatureC != nil {
			out = append(out, *s.TemperatureC)
		}
	}
	return out
}

// Rule is one pure predicate. Check returns whether the lot passes and a
// human-readable explanation either way.
type Rule struct {
	Code     string
	Category string
	Severity domain.Severity
	Check    func(Facts) (bool, string)
}

// Registry maps a destination code to its ordered rule set.
type Registry map[string][]Rule

// Destinations lists the registered destination codes, sorted.
func (r Registry) Destinations() []string {
	out := make([]string, 0, len(r))
	for d := range r {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func (r Registry) Rules(destination string) ([]Rule, bool) {
	rules, ok := r[strings.ToUpper(strings.TrimSpace(destination))]
	return rules, ok
}

// ---------- Rule constructors ----------

func RequireCertificate(code, certType string, sev domain.Severity) Rule {
	return Rule{Code: code, Category: "certification", Severity: sev, Check: func(f Facts) (bool, string) {
		if f.HasValidCertificate(certType) {
			return true, fmt.Sprintf("valid %s certificate on file", certType)
		}
		return false, fmt.Sprintf("no verified, in-date %s certificate", certType)
	}}
}

func MaxMoisture(code string, limit float64, sev domain.Severity) Rule {
	return Rule{Code: code, Category: "quality", Severity: sev, Check: func(f Facts) (bool, string) {
		m, ok := f.LatestMoisture()
		if !ok {
			return false, "no moisture reading recorded"
		}
		if m > limit {
			return false, fmt.Sprintf("moisture %.2f%% exceeds %.2f%%", m, limit)
		}
		return true, fmt.Sprintf("moisture %.2f%% within %.2f%%", m, limit)
	}}
}

// gradeRank orders quality grades; A is best.
var gradeRank = map[string]int{"A": 4, "B": 3, "C": 2, "D": 1}

func MinQualityGrade(code, min string, sev domain.Severity) Rule {
	return Rule{Code: code, Category: "quality", Severity: sev, Check: func(f Facts) (bool, string) {
		g := strings.ToUpper(strings.TrimSpace(f.QualityGrade))
		rank, ok := gradeRank[g]
		if !ok {
			return false, fmt.Sprintf("unrecognised quality grade %q", f.QualityGrade)
		}
		if rank < gradeRank[min] {
			return false, fmt.Sprintf("grade %s below required %s", g, min)
		}
		return true, fmt.Sprintf("grade %s meets %s", g, min)
	}}
}

func PackagingIn(code string, allowed []string, sev domain.Severity) Rule {
	return Rule{Code: code, Category: "packaging", Severity: sev, Check: func(f Facts) (bool, string) {
		p, ok := f.LatestPackaging()
		if !ok {
			return false, "no packaging recorded"
		}
		for _, a := range allowed {
			if strings.EqualFold(p, a) {
				return true, fmt.Sprintf("packaging %s accepted", p)
			}
		}
		return false, fmt.Sprintf("packaging %s not in %s", p, strings.Join(allowed, ", "))
	}}
}

func MaxResidue(code string, limitPPM float64, sev domain.Severity) Rule {
	return Rule{Code: code, Category: "safety", Severity: sev, Check: func(f Facts) (bool, string) {
		r, ok := f.MaxResidue()
		if !ok {
			return false, "no residue test recorded"
		}
		if r > limitPPM {
			return false, fmt.Sprintf("residue %.3f ppm exceeds %.3f ppm", r, limitPPM)
		}
		return true, fmt.Sprintf("residue %.3f ppm within %.3f ppm", r, limitPPM)
	}}
}

// ColdChain requires every recorded temperature to stay at or below maxC.
// Lots with no temperature readings pass: the rule only judges what was measured.
func ColdChain(code string, maxC float64, sev domain.Severity) Rule {
	return Rule{Code: code, Category: "logistics", Severity: sev, Check: func(f Facts) (bool, string) {
		for _, t := range f.Temperatures() {
			if t > maxC {
				return false, fmt.Sprintf("temperature %.1f°C above %.1f°C", t, maxC)
			}
		}
		return true, fmt.Sprintf("no reading above %.1f°C", maxC)
	}}
}

// CertificatesCurrent fails when any verified certificate has lapsed.
func CertificatesCurrent(code string, sev domain.Severity) Rule {
	return Rule{Code: code, Category: "certification", Severity: sev, Check: func(f Facts) (bool, string) {
		var lapsed []string
		for _, c := range f.Certificates {
			if c.Status == domain.CertificateVerified && !f.Now.Before(c.ValidUntil) {
				lapsed = append(lapsed, c.Type)
			}
		}
		if len(lapsed) > 0 {
			return false, "expired certificates: " + strings.Join(lapsed, ", ")
		}
		return true, "all verified certificates current"
	}}
}

// DefaultRegistry is the built-in rule table.
func DefaultRegistry() Registry {
	return Registry{
		"EU": {
			RequireCertificate("EU-PHYTO", "phytosanitary", domain.SeverityCritical),
			RequireCertificate("EU-GAP", "global_gap", domain.SeverityMajor),
			MaxMoisture("EU-MOIST", 12.5, domain.SeverityMajor),
			MaxResidue("EU-MRL", 0.05, domain.SeverityCritical),
			PackagingIn("EU-PACK", []string{"jute", "food_grade_pp"}, domain.SeverityMinor),
			MinQualityGrade("EU-GRADE", "B", domain.SeverityMinor),
			CertificatesCurrent("EU-CERT-CURRENT", domain.SeverityMajor),
		},
		"US": {
			RequireCertificate("US-PHYTO", "phytosanitary", domain.SeverityCritical),
			RequireCertificate("US-FDA", "fda_registration", domain.SeverityCritical),
			MaxMoisture("US-MOIST", 13, domain.SeverityMajor),
			MaxResidue("US-MRL", 0.1, domain.SeverityCritical),
			MinQualityGrade("US-GRADE", "B", domain.SeverityWarning),
		},
		"JP": {
			RequireCertificate("JP-PHYTO", "phytosanitary", domain.SeverityCritical),
			RequireCertificate("JP-JAS", "jas", domain.SeverityMajor),
			MaxMoisture("JP-MOIST", 12, domain.SeverityMajor),
			MaxResidue("JP-MRL", 0.01, domain.SeverityCritical),
			MinQualityGrade("JP-GRADE", "A", domain.SeverityMajor),
			PackagingIn("JP-PACK", []string{"vacuum", "food_grade_pp"}, domain.SeverityMinor),
			ColdChain("JP-COLD", 25, domain.SeverityMinor),
		},
		"DOMESTIC": {
			RequireCertificate("DOM-INSPECT", "quality_inspection", domain.SeverityMajor),
			MaxMoisture("DOM-MOIST", 14, domain.SeverityMajor),
			MinQualityGrade("DOM-GRADE", "C", domain.SeverityWarning),
		},
	}
}
