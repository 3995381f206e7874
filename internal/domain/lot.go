package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LotStatus string

const (
	LotCreated   LotStatus = "created"
	LotAvailable LotStatus = "available"
	LotApproved  LotStatus = "approved"
	LotRejected  LotStatus = "rejected"
	LotAuctioned LotStatus = "auctioned"
	LotSold      LotStatus = "sold"
)

type ComplianceStatus string

const (
	ComplianceUnchecked      ComplianceStatus = "unchecked"
	CompliancePassed         ComplianceStatus = "passed"
	ComplianceFailed         ComplianceStatus = "failed"
	ComplianceCriticalFailed ComplianceStatus = "critical_failed"
)

// Lot is a registered batch of harvested product. Lots are never deleted.
type Lot struct {
	ID               string           `db:"id" json:"id"`
	OwnerAddress     string           `db:"owner_address" json:"ownerAddress"`
	Variety          string           `db:"variety" json:"variety"`
	Quantity         decimal.Decimal  `db:"quantity" json:"quantity"`
	QualityGrade     string           `db:"quality_grade" json:"qualityGrade"`
	Status           LotStatus        `db:"status" json:"status"`
	ComplianceStatus ComplianceStatus `db:"compliance_status" json:"complianceStatus"`
	PassportRef      *string          `db:"passport_ref" json:"passportRef,omitempty"` // ledger record, nil until minted
	CreatedAt        time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updatedAt"`
}

type CertificateStatus string

const (
	CertificatePending  CertificateStatus = "pending"
	CertificateVerified CertificateStatus = "verified"
)

// CertificationRecord is immutable once verified.
type CertificationRecord struct {
	ID         string            `db:"id" json:"id"`
	LotID      string            `db:"lot_id" json:"lotId"`
	Type       string            `db:"cert_type" json:"type"`
	Issuer     string            `db:"issuer" json:"issuer"`
	ValidFrom  time.Time         `db:"valid_from" json:"validFrom"`
	ValidUntil time.Time         `db:"valid_until" json:"validUntil"`
	Status     CertificateStatus `db:"status" json:"status"`
	VerifiedAt *time.Time        `db:"verified_at" json:"verifiedAt,omitempty"`
	CreatedAt  time.Time         `db:"created_at" json:"createdAt"`
}

// ValidAt reports whether the certificate is verified and inside its validity window.
func (c CertificationRecord) ValidAt(t time.Time) bool {
	return c.Status == CertificateVerified && !t.Before(c.ValidFrom) && t.Before(c.ValidUntil)
}

// TraceabilityStage is one recorded step of the lot's supply chain together
// with whatever measurements were taken at that step.
type TraceabilityStage struct {
	ID              string    `db:"id" json:"id"`
	LotID           string    `db:"lot_id" json:"lotId"`
	Stage           string    `db:"stage" json:"stage"`
	Location        string    `db:"location" json:"location"`
	MoisturePercent *float64  `db:"moisture_percent" json:"moisturePercent,omitempty"`
	Packaging       *string   `db:"packaging" json:"packaging,omitempty"`
	ResiduePPM      *float64  `db:"residue_ppm" json:"residuePpm,omitempty"`
	TemperatureC    *float64  `db:"temperature_c" json:"temperatureC,omitempty"`
	RecordedAt      time.Time `db:"recorded_at" json:"recordedAt"`
}
