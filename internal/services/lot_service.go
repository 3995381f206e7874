package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"lotauction/internal/domain"
	"lotauction/internal/ledger"
	applog "lotauction/internal/log"
	"lotauction/internal/repos"
)

type LotService struct {
	lots   *repos.LotRepo
	ledger *ledger.Coordinator
	clock  domain.Clock
}

func NewLotService(db *sqlx.DB, coord *ledger.Coordinator, clock domain.Clock) *LotService {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &LotService{lots: repos.NewLotRepo(db), ledger: coord, clock: clock}
}

type RegisterLotInput struct {
	OwnerAddress string
	Variety      string
	Quantity     decimal.Decimal
	QualityGrade string
}

func (s *LotService) Register(ctx context.Context, in RegisterLotInput) (domain.Lot, error) {
	if in.OwnerAddress == "" || strings.TrimSpace(in.Variety) == "" || in.QualityGrade == "" {
		return domain.Lot{}, domain.Validation("ownerAddress, variety and qualityGrade are required")
	}
	if !in.Quantity.IsPositive() {
		return domain.Lot{}, domain.Validation("quantity must be positive")
	}
	now := s.clock.Now()
	lot := domain.Lot{
		ID:               uuid.NewString(),
		OwnerAddress:     in.OwnerAddress,
		Variety:          strings.TrimSpace(in.Variety),
		Quantity:         in.Quantity,
		QualityGrade:     strings.ToUpper(strings.TrimSpace(in.QualityGrade)),
		Status:           domain.LotCreated,
		ComplianceStatus: domain.ComplianceUnchecked,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.lots.Create(ctx, lot); err != nil {
		return domain.Lot{}, storageErr("register lot", err)
	}
	return lot, nil
}

// LotDetail is a lot with its certificates and traceability trail.
type LotDetail struct {
	domain.Lot
	Certificates []domain.CertificationRecord `json:"certificates"`
	Stages       []domain.TraceabilityStage   `json:"stages"`
}

func (s *LotService) Get(ctx context.Context, id string) (LotDetail, error) {
	lot, err := s.lots.Get(ctx, id)
	if err != nil {
		return LotDetail{}, storageErr("load lot", err)
	}
	certs, err := s.lots.Certificates(ctx, id)
	if err != nil {
		return LotDetail{}, storageErr("load certificates", err)
	}
	stages, err := s.lots.Stages(ctx, id)
	if err != nil {
		return LotDetail{}, storageErr("load stages", err)
	}
	return LotDetail{Lot: lot, Certificates: certs, Stages: stages}, nil
}

type CertificateInput struct {
	Type       string
	Issuer     string
	ValidFrom  time.Time
	ValidUntil time.Time
}

// AddCertificate records a certificate as pending; it counts only once verified.
func (s *LotService) AddCertificate(ctx context.Context, lotID string, in CertificateInput) (domain.CertificationRecord, error) {
	if strings.TrimSpace(in.Type) == "" || strings.TrimSpace(in.Issuer) == "" {
		return domain.CertificationRecord{}, domain.Validation("type and issuer are required")
	}
	from, until := domain.Normalize(in.ValidFrom), domain.Normalize(in.ValidUntil)
	if !until.After(from) {
		return domain.CertificationRecord{}, domain.Validation("validUntil must be after validFrom")
	}
	if _, err := s.lots.Get(ctx, lotID); err != nil {
		return domain.CertificationRecord{}, storageErr("load lot", err)
	}
	c := domain.CertificationRecord{
		ID:         uuid.NewString(),
		LotID:      lotID,
		Type:       strings.ToLower(strings.TrimSpace(in.Type)),
		Issuer:     strings.TrimSpace(in.Issuer),
		ValidFrom:  from,
		ValidUntil: until,
		Status:     domain.CertificatePending,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.lots.AddCertificate(ctx, c); err != nil {
		return domain.CertificationRecord{}, storageErr("add certificate", err)
	}
	return c, nil
}

// VerifyCertificate is one-way; verifying twice is a conflict.
func (s *LotService) VerifyCertificate(ctx context.Context, certID string) (domain.CertificationRecord, error) {
	if _, err := s.lots.Certificate(ctx, certID); err != nil {
		return domain.CertificationRecord{}, storageErr("load certificate", err)
	}
	ok, err := s.lots.VerifyCertificate(ctx, certID, s.clock.Now())
	if err != nil {
		return domain.CertificationRecord{}, storageErr("verify certificate", err)
	}
	if !ok {
		return domain.CertificationRecord{}, domain.Conflict("certificate %s is already verified", certID)
	}
	c, err := s.lots.Certificate(ctx, certID)
	if err != nil {
		return domain.CertificationRecord{}, storageErr("load certificate", err)
	}
	return c, nil
}

type StageInput struct {
	Stage           string
	Location        string
	MoisturePercent *float64
	Packaging       *string
	ResiduePPM      *float64
	TemperatureC    *float64
	RecordedAt      *time.Time // nil means now
}

func (s *LotService) AddStage(ctx context.Context, lotID string, in StageInput) (domain.TraceabilityStage, error) {
	if strings.TrimSpace(in.Stage) == "" || strings.TrimSpace(in.Location) == "" {
		return domain.TraceabilityStage{}, domain.Validation("stage and location are required")
	}
	if m := in.MoisturePercent; m != nil && (*m < 0 || *m > 100) {
		return domain.TraceabilityStage{}, domain.Validation("moisturePercent must be between 0 and 100")
	}
	if r := in.ResiduePPM; r != nil && *r < 0 {
		return domain.TraceabilityStage{}, domain.Validation("residuePpm cannot be negative")
	}
	if _, err := s.lots.Get(ctx, lotID); err != nil {
		return domain.TraceabilityStage{}, storageErr("load lot", err)
	}
	at := s.clock.Now()
	if in.RecordedAt != nil {
		at = domain.Normalize(*in.RecordedAt)
	}
	st := domain.TraceabilityStage{
		ID:              uuid.NewString(),
		LotID:           lotID,
		Stage:           strings.TrimSpace(in.Stage),
		Location:        strings.TrimSpace(in.Location),
		MoisturePercent: in.MoisturePercent,
		Packaging:       in.Packaging,
		ResiduePPM:      in.ResiduePPM,
		TemperatureC:    in.TemperatureC,
		RecordedAt:      at,
	}
	if err := s.lots.AddStage(ctx, st); err != nil {
		return domain.TraceabilityStage{}, storageErr("add stage", err)
	}
	return st, nil
}

// MintPassport registers the lot on the ledger and stores the returned reference.
func (s *LotService) MintPassport(ctx context.Context, lotID string) (domain.Lot, error) {
	lot, err := s.lots.Get(ctx, lotID)
	if err != nil {
		return domain.Lot{}, storageErr("load lot", err)
	}
	if lot.PassportRef != nil {
		return domain.Lot{}, domain.Conflict("lot %s already has a ledger passport", lot.ID)
	}
	receipt, err := s.ledger.RegisterLot(ctx, ledger.LotRegistration{
		LotID:        lot.ID,
		OwnerAddress: lot.OwnerAddress,
		Variety:      lot.Variety,
		Quantity:     lot.Quantity.String(),
		QualityGrade: lot.QualityGrade,
	})
	if err != nil {
		return domain.Lot{}, err
	}
	ok, err := s.lots.SetPassport(ctx, lot.ID, receipt.TxRef, s.clock.Now())
	if err == nil && !ok {
		err = domain.Conflict("lot %s already has a ledger passport", lot.ID)
	}
	if err != nil {
		applog.Fail("lot.mint.orphaned_ledger_record", err, map[string]any{"lot": lot.ID, "tx": receipt.TxRef})
		return domain.Lot{}, storageErr("store passport", err)
	}
	return s.lots.Get(ctx, lot.ID)
}

// reviewable are the statuses an administrator may move a lot between.
var reviewable = []domain.LotStatus{domain.LotCreated, domain.LotAvailable, domain.LotApproved, domain.LotRejected}

// SetStatus records an administrative review decision. Lots held by an auction
// or already sold are not reviewable.
func (s *LotService) SetStatus(ctx context.Context, lotID string, to domain.LotStatus) (domain.Lot, error) {
	switch to {
	case domain.LotApproved, domain.LotRejected, domain.LotAvailable:
	default:
		return domain.Lot{}, domain.Validation("status must be approved, rejected or available")
	}
	lot, err := s.lots.Get(ctx, lotID)
	if err != nil {
		return domain.Lot{}, storageErr("load lot", err)
	}
	ok, err := s.lots.TransitionStatus(ctx, lot.ID, reviewable, to, s.clock.Now())
	if err != nil {
		return domain.Lot{}, storageErr("update lot status", err)
	}
	if !ok {
		return domain.Lot{}, domain.Conflict("lot is %s and cannot be reviewed", lot.Status)
	}
	return s.lots.Get(ctx, lot.ID)
}
