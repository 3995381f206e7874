package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"lotauction/internal/compliance"
	"lotauction/internal/domain"
	"lotauction/internal/repos"
)

type ComplianceService struct {
	db     *sqlx.DB
	lots   *repos.LotRepo
	checks *repos.ComplianceRepo
	engine *compliance.Engine
	clock  domain.Clock
}

func NewComplianceService(db *sqlx.DB, engine *compliance.Engine, clock domain.Clock) *ComplianceService {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &ComplianceService{
		db:     db,
		lots:   repos.NewLotRepo(db),
		checks: repos.NewComplianceRepo(db),
		engine: engine,
		clock:  clock,
	}
}

// CheckLot evaluates the lot for a destination, appends the result to its
// history and updates the lot's compliance status.
func (s *ComplianceService) CheckLot(ctx context.Context, lotID, destination string) (domain.ComplianceCheckResult, error) {
	destination = strings.ToUpper(strings.TrimSpace(destination))
	if destination == "" {
		return domain.ComplianceCheckResult{}, domain.Validation("destination is required")
	}
	lot, err := s.lots.Get(ctx, lotID)
	if err != nil {
		return domain.ComplianceCheckResult{}, storageErr("load lot", err)
	}
	certs, err := s.lots.Certificates(ctx, lotID)
	if err != nil {
		return domain.ComplianceCheckResult{}, storageErr("load certificates", err)
	}
	stages, err := s.lots.Stages(ctx, lotID)
	if err != nil {
		return domain.ComplianceCheckResult{}, storageErr("load stages", err)
	}

	now := s.clock.Now()
	verdict, err := s.engine.Evaluate(compliance.Facts{
		LotID:        lot.ID,
		Variety:      lot.Variety,
		QualityGrade: lot.QualityGrade,
		Certificates: certs,
		Stages:       stages,
		Destination:  destination,
		Now:          now,
	})
	if err != nil {
		return domain.ComplianceCheckResult{}, err
	}

	res := domain.ComplianceCheckResult{
		ID:             uuid.NewString(),
		LotID:          lot.ID,
		Destination:    destination,
		Passed:         verdict.Passed(),
		CriticalFailed: verdict.CriticalFailed,
		Outcomes:       verdict.Outcomes,
		CheckedAt:      now,
	}
	err = repos.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := repos.NewComplianceRepo(tx).Append(ctx, res); err != nil {
			return err
		}
		return repos.NewLotRepo(tx).SetComplianceStatus(ctx, lot.ID, res.Status(), now)
	})
	if err != nil {
		return domain.ComplianceCheckResult{}, storageErr("record compliance check", err)
	}
	return res, nil
}

// History lists the lot's results, newest first.
func (s *ComplianceService) History(ctx context.Context, lotID string) ([]domain.ComplianceCheckResult, error) {
	if _, err := s.lots.Get(ctx, lotID); err != nil {
		return nil, storageErr("load lot", err)
	}
	out, err := s.checks.History(ctx, lotID)
	if err != nil {
		return nil, storageErr("load compliance history", err)
	}
	return out, nil
}

func (s *ComplianceService) Destinations() []string { return s.engine.Destinations() }
