// Package eligibility decides whether a lot may be put up for auction.
package eligibility

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"lotauction/internal/domain"
	"lotauction/internal/repos"
)

const (
	MinCertificates       = 3
	MinTraceabilityStages = 2
)

// Source is the read side the evaluator needs.
type Source interface {
	Lot(ctx context.Context, id string) (domain.Lot, error)
	HasUnresolvedAuction(ctx context.Context, lotID string) (bool, error)
	CountValidCertificates(ctx context.Context, lotID string, now time.Time) (int, error)
	LatestCompliance(ctx context.Context, lotID string) (domain.ComplianceCheckResult, bool, error)
	CountStages(ctx context.Context, lotID string) (int, error)
}

type Result struct {
	LotID            string   `json:"lotId"`
	Eligible         bool     `json:"eligible"`
	Reasons          []string `json:"reasons"`
	Certificates     int      `json:"certificateCount"`
	Stages           int      `json:"traceabilityStageCount"`
	ComplianceStatus string   `json:"complianceStatus"`
}

type Evaluator struct {
	src   Source
	clock domain.Clock
}

func New(src Source, clock domain.Clock) *Evaluator {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Evaluator{src: src, clock: clock}
}

// Evaluate runs every check and returns all failing reasons. Business failures
// are part of the Result; the error is reserved for a missing lot or a storage fault.
func (e *Evaluator) Evaluate(ctx context.Context, lotID string) (Result, error) {
	lot, err := e.src.Lot(ctx, lotID)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return Result{}, err
		}
		return Result{}, domain.Internal("load lot", err)
	}

	res := Result{LotID: lotID, Reasons: []string{}}
	if lot.Status != domain.LotApproved && lot.Status != domain.LotAvailable {
		res.Reasons = append(res.Reasons, fmt.Sprintf("lot status is %s; must be approved or available", lot.Status))
	}

	busy, err := e.src.HasUnresolvedAuction(ctx, lotID)
	if err != nil {
		return Result{}, domain.Internal("check existing auctions", err)
	}
	if busy {
		res.Reasons = append(res.Reasons, "lot already has an unresolved auction")
	}

	gate, err := e.gate(ctx, lot)
	if err != nil {
		return Result{}, err
	}
	res.Reasons = append(res.Reasons, gate.Reasons...)
	res.Certificates = gate.Certificates
	res.Stages = gate.Stages
	res.ComplianceStatus = gate.ComplianceStatus

	res.Eligible = len(res.Reasons) == 0
	return res, nil
}

// Recheck runs the certification, compliance, traceability and passport checks only.
// Used when approving an auction that already holds the lot.
func (e *Evaluator) Recheck(ctx context.Context, lotID string) (Result, error) {
	lot, err := e.src.Lot(ctx, lotID)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return Result{}, err
		}
		return Result{}, domain.Internal("load lot", err)
	}
	res, err := e.gate(ctx, lot)
	if err != nil {
		return Result{}, err
	}
	res.Eligible = len(res.Reasons) == 0
	return res, nil
}

func (e *Evaluator) gate(ctx context.Context, lot domain.Lot) (Result, error) {
	res := Result{LotID: lot.ID, Reasons: []string{}, ComplianceStatus: string(domain.ComplianceUnchecked)}

	certs, err := e.src.CountValidCertificates(ctx, lot.ID, e.clock.Now())
	if err != nil {
		return Result{}, domain.Internal("count certificates", err)
	}
	res.Certificates = certs
	if certs < MinCertificates {
		res.Reasons = append(res.Reasons, fmt.Sprintf("insufficient certificates: %d of %d required", certs, MinCertificates))
	}

	latest, ok, err := e.src.LatestCompliance(ctx, lot.ID)
	if err != nil {
		return Result{}, domain.Internal("load compliance result", err)
	}
	switch {
	case !ok:
		res.Reasons = append(res.Reasons, "no compliance check on record")
	case !latest.Passed:
		res.ComplianceStatus = string(latest.Status())
		res.Reasons = append(res.Reasons, fmt.Sprintf("latest compliance check (%s) did not pass", latest.Destination))
	default:
		res.ComplianceStatus = string(latest.Status())
	}

	stages, err := e.src.CountStages(ctx, lot.ID)
	if err != nil {
		return Result{}, domain.Internal("count traceability stages", err)
	}
	res.Stages = stages
	if stages < MinTraceabilityStages {
		res.Reasons = append(res.Reasons, fmt.Sprintf("insufficient traceability stages: %d of %d required", stages, MinTraceabilityStages))
	}

	if lot.PassportRef == nil || *lot.PassportRef == "" {
		res.Reasons = append(res.Reasons, "lot has no ledger passport")
	}
	return res, nil
}

// RepoSource reads eligibility facts from the relational store.
type RepoSource struct {
	Lots       *repos.LotRepo
	Auctions   *repos.AuctionRepo
	Compliance *repos.ComplianceRepo
}

func NewRepoSource(db sqlx.ExtContext) *RepoSource {
	return &RepoSource{
		Lots:       repos.NewLotRepo(db),
		Auctions:   repos.NewAuctionRepo(db),
		Compliance: repos.NewComplianceRepo(db),
	}
}

func (s *RepoSource) Lot(ctx context.Context, id string) (domain.Lot, error) {
	return s.Lots.Get(ctx, id)
}

func (s *RepoSource) HasUnresolvedAuction(ctx context.Context, lotID string) (bool, error) {
	return s.Auctions.HasUnresolvedForLot(ctx, lotID)
}

func (s *RepoSource) CountValidCertificates(ctx context.Context, lotID string, now time.Time) (int, error) {
	return s.Lots.CountValidCertificates(ctx, lotID, now)
}

func (s *RepoSource) LatestCompliance(ctx context.Context, lotID string) (domain.ComplianceCheckResult, bool, error) {
	return s.Compliance.Latest(ctx, lotID)
}

func (s *RepoSource) CountStages(ctx context.Context, lotID string) (int, error) {
	return s.Lots.CountStages(ctx, lotID)
}
