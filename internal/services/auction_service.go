package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"lotauction/internal/domain"
	"lotauction/internal/eligibility"
	"lotauction/internal/events"
	"lotauction/internal/governance"
	"lotauction/internal/ledger"
	applog "lotauction/internal/log"
	"lotauction/internal/repos"
)

type AuctionDeps struct {
	DB          *sqlx.DB
	Eligibility *eligibility.Evaluator
	Governance  *governance.Validator
	Ledger      *ledger.Coordinator
	Events      events.Publisher
	Clock       domain.Clock
	FeeRate     decimal.Decimal
}

// AuctionService is the only writer of auction rows. Every guard runs before
// the first write, and every multi-row change happens in one transaction.
type AuctionService struct {
	db          *sqlx.DB
	auctions    *repos.AuctionRepo
	lots        *repos.LotRepo
	cancels     *repos.CancellationRepo
	escrow      *repos.EscrowRepo
	settlements *repos.SettlementRepo
	eligibility *eligibility.Evaluator
	governance  *governance.Validator
	ledger      *ledger.Coordinator
	events      events.Publisher
	clock       domain.Clock
	feeRate     decimal.Decimal
}

func NewAuctionService(d AuctionDeps) *AuctionService {
	if d.Clock == nil {
		d.Clock = domain.SystemClock{}
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	return &AuctionService{
		db:          d.DB,
		auctions:    repos.NewAuctionRepo(d.DB),
		lots:        repos.NewLotRepo(d.DB),
		cancels:     repos.NewCancellationRepo(d.DB),
		escrow:      repos.NewEscrowRepo(d.DB),
		settlements: repos.NewSettlementRepo(d.DB),
		eligibility: d.Eligibility,
		governance:  d.Governance,
		ledger:      d.Ledger,
		events:      d.Events,
		clock:       d.Clock,
		feeRate:     d.FeeRate,
	}
}

func (s *AuctionService) FeeRate() decimal.Decimal { return s.feeRate }

// ---------- Create ----------

type CreateAuctionInput struct {
	LotID         string
	OwnerAddress  string
	ReservePrice  decimal.Decimal
	Quantity      decimal.Decimal
	DurationHours int
	TemplateID    string
	StartTime     *time.Time // nil means now
}

// Create validates, writes the immutable ledger record, and only then stores
// the auction. A ledger failure leaves nothing behind off-chain.
func (s *AuctionService) Create(ctx context.Context, in CreateAuctionInput) (domain.Auction, error) {
	if in.LotID == "" || in.OwnerAddress == "" {
		return domain.Auction{}, domain.Validation("lotId and ownerAddress are required")
	}
	if !in.ReservePrice.IsPositive() || !in.Quantity.IsPositive() || in.DurationHours <= 0 {
		return domain.Auction{}, domain.Validation("reservePrice, quantity and duration must be positive")
	}
	if in.StartTime != nil && domain.Normalize(*in.StartTime).Before(s.clock.Now()) {
		return domain.Auction{}, domain.Validation("startTime %s is in the past", in.StartTime.UTC().Format(time.RFC3339))
	}

	verdict, err := s.eligibility.Evaluate(ctx, in.LotID)
	if err != nil {
		return domain.Auction{}, err
	}
	if !verdict.Eligible {
		return domain.Auction{}, domain.Ineligible("lot is not eligible for auction", verdict.Reasons)
	}

	lot, err := s.lots.Get(ctx, in.LotID)
	if err != nil {
		return domain.Auction{}, storageErr("load lot", err)
	}
	if !sameAddress(lot.OwnerAddress, in.OwnerAddress) {
		return domain.Auction{}, domain.Validation("ownerAddress does not own lot %s", lot.ID)
	}
	if in.Quantity.GreaterThan(lot.Quantity) {
		return domain.Auction{}, domain.Validation("quantity %s exceeds lot quantity %s", in.Quantity, lot.Quantity)
	}

	policy, err := s.governance.Validate(ctx, governance.Proposal{
		DurationHours: in.DurationHours,
		ReservePrice:  in.ReservePrice,
		TemplateID:    in.TemplateID,
	})
	if err != nil {
		return domain.Auction{}, err
	}

	now := s.clock.Now()
	start := now
	if in.StartTime != nil {
		start = domain.Normalize(*in.StartTime)
	}
	a := domain.Auction{
		ID:               uuid.NewString(),
		LotID:            lot.ID,
		OwnerAddress:     lot.OwnerAddress,
		ReservePrice:     in.ReservePrice,
		Quantity:         in.Quantity,
		CurrentBid:       decimal.Zero,
		StartTime:        start,
		EndTime:          start.Add(time.Duration(policy.DurationHours) * time.Hour),
		DurationHours:    policy.DurationHours,
		MinBidIncrement:  policy.MinBidIncrement,
		RequiresApproval: policy.RequiresApproval,
		Approved:         !policy.RequiresApproval,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if policy.Template != nil {
		a.TemplateID = strPtr(policy.Template.ID)
	}
	switch {
	case policy.RequiresApproval:
		a.Status = domain.AuctionPendingApproval
	case start.After(now):
		a.Status = domain.AuctionCreated
	default:
		a.Status = domain.AuctionActive
	}

	creation := ledger.AuctionCreation{
		AuctionID:    a.ID,
		LotID:        a.LotID,
		OwnerAddress: a.OwnerAddress,
		ReservePrice: a.ReservePrice.String(),
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
	}
	if lot.PassportRef != nil {
		creation.PassportRef = *lot.PassportRef
	}
	if a.TemplateID != nil {
		creation.TemplateID = *a.TemplateID
	}
	// no database lock is held across the ledger round trip
	receipt, err := s.ledger.CreateAuction(ctx, creation)
	if err != nil {
		return domain.Auction{}, err
	}
	a.LedgerTxRef = receipt.TxRef
	a.LedgerSequence = receipt.Sequence

	err = repos.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		ok, err := repos.NewLotRepo(tx).TransitionStatus(ctx, lot.ID,
			[]domain.LotStatus{domain.LotApproved, domain.LotAvailable}, domain.LotAuctioned, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.Conflict("lot %s changed while the auction was being created", lot.ID)
		}
		return repos.NewAuctionRepo(tx).Create(ctx, a)
	})
	if err != nil {
		applog.Fail("auction.create.orphaned_ledger_record", err, map[string]any{
			"auction": a.ID, "lot": a.LotID, "tx": a.LedgerTxRef,
		})
		return domain.Auction{}, storageErr("store auction", err)
	}

	s.events.Publish(events.New(events.AuctionCreated, a.ID, now, map[string]any{
		"lotId": a.LotID, "status": a.Status, "tx": a.LedgerTxRef,
	}))
	return a, nil
}

// ---------- Reads ----------

func (s *AuctionService) Get(ctx context.Context, id string) (domain.Auction, error) {
	a, err := s.auctions.Get(ctx, id)
	if err != nil {
		return domain.Auction{}, storageErr("load auction", err)
	}
	return a, nil
}

func (s *AuctionService) List(ctx context.Context, f repos.AuctionFilter) ([]domain.Auction, error) {
	out, err := s.auctions.List(ctx, f)
	if err != nil {
		return nil, storageErr("list auctions", err)
	}
	return out, nil
}

func (s *AuctionService) Bids(ctx context.Context, auctionID string) ([]domain.Bid, error) {
	if _, err := s.Get(ctx, auctionID); err != nil {
		return nil, err
	}
	out, err := s.auctions.Bids(ctx, auctionID)
	if err != nil {
		return nil, storageErr("list bids", err)
	}
	return out, nil
}

func (s *AuctionService) CheckEligibility(ctx context.Context, lotID string) (eligibility.Result, error) {
	return s.eligibility.Evaluate(ctx, lotID)
}

// ---------- Bidding ----------

type PlaceBidInput struct {
	AuctionID        string
	BidderAddress    string
	Amount           decimal.Decimal
	ExpectedBidCount *int // optional staleness token
}

// PlaceBid accepts a bid only against the auction state it was validated on:
// the write is a compare-and-swap on bid_count, so a bid accepted in between
// turns this one into a Conflict instead of a lost update.
func (s *AuctionService) PlaceBid(ctx context.Context, in PlaceBidInput) (domain.Bid, domain.Auction, error) {
	if in.BidderAddress == "" || !in.Amount.IsPositive() {
		return domain.Bid{}, domain.Auction{}, domain.Validation("bidderAddress and a positive amount are required")
	}
	a, err := s.Get(ctx, in.AuctionID)
	if err != nil {
		return domain.Bid{}, domain.Auction{}, err
	}
	now := s.clock.Now()

	if a.Status != domain.AuctionActive {
		return domain.Bid{}, domain.Auction{}, domain.Conflict("auction is %s, not accepting bids", a.Status)
	}
	if !now.Before(a.EndTime) {
		return domain.Bid{}, domain.Auction{}, domain.Conflict("auction closed at %s", a.EndTime.Format(time.RFC3339))
	}
	if sameAddress(in.BidderAddress, a.OwnerAddress) {
		return domain.Bid{}, domain.Auction{}, domain.Validation("the lot owner cannot bid on their own auction")
	}
	if in.ExpectedBidCount != nil && *in.ExpectedBidCount != a.BidCount {
		return domain.Bid{}, domain.Auction{}, domain.Conflict("auction has %d bids, expected %d; re-read and retry", a.BidCount, *in.ExpectedBidCount)
	}
	if floor := a.MinimumNextBid(); in.Amount.LessThan(floor) {
		return domain.Bid{}, domain.Auction{}, domain.Validation("bid %s is below the minimum of %s", in.Amount, floor.StringFixed(2))
	}

	bid := domain.Bid{
		ID:            uuid.NewString(),
		AuctionID:     a.ID,
		BidderAddress: in.BidderAddress,
		Amount:        in.Amount,
		Status:        domain.BidAccepted,
		PlacedAt:      now,
	}
	err = repos.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		ar := repos.NewAuctionRepo(tx)
		ok, err := ar.ApplyBid(ctx, a.ID, a.BidCount, in.Amount, in.BidderAddress, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.Conflict("auction changed while the bid was placed; re-read and retry")
		}
		if err := ar.MarkOutbid(ctx, a.ID); err != nil {
			return err
		}
		return ar.InsertBid(ctx, bid)
	})
	if err != nil {
		return domain.Bid{}, domain.Auction{}, storageErr("place bid", err)
	}

	a.CurrentBid = in.Amount
	a.CurrentBidder = strPtr(in.BidderAddress)
	a.BidCount++
	a.UpdatedAt = now
	s.events.Publish(events.New(events.BidAccepted, a.ID, now, map[string]any{
		"bidId": bid.ID, "bidder": bid.BidderAddress, "amount": bid.Amount.String(), "bidCount": a.BidCount,
	}))
	return bid, a, nil
}

// ---------- Time-triggered transitions ----------

// End closes an active auction ahead of the monitor (operator action).
func (s *AuctionService) End(ctx context.Context, id string) (domain.Auction, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return domain.Auction{}, err
	}
	if a.Status != domain.AuctionActive {
		return domain.Auction{}, domain.Conflict("auction is %s; only active auctions can be ended", a.Status)
	}
	now := s.clock.Now()
	var ended bool
	err = repos.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		ended, err = endAuction(ctx, tx, a.ID, now)
		return err
	})
	if err != nil {
		return domain.Auction{}, storageErr("end auction", err)
	}
	if !ended {
		return domain.Auction{}, domain.Conflict("auction %s is no longer active", a.ID)
	}
	s.events.Publish(events.New(events.AuctionEnded, a.ID, now, map[string]any{"bidCount": a.BidCount}))
	return s.Get(ctx, id)
}

// endAuction flips active to ended and, when nobody bid, hands the lot back.
func endAuction(ctx context.Context, tx *sqlx.Tx, id string, now time.Time) (bool, error) {
	ar := repos.NewAuctionRepo(tx)
	ok, err := ar.TransitionStatus(ctx, id, []domain.AuctionStatus{domain.AuctionActive}, domain.AuctionEnded, now)
	if err != nil || !ok {
		return ok, err
	}
	a, err := ar.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if a.BidCount == 0 {
		if _, err := repos.NewLotRepo(tx).TransitionStatus(ctx, a.LotID,
			[]domain.LotStatus{domain.LotAuctioned}, domain.LotAvailable, now); err != nil {
			return false, err
		}
	}
	return true, nil
}

type SweepResult struct {
	Activated []string `json:"activated"`
	Ended     []string `json:"ended"`
}

// Sweep activates due auctions and then ends expired ones, in one transaction.
// The status predicates make it idempotent: a second run finds nothing to do.
func (s *AuctionService) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.clock.Now()
	res := SweepResult{Activated: []string{}, Ended: []string{}}

	err := repos.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		ar := repos.NewAuctionRepo(tx)
		due, err := ar.DueForActivation(ctx, now)
		if err != nil {
			return err
		}
		for _, id := range due {
			ok, err := ar.TransitionStatus(ctx, id, []domain.AuctionStatus{domain.AuctionCreated}, domain.AuctionActive, now)
			if err != nil {
				return err
			}
			if ok {
				res.Activated = append(res.Activated, id)
			}
		}

		expired, err := ar.DueForEnding(ctx, now)
		if err != nil {
			return err
		}
		for _, id := range expired {
			ok, err := endAuction(ctx, tx, id, now)
			if err != nil {
				return err
			}
			if ok {
				res.Ended = append(res.Ended, id)
			}
		}
		return nil
	})
	if err != nil {
		return SweepResult{Activated: []string{}, Ended: []string{}}, storageErr("status sweep", err)
	}

	for _, id := range res.Activated {
		s.events.Publish(events.New(events.AuctionActivated, id, now, nil))
	}
	for _, id := range res.Ended {
		s.events.Publish(events.New(events.AuctionEnded, id, now, nil))
	}
	return res, nil
}

// ---------- Cancellation ----------

// RequestCancellation opens a cancellation request on behalf of the auction owner.
func (s *AuctionService) RequestCancellation(ctx context.Context, auctionID, requester, reason string) (domain.CancellationRequest, error) {
	if requester == "" || reason == "" {
		return domain.CancellationRequest{}, domain.Validation("requesterAddress and reason are required")
	}
	a, err := s.Get(ctx, auctionID)
	if err != nil {
		return domain.CancellationRequest{}, err
	}
	if !sameAddress(requester, a.OwnerAddress) {
		return domain.CancellationRequest{}, domain.Validation("only the auction owner may request cancellation")
	}
	return s.openCancellation(ctx, a, requester, reason)
}

func (s *AuctionService) openCancellation(ctx context.Context, a domain.Auction, requester, reason string) (domain.CancellationRequest, error) {
	if !a.Status.In(domain.CancellableAuctionStatuses...) {
		return domain.CancellationRequest{}, domain.Conflict("auction is %s and can no longer be cancelled", a.Status)
	}
	req := domain.CancellationRequest{
		ID:               uuid.NewString(),
		AuctionID:        a.ID,
		RequesterAddress: requester,
		Reason:           reason,
		Status:           domain.CancellationPending,
		CreatedAt:        s.clock.Now(),
	}
	if err := s.cancels.Create(ctx, req); err != nil {
		if errors.Is(err, repos.ErrDuplicate) {
			return domain.CancellationRequest{}, domain.Conflict("auction %s already has a pending cancellation request", a.ID)
		}
		return domain.CancellationRequest{}, storageErr("create cancellation request", err)
	}
	return req, nil
}

// ApproveCancellation cancels the auction. Approving an already-approved
// request returns it unchanged, so the auction is cancelled exactly once.
func (s *AuctionService) ApproveCancellation(ctx context.Context, requestID, note string) (domain.CancellationRequest, error) {
	req, err := s.cancels.Get(ctx, requestID)
	if err != nil {
		return domain.CancellationRequest{}, storageErr("load cancellation request", err)
	}
	switch req.Status {
	case domain.CancellationApproved:
		return req, nil
	case domain.CancellationRejected:
		return domain.CancellationRequest{}, domain.Conflict("cancellation request %s was already rejected", req.ID)
	}

	now := s.clock.Now()
	var cancelled bool
	err = repos.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		cr := repos.NewCancellationRepo(tx)
		ok, err := cr.Resolve(ctx, req.ID, domain.CancellationApproved, optional(note), now)
		if err != nil {
			return err
		}
		if !ok {
			// lost a race with another resolver
			return nil
		}
		ok, err = repos.NewAuctionRepo(tx).TransitionStatus(ctx, req.AuctionID, domain.CancellableAuctionStatuses, domain.AuctionCancelled, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.Conflict("auction %s can no longer be cancelled", req.AuctionID)
		}
		if err := releaseHold(ctx, tx, req.AuctionID, now); err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	if err != nil {
		return domain.CancellationRequest{}, storageErr("approve cancellation", err)
	}

	out, err := s.cancels.Get(ctx, req.ID)
	if err != nil {
		return domain.CancellationRequest{}, storageErr("load cancellation request", err)
	}
	if !cancelled && out.Status != domain.CancellationApproved {
		return domain.CancellationRequest{}, domain.Conflict("cancellation request %s was already %s", out.ID, out.Status)
	}
	if cancelled {
		s.events.Publish(events.New(events.AuctionCancelled, req.AuctionID, now, map[string]any{"requestId": req.ID}))
	}
	return out, nil
}

// releaseHold refunds a locked escrow if there is one; otherwise the lot goes back on the market.
func releaseHold(ctx context.Context, tx *sqlx.Tx, auctionID string, now time.Time) error {
	er := repos.NewEscrowRepo(tx)
	dep, ok, err := er.ForAuction(ctx, auctionID)
	if err != nil {
		return err
	}
	if ok {
		if dep.Status == domain.EscrowLocked {
			_, err = er.Resolve(ctx, auctionID, domain.EscrowRefunded, strPtr(dep.DepositorAddress), now)
		}
		return err
	}
	a, err := repos.NewAuctionRepo(tx).Get(ctx, auctionID)
	if err != nil {
		return err
	}
	_, err = repos.NewLotRepo(tx).TransitionStatus(ctx, a.LotID, []domain.LotStatus{domain.LotAuctioned}, domain.LotAvailable, now)
	return err
}

func (s *AuctionService) RejectCancellation(ctx context.Context, requestID, note string) (domain.CancellationRequest, error) {
	req, err := s.cancels.Get(ctx, requestID)
	if err != nil {
		return domain.CancellationRequest{}, storageErr("load cancellation request", err)
	}
	switch req.Status {
	case domain.CancellationRejected:
		return req, nil
	case domain.CancellationApproved:
		return domain.CancellationRequest{}, domain.Conflict("cancellation request %s was already approved", req.ID)
	}
	ok, err := s.cancels.Resolve(ctx, req.ID, domain.CancellationRejected, optional(note), s.clock.Now())
	if err != nil {
		return domain.CancellationRequest{}, storageErr("reject cancellation", err)
	}
	out, err := s.cancels.Get(ctx, req.ID)
	if err != nil {
		return domain.CancellationRequest{}, storageErr("load cancellation request", err)
	}
	if !ok && out.Status != domain.CancellationRejected {
		return domain.CancellationRequest{}, domain.Conflict("cancellation request %s was already %s", out.ID, out.Status)
	}
	return out, nil
}

// Cancel is the operator path: it approves the outstanding request, opening one first if needed.
func (s *AuctionService) Cancel(ctx context.Context, auctionID, reason string) (domain.CancellationRequest, error) {
	if reason == "" {
		reason = "cancelled by operator"
	}
	a, err := s.Get(ctx, auctionID)
	if err != nil {
		return domain.CancellationRequest{}, err
	}
	req, ok, err := s.cancels.Pending(ctx, a.ID)
	if err != nil {
		return domain.CancellationRequest{}, storageErr("load pending cancellation", err)
	}
	if !ok {
		if req, err = s.openCancellation(ctx, a, "operator", reason); err != nil {
			return domain.CancellationRequest{}, err
		}
	}
	return s.ApproveCancellation(ctx, req.ID, reason)
}

// ---------- Governance approval ----------

// ApproveAuction re-checks the lot and records the outcome on the ledger before
// moving the auction on. If the ledger write fails the auction stays pending.
func (s *AuctionService) ApproveAuction(ctx context.Context, id string) (domain.Auction, eligibility.Result, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return domain.Auction{}, eligibility.Result{}, err
	}
	if a.Status != domain.AuctionPendingApproval {
		return domain.Auction{}, eligibility.Result{}, domain.Conflict("auction is %s, not pending approval", a.Status)
	}
	check, err := s.eligibility.Recheck(ctx, a.LotID)
	if err != nil {
		return domain.Auction{}, eligibility.Result{}, err
	}

	if _, err := s.ledger.SetComplianceFlag(ctx, ledger.ComplianceFlag{
		AuctionRef: a.LedgerTxRef, AuctionID: a.ID, Passed: check.Eligible,
	}); err != nil {
		return domain.Auction{}, check, err
	}

	now := s.clock.Now()
	next := domain.AuctionFailedCompliance
	if check.Eligible {
		next = domain.AuctionCreated
		if !a.StartTime.After(now) {
			next = domain.AuctionActive
		}
	}
	err = repos.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		ar := repos.NewAuctionRepo(tx)
		var ok bool
		var err error
		if check.Eligible {
			ok, err = ar.Approve(ctx, a.ID, next, now)
		} else {
			ok, err = ar.TransitionStatus(ctx, a.ID, []domain.AuctionStatus{domain.AuctionPendingApproval}, next, now)
		}
		if err != nil {
			return err
		}
		if !ok {
			return domain.Conflict("auction %s is no longer pending approval", a.ID)
		}
		if !check.Eligible {
			_, err = repos.NewLotRepo(tx).TransitionStatus(ctx, a.LotID, []domain.LotStatus{domain.LotAuctioned}, domain.LotAvailable, now)
		}
		return err
	})
	if err != nil {
		return domain.Auction{}, check, storageErr("approve auction", err)
	}
	if next == domain.AuctionActive {
		s.events.Publish(events.New(events.AuctionActivated, a.ID, now, nil))
	}
	out, err := s.Get(ctx, id)
	return out, check, err
}

func (s *AuctionService) RejectAuction(ctx context.Context, id, reason string) (domain.Auction, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return domain.Auction{}, err
	}
	if a.Status != domain.AuctionPendingApproval {
		return domain.Auction{}, domain.Conflict("auction is %s, not pending approval", a.Status)
	}
	now := s.clock.Now()
	err = repos.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		ok, err := repos.NewAuctionRepo(tx).TransitionStatus(ctx, a.ID,
			[]domain.AuctionStatus{domain.AuctionPendingApproval}, domain.AuctionCancelled, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.Conflict("auction %s is no longer pending approval", a.ID)
		}
		_, err = repos.NewLotRepo(tx).TransitionStatus(ctx, a.LotID, []domain.LotStatus{domain.LotAuctioned}, domain.LotAvailable, now)
		return err
	})
	if err != nil {
		return domain.Auction{}, storageErr("reject auction", err)
	}
	s.events.Publish(events.New(events.AuctionCancelled, a.ID, now, map[string]any{"reason": reason}))
	return s.Get(ctx, id)
}

// ---------- Escrow and settlement ----------

// LockEscrow is allowed once, for the winning bidder of an ended auction.
func (s *AuctionService) LockEscrow(ctx context.Context, auctionID, depositor string) (domain.EscrowDeposit, error) {
	if depositor == "" {
		return domain.EscrowDeposit{}, domain.Validation("depositorAddress is required")
	}
	a, err := s.Get(ctx, auctionID)
	if err != nil {
		return domain.EscrowDeposit{}, err
	}
	switch {
	case a.Status == domain.AuctionEscrowLocked:
		return domain.EscrowDeposit{}, domain.Conflict("escrow for auction %s is already locked", a.ID)
	case a.Status != domain.AuctionEnded:
		return domain.EscrowDeposit{}, domain.Conflict("auction is %s; escrow locks after it ends", a.Status)
	case a.CurrentBidder == nil:
		return domain.EscrowDeposit{}, domain.Conflict("auction %s ended without a winning bid", a.ID)
	case !sameAddress(depositor, *a.CurrentBidder):
		return domain.EscrowDeposit{}, domain.Validation("only the winning bidder may lock escrow")
	}

	now := s.clock.Now()
	dep := domain.EscrowDeposit{
		ID:               uuid.NewString(),
		AuctionID:        a.ID,
		DepositorAddress: depositor,
		Amount:           a.CurrentBid,
		Status:           domain.EscrowLocked,
		LockedAt:         now,
	}
	err = repos.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		ok, err := repos.NewAuctionRepo(tx).TransitionStatus(ctx, a.ID,
			[]domain.AuctionStatus{domain.AuctionEnded}, domain.AuctionEscrowLocked, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.Conflict("escrow for auction %s is already locked", a.ID)
		}
		if err := repos.NewEscrowRepo(tx).Create(ctx, dep); err != nil {
			if errors.Is(err, repos.ErrDuplicate) {
				return domain.Conflict("escrow for auction %s is already locked", a.ID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.EscrowDeposit{}, storageErr("lock escrow", err)
	}
	s.events.Publish(events.New(events.EscrowLocked, a.ID, now, map[string]any{"amount": dep.Amount.String()}))
	return dep, nil
}

type SettleInput struct {
	AuctionID          string
	ComplianceApproved bool
	ShipmentConfirmed  bool
	DeliveryConfirmed  bool
}

// Settle releases escrow to the lot owner, marks the winning bid won, marks the
// lot sold and records the settlement. All four happen or none do.
func (s *AuctionService) Settle(ctx context.Context, in SettleInput) (domain.Settlement, error) {
	a, err := s.Get(ctx, in.AuctionID)
	if err != nil {
		return domain.Settlement{}, err
	}
	if a.Status != domain.AuctionEscrowLocked {
		return domain.Settlement{}, domain.Conflict("auction is %s; settlement requires locked escrow", a.Status)
	}
	var missing []string
	if !in.ComplianceApproved {
		missing = append(missing, "compliance not approved")
	}
	if !in.ShipmentConfirmed {
		missing = append(missing, "shipment not confirmed")
	}
	if !in.DeliveryConfirmed {
		missing = append(missing, "delivery not confirmed")
	}
	if len(missing) > 0 {
		return domain.Settlement{}, domain.Ineligible("settlement conditions not met", missing)
	}

	fee, payout := domain.SplitProceeds(a.CurrentBid, s.feeRate)
	now := s.clock.Now()
	st := domain.Settlement{
		ID:                 uuid.NewString(),
		AuctionID:          a.ID,
		FinalAmount:        a.CurrentBid,
		FeeRate:            s.feeRate,
		PlatformFee:        fee,
		FarmerPayout:       payout,
		ComplianceApproved: true,
		ShipmentConfirmed:  true,
		DeliveryConfirmed:  true,
		Status:             domain.SettlementCompleted,
		SettledAt:          now,
	}

	err = repos.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		ok, err := repos.NewAuctionRepo(tx).TransitionStatus(ctx, a.ID,
			[]domain.AuctionStatus{domain.AuctionEscrowLocked}, domain.AuctionSettled, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.Conflict("auction %s was settled concurrently", a.ID)
		}
		if ok, err = repos.NewEscrowRepo(tx).Resolve(ctx, a.ID, domain.EscrowReleased, strPtr(a.OwnerAddress), now); err != nil {
			return err
		} else if !ok {
			return domain.Conflict("escrow for auction %s is not locked", a.ID)
		}
		if ok, err = repos.NewAuctionRepo(tx).MarkWinningBid(ctx, a.ID); err != nil {
			return err
		} else if !ok {
			return domain.Conflict("auction %s has no standing bid to settle", a.ID)
		}
		if ok, err = repos.NewLotRepo(tx).TransitionStatus(ctx, a.LotID,
			[]domain.LotStatus{domain.LotAuctioned}, domain.LotSold, now); err != nil {
			return err
		} else if !ok {
			return domain.Conflict("lot %s is not held by this auction", a.LotID)
		}
		if err := repos.NewSettlementRepo(tx).Create(ctx, st); err != nil {
			if errors.Is(err, repos.ErrDuplicate) {
				return domain.Conflict("auction %s is already settled", a.ID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Settlement{}, storageErr("settle auction", err)
	}
	s.events.Publish(events.New(events.AuctionSettled, a.ID, now, map[string]any{
		"finalAmount": st.FinalAmount.String(), "platformFee": fee.String(), "farmerPayout": payout.String(),
	}))
	return st, nil
}

func (s *AuctionService) Settlement(ctx context.Context, auctionID string) (domain.Settlement, error) {
	st, err := s.settlements.ForAuction(ctx, auctionID)
	if err != nil {
		return domain.Settlement{}, storageErr("load settlement", err)
	}
	return st, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *AuctionService) Escrow(ctx context.Context, auctionID string) (domain.EscrowDeposit, error) {
	dep, ok, err := s.escrow.ForAuction(ctx, auctionID)
	if err != nil {
		return domain.EscrowDeposit{}, storageErr("load escrow", err)
	}
	if !ok {
		return domain.EscrowDeposit{}, domain.NotFound("escrow for auction", auctionID)
	}
	return dep, nil
}
