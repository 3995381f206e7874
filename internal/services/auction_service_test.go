package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"lotauction/internal/domain"
	"lotauction/internal/events"
	"lotauction/internal/ledger"
	"lotauction/internal/repos"
	"lotauction/internal/services"
)

func TestCreate_StoresLedgerReferenceAndHoldsLot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.activeAuction(t)

	got, err := e.svc.Auctions.Get(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, a.LedgerTxRef, got.LedgerTxRef)
	check.True(t, got.LedgerTxRef != "")
	check.True(t, got.EndTime.Equal(epoch.Add(24*time.Hour)))
	check.True(t, got.MinBidIncrement.Equal(dec("0.05")))
	check.True(t, got.CurrentBid.IsZero())

	lot, err := e.svc.Lots.Get(ctx, a.LotID)
	assert.NoError(t, err)
	check.Equal(t, domain.LotAuctioned, lot.Status)

	// the lot is now held, so a second auction is refused
	_, err = e.svc.Auctions.Create(ctx, services.CreateAuctionInput{
		LotID: a.LotID, OwnerAddress: farmer, ReservePrice: dec("100"), Quantity: dec("10"), DurationHours: 24,
	})
	check.Equal(t, domain.KindIneligible, domain.KindOf(err))
	check.Equal(t, events.AuctionCreated, e.events.Types()[0])
}

func TestCreate_LedgerFailureLeavesNoOffChainRecord(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	lot := e.eligibleLot(t)

	e.sim.FailNext(errors.New("node unavailable"))
	_, err := e.svc.Auctions.Create(ctx, services.CreateAuctionInput{
		LotID: lot.ID, OwnerAddress: farmer, ReservePrice: dec("100"), Quantity: dec("500"), DurationHours: 24,
	})
	check.Equal(t, domain.KindLedgerWrite, domain.KindOf(err))

	list, err := e.svc.Auctions.List(ctx, repos.AuctionFilter{LotID: lot.ID})
	assert.NoError(t, err)
	check.Equal(t, 0, len(list))
	detail, err := e.svc.Lots.Get(ctx, lot.ID)
	assert.NoError(t, err)
	check.Equal(t, domain.LotApproved, detail.Status)

	// retrying the whole operation succeeds
	_, err = e.svc.Auctions.Create(ctx, services.CreateAuctionInput{
		LotID: lot.ID, OwnerAddress: farmer, ReservePrice: dec("100"), Quantity: dec("500"), DurationHours: 24,
	})
	check.NoError(t, err)
}

func TestCreate_LedgerTimeoutIsLedgerWriteError(t *testing.T) {
	e := newEnv(t)
	lot := e.eligibleLot(t)
	e.sim.HangNext()

	_, err := e.svc.Auctions.Create(context.Background(), services.CreateAuctionInput{
		LotID: lot.ID, OwnerAddress: farmer, ReservePrice: dec("100"), Quantity: dec("500"), DurationHours: 24,
	})
	check.Equal(t, domain.KindLedgerWrite, domain.KindOf(err))
	check.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCreate_RejectsGovernanceViolations(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	lot := e.eligibleLot(t)

	_, err := e.svc.Auctions.Create(ctx, services.CreateAuctionInput{
		LotID: lot.ID, OwnerAddress: farmer, ReservePrice: dec("100"), Quantity: dec("500"), DurationHours: 36,
	})
	check.Equal(t, domain.KindIneligible, domain.KindOf(err))

	_, err = e.svc.Auctions.Create(ctx, services.CreateAuctionInput{
		LotID: lot.ID, OwnerAddress: farmer, ReservePrice: dec("50"), Quantity: dec("500"), DurationHours: 24,
	})
	check.Equal(t, domain.KindIneligible, domain.KindOf(err))

	_, err = e.svc.Auctions.Create(ctx, services.CreateAuctionInput{
		LotID: lot.ID, OwnerAddress: buyerA, ReservePrice: dec("100"), Quantity: dec("500"), DurationHours: 24,
	})
	check.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = e.svc.Auctions.Create(ctx, services.CreateAuctionInput{
		LotID: lot.ID, OwnerAddress: farmer, ReservePrice: dec("100"), Quantity: dec("501"), DurationHours: 24,
	})
	check.Equal(t, domain.KindValidation, domain.KindOf(err))

	// nothing reached the ledger
	check.Equal(t, 1, len(e.sim.Submissions())) // the passport only
}

func TestCreate_IneligibleLotListsReasons(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	lot, err := e.svc.Lots.Register(ctx, services.RegisterLotInput{
		OwnerAddress: farmer, Variety: "robusta", Quantity: dec("10"), QualityGrade: "B",
	})
	assert.NoError(t, err)

	_, err = e.svc.Auctions.Create(ctx, services.CreateAuctionInput{
		LotID: lot.ID, OwnerAddress: farmer, ReservePrice: dec("100"), Quantity: dec("10"), DurationHours: 24,
	})
	check.Equal(t, domain.KindIneligible, domain.KindOf(err))
	check.Equal(t, 5, len(domain.ReasonsOf(err)))
}

func TestPlaceBid_EnforcesReserveIncrementAndOwner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.activeAuction(t)

	_, _, err := e.svc.Auctions.PlaceBid(ctx, services.PlaceBidInput{AuctionID: a.ID, BidderAddress: buyerA, Amount: dec("99.99")})
	check.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, _, err = e.svc.Auctions.PlaceBid(ctx, services.PlaceBidInput{AuctionID: a.ID, BidderAddress: farmer, Amount: dec("200")})
	check.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, got, err := e.svc.Auctions.PlaceBid(ctx, services.PlaceBidInput{AuctionID: a.ID, BidderAddress: buyerA, Amount: dec("1000")})
	assert.NoError(t, err)
	check.True(t, got.CurrentBid.Equal(dec("1000")))
	check.Equal(t, 1, got.BidCount)

	// next bid must reach 1000 * 1.05
	_, _, err = e.svc.Auctions.PlaceBid(ctx, services.PlaceBidInput{AuctionID: a.ID, BidderAddress: buyerB, Amount: dec("1049.99")})
	check.Equal(t, domain.KindValidation, domain.KindOf(err))
	_, got, err = e.svc.Auctions.PlaceBid(ctx, services.PlaceBidInput{AuctionID: a.ID, BidderAddress: buyerB, Amount: dec("1050")})
	assert.NoError(t, err)
	check.Equal(t, buyerB, *got.CurrentBidder)

	bids, err := e.svc.Auctions.Bids(ctx, a.ID)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(bids))
	check.Equal(t, domain.BidOutbid, bids[0].Status)
	check.Equal(t, domain.BidAccepted, bids[1].Status)
}

func TestPlaceBid_ClosedAuctionIsConflict(t *testing.T) {
	e := newEnv(t)
	a := e.activeAuction(t)
	e.clock.Advance(24 * time.Hour)

	_, _, err := e.svc.Auctions.PlaceBid(context.Background(), services.PlaceBidInput{AuctionID: a.ID, BidderAddress: buyerA, Amount: dec("500")})
	check.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestPlaceBid_StaleExpectedCountIsConflict(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.activeAuction(t)

	_, _, err := e.svc.Auctions.PlaceBid(ctx, services.PlaceBidInput{AuctionID: a.ID, BidderAddress: buyerA, Amount: dec("100"), ExpectedBidCount: ptr(0)})
	assert.NoError(t, err)
	_, _, err = e.svc.Auctions.PlaceBid(ctx, services.PlaceBidInput{AuctionID: a.ID, BidderAddress: buyerB, Amount: dec("500"), ExpectedBidCount: ptr(0)})
	check.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestPlaceBid_ConcurrentEqualBidsAcceptOnlyOne(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.activeAuction(t)

	bidders := []string{buyerA, buyerB, "0x4444444444444444444444444444444444444444", "0x5555555555555555555555555555555555555555"}
	errs := make([]error, len(bidders))
	var wg sync.WaitGroup
	for i, b := range bidders {
		wg.Add(1)
		go func(i int, b string) {
			defer wg.Done()
			_, _, errs[i] = e.svc.Auctions.PlaceBid(ctx, services.PlaceBidInput{AuctionID: a.ID, BidderAddress: b, Amount: dec("200")})
		}(i, b)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		k := domain.KindOf(err)
		check.True(t, k == domain.KindConflict || k == domain.KindValidation)
	}
	check.Equal(t, 1, accepted)

	got, err := e.svc.Auctions.Get(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, 1, got.BidCount)
	check.True(t, got.CurrentBid.Equal(dec("200")))
}

// barrierClock holds every caller of Now until n of them have arrived, so
// concurrent bids all validate against the same auction state.
type barrierClock struct {
	domain.Clock
	wg sync.WaitGroup
}

func newBarrierClock(c domain.Clock, n int) *barrierClock {
	b := &barrierClock{Clock: c}
	b.wg.Add(n)
	return b
}

func (b *barrierClock) Now() time.Time {
	b.wg.Done()
	b.wg.Wait()
	return b.Clock.Now()
}

func TestPlaceBid_RaceOfDifferentAmountsAcceptsFirstCommit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.activeAuction(t)
	_, _, err := e.svc.Auctions.PlaceBid(ctx, services.PlaceBidInput{AuctionID: a.ID, BidderAddress: buyerA, Amount: dec("1000")})
	assert.NoError(t, err)

	racing := services.New(services.Options{
		DB:      e.db,
		Ledger:  ledger.NewCoordinator(e.sim, signer, time.Second),
		Clock:   newBarrierClock(e.clock, 2),
		FeeRate: dec(feeRate),
	})

	// both clear 1000 * 1.05 on their own
	amounts := []decimal.Decimal{dec("1100"), dec("1200")}
	bidders := []string{buyerB, "0x4444444444444444444444444444444444444444"}
	errs := make([]error, len(amounts))
	var wg sync.WaitGroup
	for i := range amounts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = racing.Auctions.PlaceBid(ctx, services.PlaceBidInput{AuctionID: a.ID, BidderAddress: bidders[i], Amount: amounts[i]})
		}(i)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			check.Equal(t, -1, winner)
			winner = i
			continue
		}
		check.Equal(t, domain.KindConflict, domain.KindOf(err))
	}
	assert.True(t, winner >= 0)

	got, err := e.svc.Auctions.Get(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, 2, got.BidCount)
	check.True(t, got.CurrentBid.Equal(amounts[winner]))
	check.Equal(t, bidders[winner], *got.CurrentBidder)
}

func TestSweep_ActivatesAndEndsIdempotently(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	lot := e.eligibleLot(t)
	start := epoch.Add(time.Hour)
	a, err := e.svc.Auctions.Create(ctx, services.CreateAuctionInput{
		LotID: lot.ID, OwnerAddress: farmer, ReservePrice: dec("100"), Quantity: dec("500"), DurationHours: 24, StartTime: &start,
	})
	assert.NoError(t, err)
	check.Equal(t, domain.AuctionCreated, a.Status)

	res, err := e.svc.Auctions.Sweep(ctx)
	assert.NoError(t, err)
	check.Equal(t, 0, len(res.Activated))

	e.clock.Advance(time.Hour)
	res, err = e.svc.Auctions.Sweep(ctx)
	assert.NoError(t, err)
	check.Equal(t, []string{a.ID}, res.Activated)

	_, _, err = e.svc.Auctions.PlaceBid(ctx, services.PlaceBidInput{AuctionID: a.ID, BidderAddress: buyerA, Amount: dec("150")})
	assert.NoError(t, err)

	e.clock.Advance(24 * time.Hour)
	res, err = e.svc.Auctions.Sweep(ctx)
	assert.NoError(t, err)
	check.Equal(t, []string{a.ID}, res.Ended)

	res, err = e.svc.Auctions.Sweep(ctx)
	assert.NoError(t, err)
	check.Equal(t, 0, len(res.Activated)+len(res.Ended))

	got, err := e.svc.Auctions.Get(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, domain.AuctionEnded, got.Status)
}

func TestEnd_WithoutBidsReleasesLot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.activeAuction(t)

	got, err := e.svc.Auctions.End(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, domain.AuctionEnded, got.Status)

	lot, err := e.svc.Lots.Get(ctx, a.LotID)
	assert.NoError(t, err)
	check.Equal(t, domain.LotAvailable, lot.Status)

	_, err = e.svc.Auctions.End(ctx, a.ID)
	check.Equal(t, domain.KindConflict, domain.KindOf(err))

	// the lot can go to auction again
	res, err := e.svc.Auctions.CheckEligibility(ctx, a.LotID)
	assert.NoError(t, err)
	check.True(t, res.Eligible)
}

func TestCancellation_SingleOutstandingAndIdempotentApproval(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.activeAuction(t)

	_, err := e.svc.Auctions.RequestCancellation(ctx, a.ID, buyerA, "changed my mind")
	check.Equal(t, domain.KindValidation, domain.KindOf(err))

	req, err := e.svc.Auctions.RequestCancellation(ctx, a.ID, farmer, "crop damage")
	assert.NoError(t, err)
	check.Equal(t, domain.CancellationPending, req.Status)

	_, err = e.svc.Auctions.RequestCancellation(ctx, a.ID, farmer, "again")
	check.Equal(t, domain.KindConflict, domain.KindOf(err))

	first, err := e.svc.Auctions.ApproveCancellation(ctx, req.ID, "ok")
	assert.NoError(t, err)
	check.Equal(t, domain.CancellationApproved, first.Status)
	second, err := e.svc.Auctions.ApproveCancellation(ctx, req.ID, "ok")
	assert.NoError(t, err)
	check.Equal(t, domain.CancellationApproved, second.Status)

	got, err := e.svc.Auctions.Get(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, domain.AuctionCancelled, got.Status)
	lot, err := e.svc.Lots.Get(ctx, a.LotID)
	assert.NoError(t, err)
	check.Equal(t, domain.LotAvailable, lot.Status)

	cancelled := 0
	for _, typ := range e.events.Types() {
		if typ == events.AuctionCancelled {
			cancelled++
		}
	}
	check.Equal(t, 1, cancelled)

	_, err = e.svc.Auctions.RejectCancellation(ctx, req.ID, "")
	check.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestCancellation_RejectedRequestFreesSlot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.activeAuction(t)

	req, err := e.svc.Auctions.RequestCancellation(ctx, a.ID, farmer, "first")
	assert.NoError(t, err)
	rej, err := e.svc.Auctions.RejectCancellation(ctx, req.ID, "no")
	assert.NoError(t, err)
	check.Equal(t, domain.CancellationRejected, rej.Status)

	_, err = e.svc.Auctions.RequestCancellation(ctx, a.ID, farmer, "second")
	check.NoError(t, err)
}

func TestCancel_OperatorPathAndEndedAuction(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.activeAuction(t)

	req, err := e.svc.Auctions.Cancel(ctx, a.ID, "")
	assert.NoError(t, err)
	check.Equal(t, "operator", req.RequesterAddress)
	check.Equal(t, domain.CancellationApproved, req.Status)

	b := e.activeAuction(t)
	_, err = e.svc.Auctions.End(ctx, b.ID)
	assert.NoError(t, err)
	_, err = e.svc.Auctions.Cancel(ctx, b.ID, "too late")
	check.Equal(t, domain.KindConflict, domain.KindOf(err))
}

// endedWithWinner runs an auction to its end with buyerA's bid of amount on top.
func (e *env) endedWithWinner(t *testing.T, amount string) domain.Auction {
	t.Helper()
	ctx := context.Background()
	a := e.activeAuction(t)
	_, _, err := e.svc.Auctions.PlaceBid(ctx, services.PlaceBidInput{AuctionID: a.ID, BidderAddress: buyerA, Amount: dec(amount)})
	assert.NoError(t, err)
	ended, err := e.svc.Auctions.End(ctx, a.ID)
	assert.NoError(t, err)
	return ended
}

func TestLockEscrow_OnceForWinner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.endedWithWinner(t, "1000")

	_, err := e.svc.Auctions.LockEscrow(ctx, a.ID, buyerB)
	check.Equal(t, domain.KindValidation, domain.KindOf(err))

	dep, err := e.svc.Auctions.LockEscrow(ctx, a.ID, buyerA)
	assert.NoError(t, err)
	check.True(t, dep.Amount.Equal(dec("1000")))
	check.Equal(t, domain.EscrowLocked, dep.Status)

	_, err = e.svc.Auctions.LockEscrow(ctx, a.ID, buyerA)
	check.Equal(t, domain.KindConflict, domain.KindOf(err))

	stored, err := e.svc.Auctions.Escrow(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, dep.ID, stored.ID)
}

func TestSettle_SplitsProceedsAndClosesEverything(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.endedWithWinner(t, "1000")
	_, err := e.svc.Auctions.LockEscrow(ctx, a.ID, buyerA)
	assert.NoError(t, err)

	_, err = e.svc.Auctions.Settle(ctx, services.SettleInput{AuctionID: a.ID, ComplianceApproved: true})
	check.Equal(t, domain.KindIneligible, domain.KindOf(err))
	check.Equal(t, []string{"shipment not confirmed", "delivery not confirmed"}, domain.ReasonsOf(err))

	st, err := e.svc.Auctions.Settle(ctx, services.SettleInput{
		AuctionID: a.ID, ComplianceApproved: true, ShipmentConfirmed: true, DeliveryConfirmed: true,
	})
	assert.NoError(t, err)
	check.True(t, st.PlatformFee.Equal(dec("20")))
	check.True(t, st.FarmerPayout.Equal(dec("980")))
	check.True(t, st.FeeRate.Equal(decimal.RequireFromString(feeRate)))

	got, err := e.svc.Auctions.Get(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, domain.AuctionSettled, got.Status)
	lot, err := e.svc.Lots.Get(ctx, a.LotID)
	assert.NoError(t, err)
	check.Equal(t, domain.LotSold, lot.Status)
	dep, err := e.svc.Auctions.Escrow(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, domain.EscrowReleased, dep.Status)
	check.Equal(t, farmer, *dep.ReleaseTarget)
	bids, err := e.svc.Auctions.Bids(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, domain.BidWon, bids[0].Status)

	stored, err := e.svc.Auctions.Settlement(ctx, a.ID)
	assert.NoError(t, err)
	check.True(t, stored.FarmerPayout.Equal(dec("980")))

	_, err = e.svc.Auctions.Settle(ctx, services.SettleInput{
		AuctionID: a.ID, ComplianceApproved: true, ShipmentConfirmed: true, DeliveryConfirmed: true,
	})
	check.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func approvalRequired(t *testing.T, e *env) {
	t.Helper()
	st := repos.DefaultGovernance()
	_, err := e.svc.Governance.UpdateSettings(context.Background(), services.SettingsInput{
		AllowedDurationsHours:   st.AllowedDurationsHours,
		MinReservePrice:         st.MinReservePrice,
		MaxReservePrice:         st.MaxReservePrice,
		DefaultBidIncrement:     st.DefaultBidIncrement,
		DefaultRequiresApproval: true,
	})
	assert.NoError(t, err)
}

func TestApproveAuction_WritesComplianceFlagThenActivates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	approvalRequired(t, e)
	lot := e.eligibleLot(t)

	a, err := e.svc.Auctions.Create(ctx, services.CreateAuctionInput{
		LotID: lot.ID, OwnerAddress: farmer, ReservePrice: dec("100"), Quantity: dec("500"), DurationHours: 48,
	})
	assert.NoError(t, err)
	check.Equal(t, domain.AuctionPendingApproval, a.Status)
	check.False(t, a.Approved)

	_, _, err = e.svc.Auctions.PlaceBid(ctx, services.PlaceBidInput{AuctionID: a.ID, BidderAddress: buyerA, Amount: dec("100")})
	check.Equal(t, domain.KindConflict, domain.KindOf(err))

	got, verdict, err := e.svc.Auctions.ApproveAuction(ctx, a.ID)
	assert.NoError(t, err)
	check.True(t, verdict.Eligible)
	check.Equal(t, domain.AuctionActive, got.Status)
	check.True(t, got.Approved)

	subs := e.sim.Submissions()
	check.Equal(t, "set_compliance_flag", subs[len(subs)-1].Op)

	_, _, err = e.svc.Auctions.ApproveAuction(ctx, a.ID)
	check.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestApproveAuction_FailedRecheckMarksFailedCompliance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	approvalRequired(t, e)
	lot := e.eligibleLot(t)
	a, err := e.svc.Auctions.Create(ctx, services.CreateAuctionInput{
		LotID: lot.ID, OwnerAddress: farmer, ReservePrice: dec("100"), Quantity: dec("500"), DurationHours: 48,
	})
	assert.NoError(t, err)

	// a fresh EU check fails on the residue limit and becomes the latest result
	_, err = e.svc.Lots.AddStage(ctx, lot.ID, services.StageInput{Stage: "lab", Location: "Bogota", ResiduePPM: ptr(0.5)})
	assert.NoError(t, err)
	res, err := e.svc.Compliance.CheckLot(ctx, lot.ID, "EU")
	assert.NoError(t, err)
	assert.False(t, res.Passed)

	got, recheck, err := e.svc.Auctions.ApproveAuction(ctx, a.ID)
	assert.NoError(t, err)
	check.False(t, recheck.Eligible)
	check.Equal(t, domain.AuctionFailedCompliance, got.Status)

	detail, err := e.svc.Lots.Get(ctx, lot.ID)
	assert.NoError(t, err)
	check.Equal(t, domain.LotAvailable, detail.Status)
}

func TestApproveAuction_LedgerFailureKeepsPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	approvalRequired(t, e)
	lot := e.eligibleLot(t)
	a, err := e.svc.Auctions.Create(ctx, services.CreateAuctionInput{
		LotID: lot.ID, OwnerAddress: farmer, ReservePrice: dec("100"), Quantity: dec("500"), DurationHours: 48,
	})
	assert.NoError(t, err)

	e.sim.FailNext(ledger.ErrNonceTooLow)
	_, _, err = e.svc.Auctions.ApproveAuction(ctx, a.ID)
	check.Equal(t, domain.KindLedgerWrite, domain.KindOf(err))

	got, err := e.svc.Auctions.Get(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, domain.AuctionPendingApproval, got.Status)
}

func TestRejectAuction_ReleasesLot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	approvalRequired(t, e)
	lot := e.eligibleLot(t)
	a, err := e.svc.Auctions.Create(ctx, services.CreateAuctionInput{
		LotID: lot.ID, OwnerAddress: farmer, ReservePrice: dec("100"), Quantity: dec("500"), DurationHours: 48,
	})
	assert.NoError(t, err)

	got, err := e.svc.Auctions.RejectAuction(ctx, a.ID, "reserve too low for grade")
	assert.NoError(t, err)
	check.Equal(t, domain.AuctionCancelled, got.Status)
	detail, err := e.svc.Lots.Get(ctx, lot.ID)
	assert.NoError(t, err)
	check.Equal(t, domain.LotAvailable, detail.Status)
}

func TestCreate_PastStartIsValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	lot := e.eligibleLot(t)
	in := services.CreateAuctionInput{
		LotID: lot.ID, OwnerAddress: farmer, ReservePrice: dec("100"), Quantity: dec("500"), DurationHours: 24,
		StartTime: ptr(epoch.Add(-48 * time.Hour)),
	}
	before := len(e.sim.Submissions())

	_, err := e.svc.Auctions.Create(ctx, in)
	check.Equal(t, domain.KindValidation, domain.KindOf(err))
	check.Equal(t, before, len(e.sim.Submissions()))

	in.StartTime = ptr(epoch)
	a, err := e.svc.Auctions.Create(ctx, in)
	assert.NoError(t, err)
	check.Equal(t, domain.AuctionActive, a.Status)
}
