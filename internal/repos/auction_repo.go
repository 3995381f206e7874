package repos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"lotauction/internal/domain"
)

type AuctionRepo struct{ db sqlx.ExtContext }

func NewAuctionRepo(db sqlx.ExtContext) *AuctionRepo { return &AuctionRepo{db: db} }

const auctionCols = `id, lot_id, owner_address, reserve_price, quantity, current_bid, current_bidder, bid_count,
  start_time, end_time, duration_hours, status, template_id, min_bid_increment, requires_approval, approved,
  ledger_tx_ref, ledger_sequence, created_at, updated_at`

func (r *AuctionRepo) Create(ctx context.Context, a domain.Auction) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
	  INSERT INTO auctions(`+auctionCols+`)
	  VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), a.ID, a.LotID, a.OwnerAddress, a.ReservePrice, a.Quantity, a.CurrentBid, a.CurrentBidder, a.BidCount,
		a.StartTime, a.EndTime, a.DurationHours, a.Status, a.TemplateID, a.MinBidIncrement, a.RequiresApproval, a.Approved,
		a.LedgerTxRef, a.LedgerSequence, a.CreatedAt, a.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *AuctionRepo) Get(ctx context.Context, id string) (domain.Auction, error) {
	var a domain.Auction
	err := sqlx.GetContext(ctx, r.db, &a, r.db.Rebind(`SELECT `+auctionCols+` FROM auctions WHERE id = ?`), id)
	return a, notFound(err, "auction", id)
}

type AuctionFilter struct {
	Status domain.AuctionStatus
	LotID  string
	Limit  int
}

// List returns auctions newest first.
func (r *AuctionRepo) List(ctx context.Context, f AuctionFilter) ([]domain.Auction, error) {
	q := `SELECT ` + auctionCols + ` FROM auctions WHERE 1 = 1`
	var args []any
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.LotID != "" {
		q += ` AND lot_id = ?`
		args = append(args, f.LotID)
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	q += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, f.Limit)

	out := []domain.Auction{}
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(q), args...)
	return out, err
}

// HasUnresolvedForLot reports whether any auction still holds the lot. An
// auction that ended without bids has released it.
func (r *AuctionRepo) HasUnresolvedForLot(ctx context.Context, lotID string) (bool, error) {
	in, args := inClause(domain.UnresolvedAuctionStatuses)
	args = append([]any{lotID}, args...)
	args = append(args, domain.AuctionEnded)
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, r.db.Rebind(`
		SELECT COUNT(*) FROM auctions
		WHERE lot_id = ? AND status IN (`+in+`)
		  AND NOT (status = ? AND bid_count = 0)
	`), args...)
	return n > 0, err
}

// TransitionStatus moves the auction to "to" only from one of "from"; false means
// the auction was not in an allowed state (or does not exist).
func (r *AuctionRepo) TransitionStatus(ctx context.Context, id string, from []domain.AuctionStatus, to domain.AuctionStatus, now time.Time) (bool, error) {
	in, args := inClause(from)
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE auctions SET status = ?, updated_at = ?
		WHERE id = ? AND status IN (`+in+`)
	`), append([]any{to, now, id}, args...)...)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// Approve records the governance decision and the next status in one step.
func (r *AuctionRepo) Approve(ctx context.Context, id string, to domain.AuctionStatus, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE auctions SET status = ?, approved = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`), to, true, now, id, domain.AuctionPendingApproval)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// DueForActivation lists approved auctions still in created whose start time has passed.
func (r *AuctionRepo) DueForActivation(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := sqlx.SelectContext(ctx, r.db, &ids, r.db.Rebind(`
		SELECT id FROM auctions
		WHERE status = ? AND approved = ? AND start_time <= ?
		ORDER BY start_time, id
	`), domain.AuctionCreated, true, now)
	return ids, err
}

// DueForEnding lists active auctions whose end time has passed.
func (r *AuctionRepo) DueForEnding(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := sqlx.SelectContext(ctx, r.db, &ids, r.db.Rebind(`
		SELECT id FROM auctions
		WHERE status = ? AND end_time <= ?
		ORDER BY end_time, id
	`), domain.AuctionActive, now)
	return ids, err
}

// ApplyBid is a compare-and-swap on bid_count: the new top bid is recorded only if
// no other bid was accepted since the caller read the auction and bidding is still open.
func (r *AuctionRepo) ApplyBid(ctx context.Context, id string, seenBidCount int, amount decimal.Decimal, bidder string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE auctions
		SET current_bid = ?, current_bidder = ?, bid_count = bid_count + 1, updated_at = ?
		WHERE id = ? AND status = ? AND bid_count = ? AND end_time > ?
	`), amount, bidder, now, id, domain.AuctionActive, seenBidCount, now)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ---------- Bids ----------

const bidCols = `id, auction_id, bidder_address, amount, status, placed_at`

func (r *AuctionRepo) InsertBid(ctx context.Context, b domain.Bid) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
	  INSERT INTO bids(`+bidCols+`) VALUES(?, ?, ?, ?, ?, ?)
	`), b.ID, b.AuctionID, b.BidderAddress, b.Amount, b.Status, b.PlacedAt)
	return err
}

// MarkOutbid flips the previously accepted bid(s) of the auction to outbid.
func (r *AuctionRepo) MarkOutbid(ctx context.Context, auctionID string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE bids SET status = ? WHERE auction_id = ? AND status = ?
	`), domain.BidOutbid, auctionID, domain.BidAccepted)
	return err
}

// MarkWinningBid flips the auction's standing accepted bid to won.
func (r *AuctionRepo) MarkWinningBid(ctx context.Context, auctionID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE bids SET status = ? WHERE auction_id = ? AND status = ?
	`), domain.BidWon, auctionID, domain.BidAccepted)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// Bids lists the auction's bids in acceptance order.
func (r *AuctionRepo) Bids(ctx context.Context, auctionID string) ([]domain.Bid, error) {
	out := []domain.Bid{}
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(`
		SELECT `+bidCols+` FROM bids WHERE auction_id = ? ORDER BY seq
	`), auctionID)
	return out, err
}
