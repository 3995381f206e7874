package repos

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"lotauction/internal/domain"
)

// EscrowRepo and SettlementRepo share a file: escrow rows only ever end in a settlement or a refund.

type EscrowRepo struct{ db sqlx.ExtContext }

func NewEscrowRepo(db sqlx.ExtContext) *EscrowRepo { return &EscrowRepo{db: db} }

const escrowCols = `id, auction_id, depositor_address, amount, status, release_target, locked_at, resolved_at`

// Create returns ErrDuplicate when the auction already has a deposit.
func (r *EscrowRepo) Create(ctx context.Context, e domain.EscrowDeposit) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
	  INSERT INTO escrow_deposits(`+escrowCols+`) VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`), e.ID, e.AuctionID, e.DepositorAddress, e.Amount, e.Status, e.ReleaseTarget, e.LockedAt, e.ResolvedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// ForAuction returns the auction's deposit; ok is false when none was locked.
func (r *EscrowRepo) ForAuction(ctx context.Context, auctionID string) (domain.EscrowDeposit, bool, error) {
	var e domain.EscrowDeposit
	err := sqlx.GetContext(ctx, r.db, &e, r.db.Rebind(`SELECT `+escrowCols+` FROM escrow_deposits WHERE auction_id = ?`), auctionID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EscrowDeposit{}, false, nil
	}
	return e, err == nil, err
}

// Resolve moves a locked deposit to released or refunded; false means it was not locked.
func (r *EscrowRepo) Resolve(ctx context.Context, auctionID string, to domain.EscrowStatus, target *string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE escrow_deposits SET status = ?, release_target = ?, resolved_at = ?
		WHERE auction_id = ? AND status = ?
	`), to, target, now, auctionID, domain.EscrowLocked)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

type SettlementRepo struct{ db sqlx.ExtContext }

func NewSettlementRepo(db sqlx.ExtContext) *SettlementRepo { return &SettlementRepo{db: db} }

const settlementCols = `id, auction_id, final_amount, fee_rate, platform_fee, farmer_payout,
  compliance_approved, shipment_confirmed, delivery_confirmed, status, settled_at`

func (r *SettlementRepo) Create(ctx context.Context, s domain.Settlement) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
	  INSERT INTO settlements(`+settlementCols+`) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), s.ID, s.AuctionID, s.FinalAmount, s.FeeRate, s.PlatformFee, s.FarmerPayout,
		s.ComplianceApproved, s.ShipmentConfirmed, s.DeliveryConfirmed, s.Status, s.SettledAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *SettlementRepo) ForAuction(ctx context.Context, auctionID string) (domain.Settlement, error) {
	var s domain.Settlement
	err := sqlx.GetContext(ctx, r.db, &s, r.db.Rebind(`SELECT `+settlementCols+` FROM settlements WHERE auction_id = ?`), auctionID)
	return s, notFound(err, "settlement for auction", auctionID)
}
