package repos

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"lotauction/internal/domain"
)

type CancellationRepo struct{ db sqlx.ExtContext }

func NewCancellationRepo(db sqlx.ExtContext) *CancellationRepo { return &CancellationRepo{db: db} }

const cancellationCols = `id, auction_id, requester_address, reason, status, resolution_note, created_at, resolved_at`

// Create returns ErrDuplicate when the auction already has a pending request.
func (r *CancellationRepo) Create(ctx context.Context, c domain.CancellationRequest) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
	  INSERT INTO cancellation_requests(`+cancellationCols+`)
	  VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`), c.ID, c.AuctionID, c.RequesterAddress, c.Reason, c.Status, c.ResolutionNote, c.CreatedAt, c.ResolvedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *CancellationRepo) Get(ctx context.Context, id string) (domain.CancellationRequest, error) {
	var c domain.CancellationRequest
	err := sqlx.GetContext(ctx, r.db, &c, r.db.Rebind(`SELECT `+cancellationCols+` FROM cancellation_requests WHERE id = ?`), id)
	return c, notFound(err, "cancellation request", id)
}

// Pending returns the auction's outstanding request, if any.
func (r *CancellationRepo) Pending(ctx context.Context, auctionID string) (domain.CancellationRequest, bool, error) {
	var c domain.CancellationRequest
	err := sqlx.GetContext(ctx, r.db, &c, r.db.Rebind(`
		SELECT `+cancellationCols+` FROM cancellation_requests WHERE auction_id = ? AND status = ?
	`), auctionID, domain.CancellationPending)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CancellationRequest{}, false, nil
	}
	return c, err == nil, err
}

// Resolve moves a pending request to approved or rejected; false means it was not pending.
func (r *CancellationRepo) Resolve(ctx context.Context, id string, to domain.CancellationStatus, note *string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE cancellation_requests SET status = ?, resolution_note = ?, resolved_at = ?
		WHERE id = ? AND status = ?
	`), to, note, now, id, domain.CancellationPending)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *CancellationRepo) ListByAuction(ctx context.Context, auctionID string) ([]domain.CancellationRequest, error) {
	out := []domain.CancellationRequest{}
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(`
		SELECT `+cancellationCols+` FROM cancellation_requests WHERE auction_id = ? ORDER BY created_at, id
	`), auctionID)
	return out, err
}
