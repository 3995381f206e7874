package repos

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"lotauction/internal/domain"
)

type LotRepo struct{ db sqlx.ExtContext }

// NewLotRepo accepts a *sqlx.DB or a *sqlx.Tx.
func NewLotRepo(db sqlx.ExtContext) *LotRepo { return &LotRepo{db: db} }

const lotCols = `id, owner_address, variety, quantity, quality_grade, status, compliance_status, passport_ref, created_at, updated_at`

func (r *LotRepo) Create(ctx context.Context, l domain.Lot) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
	  INSERT INTO lots(`+lotCols+`)
	  VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), l.ID, l.OwnerAddress, l.Variety, l.Quantity, l.QualityGrade, l.Status, l.ComplianceStatus, l.PassportRef, l.CreatedAt, l.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// Get returns a domain NotFound error when the lot does not exist.
func (r *LotRepo) Get(ctx context.Context, id string) (domain.Lot, error) {
	var l domain.Lot
	err := sqlx.GetContext(ctx, r.db, &l, r.db.Rebind(`SELECT `+lotCols+` FROM lots WHERE id = ?`), id)
	return l, notFound(err, "lot", id)
}

func (r *LotRepo) SetStatus(ctx context.Context, id string, status domain.LotStatus, now time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE lots SET status = ?, updated_at = ? WHERE id = ?
	`), status, now, id)
	return err
}

// TransitionStatus moves the lot to "to" only when it is currently in one of "from".
// The boolean reports whether the row changed.
func (r *LotRepo) TransitionStatus(ctx context.Context, id string, from []domain.LotStatus, to domain.LotStatus, now time.Time) (bool, error) {
	in, args := inClause(from)
	args = append([]any{to, now, id}, args...)
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE lots SET status = ?, updated_at = ?
		WHERE id = ? AND status IN (`+in+`)
	`), args...)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *LotRepo) SetComplianceStatus(ctx context.Context, id string, status domain.ComplianceStatus, now time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE lots SET compliance_status = ?, updated_at = ? WHERE id = ?
	`), status, now, id)
	return err
}

// SetPassport stores the ledger record reference once; false means it was already set.
func (r *LotRepo) SetPassport(ctx context.Context, id, ref string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE lots SET passport_ref = ?, updated_at = ?
		WHERE id = ? AND passport_ref IS NULL
	`), ref, now, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ---------- Certificates ----------

const certCols = `id, lot_id, cert_type, issuer, valid_from, valid_until, status, verified_at, created_at`

func (r *LotRepo) AddCertificate(ctx context.Context, c domain.CertificationRecord) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
	  INSERT INTO certificates(`+certCols+`)
	  VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), c.ID, c.LotID, c.Type, c.Issuer, c.ValidFrom, c.ValidUntil, c.Status, c.VerifiedAt, c.CreatedAt)
	return err
}

func (r *LotRepo) Certificate(ctx context.Context, id string) (domain.CertificationRecord, error) {
	var c domain.CertificationRecord
	err := sqlx.GetContext(ctx, r.db, &c, r.db.Rebind(`SELECT `+certCols+` FROM certificates WHERE id = ?`), id)
	return c, notFound(err, "certificate", id)
}

func (r *LotRepo) Certificates(ctx context.Context, lotID string) ([]domain.CertificationRecord, error) {
	out := []domain.CertificationRecord{}
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(`
		SELECT `+certCols+` FROM certificates WHERE lot_id = ? ORDER BY created_at, id
	`), lotID)
	return out, err
}

// VerifyCertificate flips a pending certificate to verified; false means it was not pending.
func (r *LotRepo) VerifyCertificate(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE certificates SET status = ?, verified_at = ?
		WHERE id = ? AND status = ?
	`), domain.CertificateVerified, now, id, domain.CertificatePending)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// CountValidCertificates counts verified certificates whose validity window contains now.
func (r *LotRepo) CountValidCertificates(ctx context.Context, lotID string, now time.Time) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, r.db.Rebind(`
		SELECT COUNT(*) FROM certificates
		WHERE lot_id = ? AND status = ? AND valid_from <= ? AND valid_until > ?
	`), lotID, domain.CertificateVerified, now, now)
	return n, err
}

// ---------- Traceability ----------

const stageCols = `id, lot_id, stage, location, moisture_percent, packaging, residue_ppm, temperature_c, recorded_at`

func (r *LotRepo) AddStage(ctx context.Context, s domain.TraceabilityStage) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
	  INSERT INTO traceability_stages(`+stageCols+`)
	  VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), s.ID, s.LotID, s.Stage, s.Location, s.MoisturePercent, s.Packaging, s.ResiduePPM, s.TemperatureC, s.RecordedAt)
	return err
}

func (r *LotRepo) Stages(ctx context.Context, lotID string) ([]domain.TraceabilityStage, error) {
	out := []domain.TraceabilityStage{}
	err := sqlx.SelectContext(ctx, r.db, &out, r.db.Rebind(`
		SELECT `+stageCols+` FROM traceability_stages WHERE lot_id = ? ORDER BY recorded_at, id
	`), lotID)
	return out, err
}

func (r *LotRepo) CountStages(ctx context.Context, lotID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, r.db.Rebind(`SELECT COUNT(*) FROM traceability_stages WHERE lot_id = ?`), lotID)
	return n, err
}

// notFound maps sql.ErrNoRows onto the domain NotFound error.
func notFound(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound(entity, id)
	}
	return err
}
