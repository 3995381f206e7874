package repos

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"lotauction/internal/domain"
)

type ComplianceRepo struct{ db sqlx.ExtContext }

func NewComplianceRepo(db sqlx.ExtContext) *ComplianceRepo { return &ComplianceRepo{db: db} }

type complianceRow struct {
	ID             string    `db:"id"`
	LotID          string    `db:"lot_id"`
	Destination    string    `db:"destination"`
	Passed         bool      `db:"passed"`
	CriticalFailed bool      `db:"critical_failed"`
	OutcomesJSON   string    `db:"outcomes_json"`
	CheckedAt      time.Time `db:"checked_at"`
}

func (row complianceRow) result() (domain.ComplianceCheckResult, error) {
	res := domain.ComplianceCheckResult{
		ID:             row.ID,
		LotID:          row.LotID,
		Destination:    row.Destination,
		Passed:         row.Passed,
		CriticalFailed: row.CriticalFailed,
		CheckedAt:      row.CheckedAt,
	}
	if err := json.Unmarshal([]byte(row.OutcomesJSON), &res.Outcomes); err != nil {
		return domain.ComplianceCheckResult{}, err
	}
	return res, nil
}

// Append adds a result to the lot's history. History rows are never updated.
func (r *ComplianceRepo) Append(ctx context.Context, res domain.ComplianceCheckResult) error {
	b, err := json.Marshal(res.Outcomes)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
	  INSERT INTO compliance_checks(id, lot_id, destination, passed, critical_failed, outcomes_json, checked_at)
	  VALUES(?, ?, ?, ?, ?, ?, ?)
	`), res.ID, res.LotID, res.Destination, res.Passed, res.CriticalFailed, string(b), res.CheckedAt)
	return err
}

// Latest returns the most recent result for the lot; ok is false when the lot has none.
// Insertion order breaks ties between results checked in the same second.
func (r *ComplianceRepo) Latest(ctx context.Context, lotID string) (res domain.ComplianceCheckResult, ok bool, err error) {
	var row complianceRow
	err = sqlx.GetContext(ctx, r.db, &row, r.db.Rebind(`
		SELECT id, lot_id, destination, passed, critical_failed, outcomes_json, checked_at
		FROM compliance_checks WHERE lot_id = ?
		ORDER BY checked_at DESC, seq DESC LIMIT 1
	`), lotID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ComplianceCheckResult{}, false, nil
	}
	if err != nil {
		return domain.ComplianceCheckResult{}, false, err
	}
	res, err = row.result()
	return res, err == nil, err
}

// History lists results newest first.
func (r *ComplianceRepo) History(ctx context.Context, lotID string) ([]domain.ComplianceCheckResult, error) {
	var rows []complianceRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, r.db.Rebind(`
		SELECT id, lot_id, destination, passed, critical_failed, outcomes_json, checked_at
		FROM compliance_checks WHERE lot_id = ?
		ORDER BY checked_at DESC, seq DESC
	`), lotID); err != nil {
		return nil, err
	}
	out := make([]domain.ComplianceCheckResult, 0, len(rows))
	for _, row := range rows {
		res, err := row.result()
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}
