package repos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"lotauction/internal/domain"
)

type GovernanceRepo struct{ db sqlx.ExtContext }

func NewGovernanceRepo(db sqlx.ExtContext) *GovernanceRepo { return &GovernanceRepo{db: db} }

type settingsRow struct {
	AllowedDurations        string          `db:"allowed_durations"`
	MinReservePrice         decimal.Decimal `db:"min_reserve_price"`
	MaxReservePrice         decimal.Decimal `db:"max_reserve_price"`
	DefaultBidIncrement     decimal.Decimal `db:"default_bid_increment"`
	DefaultRequiresApproval bool            `db:"default_requires_approval"`
	UpdatedAt               time.Time       `db:"updated_at"`
}

func (r *GovernanceRepo) Settings(ctx context.Context) (domain.GovernanceSettings, error) {
	var row settingsRow
	if err := sqlx.GetContext(ctx, r.db, &row, `
		SELECT allowed_durations, min_reserve_price, max_reserve_price,
		       default_bid_increment, default_requires_approval, updated_at
		FROM governance_settings WHERE id = 1
	`); err != nil {
		return domain.GovernanceSettings{}, notFound(err, "governance settings", "1")
	}
	s := domain.GovernanceSettings{
		MinReservePrice:         row.MinReservePrice,
		MaxReservePrice:         row.MaxReservePrice,
		DefaultBidIncrement:     row.DefaultBidIncrement,
		DefaultRequiresApproval: row.DefaultRequiresApproval,
		UpdatedAt:               row.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(row.AllowedDurations), &s.AllowedDurationsHours); err != nil {
		return domain.GovernanceSettings{}, err
	}
	return s, nil
}

// SaveSettings upserts the singleton row.
func (r *GovernanceRepo) SaveSettings(ctx context.Context, s domain.GovernanceSettings) error {
	durations, err := json.Marshal(s.AllowedDurationsHours)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
	  INSERT INTO governance_settings(id, allowed_durations, min_reserve_price, max_reserve_price,
	    default_bid_increment, default_requires_approval, updated_at)
	  VALUES(1, ?, ?, ?, ?, ?, ?)
	  ON CONFLICT(id) DO UPDATE SET
	    allowed_durations = excluded.allowed_durations,
	    min_reserve_price = excluded.min_reserve_price,
	    max_reserve_price = excluded.max_reserve_price,
	    default_bid_increment = excluded.default_bid_increment,
	    default_requires_approval = excluded.default_requires_approval,
	    updated_at = excluded.updated_at
	`), string(durations), s.MinReservePrice, s.MaxReservePrice, s.DefaultBidIncrement, s.DefaultRequiresApproval, s.UpdatedAt)
	return err
}

// ---------- Templates ----------

const templateCols = `id, name, min_duration_hours, max_duration_hours, max_reserve_price, bid_increment, requires_approval, active, created_at, updated_at`

func (r *GovernanceRepo) Template(ctx context.Context, id string) (domain.AuctionTemplate, error) {
	var t domain.AuctionTemplate
	err := sqlx.GetContext(ctx, r.db, &t, r.db.Rebind(`SELECT `+templateCols+` FROM auction_templates WHERE id = ?`), id)
	return t, notFound(err, "template", id)
}

func (r *GovernanceRepo) Templates(ctx context.Context) ([]domain.AuctionTemplate, error) {
	out := []domain.AuctionTemplate{}
	err := sqlx.SelectContext(ctx, r.db, &out, `SELECT `+templateCols+` FROM auction_templates ORDER BY name`)
	return out, err
}

func (r *GovernanceRepo) CreateTemplate(ctx context.Context, t domain.AuctionTemplate) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
	  INSERT INTO auction_templates(`+templateCols+`)
	  VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), t.ID, t.Name, t.MinDurationHours, t.MaxDurationHours, t.MaxReservePrice, t.BidIncrement, t.RequiresApproval, t.Active, t.CreatedAt, t.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// UpdateTemplate overwrites every mutable column; false means no such template.
func (r *GovernanceRepo) UpdateTemplate(ctx context.Context, t domain.AuctionTemplate) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE auction_templates SET
		  name = ?, min_duration_hours = ?, max_duration_hours = ?, max_reserve_price = ?,
		  bid_increment = ?, requires_approval = ?, active = ?, updated_at = ?
		WHERE id = ?
	`), t.Name, t.MinDurationHours, t.MaxDurationHours, t.MaxReservePrice, t.BidIncrement, t.RequiresApproval, t.Active, t.UpdatedAt, t.ID)
	if isUniqueViolation(err) {
		return false, ErrDuplicate
	}
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// DeleteTemplate removes a template; auctions keep the id they were created with.
func (r *GovernanceRepo) DeleteTemplate(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM auction_templates WHERE id = ?`), id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}
