package repos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"lotauction/internal/domain"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrDuplicate is returned when an insert hits a unique constraint.
var ErrDuplicate = errors.New("duplicate row")

// OpenDB connects, applies the schema and seeds the governance singleton if absent.
func OpenDB(driver, dsn string, seed domain.GovernanceSettings) (*sqlx.DB, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// single writer; also keeps a :memory: database on one connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}

	if err := ensureSchema(db); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := seedGovernance(db, seed); err != nil {
		return nil, fmt.Errorf("seed governance: %w", err)
	}
	return db, nil
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "lotauction.db"
	}
	params := []string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)", "_time_format=sqlite"}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// DefaultGovernance is the seed used when no settings row exists yet.
func DefaultGovernance() domain.GovernanceSettings {
	return domain.GovernanceSettings{
		AllowedDurationsHours:   []int{24, 48, 72, 168},
		MinReservePrice:         decimal.NewFromInt(100),
		MaxReservePrice:         decimal.NewFromInt(1_000_000),
		DefaultBidIncrement:     decimal.RequireFromString("0.05"),
		DefaultRequiresApproval: false,
	}
}

func ensureSchema(db *sqlx.DB) error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	// sqlite coerces NUMERIC to REAL; amounts stay decimal strings there
	money := "TEXT"
	if db.DriverName() == DriverPostgres {
		serial = "BIGSERIAL PRIMARY KEY"
		money = "NUMERIC"
	}
	schema := strings.ReplaceAll(`
-- Lots
CREATE TABLE IF NOT EXISTS lots(
  id TEXT PRIMARY KEY,
  owner_address TEXT NOT NULL,
  variety TEXT NOT NULL,
  quantity {{money}} NOT NULL CHECK (quantity > 0),
  quality_grade TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('created','available','approved','rejected','auctioned','sold')),
  compliance_status TEXT NOT NULL DEFAULT 'unchecked',
  passport_ref TEXT,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lots_owner ON lots(owner_address);

CREATE TABLE IF NOT EXISTS certificates(
  id TEXT PRIMARY KEY,
  lot_id TEXT NOT NULL REFERENCES lots(id),
  cert_type TEXT NOT NULL,
  issuer TEXT NOT NULL,
  valid_from TIMESTAMP NOT NULL,
  valid_until TIMESTAMP NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('pending','verified')),
  verified_at TIMESTAMP,
  created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_certificates_lot ON certificates(lot_id);

CREATE TABLE IF NOT EXISTS traceability_stages(
  id TEXT PRIMARY KEY,
  lot_id TEXT NOT NULL REFERENCES lots(id),
  stage TEXT NOT NULL,
  location TEXT NOT NULL,
  moisture_percent DOUBLE PRECISION,
  packaging TEXT,
  residue_ppm DOUBLE PRECISION,
  temperature_c DOUBLE PRECISION,
  recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stages_lot ON traceability_stages(lot_id);

-- Compliance history (append-only)
CREATE TABLE IF NOT EXISTS compliance_checks(
  seq {{serial}},
  id TEXT NOT NULL UNIQUE,
  lot_id TEXT NOT NULL REFERENCES lots(id),
  destination TEXT NOT NULL,
  passed BOOLEAN NOT NULL,
  critical_failed BOOLEAN NOT NULL,
  outcomes_json TEXT NOT NULL,
  checked_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_compliance_lot ON compliance_checks(lot_id);

-- Governance
CREATE TABLE IF NOT EXISTS governance_settings(
  id INTEGER PRIMARY KEY CHECK (id = 1),
  allowed_durations TEXT NOT NULL,
  min_reserve_price {{money}} NOT NULL,
  max_reserve_price {{money}} NOT NULL,
  default_bid_increment {{money}} NOT NULL,
  default_requires_approval BOOLEAN NOT NULL,
  updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS auction_templates(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  min_duration_hours INTEGER NOT NULL,
  max_duration_hours INTEGER NOT NULL,
  max_reserve_price {{money}},
  bid_increment {{money}} NOT NULL,
  requires_approval BOOLEAN NOT NULL,
  active BOOLEAN NOT NULL,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL
);

-- Auctions
CREATE TABLE IF NOT EXISTS auctions(
  id TEXT PRIMARY KEY,
  lot_id TEXT NOT NULL REFERENCES lots(id),
  owner_address TEXT NOT NULL,
  reserve_price {{money}} NOT NULL,
  quantity {{money}} NOT NULL,
  current_bid {{money}} NOT NULL DEFAULT 0,
  current_bidder TEXT,
  bid_count INTEGER NOT NULL DEFAULT 0,
  start_time TIMESTAMP NOT NULL,
  end_time TIMESTAMP NOT NULL,
  duration_hours INTEGER NOT NULL,
  status TEXT NOT NULL,
  template_id TEXT,
  min_bid_increment {{money}} NOT NULL,
  requires_approval BOOLEAN NOT NULL,
  approved BOOLEAN NOT NULL,
  ledger_tx_ref TEXT NOT NULL,
  ledger_sequence BIGINT NOT NULL,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_auctions_status ON auctions(status);
CREATE INDEX IF NOT EXISTS idx_auctions_lot ON auctions(lot_id);

CREATE TABLE IF NOT EXISTS bids(
  seq {{serial}},
  id TEXT NOT NULL UNIQUE,
  auction_id TEXT NOT NULL REFERENCES auctions(id),
  bidder_address TEXT NOT NULL,
  amount {{money}} NOT NULL CHECK (amount > 0),
  status TEXT NOT NULL,
  placed_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bids_auction ON bids(auction_id);

CREATE TABLE IF NOT EXISTS cancellation_requests(
  id TEXT PRIMARY KEY,
  auction_id TEXT NOT NULL REFERENCES auctions(id),
  requester_address TEXT NOT NULL,
  reason TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('pending','approved','rejected')),
  resolution_note TEXT,
  created_at TIMESTAMP NOT NULL,
  resolved_at TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_cancellation_one_pending
  ON cancellation_requests(auction_id) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS escrow_deposits(
  id TEXT PRIMARY KEY,
  auction_id TEXT NOT NULL UNIQUE REFERENCES auctions(id),
  depositor_address TEXT NOT NULL,
  amount {{money}} NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('locked','released','refunded')),
  release_target TEXT,
  locked_at TIMESTAMP NOT NULL,
  resolved_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settlements(
  id TEXT PRIMARY KEY,
  auction_id TEXT NOT NULL UNIQUE REFERENCES auctions(id),
  final_amount {{money}} NOT NULL,
  fee_rate {{money}} NOT NULL,
  platform_fee {{money}} NOT NULL,
  farmer_payout {{money}} NOT NULL,
  compliance_approved BOOLEAN NOT NULL,
  shipment_confirmed BOOLEAN NOT NULL,
  delivery_confirmed BOOLEAN NOT NULL,
  status TEXT NOT NULL,
  settled_at TIMESTAMP NOT NULL
);
`, "{{serial}}", serial)
	schema = strings.ReplaceAll(schema, "{{money}}", money)
	_, err := db.Exec(schema)
	return err
}

// seedGovernance inserts the settings singleton unless one exists (idempotent).
func seedGovernance(db *sqlx.DB, seed domain.GovernanceSettings) error {
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM governance_settings`); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if len(seed.AllowedDurationsHours) == 0 {
		seed = DefaultGovernance()
	}
	seed.UpdatedAt = domain.SystemClock{}.Now()
	return NewGovernanceRepo(db).SaveSettings(context.Background(), seed)
}

// WithTx runs fn inside a transaction, committing only when fn returns nil.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch code := liteErr.Code(); code {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		default:
			// primary result code only when extended codes are off
			return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE")
		}
	}
	return false
}

// inClause expands a status set into "?, ?, ?" plus its args.
func inClause[T ~string](vals []T) (string, []any) {
	marks := make([]string, len(vals))
	args := make([]any, len(vals))
	for i, v := range vals {
		marks[i] = "?"
		args[i] = string(v)
	}
	return strings.Join(marks, ", "), args
}
