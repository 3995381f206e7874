package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"

	"lotauction/internal/domain"
	"lotauction/internal/events"
	"lotauction/internal/ledger"
	"lotauction/internal/repos"
	"lotauction/internal/services"
)

const (
	farmer  = "0x1111111111111111111111111111111111111111"
	buyerA  = "0x2222222222222222222222222222222222222222"
	buyerB  = "0x3333333333333333333333333333333333333333"
	signer  = "0x00000000000000000000000000000000000000aa"
	feeRate = "0.02"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type env struct {
	db     *sqlx.DB
	clock  *domain.ManualClock
	sim    *ledger.Simulated
	events *events.Recorder
	svc    *services.Services
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := repos.OpenDB(repos.DriverSQLite, ":memory:", repos.DefaultGovernance())
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	e := &env{
		db:     db,
		clock:  domain.NewManualClock(epoch),
		sim:    ledger.NewSimulated(),
		events: &events.Recorder{},
	}
	e.svc = services.New(services.Options{
		DB:      db,
		Ledger:  ledger.NewCoordinator(e.sim, signer, time.Second),
		Events:  e.events,
		Clock:   e.clock,
		FeeRate: decimal.RequireFromString(feeRate),
	})
	return e
}

func ptr[T any](v T) *T { return &v }

// eligibleLot registers a lot and walks it through certification, traceability,
// passport minting, review and a passing DOMESTIC compliance check.
func (e *env) eligibleLot(t *testing.T) domain.Lot {
	t.Helper()
	ctx := context.Background()
	lots := e.svc.Lots

	lot, err := lots.Register(ctx, services.RegisterLotInput{
		OwnerAddress: farmer,
		Variety:      "arabica",
		Quantity:     decimal.NewFromInt(500),
		QualityGrade: "a",
	})
	assert.NoError(t, err)

	for _, typ := range []string{"quality_inspection", "phytosanitary", "global_gap"} {
		c, err := lots.AddCertificate(ctx, lot.ID, services.CertificateInput{
			Type:       typ,
			Issuer:     "AgriCert",
			ValidFrom:  epoch.Add(-24 * time.Hour),
			ValidUntil: epoch.AddDate(1, 0, 0),
		})
		assert.NoError(t, err)
		_, err = lots.VerifyCertificate(ctx, c.ID)
		assert.NoError(t, err)
	}
	for _, stage := range []string{"harvest", "drying"} {
		_, err := lots.AddStage(ctx, lot.ID, services.StageInput{
			Stage:           stage,
			Location:        "Huila",
			MoisturePercent: ptr(11.0),
			Packaging:       ptr("jute"),
			ResiduePPM:      ptr(0.01),
		})
		assert.NoError(t, err)
	}
	_, err = lots.MintPassport(ctx, lot.ID)
	assert.NoError(t, err)
	_, err = lots.SetStatus(ctx, lot.ID, domain.LotApproved)
	assert.NoError(t, err)
	res, err := e.svc.Compliance.CheckLot(ctx, lot.ID, "domestic")
	assert.NoError(t, err)
	assert.True(t, res.Passed)

	detail, err := lots.Get(ctx, lot.ID)
	assert.NoError(t, err)
	return detail.Lot
}

// activeAuction creates a 24h auction with reserve 100 starting now.
func (e *env) activeAuction(t *testing.T) domain.Auction {
	t.Helper()
	lot := e.eligibleLot(t)
	a, err := e.svc.Auctions.Create(context.Background(), services.CreateAuctionInput{
		LotID:         lot.ID,
		OwnerAddress:  farmer,
		ReservePrice:  decimal.NewFromInt(100),
		Quantity:      decimal.NewFromInt(500),
		DurationHours: 24,
	})
	assert.NoError(t, err)
	assert.Equal(t, domain.AuctionActive, a.Status)
	return a
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
