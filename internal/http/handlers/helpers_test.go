package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"lotauction/internal/domain"
	"lotauction/internal/http/handlers"
	"lotauction/internal/ledger"
	"lotauction/internal/repos"
	"lotauction/internal/services"
)

const (
	farmer     = "0x1111111111111111111111111111111111111111"
	buyer      = "0x2222222222222222222222222222222222222222"
	rival      = "0x3333333333333333333333333333333333333333"
	adminToken = "let-me-in"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type api struct {
	app   *fiber.App
	clock *domain.ManualClock
	sim   *ledger.Simulated
}

// newAPI builds the full JSON app over an in-memory database with the admin
// guard enabled for adminToken.
func newAPI(t *testing.T) *api {
	t.Helper()
	db, err := repos.OpenDB(repos.DriverSQLite, ":memory:", repos.DefaultGovernance())
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	assert.NoError(t, err)

	a := &api{clock: domain.NewManualClock(epoch), sim: ledger.NewSimulated()}
	coord := ledger.NewCoordinator(a.sim, "0x00000000000000000000000000000000000000aa", time.Second)
	svcs := services.New(services.Options{
		DB:      db,
		Ledger:  coord,
		Clock:   a.clock,
		FeeRate: decimal.RequireFromString("0.02"),
	})

	a.app = fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	a.app.Use(requestid.New())
	handlers.Routes(a.app, handlers.NewDeps(svcs, coord, nil, a.clock), string(hash))
	a.app.Use(handlers.NotFound)
	return a
}

type reply struct {
	status int
	body   map[string]any
}

func (r reply) str(key string) string {
	s, _ := r.body[key].(string)
	return s
}

func (r reply) reasons() []string {
	raw, _ := r.body["reasons"].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, v.(string))
	}
	return out
}

func (a *api) do(t *testing.T, method, path string, body any, admin bool) reply {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		assert.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("X-Admin-Token", adminToken)
	}
	resp, err := a.app.Test(req, -1)
	assert.NoError(t, err)
	defer resp.Body.Close()

	out := reply{status: resp.StatusCode, body: map[string]any{}}
	raw, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out.body)
	}
	return out
}

// eligibleLot drives a lot through the API until it may be auctioned.
func (a *api) eligibleLot(t *testing.T) string {
	t.Helper()
	r := a.do(t, "POST", "/lots", map[string]any{
		"ownerAddress": farmer, "variety": "arabica", "quantity": "500", "qualityGrade": "a",
	}, false)
	assert.Equal(t, fiber.StatusCreated, r.status)
	lotID := r.str("id")

	for _, typ := range []string{"quality_inspection", "phytosanitary", "global_gap"} {
		r = a.do(t, "POST", "/lots/"+lotID+"/certificates", map[string]any{
			"type": typ, "issuer": "AgriCert",
			"validFrom": epoch.Add(-24 * time.Hour), "validUntil": epoch.AddDate(1, 0, 0),
		}, false)
		assert.Equal(t, fiber.StatusCreated, r.status)
		r = a.do(t, "POST", "/certificates/"+r.str("id")+"/verify", nil, true)
		assert.Equal(t, fiber.StatusOK, r.status)
	}
	for _, stage := range []string{"harvest", "drying"} {
		r = a.do(t, "POST", "/lots/"+lotID+"/stages", map[string]any{
			"stage": stage, "location": "Huila", "moisturePercent": 11.0, "packaging": "jute", "residuePpm": 0.01,
		}, false)
		assert.Equal(t, fiber.StatusCreated, r.status)
	}
	r = a.do(t, "POST", "/lots/"+lotID+"/mint", nil, false)
	assert.Equal(t, fiber.StatusOK, r.status)
	r = a.do(t, "POST", "/lots/"+lotID+"/status", map[string]any{"status": "approved"}, true)
	assert.Equal(t, fiber.StatusOK, r.status)
	r = a.do(t, "POST", "/compliance/check/"+lotID, map[string]any{"destination": "domestic"}, false)
	assert.Equal(t, fiber.StatusOK, r.status)
	return lotID
}
