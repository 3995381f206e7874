package handlers_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"lotauction/internal/http/handlers"
)

func TestAuctionLifecycleOverHTTP(t *testing.T) {
	a := newAPI(t)
	lotID := a.eligibleLot(t)

	r := a.do(t, "GET", "/auctions/check-eligibility/"+lotID, nil, false)
	assert.Equal(t, fiber.StatusOK, r.status)
	check.Equal(t, true, r.body["eligible"])

	r = a.do(t, "POST", "/auctions", map[string]any{
		"lotId": lotID, "ownerAddress": farmer, "reservePrice": "100", "quantity": "500", "durationDays": 1,
	}, false)
	assert.Equal(t, fiber.StatusCreated, r.status)
	check.Equal(t, "active", r.str("status"))
	check.Equal[any](t, float64(24), r.body["durationHours"])
	check.True(t, strings.HasPrefix(r.str("ledgerTxRef"), "0x"))
	auctionID := r.str("id")

	r = a.do(t, "POST", "/auctions/"+auctionID+"/bid", map[string]any{"bidderAddress": buyer, "amount": "1000"}, false)
	assert.Equal(t, fiber.StatusCreated, r.status)

	// 1000 * 1.05 is the floor for the next bid
	r = a.do(t, "POST", "/auctions/"+auctionID+"/bid", map[string]any{"bidderAddress": rival, "amount": "1040"}, false)
	check.Equal(t, fiber.StatusBadRequest, r.status)

	r = a.do(t, "GET", "/auctions/"+auctionID, nil, false)
	check.Equal(t, "1050", r.str("minimumNextBid"))

	a.clock.Advance(25 * time.Hour)
	r = a.do(t, "POST", "/auctions/"+auctionID+"/end", nil, true)
	assert.Equal(t, fiber.StatusOK, r.status)
	check.Equal(t, "ended", r.str("status"))

	r = a.do(t, "POST", "/auctions/"+auctionID+"/escrow", map[string]any{"depositorAddress": buyer}, false)
	assert.Equal(t, fiber.StatusCreated, r.status)
	check.Equal(t, "locked", r.str("status"))

	r = a.do(t, "POST", "/auctions/"+auctionID+"/settle", map[string]any{"complianceApproved": true}, true)
	check.Equal(t, fiber.StatusBadRequest, r.status)
	check.Equal(t, "ineligible", r.str("kind"))
	check.Equal(t, []string{"shipment not confirmed", "delivery not confirmed"}, r.reasons())

	r = a.do(t, "POST", "/auctions/"+auctionID+"/settle", map[string]any{
		"complianceApproved": true, "shipmentConfirmed": true, "deliveryConfirmed": true,
	}, true)
	assert.Equal(t, fiber.StatusOK, r.status)
	check.Equal(t, "20", r.str("platformFee"))
	check.Equal(t, "980", r.str("farmerPayout"))

	r = a.do(t, "GET", "/lots/"+lotID, nil, false)
	check.Equal(t, "sold", r.str("status"))
}

func TestErrorKindsMapToStatus(t *testing.T) {
	a := newAPI(t)

	r := a.do(t, "GET", "/auctions/does-not-exist", nil, false)
	check.Equal(t, fiber.StatusNotFound, r.status)
	check.Equal(t, "not_found", r.str("kind"))

	r = a.do(t, "POST", "/auctions", map[string]any{"lotId": "x", "ownerAddress": "0x12", "durationHours": 24}, false)
	check.Equal(t, fiber.StatusBadRequest, r.status)
	check.Equal(t, []string{"ownerAddress: must be a 0x-prefixed 40 hex digit address"}, r.reasons())

	r = a.do(t, "POST", "/auctions", map[string]any{
		"lotId": "x", "ownerAddress": farmer, "reservePrice": "100", "quantity": "1", "durationHours": 24, "durationDays": 1,
	}, false)
	check.Equal(t, fiber.StatusBadRequest, r.status)
	check.Equal(t, "validation", r.str("kind"))

	// a fresh lot fails every gate at once
	r = a.do(t, "POST", "/lots", map[string]any{
		"ownerAddress": farmer, "variety": "robusta", "quantity": "10", "qualityGrade": "B",
	}, false)
	assert.Equal(t, fiber.StatusCreated, r.status)
	r = a.do(t, "POST", "/auctions", map[string]any{
		"lotId": r.str("id"), "ownerAddress": farmer, "reservePrice": "100", "quantity": "10", "durationHours": 24,
	}, false)
	check.Equal(t, fiber.StatusBadRequest, r.status)
	check.Equal(t, "ineligible", r.str("kind"))
	check.True(t, len(r.reasons()) > 1)

	r = a.do(t, "POST", "/compliance/check/whatever", map[string]any{"destination": "x"}, false)
	check.Equal(t, fiber.StatusBadRequest, r.status)

	r = a.do(t, "GET", "/no/such/route", nil, false)
	check.Equal(t, fiber.StatusNotFound, r.status)
}

func TestLedgerFailureReturnsBadGatewayAndStoresNothing(t *testing.T) {
	a := newAPI(t)
	lotID := a.eligibleLot(t)
	body := map[string]any{
		"lotId": lotID, "ownerAddress": farmer, "reservePrice": "100", "quantity": "500", "durationHours": 48,
	}

	a.sim.FailNext(errors.New("rpc unavailable"))
	r := a.do(t, "POST", "/auctions", body, false)
	check.Equal(t, fiber.StatusBadGateway, r.status)
	check.Equal(t, "ledger_write", r.str("kind"))

	r = a.do(t, "GET", "/auctions?lotId="+lotID, nil, false)
	assert.Equal(t, fiber.StatusOK, r.status)
	list, _ := r.body["auctions"].([]any)
	check.Equal(t, 0, len(list))

	r = a.do(t, "POST", "/auctions", body, false)
	check.Equal(t, fiber.StatusCreated, r.status)
}

func TestCreateWithEndTime(t *testing.T) {
	a := newAPI(t)
	lotID := a.eligibleLot(t)

	r := a.do(t, "POST", "/auctions", map[string]any{
		"lotId": lotID, "ownerAddress": farmer, "reservePrice": "100", "quantity": "500",
		"endTime": epoch.Add(90 * time.Minute),
	}, false)
	check.Equal(t, fiber.StatusBadRequest, r.status)

	r = a.do(t, "POST", "/auctions", map[string]any{
		"lotId": lotID, "ownerAddress": farmer, "reservePrice": "100", "quantity": "500",
		"endTime": epoch.Add(72 * time.Hour),
	}, false)
	assert.Equal(t, fiber.StatusCreated, r.status)
	check.Equal[any](t, float64(72), r.body["durationHours"])
}

func TestCreateRejectsPastTimes(t *testing.T) {
	a := newAPI(t)
	lotID := a.eligibleLot(t)

	r := a.do(t, "POST", "/auctions", map[string]any{
		"lotId": lotID, "ownerAddress": farmer, "reservePrice": "100", "quantity": "500",
		"startTime": epoch.Add(-25 * time.Hour), "endTime": epoch.Add(-time.Hour),
	}, false)
	check.Equal(t, fiber.StatusBadRequest, r.status)
	check.Equal(t, "validation", r.str("kind"))

	// a month-old start would be swept to ended at once
	r = a.do(t, "POST", "/auctions", map[string]any{
		"lotId": lotID, "ownerAddress": farmer, "reservePrice": "100", "quantity": "500",
		"startTime": epoch.AddDate(0, -1, 0), "durationHours": 24,
	}, false)
	check.Equal(t, fiber.StatusBadRequest, r.status)
	check.Equal(t, "validation", r.str("kind"))

	r = a.do(t, "GET", "/auctions?lotId="+lotID, nil, false)
	list, _ := r.body["auctions"].([]any)
	check.Equal(t, 0, len(list))
}

func TestCancellationFlowOverHTTP(t *testing.T) {
	a := newAPI(t)
	lotID := a.eligibleLot(t)
	r := a.do(t, "POST", "/auctions", map[string]any{
		"lotId": lotID, "ownerAddress": farmer, "reservePrice": "100", "quantity": "500", "durationHours": 24,
	}, false)
	assert.Equal(t, fiber.StatusCreated, r.status)
	auctionID := r.str("id")

	req := map[string]any{"auctionId": auctionID, "requesterAddress": farmer, "reason": "weather damage"}
	r = a.do(t, "POST", "/auctions/request-cancellation", req, false)
	assert.Equal(t, fiber.StatusCreated, r.status)
	requestID := r.str("id")

	r = a.do(t, "POST", "/auctions/request-cancellation", req, false)
	check.Equal(t, fiber.StatusConflict, r.status)

	r = a.do(t, "POST", "/auctions/cancellations/"+requestID+"/approve", map[string]any{"note": "ok"}, true)
	assert.Equal(t, fiber.StatusOK, r.status)
	check.Equal(t, "approved", r.str("status"))

	r = a.do(t, "GET", "/auctions/"+auctionID, nil, false)
	auction, _ := r.body["auction"].(map[string]any)
	check.Equal(t, "cancelled", auction["status"])

	r = a.do(t, "GET", "/lots/"+lotID, nil, false)
	check.Equal(t, "available", r.str("status"))
}

func TestAdminGuard(t *testing.T) {
	a := newAPI(t)
	body := map[string]any{
		"name": "express", "minDurationHours": 24, "maxDurationHours": 48, "bidIncrement": "0.1",
	}

	r := a.do(t, "POST", "/governance/templates", body, false)
	check.Equal(t, fiber.StatusUnauthorized, r.status)

	req := httptest.NewRequest("PUT", "/governance/settings", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Token", "wrong")
	resp, err := a.app.Test(req, -1)
	assert.NoError(t, err)
	check.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	r = a.do(t, "POST", "/governance/templates", body, true)
	assert.Equal(t, fiber.StatusCreated, r.status)
	check.Equal(t, true, r.body["active"])

	r = a.do(t, "POST", "/governance/templates", body, true)
	check.Equal(t, fiber.StatusConflict, r.status)

	r = a.do(t, "GET", "/governance/templates", nil, false)
	list, _ := r.body["templates"].([]any)
	check.Equal(t, 1, len(list))
}

func TestGuardDisabledWithoutHash(t *testing.T) {
	app := fiber.New()
	app.Get("/x", handlers.RequireAdmin(""), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	resp, err := app.Test(httptest.NewRequest("GET", "/x", nil), -1)
	assert.NoError(t, err)
	check.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestGovernanceSettingsUpdate(t *testing.T) {
	a := newAPI(t)

	r := a.do(t, "PUT", "/governance/settings", map[string]any{
		"allowedDurationsHours": []int{72, 24, 24},
		"minReservePrice":       "50",
		"maxReservePrice":       "5000",
		"defaultBidIncrement":   "0.1",
	}, true)
	assert.Equal(t, fiber.StatusOK, r.status)
	check.Equal(t, []any{float64(24), float64(72)}, r.body["allowedDurationsHours"].([]any))

	r = a.do(t, "PUT", "/governance/settings", map[string]any{"allowedDurationsHours": []int{}}, true)
	check.Equal(t, fiber.StatusBadRequest, r.status)

	r = a.do(t, "GET", "/governance/settings", nil, false)
	check.Equal(t, "5000", r.str("maxReservePrice"))
}

func TestLedgerTxStatus(t *testing.T) {
	a := newAPI(t)
	r := a.do(t, "POST", "/lots", map[string]any{
		"ownerAddress": farmer, "variety": "geisha", "quantity": "5", "qualityGrade": "A",
	}, false)
	assert.Equal(t, fiber.StatusCreated, r.status)
	r = a.do(t, "POST", "/lots/"+r.str("id")+"/mint", nil, false)
	assert.Equal(t, fiber.StatusOK, r.status)
	ref := r.str("passportRef")

	r = a.do(t, "GET", "/ledger/tx/"+ref, nil, false)
	assert.Equal(t, fiber.StatusOK, r.status)
	check.Equal(t, "confirmed", r.str("status"))

	r = a.do(t, "GET", "/ledger/tx/0xabc", nil, false)
	check.Equal(t, fiber.StatusBadRequest, r.status)
}

func TestErrorHandlerHidesInternals(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("db timeout: secret trace") })

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil), -1)
	assert.NoError(t, err)
	check.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	buf := new(strings.Builder)
	_, _ = io.Copy(buf, resp.Body)
	check.False(t, strings.Contains(buf.String(), "secret"))
}
