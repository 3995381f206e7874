package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"lotauction/internal/domain"
	applog "lotauction/internal/log"
	"lotauction/internal/repos"
	"lotauction/internal/services"
	"lotauction/internal/validate"
)

type AuctionHandler struct {
	Auctions *services.AuctionService
	Clock    domain.Clock
}

type listAuctionsQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=pending_approval created active ended escrow_locked settled cancelled failed_compliance"`
	LotID  string `query:"lotId" validate:"omitempty,max=64"`
	Limit  string `query:"limit"`
}

func (h *AuctionHandler) List(c *fiber.Ctx) error {
	var q listAuctionsQuery
	if err := c.QueryParser(&q); err != nil {
		return fail(c, "auction.list", domain.Validation("malformed query"))
	}
	if err := validate.Struct(q); err != nil {
		return fail(c, "auction.list", err)
	}
	out, err := h.Auctions.List(c.UserContext(), repos.AuctionFilter{
		Status: domain.AuctionStatus(q.Status),
		LotID:  q.LotID,
		Limit:  validate.Limit(q.Limit),
	})
	if err != nil {
		return fail(c, "auction.list", err)
	}
	return c.JSON(fiber.Map{"auctions": out})
}

func (h *AuctionHandler) Get(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "auction.get", err)
	}
	a, err := h.Auctions.Get(c.UserContext(), id)
	if err != nil {
		return fail(c, "auction.get", err)
	}
	return c.JSON(fiber.Map{"auction": a, "minimumNextBid": a.MinimumNextBid()})
}

func (h *AuctionHandler) CheckEligibility(c *fiber.Ctx) error {
	lotID, err := pathID(c, "lotId")
	if err != nil {
		return fail(c, "auction.eligibility", err)
	}
	res, err := h.Auctions.CheckEligibility(c.UserContext(), lotID)
	if err != nil {
		return fail(c, "auction.eligibility", err)
	}
	return c.JSON(res)
}

type createAuctionBody struct {
	LotID         string          `json:"lotId" validate:"required,max=64"`
	OwnerAddress  string          `json:"ownerAddress" validate:"required,address"`
	ReservePrice  decimal.Decimal `json:"reservePrice"`
	Quantity      decimal.Decimal `json:"quantity"`
	DurationHours int             `json:"durationHours" validate:"omitempty,min=1,max=8760"`
	DurationDays  int             `json:"durationDays" validate:"omitempty,min=1,max=365"`
	TemplateID    string          `json:"templateId" validate:"omitempty,max=64"`
	StartTime     *time.Time      `json:"startTime"`
	EndTime       *time.Time      `json:"endTime"`
}

// hours resolves the one duration form the caller used into whole hours.
func (b createAuctionBody) hours(now time.Time) (int, error) {
	given := 0
	for _, set := range []bool{b.DurationHours > 0, b.DurationDays > 0, b.EndTime != nil} {
		if set {
			given++
		}
	}
	if given != 1 {
		return 0, domain.Validation("provide exactly one of durationHours, durationDays or endTime")
	}
	switch {
	case b.DurationHours > 0:
		return b.DurationHours, nil
	case b.DurationDays > 0:
		return b.DurationDays * 24, nil
	}
	start := now
	if b.StartTime != nil {
		start = domain.Normalize(*b.StartTime)
	}
	end := domain.Normalize(*b.EndTime)
	if !end.After(now) {
		return 0, domain.Validation("endTime is in the past")
	}
	d := end.Sub(start)
	if d <= 0 || d%time.Hour != 0 {
		return 0, domain.Validation("endTime must be a whole number of hours after the start")
	}
	return int(d / time.Hour), nil
}

func (h *AuctionHandler) Create(c *fiber.Ctx) error {
	var b createAuctionBody
	if err := bind(c, &b); err != nil {
		return fail(c, "auction.create", err)
	}
	hours, err := b.hours(h.Clock.Now())
	if err != nil {
		return fail(c, "auction.create", err)
	}
	a, err := h.Auctions.Create(c.UserContext(), services.CreateAuctionInput{
		LotID:         b.LotID,
		OwnerAddress:  b.OwnerAddress,
		ReservePrice:  b.ReservePrice,
		Quantity:      b.Quantity,
		DurationHours: hours,
		TemplateID:    b.TemplateID,
		StartTime:     b.StartTime,
	})
	if err != nil {
		return fail(c, "auction.create", err)
	}
	applog.Audit(c, "auction.create", map[string]any{
		"auction_id": a.ID,
		"lot_id":     a.LotID,
		"status":     a.Status,
		"ledger_tx":  a.LedgerTxRef,
		"ledger_seq": a.LedgerSequence,
	})
	return c.Status(fiber.StatusCreated).JSON(a)
}

type bidBody struct {
	BidderAddress    string          `json:"bidderAddress" validate:"required,address"`
	Amount           decimal.Decimal `json:"amount"`
	ExpectedBidCount *int            `json:"expectedBidCount" validate:"omitempty,min=0"`
}

func (h *AuctionHandler) Bid(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "auction.bid", err)
	}
	var b bidBody
	if err := bind(c, &b); err != nil {
		return fail(c, "auction.bid", err)
	}
	bid, a, err := h.Auctions.PlaceBid(c.UserContext(), services.PlaceBidInput{
		AuctionID:        id,
		BidderAddress:    b.BidderAddress,
		Amount:           b.Amount,
		ExpectedBidCount: b.ExpectedBidCount,
	})
	if err != nil {
		return fail(c, "auction.bid", err)
	}
	applog.Audit(c, "auction.bid", map[string]any{
		"auction_id": a.ID,
		"bid_id":     bid.ID,
		"bidder":     bid.BidderAddress,
		"amount":     bid.Amount.String(),
		"bid_count":  a.BidCount,
	})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"bid": bid, "auction": a})
}

func (h *AuctionHandler) Bids(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "auction.bids", err)
	}
	out, err := h.Auctions.Bids(c.UserContext(), id)
	if err != nil {
		return fail(c, "auction.bids", err)
	}
	return c.JSON(fiber.Map{"bids": out})
}

func (h *AuctionHandler) End(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "auction.end", err)
	}
	a, err := h.Auctions.End(c.UserContext(), id)
	if err != nil {
		return fail(c, "auction.end", err)
	}
	applog.Audit(c, "auction.end", map[string]any{"auction_id": a.ID, "bid_count": a.BidCount})
	return c.JSON(a)
}

type escrowBody struct {
	DepositorAddress string `json:"depositorAddress" validate:"required,address"`
}

func (h *AuctionHandler) LockEscrow(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "escrow.lock", err)
	}
	var b escrowBody
	if err := bind(c, &b); err != nil {
		return fail(c, "escrow.lock", err)
	}
	dep, err := h.Auctions.LockEscrow(c.UserContext(), id, b.DepositorAddress)
	if err != nil {
		return fail(c, "escrow.lock", err)
	}
	applog.Audit(c, "escrow.lock", map[string]any{
		"auction_id": id,
		"depositor":  dep.DepositorAddress,
		"amount":     dep.Amount.String(),
	})
	return c.Status(fiber.StatusCreated).JSON(dep)
}

func (h *AuctionHandler) Escrow(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "escrow.get", err)
	}
	dep, err := h.Auctions.Escrow(c.UserContext(), id)
	if err != nil {
		return fail(c, "escrow.get", err)
	}
	return c.JSON(dep)
}

type settleBody struct {
	ComplianceApproved bool `json:"complianceApproved"`
	ShipmentConfirmed  bool `json:"shipmentConfirmed"`
	DeliveryConfirmed  bool `json:"deliveryConfirmed"`
}

func (h *AuctionHandler) Settle(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "auction.settle", err)
	}
	var b settleBody
	if err := bind(c, &b); err != nil {
		return fail(c, "auction.settle", err)
	}
	st, err := h.Auctions.Settle(c.UserContext(), services.SettleInput{
		AuctionID:          id,
		ComplianceApproved: b.ComplianceApproved,
		ShipmentConfirmed:  b.ShipmentConfirmed,
		DeliveryConfirmed:  b.DeliveryConfirmed,
	})
	if err != nil {
		return fail(c, "auction.settle", err)
	}
	applog.Audit(c, "auction.settle", map[string]any{
		"auction_id":    id,
		"final_amount":  st.FinalAmount.String(),
		"platform_fee":  st.PlatformFee.String(),
		"farmer_payout": st.FarmerPayout.String(),
	})
	return c.JSON(st)
}

func (h *AuctionHandler) Settlement(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "settlement.get", err)
	}
	st, err := h.Auctions.Settlement(c.UserContext(), id)
	if err != nil {
		return fail(c, "settlement.get", err)
	}
	return c.JSON(st)
}

type cancellationBody struct {
	AuctionID        string `json:"auctionId" validate:"required,max=64"`
	RequesterAddress string `json:"requesterAddress" validate:"required,address"`
	Reason           string `json:"reason" validate:"required,max=500"`
}

func (h *AuctionHandler) RequestCancellation(c *fiber.Ctx) error {
	var b cancellationBody
	if err := bind(c, &b); err != nil {
		return fail(c, "cancellation.request", err)
	}
	req, err := h.Auctions.RequestCancellation(c.UserContext(), b.AuctionID, b.RequesterAddress, b.Reason)
	if err != nil {
		return fail(c, "cancellation.request", err)
	}
	applog.Audit(c, "cancellation.request", map[string]any{"auction_id": req.AuctionID, "request_id": req.ID})
	return c.Status(fiber.StatusCreated).JSON(req)
}

type noteBody struct {
	Note string `json:"note" validate:"max=500"`
}

func (h *AuctionHandler) ApproveCancellation(c *fiber.Ctx) error {
	return h.resolveCancellation(c, "cancellation.approve", h.Auctions.ApproveCancellation)
}

func (h *AuctionHandler) RejectCancellation(c *fiber.Ctx) error {
	return h.resolveCancellation(c, "cancellation.reject", h.Auctions.RejectCancellation)
}

func (h *AuctionHandler) resolveCancellation(c *fiber.Ctx, action string,
	resolve func(ctx context.Context, requestID, note string) (domain.CancellationRequest, error)) error {
	id, err := pathID(c, "requestId")
	if err != nil {
		return fail(c, action, err)
	}
	var b noteBody
	if err := bind(c, &b); err != nil {
		return fail(c, action, err)
	}
	req, err := resolve(c.UserContext(), id, b.Note)
	if err != nil {
		return fail(c, action, err)
	}
	applog.Audit(c, action, map[string]any{"auction_id": req.AuctionID, "request_id": req.ID, "status": req.Status})
	return c.JSON(req)
}

type reasonBody struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Cancel is the operator shortcut: request and approve in one call.
func (h *AuctionHandler) Cancel(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "auction.cancel", err)
	}
	var b reasonBody
	if err := bind(c, &b); err != nil {
		return fail(c, "auction.cancel", err)
	}
	req, err := h.Auctions.Cancel(c.UserContext(), id, b.Reason)
	if err != nil {
		return fail(c, "auction.cancel", err)
	}
	applog.Audit(c, "auction.cancel", map[string]any{"auction_id": id, "request_id": req.ID})
	return c.JSON(req)
}

func (h *AuctionHandler) Approve(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "auction.approve", err)
	}
	a, res, err := h.Auctions.ApproveAuction(c.UserContext(), id)
	if err != nil {
		return fail(c, "auction.approve", err)
	}
	applog.Audit(c, "auction.approve", map[string]any{
		"auction_id": a.ID,
		"status":     a.Status,
		"eligible":   res.Eligible,
	})
	return c.JSON(fiber.Map{"auction": a, "eligibility": res})
}

func (h *AuctionHandler) Reject(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "auction.reject", err)
	}
	var b reasonBody
	if err := bind(c, &b); err != nil {
		return fail(c, "auction.reject", err)
	}
	a, err := h.Auctions.RejectAuction(c.UserContext(), id, b.Reason)
	if err != nil {
		return fail(c, "auction.reject", err)
	}
	applog.Audit(c, "auction.reject", map[string]any{"auction_id": a.ID, "reason": b.Reason})
	return c.JSON(a)
}
