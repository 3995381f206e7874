package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AuctionStatus string

const (
	AuctionPendingApproval  AuctionStatus = "pending_approval"
	AuctionCreated          AuctionStatus = "created"
	AuctionActive           AuctionStatus = "active"
	AuctionEnded            AuctionStatus = "ended"
	AuctionEscrowLocked     AuctionStatus = "escrow_locked"
	AuctionSettled          AuctionStatus = "settled"
	AuctionCancelled        AuctionStatus = "cancelled"
	AuctionFailedCompliance AuctionStatus = "failed_compliance"
)

// UnresolvedAuctionStatuses hold the lot: while a lot has an auction in one
// of these states no other auction may be created for it.
var UnresolvedAuctionStatuses = []AuctionStatus{
	AuctionPendingApproval,
	AuctionCreated,
	AuctionActive,
	AuctionEnded,
	AuctionEscrowLocked,
}

// CancellableAuctionStatuses are the states from which cancellation is allowed.
var CancellableAuctionStatuses = []AuctionStatus{
	AuctionCreated,
	AuctionActive,
	AuctionPendingApproval,
}

// In reports whether s is one of set.
func (s AuctionStatus) In(set ...AuctionStatus) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}

type Auction struct {
	ID               string          `db:"id" json:"id"`
	LotID            string          `db:"lot_id" json:"lotId"`
	OwnerAddress     string          `db:"owner_address" json:"ownerAddress"`
	ReservePrice     decimal.Decimal `db:"reserve_price" json:"reservePrice"`
	Quantity         decimal.Decimal `db:"quantity" json:"quantity"`
	CurrentBid       decimal.Decimal `db:"current_bid" json:"currentBid"`
	CurrentBidder    *string         `db:"current_bidder" json:"currentBidder,omitempty"`
	BidCount         int             `db:"bid_count" json:"bidCount"`
	StartTime        time.Time       `db:"start_time" json:"startTime"`
	EndTime          time.Time       `db:"end_time" json:"endTime"`
	DurationHours    int             `db:"duration_hours" json:"durationHours"`
	Status           AuctionStatus   `db:"status" json:"status"`
	TemplateID       *string         `db:"template_id" json:"templateId,omitempty"`
	MinBidIncrement  decimal.Decimal `db:"min_bid_increment" json:"minBidIncrement"`
	RequiresApproval bool            `db:"requires_approval" json:"requiresApproval"`
	Approved         bool            `db:"approved" json:"approved"`
	LedgerTxRef      string          `db:"ledger_tx_ref" json:"ledgerTxRef"`
	LedgerSequence   int64           `db:"ledger_sequence" json:"ledgerSequence"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updatedAt"`
}

// MinimumNextBid is the smallest amount the next bid must reach: the reserve
// for the first bid, otherwise the current bid raised by the minimum increment.
func (a Auction) MinimumNextBid() decimal.Decimal {
	if a.BidCount == 0 {
		return a.ReservePrice
	}
	return a.CurrentBid.Mul(decimal.NewFromInt(1).Add(a.MinBidIncrement))
}

type BidStatus string

const (
	BidAccepted BidStatus = "accepted"
	BidOutbid   BidStatus = "outbid"
	BidWon      BidStatus = "won"
)

// Bid rows are append-only apart from the status marker.
type Bid struct {
	ID            string          `db:"id" json:"id"`
	AuctionID     string          `db:"auction_id" json:"auctionId"`
	BidderAddress string          `db:"bidder_address" json:"bidderAddress"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Status        BidStatus       `db:"status" json:"status"`
	PlacedAt      time.Time       `db:"placed_at" json:"placedAt"`
}

type CancellationStatus string

const (
	CancellationPending  CancellationStatus = "pending"
	CancellationApproved CancellationStatus = "approved"
	CancellationRejected CancellationStatus = "rejected"
)

type CancellationRequest struct {
	ID               string             `db:"id" json:"id"`
	AuctionID        string             `db:"auction_id" json:"auctionId"`
	RequesterAddress string             `db:"requester_address" json:"requesterAddress"`
	Reason           string             `db:"reason" json:"reason"`
	Status           CancellationStatus `db:"status" json:"status"`
	ResolutionNote   *string            `db:"resolution_note" json:"resolutionNote,omitempty"`
	CreatedAt        time.Time          `db:"created_at" json:"createdAt"`
	ResolvedAt       *time.Time         `db:"resolved_at" json:"resolvedAt,omitempty"`
}

type EscrowStatus string

const (
	EscrowLocked   EscrowStatus = "locked"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
)

type EscrowDeposit struct {
	ID               string          `db:"id" json:"id"`
	AuctionID        string          `db:"auction_id" json:"auctionId"`
	DepositorAddress string          `db:"depositor_address" json:"depositorAddress"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	Status           EscrowStatus    `db:"status" json:"status"`
	ReleaseTarget    *string         `db:"release_target" json:"releaseTarget,omitempty"`
	LockedAt         time.Time       `db:"locked_at" json:"lockedAt"`
	ResolvedAt       *time.Time      `db:"resolved_at" json:"resolvedAt,omitempty"`
}

const SettlementCompleted = "completed"

type Settlement struct {
	ID                 string          `db:"id" json:"id"`
	AuctionID          string          `db:"auction_id" json:"auctionId"`
	FinalAmount        decimal.Decimal `db:"final_amount" json:"finalAmount"`
	FeeRate            decimal.Decimal `db:"fee_rate" json:"feeRate"`
	PlatformFee        decimal.Decimal `db:"platform_fee" json:"platformFee"`
	FarmerPayout       decimal.Decimal `db:"farmer_payout" json:"farmerPayout"`
	ComplianceApproved bool            `db:"compliance_approved" json:"complianceApproved"`
	ShipmentConfirmed  bool            `db:"shipment_confirmed" json:"shipmentConfirmed"`
	DeliveryConfirmed  bool            `db:"delivery_confirmed" json:"deliveryConfirmed"`
	Status             string          `db:"status" json:"status"`
	SettledAt          time.Time       `db:"settled_at" json:"settledAt"`
}

// SplitProceeds computes the platform fee (rounded to cents) and the farmer payout.
func SplitProceeds(finalAmount, feeRate decimal.Decimal) (fee, payout decimal.Decimal) {
	fee = finalAmount.Mul(feeRate).Round(2)
	return fee, finalAmount.Sub(fee)
}
