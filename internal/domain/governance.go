package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GovernanceSettings is the singleton set of global auction constraints.
type GovernanceSettings struct {
	AllowedDurationsHours   []int           `json:"allowedDurationsHours"`
	MinReservePrice         decimal.Decimal `json:"minReservePrice"`
	MaxReservePrice         decimal.Decimal `json:"maxReservePrice"`
	DefaultBidIncrement     decimal.Decimal `json:"defaultBidIncrement"`
	DefaultRequiresApproval bool            `json:"defaultRequiresApproval"`
	UpdatedAt               time.Time       `json:"updatedAt"`
}

// AllowsDuration reports whether hours is one of the globally allowed durations.
func (s GovernanceSettings) AllowsDuration(hours int) bool {
	for _, h := range s.AllowedDurationsHours {
		if h == hours {
			return true
		}
	}
	return false
}

// AuctionTemplate is a named override of the global settings.
// MaxReservePrice is optional; when set it can only tighten the global maximum.
type AuctionTemplate struct {
	ID               string              `db:"id" json:"id"`
	Name             string              `db:"name" json:"name"`
	MinDurationHours int                 `db:"min_duration_hours" json:"minDurationHours"`
	MaxDurationHours int                 `db:"max_duration_hours" json:"maxDurationHours"`
	MaxReservePrice  decimal.NullDecimal `db:"max_reserve_price" json:"maxReservePrice"`
	BidIncrement     decimal.Decimal     `db:"bid_increment" json:"bidIncrement"`
	RequiresApproval bool                `db:"requires_approval" json:"requiresApproval"`
	Active           bool                `db:"active" json:"active"`
	CreatedAt        time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time           `db:"updated_at" json:"updatedAt"`
}
