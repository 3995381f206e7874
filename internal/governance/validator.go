// Package governance applies administrator-defined auction constraints.
package governance

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"lotauction/internal/domain"
)

// Proposal is the part of an auction request governance looks at.
type Proposal struct {
	DurationHours int
	ReservePrice  decimal.Decimal
	TemplateID    string
}

// Policy is the effective result of validation.
type Policy struct {
	DurationHours    int
	ReservePrice     decimal.Decimal
	RequiresApproval bool
	MinBidIncrement  decimal.Decimal
	Template         *domain.AuctionTemplate
}

// Store is the read side the validator needs.
type Store interface {
	Settings(ctx context.Context) (domain.GovernanceSettings, error)
	Template(ctx context.Context, id string) (domain.AuctionTemplate, error)
}

type Validator struct {
	store Store
}

func NewValidator(s Store) *Validator { return &Validator{store: s} }

// Effective merges a template over the global settings. Template values win.
func Effective(s domain.GovernanceSettings, tmpl *domain.AuctionTemplate) (requiresApproval bool, increment decimal.Decimal) {
	if tmpl != nil {
		return tmpl.RequiresApproval, tmpl.BidIncrement
	}
	return s.DefaultRequiresApproval, s.DefaultBidIncrement
}

// Validate checks p against the settings and optional template. An unknown or
// inactive template is rejected before anything else; otherwise the first
// violated constraint is reported, in the order duration, price, template bound.
func (v *Validator) Validate(ctx context.Context, p Proposal) (Policy, error) {
	settings, err := v.store.Settings(ctx)
	if err != nil {
		return Policy{}, domain.Internal("load governance settings", err)
	}

	var tmpl *domain.AuctionTemplate
	if p.TemplateID != "" {
		t, err := v.store.Template(ctx, p.TemplateID)
		if err != nil {
			if domain.IsKind(err, domain.KindNotFound) {
				return Policy{}, err
			}
			return Policy{}, domain.Internal("load template", err)
		}
		if !t.Active {
			return Policy{}, ineligible(fmt.Sprintf("template %s is inactive", t.Name))
		}
		tmpl = &t
	}

	if tmpl != nil {
		if p.DurationHours < tmpl.MinDurationHours || p.DurationHours > tmpl.MaxDurationHours {
			return Policy{}, ineligible(fmt.Sprintf("duration %dh outside template range %d-%dh",
				p.DurationHours, tmpl.MinDurationHours, tmpl.MaxDurationHours))
		}
	} else if !settings.AllowsDuration(p.DurationHours) {
		return Policy{}, ineligible(fmt.Sprintf("duration %dh not in allowed set %v", p.DurationHours, settings.AllowedDurationsHours))
	}

	if p.ReservePrice.LessThan(settings.MinReservePrice) || p.ReservePrice.GreaterThan(settings.MaxReservePrice) {
		return Policy{}, ineligible(fmt.Sprintf("reserve price %s outside %s-%s",
			p.ReservePrice, settings.MinReservePrice, settings.MaxReservePrice))
	}

	if tmpl != nil && tmpl.MaxReservePrice.Valid && p.ReservePrice.GreaterThan(tmpl.MaxReservePrice.Decimal) {
		return Policy{}, ineligible(fmt.Sprintf("reserve price %s above template maximum %s",
			p.ReservePrice, tmpl.MaxReservePrice.Decimal))
	}

	approval, inc := Effective(settings, tmpl)
	return Policy{
		DurationHours:    p.DurationHours,
		ReservePrice:     p.ReservePrice,
		RequiresApproval: approval,
		MinBidIncrement:  inc,
		Template:         tmpl,
	}, nil
}

func ineligible(reason string) error {
	return domain.Ineligible("governance check failed", []string{reason})
}
