package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	applog "lotauction/internal/log"
	"lotauction/internal/services"
)

type GovernanceHandler struct {
	Governance *services.GovernanceService
}

func (h *GovernanceHandler) Settings(c *fiber.Ctx) error {
	s, err := h.Governance.Settings(c.UserContext())
	if err != nil {
		return fail(c, "governance.settings", err)
	}
	return c.JSON(s)
}

type settingsBody struct {
	AllowedDurationsHours   []int           `json:"allowedDurationsHours" validate:"required,min=1,dive,min=1,max=8760"`
	MinReservePrice         decimal.Decimal `json:"minReservePrice"`
	MaxReservePrice         decimal.Decimal `json:"maxReservePrice"`
	DefaultBidIncrement     decimal.Decimal `json:"defaultBidIncrement"`
	DefaultRequiresApproval bool            `json:"defaultRequiresApproval"`
}

func (h *GovernanceHandler) UpdateSettings(c *fiber.Ctx) error {
	var b settingsBody
	if err := bind(c, &b); err != nil {
		return fail(c, "governance.settings.update", err)
	}
	s, err := h.Governance.UpdateSettings(c.UserContext(), services.SettingsInput{
		AllowedDurationsHours:   b.AllowedDurationsHours,
		MinReservePrice:         b.MinReservePrice,
		MaxReservePrice:         b.MaxReservePrice,
		DefaultBidIncrement:     b.DefaultBidIncrement,
		DefaultRequiresApproval: b.DefaultRequiresApproval,
	})
	if err != nil {
		return fail(c, "governance.settings.update", err)
	}
	applog.Audit(c, "governance.settings.update", map[string]any{
		"durations":         s.AllowedDurationsHours,
		"min_reserve":       s.MinReservePrice.String(),
		"max_reserve":       s.MaxReservePrice.String(),
		"bid_increment":     s.DefaultBidIncrement.String(),
		"requires_approval": s.DefaultRequiresApproval,
	})
	return c.JSON(s)
}

func (h *GovernanceHandler) Templates(c *fiber.Ctx) error {
	out, err := h.Governance.Templates(c.UserContext())
	if err != nil {
		return fail(c, "governance.templates", err)
	}
	return c.JSON(fiber.Map{"templates": out})
}

func (h *GovernanceHandler) Template(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "governance.template", err)
	}
	t, err := h.Governance.Template(c.UserContext(), id)
	if err != nil {
		return fail(c, "governance.template", err)
	}
	return c.JSON(t)
}

type templateBody struct {
	Name             string           `json:"name" validate:"required,max=100"`
	MinDurationHours int              `json:"minDurationHours" validate:"required,min=1"`
	MaxDurationHours int              `json:"maxDurationHours" validate:"required,min=1"`
	MaxReservePrice  *decimal.Decimal `json:"maxReservePrice"`
	BidIncrement     decimal.Decimal  `json:"bidIncrement"`
	RequiresApproval bool             `json:"requiresApproval"`
	Active           *bool            `json:"active"` // defaults to true
}

func (b templateBody) input() services.TemplateInput {
	active := true
	if b.Active != nil {
		active = *b.Active
	}
	return services.TemplateInput{
		Name:             b.Name,
		MinDurationHours: b.MinDurationHours,
		MaxDurationHours: b.MaxDurationHours,
		MaxReservePrice:  b.MaxReservePrice,
		BidIncrement:     b.BidIncrement,
		RequiresApproval: b.RequiresApproval,
		Active:           active,
	}
}

func (h *GovernanceHandler) CreateTemplate(c *fiber.Ctx) error {
	var b templateBody
	if err := bind(c, &b); err != nil {
		return fail(c, "governance.template.create", err)
	}
	t, err := h.Governance.CreateTemplate(c.UserContext(), b.input())
	if err != nil {
		return fail(c, "governance.template.create", err)
	}
	applog.Audit(c, "governance.template.create", map[string]any{"template_id": t.ID, "name": t.Name})
	return c.Status(fiber.StatusCreated).JSON(t)
}

func (h *GovernanceHandler) UpdateTemplate(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "governance.template.update", err)
	}
	var b templateBody
	if err := bind(c, &b); err != nil {
		return fail(c, "governance.template.update", err)
	}
	t, err := h.Governance.UpdateTemplate(c.UserContext(), id, b.input())
	if err != nil {
		return fail(c, "governance.template.update", err)
	}
	applog.Audit(c, "governance.template.update", map[string]any{"template_id": t.ID, "active": t.Active})
	return c.JSON(t)
}

func (h *GovernanceHandler) DeleteTemplate(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "governance.template.delete", err)
	}
	if err := h.Governance.DeleteTemplate(c.UserContext(), id); err != nil {
		return fail(c, "governance.template.delete", err)
	}
	applog.Audit(c, "governance.template.delete", map[string]any{"template_id": id})
	return c.SendStatus(fiber.StatusNoContent)
}
