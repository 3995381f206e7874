package handlers

import (
	"github.com/gofiber/fiber/v2"

	applog "lotauction/internal/log"
	"lotauction/internal/services"
)

type ComplianceHandler struct {
	Compliance *services.ComplianceService
}

type checkBody struct {
	Destination string `json:"destination" validate:"required,destination"`
}

func (h *ComplianceHandler) Check(c *fiber.Ctx) error {
	lotID, err := pathID(c, "lotId")
	if err != nil {
		return fail(c, "compliance.check", err)
	}
	var b checkBody
	if err := bind(c, &b); err != nil {
		return fail(c, "compliance.check", err)
	}
	res, err := h.Compliance.CheckLot(c.UserContext(), lotID, b.Destination)
	if err != nil {
		return fail(c, "compliance.check", err)
	}
	applog.Audit(c, "compliance.check", map[string]any{
		"lot_id":          lotID,
		"destination":     res.Destination,
		"passed":          res.Passed,
		"critical_failed": res.CriticalFailed,
	})
	return c.JSON(res)
}

func (h *ComplianceHandler) History(c *fiber.Ctx) error {
	lotID, err := pathID(c, "lotId")
	if err != nil {
		return fail(c, "compliance.history", err)
	}
	out, err := h.Compliance.History(c.UserContext(), lotID)
	if err != nil {
		return fail(c, "compliance.history", err)
	}
	return c.JSON(fiber.Map{"results": out})
}

func (h *ComplianceHandler) Destinations(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"destinations": h.Compliance.Destinations()})
}
