package handlers

import (
	"github.com/gofiber/fiber/v2"

	"lotauction/internal/domain"
	"lotauction/internal/ledger"
	"lotauction/internal/monitor"
	"lotauction/internal/validate"
)

type LedgerHandler struct {
	Ledger *ledger.Coordinator
}

// TxStatus lets a caller re-check an ambiguous submission before retrying.
func (h *LedgerHandler) TxStatus(c *fiber.Ctx) error {
	ref, ok := validate.TxRef(c.Params("ref"))
	if !ok {
		return fail(c, "ledger.status", domain.Validation("invalid transaction reference"))
	}
	st, err := h.Ledger.Status(c.UserContext(), ref)
	if err != nil {
		return fail(c, "ledger.status", err)
	}
	return c.JSON(fiber.Map{"txRef": ref, "status": st, "signer": h.Ledger.Signer()})
}

type HealthHandler struct {
	Monitor *monitor.Monitor // nil when the sweep runs elsewhere
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	out := fiber.Map{"ok": true}
	if h.Monitor != nil {
		out["monitor"] = h.Monitor.Stats()
	}
	return c.JSON(out)
}
