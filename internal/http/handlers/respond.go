package handlers

import (
	"github.com/gofiber/fiber/v2"

	"lotauction/internal/domain"
	applog "lotauction/internal/log"
	"lotauction/internal/validate"
)

func statusFor(k domain.Kind) int {
	switch k {
	case domain.KindValidation, domain.KindIneligible:
		return fiber.StatusBadRequest
	case domain.KindNotFound:
		return fiber.StatusNotFound
	case domain.KindConflict:
		return fiber.StatusConflict
	case domain.KindLedgerWrite:
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// fail writes err as a JSON error body and logs it under action.
// Internal errors are logged with their cause and answered with a generic message.
func fail(c *fiber.Ctx, action string, err error) error {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	body := fiber.Map{"error": err.Error(), "kind": kind}
	if reasons := domain.ReasonsOf(err); len(reasons) > 0 {
		body["reasons"] = reasons
	}

	switch kind {
	case domain.KindValidation:
		applog.Security(c, "validation.fail", map[string]any{"action": action, "error": err.Error()})
	case domain.KindInternal:
		applog.Error(c, action+".fail", err, nil)
		body = fiber.Map{"error": "Something went wrong. Please try again.", "kind": kind}
	case domain.KindLedgerWrite:
		applog.Error(c, action+".fail", err, nil)
	default:
		applog.Info(c, action+".rejected", map[string]any{"kind": kind, "error": err.Error()})
	}
	return c.Status(status).JSON(body)
}

// bind decodes the JSON body into dst and runs its validate tags.
// An empty body leaves dst zero so the tags report what is missing.
func bind(c *fiber.Ctx, dst any) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(dst); err != nil {
			return domain.Validation("malformed request body")
		}
	}
	return validate.Struct(dst)
}

// pathID reads and validates an identifier path parameter.
func pathID(c *fiber.Ctx, name string) (string, error) {
	id, ok := validate.ID(c.Params(name))
	if !ok {
		return "", domain.Validation("invalid %s", name)
	}
	return id, nil
}
