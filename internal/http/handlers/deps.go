package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"lotauction/internal/domain"
	"lotauction/internal/ledger"
	applog "lotauction/internal/log"
	"lotauction/internal/monitor"
	"lotauction/internal/services"
)

type Deps struct {
	AuctionHandler    *AuctionHandler
	LotHandler        *LotHandler
	ComplianceHandler *ComplianceHandler
	GovernanceHandler *GovernanceHandler
	LedgerHandler     *LedgerHandler
	HealthHandler     *HealthHandler
}

func NewDeps(svcs *services.Services, coord *ledger.Coordinator, mon *monitor.Monitor, clock domain.Clock) *Deps {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Deps{
		AuctionHandler:    &AuctionHandler{Auctions: svcs.Auctions, Clock: clock},
		LotHandler:        &LotHandler{Lots: svcs.Lots},
		ComplianceHandler: &ComplianceHandler{Compliance: svcs.Compliance},
		GovernanceHandler: &GovernanceHandler{Governance: svcs.Governance},
		LedgerHandler:     &LedgerHandler{Ledger: coord},
		HealthHandler:     &HealthHandler{Monitor: mon},
	}
}

// Routes mounts the JSON API. adminHash guards operator and governance routes;
// see RequireAdmin.
func Routes(app fiber.Router, d *Deps, adminHash string) {
	admin := RequireAdmin(adminHash)

	app.Get("/healthz", d.HealthHandler.Health)

	// Lots
	app.Post("/lots", d.LotHandler.Register)
	app.Get("/lots/:id", d.LotHandler.Get)
	app.Post("/lots/:id/certificates", d.LotHandler.AddCertificate)
	app.Post("/lots/:id/stages", d.LotHandler.AddStage)
	app.Post("/lots/:id/mint", d.LotHandler.Mint)
	app.Post("/lots/:id/status", admin, d.LotHandler.SetStatus)
	app.Post("/certificates/:id/verify", admin, d.LotHandler.VerifyCertificate)

	// Compliance
	app.Get("/compliance/destinations", d.ComplianceHandler.Destinations)
	app.Post("/compliance/check/:lotId", d.ComplianceHandler.Check)
	app.Get("/compliance/history/:lotId", d.ComplianceHandler.History)

	// Auctions; fixed segments before :id
	bidLimiter := limiter.New(limiter.Config{
		Max:        30,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|bid"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.bid.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	})
	app.Get("/auctions", d.AuctionHandler.List)
	app.Post("/auctions", d.AuctionHandler.Create)
	app.Get("/auctions/check-eligibility/:lotId", d.AuctionHandler.CheckEligibility)
	app.Post("/auctions/request-cancellation", d.AuctionHandler.RequestCancellation)
	app.Post("/auctions/cancellations/:requestId/approve", admin, d.AuctionHandler.ApproveCancellation)
	app.Post("/auctions/cancellations/:requestId/reject", admin, d.AuctionHandler.RejectCancellation)
	app.Get("/auctions/:id", d.AuctionHandler.Get)
	app.Get("/auctions/:id/bids", d.AuctionHandler.Bids)
	app.Post("/auctions/:id/bid", bidLimiter, d.AuctionHandler.Bid)
	app.Post("/auctions/:id/end", admin, d.AuctionHandler.End)
	app.Post("/auctions/:id/escrow", d.AuctionHandler.LockEscrow)
	app.Get("/auctions/:id/escrow", d.AuctionHandler.Escrow)
	app.Post("/auctions/:id/settle", admin, d.AuctionHandler.Settle)
	app.Get("/auctions/:id/settlement", d.AuctionHandler.Settlement)
	app.Post("/auctions/:id/cancel", admin, d.AuctionHandler.Cancel)
	app.Post("/auctions/:id/approve", admin, d.AuctionHandler.Approve)
	app.Post("/auctions/:id/reject", admin, d.AuctionHandler.Reject)

	// Governance
	app.Get("/governance/settings", d.GovernanceHandler.Settings)
	app.Put("/governance/settings", admin, d.GovernanceHandler.UpdateSettings)
	app.Get("/governance/templates", d.GovernanceHandler.Templates)
	app.Get("/governance/templates/:id", d.GovernanceHandler.Template)
	app.Post("/governance/templates", admin, d.GovernanceHandler.CreateTemplate)
	app.Put("/governance/templates/:id", admin, d.GovernanceHandler.UpdateTemplate)
	app.Delete("/governance/templates/:id", admin, d.GovernanceHandler.DeleteTemplate)

	// Ledger
	app.Get("/ledger/tx/:ref", d.LedgerHandler.TxStatus)
}

// ErrorHandler is the app-wide fallback; it never echoes internal detail.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	applog.Error(c, "server.error", err, nil)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Something went wrong. Please try again."})
}

// NotFound answers unmatched routes.
func NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "route not found"})
}
