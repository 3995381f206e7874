package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"lotauction/internal/domain"
	applog "lotauction/internal/log"
	"lotauction/internal/services"
)

type LotHandler struct {
	Lots *services.LotService
}

type registerLotBody struct {
	OwnerAddress string          `json:"ownerAddress" validate:"required,address"`
	Variety      string          `json:"variety" validate:"required,max=100"`
	Quantity     decimal.Decimal `json:"quantity"`
	QualityGrade string          `json:"qualityGrade" validate:"required,grade"`
}

func (h *LotHandler) Register(c *fiber.Ctx) error {
	var b registerLotBody
	if err := bind(c, &b); err != nil {
		return fail(c, "lot.register", err)
	}
	lot, err := h.Lots.Register(c.UserContext(), services.RegisterLotInput{
		OwnerAddress: b.OwnerAddress,
		Variety:      b.Variety,
		Quantity:     b.Quantity,
		QualityGrade: b.QualityGrade,
	})
	if err != nil {
		return fail(c, "lot.register", err)
	}
	applog.Audit(c, "lot.register", map[string]any{"lot_id": lot.ID, "owner": lot.OwnerAddress})
	return c.Status(fiber.StatusCreated).JSON(lot)
}

func (h *LotHandler) Get(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "lot.get", err)
	}
	lot, err := h.Lots.Get(c.UserContext(), id)
	if err != nil {
		return fail(c, "lot.get", err)
	}
	return c.JSON(lot)
}

type certificateBody struct {
	Type       string    `json:"type" validate:"required,max=64"`
	Issuer     string    `json:"issuer" validate:"required,max=200"`
	ValidFrom  time.Time `json:"validFrom" validate:"required"`
	ValidUntil time.Time `json:"validUntil" validate:"required"`
}

func (h *LotHandler) AddCertificate(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "certificate.add", err)
	}
	var b certificateBody
	if err := bind(c, &b); err != nil {
		return fail(c, "certificate.add", err)
	}
	cert, err := h.Lots.AddCertificate(c.UserContext(), id, services.CertificateInput{
		Type:       b.Type,
		Issuer:     b.Issuer,
		ValidFrom:  b.ValidFrom,
		ValidUntil: b.ValidUntil,
	})
	if err != nil {
		return fail(c, "certificate.add", err)
	}
	applog.Audit(c, "certificate.add", map[string]any{"lot_id": id, "certificate_id": cert.ID, "type": cert.Type})
	return c.Status(fiber.StatusCreated).JSON(cert)
}

func (h *LotHandler) VerifyCertificate(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "certificate.verify", err)
	}
	cert, err := h.Lots.VerifyCertificate(c.UserContext(), id)
	if err != nil {
		return fail(c, "certificate.verify", err)
	}
	applog.Audit(c, "certificate.verify", map[string]any{"lot_id": cert.LotID, "certificate_id": cert.ID})
	return c.JSON(cert)
}

type stageBody struct {
	Stage           string     `json:"stage" validate:"required,max=64"`
	Location        string     `json:"location" validate:"required,max=200"`
	MoisturePercent *float64   `json:"moisturePercent" validate:"omitempty,gte=0,lte=100"`
	Packaging       *string    `json:"packaging" validate:"omitempty,max=64"`
	ResiduePPM      *float64   `json:"residuePpm" validate:"omitempty,gte=0"`
	TemperatureC    *float64   `json:"temperatureC"`
	RecordedAt      *time.Time `json:"recordedAt"`
}

func (h *LotHandler) AddStage(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "stage.add", err)
	}
	var b stageBody
	if err := bind(c, &b); err != nil {
		return fail(c, "stage.add", err)
	}
	st, err := h.Lots.AddStage(c.UserContext(), id, services.StageInput{
		Stage:           b.Stage,
		Location:        b.Location,
		MoisturePercent: b.MoisturePercent,
		Packaging:       b.Packaging,
		ResiduePPM:      b.ResiduePPM,
		TemperatureC:    b.TemperatureC,
		RecordedAt:      b.RecordedAt,
	})
	if err != nil {
		return fail(c, "stage.add", err)
	}
	applog.Audit(c, "stage.add", map[string]any{"lot_id": id, "stage": st.Stage})
	return c.Status(fiber.StatusCreated).JSON(st)
}

func (h *LotHandler) Mint(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "lot.mint", err)
	}
	lot, err := h.Lots.MintPassport(c.UserContext(), id)
	if err != nil {
		return fail(c, "lot.mint", err)
	}
	applog.Audit(c, "lot.mint", map[string]any{"lot_id": lot.ID, "passport_ref": lot.PassportRef})
	return c.JSON(lot)
}

type lotStatusBody struct {
	Status string `json:"status" validate:"required,oneof=approved rejected available"`
}

func (h *LotHandler) SetStatus(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, "lot.status", err)
	}
	var b lotStatusBody
	if err := bind(c, &b); err != nil {
		return fail(c, "lot.status", err)
	}
	lot, err := h.Lots.SetStatus(c.UserContext(), id, domain.LotStatus(b.Status))
	if err != nil {
		return fail(c, "lot.status", err)
	}
	applog.Audit(c, "lot.status", map[string]any{"lot_id": lot.ID, "status": lot.Status})
	return c.JSON(lot)
}
