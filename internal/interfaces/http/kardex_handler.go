package http

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/inventario-valorizacion/internal/application/inventory"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/repository"
)

// KardexHandler tarjeta de inventario en JSON y PDF (protegido).
type KardexHandler struct {
	ledger   repository.LedgerRepository
	builder  *inventory.KardexBuilder
	pdf      inventory.KardexPDFGenerator
	resolver inventory.PolicyResolver
}

// NewKardexHandler construye el handler. pdf puede ser nil (la ruta PDF responde 501).
func NewKardexHandler(ledger repository.LedgerRepository, builder *inventory.KardexBuilder, pdf inventory.KardexPDFGenerator, resolver inventory.PolicyResolver) *KardexHandler {
	return &KardexHandler{ledger: ledger, builder: builder, pdf: pdf, resolver: resolver}
}

// Kardex godoc
// @Summary      Kardex de una posición
// @Description  Saldo inicial, movimientos de la ventana con saldos corridos y saldo final.
// @Tags         kardex
// @Security     Bearer
// @Produce      json
// @Param        id      path   string  true   "Posición"
// @Param        from    query  string  true   "Desde YYYY-MM-DD"
// @Param        to      query  string  true   "Hasta YYYY-MM-DD"
// @Param        policy  query  string  false  "FIFO | PROMEDIO_PONDERADO (vacío = vigente)"
// @Success      200  {object}  inventory.KardexReport
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/positions/{id}/kardex [get]
func (h *KardexHandler) Kardex(c *fiber.Ctx) error {
	report, err := h.build(c)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(report)
}

// KardexPDF godoc
// @Summary      Kardex en PDF
// @Tags         kardex
// @Security     Bearer
// @Produce      application/pdf
// @Param        id      path   string  true   "Posición"
// @Param        from    query  string  true   "Desde YYYY-MM-DD"
// @Param        to      query  string  true   "Hasta YYYY-MM-DD"
// @Param        policy  query  string  false  "Política"
// @Success      200  {file}  binary
// @Router       /api/inventory/positions/{id}/kardex.pdf [get]
func (h *KardexHandler) KardexPDF(c *fiber.Ctx) error {
	if h.pdf == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"code": "NOT_IMPLEMENTED", "message": "generador PDF no configurado"})
	}
	report, err := h.build(c)
	if err != nil {
		return writeError(c, err)
	}
	data, err := h.pdf.GenerateKardexPDF(c.Context(), report)
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="kardex-%s-%s.pdf"`, report.PositionID, report.To.Format("20060102")))
	return c.Send(data)
}

func (h *KardexHandler) build(c *fiber.Ctx) (*inventory.KardexReport, error) {
	pos, err := ownedPosition(c, h.ledger, c.Params("id"))
	if err != nil {
		return nil, err
	}
	from, err := parseDate(c.Query("from"))
	if err != nil {
		return nil, err
	}
	to, err := parseDate(c.Query("to"))
	if err != nil {
		return nil, err
	}
	policy, err := resolvePolicy(c.Context(), h.resolver, pos.CompanyID, c.Query("policy"), to)
	if err != nil {
		return nil, err
	}
	return h.builder.Build(c.Context(), pos.ID, policy, from, to)
}
