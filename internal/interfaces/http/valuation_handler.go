package http

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/inventario-valorizacion/internal/application/dto"
	"github.com/jhoicas/inventario-valorizacion/internal/application/inventory"
	"github.com/jhoicas/inventario-valorizacion/internal/domain"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/entity"
	domaininv "github.com/jhoicas/inventario-valorizacion/internal/domain/inventory"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/repository"
)

// ValuationHandler consultas de saldos y costos derivados del libro (protegido).
type ValuationHandler struct {
	ledger   repository.LedgerRepository
	engine   *inventory.StockEngine
	policies *inventory.PolicyRegistry
	resolver inventory.PolicyResolver
}

// NewValuationHandler construye el handler.
func NewValuationHandler(ledger repository.LedgerRepository, engine *inventory.StockEngine, policies *inventory.PolicyRegistry, resolver inventory.PolicyResolver) *ValuationHandler {
	return &ValuationHandler{ledger: ledger, engine: engine, policies: policies, resolver: resolver}
}

// FindPosition godoc
// @Summary      Buscar posición por producto y bodega
// @Tags         valuation
// @Security     Bearer
// @Produce      json
// @Param        product_id    query  string  true  "Producto"
// @Param        warehouse_id  query  string  true  "Bodega"
// @Success      200  {object}  dto.PositionDTO
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/positions [get]
func (h *ValuationHandler) FindPosition(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	productID, warehouseID := c.Query("product_id"), c.Query("warehouse_id")
	if productID == "" || warehouseID == "" {
		return badRequest(c, "VALIDATION", "product_id y warehouse_id son requeridos")
	}
	pos, err := h.ledger.FindPosition(c.Context(), companyID, productID, warehouseID)
	if err != nil {
		return writeError(c, err)
	}
	if pos == nil {
		return writeError(c, domain.ErrPositionNotFound)
	}
	return c.JSON(toPositionDTO(pos))
}

// PositionStock godoc
// @Summary      Stock derivado de una posición
// @Description  Cantidad total, costo promedio ponderado y desglose por lote a la fecha de corte.
// @Tags         valuation
// @Security     Bearer
// @Produce      json
// @Param        id      path   string  true   "Posición"
// @Param        cutoff  query  string  false  "Fecha de corte YYYY-MM-DD (vacío = hoy)"
// @Success      200  {object}  inventory.PositionStock
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/positions/{id}/stock [get]
func (h *ValuationHandler) PositionStock(c *fiber.Ctx) error {
	pos, err := ownedPosition(c, h.ledger, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	cutoff, err := parseOptionalDate(c.Query("cutoff"))
	if err != nil {
		return writeError(c, err)
	}
	ps, err := h.engine.DerivePositionStock(c.Context(), pos.ID, cutoff)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(ps)
}

// AverageCost godoc
// @Summary      Costo promedio ponderado
// @Tags         valuation
// @Security     Bearer
// @Produce      json
// @Param        id      path   string  true   "Posición"
// @Param        cutoff  query  string  false  "Fecha de corte YYYY-MM-DD"
// @Success      200  {object}  dto.AverageCostResponse
// @Router       /api/inventory/positions/{id}/average-cost [get]
func (h *ValuationHandler) AverageCost(c *fiber.Ctx) error {
	pos, err := ownedPosition(c, h.ledger, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	cutoff, err := parseOptionalDate(c.Query("cutoff"))
	if err != nil {
		return writeError(c, err)
	}
	cost, err := inventory.WeightedAverageCalculator{}.AverageCost(c.Context(), h.engine, pos.ID, cutoff)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.AverageCostResponse{PositionID: pos.ID, Cutoff: domaininv.CutoffLabel(cutoff), UnitCost: cost})
}

// AllocationPreview godoc
// @Summary      Simular el costeo de una salida
// @Description  Devuelve el plan de consumo según la política sin escribir en el libro.
// @Tags         valuation
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                        true  "Posición"
// @Param        body  body  dto.AllocationPreviewRequest  true  "quantity, policy (opcional), cutoff (opcional)"
// @Success      200  {object}  dto.AllocationPreviewResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.InsufficientStockResponse
// @Router       /api/inventory/positions/{id}/allocation-preview [post]
func (h *ValuationHandler) AllocationPreview(c *fiber.Ctx) error {
	pos, err := ownedPosition(c, h.ledger, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	var in dto.AllocationPreviewRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	cutoff, err := parseOptionalDate(in.Cutoff)
	if err != nil {
		return writeError(c, err)
	}
	asOf := time.Now()
	if cutoff != nil {
		asOf = *cutoff
	}
	policy, err := resolvePolicy(c.Context(), h.resolver, pos.CompanyID, in.Policy, asOf)
	if err != nil {
		return writeError(c, err)
	}
	costing, err := h.policies.Get(policy)
	if err != nil {
		return writeError(c, err)
	}
	plan, err := costing.Allocate(c.Context(), h.engine.IssueSource(), pos.ID, in.Quantity, cutoff)
	if err != nil {
		return writeError(c, err)
	}
	qty, total, unitCost := inventory.PlanTotals(plan)
	return c.JSON(dto.AllocationPreviewResponse{
		PositionID:  pos.ID,
		Policy:      string(policy),
		Cutoff:      domaininv.CutoffLabel(cutoff),
		Quantity:    qty,
		UnitCost:    unitCost,
		TotalCost:   domaininv.RoundTotal(total),
		Allocations: toAllocationDTOs(plan),
	})
}

// LotStock godoc
// @Summary      Saldo derivado de un lote
// @Tags         valuation
// @Security     Bearer
// @Produce      json
// @Param        id      path   string  true   "Lote"
// @Param        cutoff  query  string  false  "Fecha de corte YYYY-MM-DD"
// @Success      200  {object}  inventory.LotStock
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/lots/{id}/stock [get]
func (h *ValuationHandler) LotStock(c *fiber.Ctx) error {
	if GetCompanyID(c) == "" {
		return unauthorized(c)
	}
	cutoff, err := parseOptionalDate(c.Query("cutoff"))
	if err != nil {
		return writeError(c, err)
	}
	ls, err := h.engine.DeriveLotStock(c.Context(), c.Params("id"), cutoff)
	if err != nil {
		return writeError(c, err)
	}
	if _, err := ownedPosition(c, h.ledger, ls.PositionID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(ls)
}

// ownedPosition carga la posición y verifica que pertenezca a la empresa del token.
func ownedPosition(c *fiber.Ctx, ledger repository.LedgerRepository, id string) (*entity.Position, error) {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return nil, domain.ErrUnauthorized
	}
	pos, err := ledger.GetPosition(c.Context(), id)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, domain.ErrPositionNotFound
	}
	if pos.CompanyID != companyID {
		return nil, domain.ErrForbidden
	}
	return pos, nil
}

// resolvePolicy usa la política pedida o, si viene vacía, la vigente de la empresa.
func resolvePolicy(ctx context.Context, resolver inventory.PolicyResolver, companyID, raw string, date time.Time) (entity.ValuationPolicy, error) {
	if raw != "" {
		p, err := entity.ParseValuationPolicy(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		return p, nil
	}
	return resolver.PolicyFor(ctx, companyID, date)
}

func toPositionDTO(p *entity.Position) dto.PositionDTO {
	return dto.PositionDTO{
		ID:          p.ID,
		ProductID:   p.ProductID,
		WarehouseID: p.WarehouseID,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
}

func toLotDTO(l *entity.Lot) *dto.LotDTO {
	out := &dto.LotDTO{
		ID:            l.ID,
		PositionID:    l.PositionID,
		Code:          l.Code,
		EntryDate:     l.EntryDate.Format("2006-01-02"),
		EntryQuantity: l.EntryQuantity,
		UnitCost:      l.UnitCost,
		Active:        l.Active,
		VoucherID:     l.SourceVoucherID,
	}
	if l.ExpiryDate != nil {
		out.ExpiryDate = l.ExpiryDate.Format("2006-01-02")
	}
	return out
}

func toAllocationDTOs(plan []inventory.Allocation) []dto.AllocationDTO {
	out := make([]dto.AllocationDTO, 0, len(plan))
	for _, a := range plan {
		out = append(out, dto.AllocationDTO{
			LotID:     a.LotID,
			Quantity:  a.Quantity,
			UnitCost:  a.UnitCost,
			TotalCost: domaininv.RoundTotal(a.Total()),
		})
	}
	return out
}
