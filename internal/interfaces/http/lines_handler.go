package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/inventario-valorizacion/internal/application/dto"
	"github.com/jhoicas/inventario-valorizacion/internal/application/inventory"
	"github.com/jhoicas/inventario-valorizacion/internal/domain"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/entity"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/repository"
)

// LinesHandler registra líneas de comprobante en el libro y sus reversiones (protegido).
type LinesHandler struct {
	lifecycle *inventory.LotLifecycleManager
	ledger    repository.LedgerRepository
	resolver  inventory.PolicyResolver
}

// NewLinesHandler construye el handler.
func NewLinesHandler(lifecycle *inventory.LotLifecycleManager, ledger repository.LedgerRepository, resolver inventory.PolicyResolver) *LinesHandler {
	return &LinesHandler{lifecycle: lifecycle, ledger: ledger, resolver: resolver}
}

// Inbound godoc
// @Summary      Registrar línea de compra
// @Description  Crea un lote con la fecha de emisión como fecha de entrada y su movimiento ENTRADA.
// @Tags         lines
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.InboundLineRequest  true  "product_id, warehouse_id, emission_date, quantity, unit_cost"
// @Success      201  {object}  dto.LotDTO
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/inventory/lines/inbound [post]
func (h *LinesHandler) Inbound(c *fiber.Ctx) error {
	companyID, userID := GetCompanyID(c), GetUserID(c)
	if companyID == "" || userID == "" {
		return unauthorized(c)
	}
	var in dto.InboundLineRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	emission, err := parseDate(in.EmissionDate)
	if err != nil {
		return writeError(c, err)
	}
	expiry, err := parseOptionalDate(in.ExpiryDate)
	if err != nil {
		return writeError(c, err)
	}
	lot, err := h.lifecycle.OnInboundLine(c.Context(), entity.VoucherLine{
		CompanyID:    companyID,
		UserID:       userID,
		VoucherID:    in.VoucherID,
		ProductID:    in.ProductID,
		WarehouseID:  in.WarehouseID,
		EmissionDate: emission,
		Quantity:     in.Quantity,
		UnitCost:     in.UnitCost,
		LotCode:      in.LotCode,
		ExpiryDate:   expiry,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toLotDTO(lot))
}

// Outbound godoc
// @Summary      Registrar línea de venta o consumo
// @Description  Costea la salida con la política indicada (o la vigente) y congela el costo en el libro.
// @Tags         lines
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.OutboundLineRequest  true  "product_id, warehouse_id, emission_date, quantity, policy, cutoff"
// @Success      201  {object}  inventory.OutboundResult
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.InsufficientStockResponse
// @Router       /api/inventory/lines/outbound [post]
func (h *LinesHandler) Outbound(c *fiber.Ctx) error {
	companyID, userID := GetCompanyID(c), GetUserID(c)
	if companyID == "" || userID == "" {
		return unauthorized(c)
	}
	var in dto.OutboundLineRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	emission, err := parseDate(in.EmissionDate)
	if err != nil {
		return writeError(c, err)
	}
	cutoff, err := parseOptionalDate(in.Cutoff)
	if err != nil {
		return writeError(c, err)
	}
	policy, err := resolvePolicy(c.Context(), h.resolver, companyID, in.Policy, emission)
	if err != nil {
		return writeError(c, err)
	}
	res, err := h.lifecycle.OnOutboundLine(c.Context(), entity.VoucherLine{
		CompanyID:    companyID,
		UserID:       userID,
		VoucherID:    in.VoucherID,
		ProductID:    in.ProductID,
		WarehouseID:  in.WarehouseID,
		EmissionDate: emission,
		Quantity:     in.Quantity,
	}, policy, cutoff)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// Adjustment godoc
// @Summary      Registrar ajuste de inventario
// @Description  Cantidad positiva crea un lote; negativa consume según la política.
// @Tags         lines
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.AdjustmentLineRequest  true  "quantity con signo"
// @Success      201  {object}  dto.AdjustmentResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.InsufficientStockResponse
// @Router       /api/inventory/lines/adjustment [post]
func (h *LinesHandler) Adjustment(c *fiber.Ctx) error {
	companyID, userID := GetCompanyID(c), GetUserID(c)
	if companyID == "" || userID == "" {
		return unauthorized(c)
	}
	var in dto.AdjustmentLineRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	emission, err := parseDate(in.EmissionDate)
	if err != nil {
		return writeError(c, err)
	}
	policy, err := resolvePolicy(c.Context(), h.resolver, companyID, in.Policy, emission)
	if err != nil {
		return writeError(c, err)
	}
	res, err := h.lifecycle.OnAdjustmentLine(c.Context(), entity.VoucherLine{
		CompanyID:    companyID,
		UserID:       userID,
		VoucherID:    in.VoucherID,
		ProductID:    in.ProductID,
		WarehouseID:  in.WarehouseID,
		EmissionDate: emission,
		Quantity:     in.Quantity,
		UnitCost:     in.UnitCost,
		LotCode:      in.LotCode,
	}, policy)
	if err != nil {
		return writeError(c, err)
	}
	out := dto.AdjustmentResponse{
		MovementID: res.MovementID,
		PositionID: res.PositionID,
		Quantity:   res.Quantity,
		UnitCost:   res.UnitCost,
		TotalCost:  res.TotalCost,
	}
	if res.Lot != nil {
		out.Lot = toLotDTO(res.Lot)
	}
	if len(res.Allocations) > 0 {
		out.Allocations = toAllocationDTOs(res.Allocations)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// CancelMovement godoc
// @Summary      Anular movimiento
// @Description  Marca el movimiento como ANULADO. Nunca borra filas del libro.
// @Tags         lines
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Movimiento"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/inventory/movements/{id}/cancel [post]
func (h *LinesHandler) CancelMovement(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	mov, err := h.ledger.GetMovement(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	if mov == nil {
		return writeError(c, domain.ErrMovementNotFound)
	}
	if mov.CompanyID != companyID {
		return writeError(c, domain.ErrForbidden)
	}
	if err := h.lifecycle.CancelMovement(c.Context(), mov.ID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"message": "movimiento anulado", "movement_id": mov.ID})
}

// DeactivateLot godoc
// @Summary      Desactivar lote
// @Description  Saca el lote de la disponibilidad FIFO; su saldo sigue contando en la posición.
// @Tags         lines
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Lote"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/lots/{id}/deactivate [post]
func (h *LinesHandler) DeactivateLot(c *fiber.Ctx) error {
	lot, err := h.ledger.GetLot(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	if lot == nil {
		return writeError(c, domain.ErrLotNotFound)
	}
	if _, err := ownedPosition(c, h.ledger, lot.PositionID); err != nil {
		return writeError(c, err)
	}
	if err := h.lifecycle.DeactivateLot(c.Context(), lot.ID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"message": "lote desactivado", "lot_id": lot.ID})
}
