package dto

import "github.com/shopspring/decimal"

// Las fechas llegan como YYYY-MM-DD o RFC3339.

// InboundLineRequest body para POST /api/inventory/lines/inbound.
type InboundLineRequest struct {
	VoucherID    string           `json:"voucher_id"`
	ProductID    string           `json:"product_id"`
	WarehouseID  string           `json:"warehouse_id"`
	EmissionDate string           `json:"emission_date"`
	Quantity     decimal.Decimal  `json:"quantity"`
	UnitCost     *decimal.Decimal `json:"unit_cost"`
	LotCode      string           `json:"lot_code,omitempty"`
	ExpiryDate   string           `json:"expiry_date,omitempty"`
}

// OutboundLineRequest body para POST /api/inventory/lines/outbound.
// Policy vacía usa la política vigente de la empresa; Cutoff vacío usa la fecha de emisión.
type OutboundLineRequest struct {
	VoucherID    string          `json:"voucher_id"`
	ProductID    string          `json:"product_id"`
	WarehouseID  string          `json:"warehouse_id"`
	EmissionDate string          `json:"emission_date"`
	Quantity     decimal.Decimal `json:"quantity"`
	Policy       string          `json:"policy,omitempty"`
	Cutoff       string          `json:"cutoff,omitempty"`
}

// AdjustmentLineRequest body para POST /api/inventory/lines/adjustment. Quantity lleva signo.
type AdjustmentLineRequest struct {
	VoucherID    string           `json:"voucher_id"`
	ProductID    string           `json:"product_id"`
	WarehouseID  string           `json:"warehouse_id"`
	EmissionDate string           `json:"emission_date"`
	Quantity     decimal.Decimal  `json:"quantity"`
	UnitCost     *decimal.Decimal `json:"unit_cost,omitempty"`
	Policy       string           `json:"policy,omitempty"`
	LotCode      string           `json:"lot_code,omitempty"`
}

// AllocationPreviewRequest body para POST /api/inventory/positions/:id/allocation-preview.
type AllocationPreviewRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
	Policy   string          `json:"policy,omitempty"`
	Cutoff   string          `json:"cutoff,omitempty"`
}

// LotDTO lote tal como se expone en la API.
type LotDTO struct {
	ID            string          `json:"id"`
	PositionID    string          `json:"position_id"`
	Code          string          `json:"code,omitempty"`
	EntryDate     string          `json:"entry_date"`
	ExpiryDate    string          `json:"expiry_date,omitempty"`
	EntryQuantity decimal.Decimal `json:"entry_quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	Active        bool            `json:"active"`
	VoucherID     string          `json:"voucher_id,omitempty"`
}

// PositionDTO par producto/bodega.
type PositionDTO struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	WarehouseID string `json:"warehouse_id"`
	CreatedAt   string `json:"created_at"`
}

// AllocationDTO porción de una salida costeada contra un lote (o el pool PROMEDIO).
type AllocationDTO struct {
	LotID     string          `json:"lot_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// AllocationPreviewResponse plan de costeo sin escribir en el libro.
type AllocationPreviewResponse struct {
	PositionID  string          `json:"position_id"`
	Policy      string          `json:"policy"`
	Cutoff      string          `json:"cutoff"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	Allocations []AllocationDTO `json:"allocations"`
}

// AverageCostResponse costo promedio ponderado a una fecha de corte.
type AverageCostResponse struct {
	PositionID string          `json:"position_id"`
	Cutoff     string          `json:"cutoff"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

// AdjustmentResponse ajuste registrado. Lot solo en ajustes positivos.
type AdjustmentResponse struct {
	MovementID  string          `json:"movement_id"`
	PositionID  string          `json:"position_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	Lot         *LotDTO         `json:"lot,omitempty"`
	Allocations []AllocationDTO `json:"allocations,omitempty"`
}

// InsufficientStockResponse cuerpo 409 cuando no alcanza el stock.
type InsufficientStockResponse struct {
	Code       string          `json:"code"`
	Message    string          `json:"message"`
	PositionID string          `json:"position_id,omitempty"`
	Requested  decimal.Decimal `json:"requested"`
	Available  decimal.Decimal `json:"available"`
	Shortfall  decimal.Decimal `json:"shortfall"`
}
