package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValuationPolicy política de costeo de salidas, definida por empresa/periodo fuera de este núcleo.
type ValuationPolicy string

const (
	PolicyFIFO            ValuationPolicy = "FIFO"
	PolicyWeightedAverage ValuationPolicy = "PROMEDIO_PONDERADO"
)

// ParseValuationPolicy acepta también WEIGHTED_AVERAGE y PROMEDIO.
func ParseValuationPolicy(s string) (ValuationPolicy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FIFO", "PEPS":
		return PolicyFIFO, nil
	case "PROMEDIO_PONDERADO", "PROMEDIO", "WEIGHTED_AVERAGE":
		return PolicyWeightedAverage, nil
	}
	return "", fmt.Errorf("política de valuación desconocida: %q", s)
}

// VoucherLine línea de comprobante que dispara el ciclo de vida de lotes.
// Para ajustes la cantidad lleva signo.
type VoucherLine struct {
	CompanyID    string
	UserID       string
	VoucherID    string
	ProductID    string
	WarehouseID  string
	EmissionDate time.Time
	Quantity     decimal.Decimal
	UnitCost     *decimal.Decimal
	LotCode      string
	ExpiryDate   *time.Time
}
