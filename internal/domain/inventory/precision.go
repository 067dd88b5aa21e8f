package inventory

import "github.com/shopspring/decimal"

// Precisión de presentación. Los cálculos internos se hacen a precisión completa
// y se redondean solo al exponer resultados.
const (
	QuantityPlaces int32 = 4
	CostPlaces     int32 = 4
	TotalPlaces    int32 = 2
)

// RoundQuantity redondea una cantidad a 4 decimales.
func RoundQuantity(d decimal.Decimal) decimal.Decimal { return d.Round(QuantityPlaces) }

// RoundCost redondea un costo unitario a 4 decimales.
func RoundCost(d decimal.Decimal) decimal.Decimal { return d.Round(CostPlaces) }

// RoundTotal redondea un total (cantidad × costo) a 2 decimales.
func RoundTotal(d decimal.Decimal) decimal.Decimal { return d.Round(TotalPlaces) }
