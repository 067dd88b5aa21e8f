package inventory

import "github.com/shopspring/decimal"

// Portion porción de stock valorizada (un lote con su saldo).
type Portion struct {
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
}

// WeightedAverage implementa el costo promedio ponderado (servicio de dominio).
// Costo = Σ(Cantidad * Costo) / Σ(Cantidad), considerando solo porciones con cantidad positiva.
// Devuelve la cantidad total, el valor total (precisión completa) y el costo unitario redondeado;
// con cantidad cero el costo es cero (sin división por cero).
func WeightedAverage(portions []Portion) (qty, value, unitCost decimal.Decimal) {
	qty, value = decimal.Zero, decimal.Zero
	for _, p := range portions {
		if !p.Quantity.IsPositive() {
			continue
		}
		qty = qty.Add(p.Quantity)
		value = value.Add(p.Quantity.Mul(p.UnitCost))
	}
	if qty.IsZero() {
		return decimal.Zero, decimal.Zero, decimal.Zero
	}
	return qty, value, RoundCost(value.Div(qty))
}
