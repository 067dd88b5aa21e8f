package entity

import "time"

// Position par (producto, bodega) cuyo stock y costo se derivan del libro.
// No tiene campos de cantidad ni costo persistidos.
type Position struct {
	ID          string
	CompanyID   string
	ProductID   string
	WarehouseID string
	CreatedAt   time.Time
}
