package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/inventario-valorizacion/internal/application/inventory"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/repository"
	"github.com/jhoicas/inventario-valorizacion/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Ledger    repository.LedgerRepository
	Engine    *inventory.StockEngine
	Policies  *inventory.PolicyRegistry
	Resolver  inventory.PolicyResolver
	Lifecycle *inventory.LotLifecycleManager
	Kardex    *inventory.KardexBuilder
	KardexPDF inventory.KardexPDFGenerator
	JWTSecret string
	JWTIssuer string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret, deps.JWTIssuer))
	readers := RequireRole(jwt.RoleAdmin, jwt.RoleContador, jwt.RoleBodeguero)
	writers := RequireRole(jwt.RoleAdmin, jwt.RoleBodeguero)
	accounting := RequireRole(jwt.RoleAdmin, jwt.RoleContador)

	inv := protected.Group("/inventory")

	// Consultas de valuación
	valuation := NewValuationHandler(deps.Ledger, deps.Engine, deps.Policies, deps.Resolver)
	inv.Get("/positions", readers, valuation.FindPosition)
	inv.Get("/positions/:id/stock", readers, valuation.PositionStock)
	inv.Get("/positions/:id/average-cost", readers, valuation.AverageCost)
	inv.Post("/positions/:id/allocation-preview", readers, valuation.AllocationPreview)
	inv.Get("/lots/:id/stock", readers, valuation.LotStock)

	// Kardex
	kardex := NewKardexHandler(deps.Ledger, deps.Kardex, deps.KardexPDF, deps.Resolver)
	inv.Get("/positions/:id/kardex", readers, kardex.Kardex)
	inv.Get("/positions/:id/kardex.pdf", readers, kardex.KardexPDF)

	// Escrituras en el libro
	lines := NewLinesHandler(deps.Lifecycle, deps.Ledger, deps.Resolver)
	inv.Post("/lines/inbound", writers, lines.Inbound)
	inv.Post("/lines/outbound", writers, lines.Outbound)
	inv.Post("/lines/adjustment", writers, lines.Adjustment)

	// Reversiones (contabilidad)
	inv.Post("/movements/:id/cancel", accounting, lines.CancelMovement)
	inv.Post("/lots/:id/deactivate", accounting, lines.DeactivateLot)
}
