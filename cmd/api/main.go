package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/inventario-valorizacion/internal/application/inventory"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/repository"
	infracache "github.com/jhoicas/inventario-valorizacion/internal/infrastructure/cache"
	"github.com/jhoicas/inventario-valorizacion/internal/infrastructure/memory"
	infrapdf "github.com/jhoicas/inventario-valorizacion/internal/infrastructure/pdf"
	"github.com/jhoicas/inventario-valorizacion/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/inventario-valorizacion/internal/interfaces/http"
	"github.com/jhoicas/inventario-valorizacion/pkg/config"
	"github.com/jhoicas/inventario-valorizacion/pkg/logger"
)

const swaggerFile = "./docs/swagger.json"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("ledger", cfg.Ledger.Backend).
		Str("cache", cfg.Cache.Backend).
		Msg("iniciando aplicación")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Libro de inventario: PostgreSQL o memoria (desarrollo y demos)
	var (
		ledger   repository.LedgerRepository
		txRunner inventory.TxRunner
	)
	switch cfg.Ledger.Backend {
	case "memory":
		store := memory.NewStore()
		ledger, txRunner = store.Ledger(), store.TxRunner()
		log.Warn().Msg("libro en memoria: los datos se pierden al reiniciar")
	default:
		if cfg.Ledger.AutoMigrations {
			migrator, err := postgres.NewMigrator(cfg.DB.ConnectionString(), log.Named("migrate"))
			if err != nil {
				log.Fatal().Err(err).Msg("migrador")
			}
			if err := migrator.Up(); err != nil {
				log.Fatal().Err(err).Msg("aplicar migraciones")
			}
			_ = migrator.Close()
		}
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a PostgreSQL")
		}
		defer pool.Close()
		ledger, txRunner = postgres.NewLedgerRepository(pool), postgres.NewTxRunner(pool)
	}

	// Caché de valuación
	var cache inventory.ValuationCache
	switch cfg.Cache.Backend {
	case "redis":
		rc, err := infracache.NewRedisValuationCache(ctx, infracache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		}, log.Named("cache"))
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a Redis")
		}
		defer rc.Close()
		cache = rc
	default:
		cache = infracache.NewMemoryValuationCache(infracache.WithLogger(log.Named("cache")))
	}
	if cfg.Cache.SweepInterval > 0 {
		go sweep(ctx, cache, cfg.Cache.SweepInterval, log.Named("cache"))
	}

	resolver, err := inventory.NewStaticPolicyResolver(cfg.Valuation.DefaultPolicy, cfg.Valuation.CompanyPolicies)
	if err != nil {
		log.Fatal().Err(err).Msg("políticas de valuación")
	}

	ttl := inventory.TTLClasses{Short: cfg.Cache.TTLShort, Medium: cfg.Cache.TTLMedium, Long: cfg.Cache.TTLLong}
	engine := inventory.NewStockEngine(ledger, cache, ttl, log.Named("stock"))
	policies := inventory.DefaultPolicyRegistry()
	lifecycle := inventory.NewLotLifecycleManager(txRunner, engine, cache, policies, log.Named("lifecycle"))
	kardex := inventory.NewKardexBuilder(ledger, engine)
	kardexPDF := infrapdf.NewKardexPDFGenerator()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	if _, err := os.Stat(swaggerFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/",
			FilePath: swaggerFile,
			Path:     "docs",
			Title:    "Valorización de Inventario API",
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Ledger:    ledger,
		Engine:    engine,
		Policies:  policies,
		Resolver:  resolver,
		Lifecycle: lifecycle,
		Kardex:    kardex,
		KardexPDF: kardexPDF,
		JWTSecret: cfg.JWT.Secret,
		JWTIssuer: cfg.JWT.Issuer,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}

// sweep depura entradas vencidas de la caché hasta que se cancele ctx.
func sweep(ctx context.Context, cache inventory.ValuationCache, every time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := cache.SweepExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("barrido de caché")
				continue
			}
			if n > 0 {
				log.Debug().Int("removed", n).Msg("barrido de caché")
			}
		}
	}
}
