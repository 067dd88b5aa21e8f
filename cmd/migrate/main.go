// migrate aplica el esquema del libro de inventario con las migraciones embebidas.
//
// Uso: go run ./cmd/migrate [up|down|steps N|version]
// Lee DATABASE_URL (o DB_HOST, DB_PORT, ...) igual que la API.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jhoicas/inventario-valorizacion/internal/infrastructure/postgres"
	"github.com/jhoicas/inventario-valorizacion/pkg/config"
	"github.com/jhoicas/inventario-valorizacion/pkg/logger"
)

func main() {
	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cargar configuración: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	mg, err := postgres.NewMigrator(cfg.DB.ConnectionString(), log.Named("migrate"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Crear migrador: %v\n", err)
		os.Exit(1)
	}
	defer mg.Close()

	switch cmd {
	case "up":
		err = mg.Up()
	case "down":
		err = mg.Down()
	case "steps":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Uso: migrate steps N")
			os.Exit(2)
		}
		n, convErr := strconv.Atoi(os.Args[2])
		if convErr != nil {
			fmt.Fprintf(os.Stderr, "N inválido: %v\n", convErr)
			os.Exit(2)
		}
		err = mg.Steps(n)
	case "version":
		v, dirty, verr := mg.Version()
		if verr != nil {
			err = verr
			break
		}
		fmt.Printf("versión %d (dirty=%t)\n", v, dirty)
	default:
		fmt.Fprintf(os.Stderr, "Comando desconocido %q (up|down|steps N|version)\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migración: %v\n", err)
		os.Exit(1)
	}
}
