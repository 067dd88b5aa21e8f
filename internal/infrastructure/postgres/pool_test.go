package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-valorizacion/pkg/config"
)

func TestPoolConfig(t *testing.T) {
	cfg := config.DBConfig{Host: "db", Port: 5432, User: "app", Password: "secret", DBName: "inv", SSLMode: "disable"}

	pc, err := poolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(defaultMaxConns), pc.MaxConns)
	assert.Equal(t, "db", pc.ConnConfig.Host)
	assert.Equal(t, "inv", pc.ConnConfig.Database)
	assert.NotNil(t, pc.AfterConnect)

	cfg.MaxConns = 7
	pc, err = poolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(7), pc.MaxConns)
}

func TestPoolConfig_DatabaseURLInvalida(t *testing.T) {
	_, err := poolConfig(config.DBConfig{DatabaseURL: "postgres://app@db:puerto/inv"})
	assert.Error(t, err)
}
