package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	tok, err := Generate("secreto", "u-1", "c-1", RoleContador, "inventory-pro", time.Hour)
	require.NoError(t, err)

	claims, err := Parse("secreto", "inventory-pro", tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "c-1", claims.CompanyID)
	assert.Equal(t, RoleContador, claims.Role)
}

func TestParse_Rejects(t *testing.T) {
	valid, err := Generate("secreto", "u-1", "c-1", RoleAdmin, "inventory-pro", time.Hour)
	require.NoError(t, err)
	expired, err := Generate("secreto", "u-1", "c-1", RoleAdmin, "inventory-pro", -time.Minute)
	require.NoError(t, err)
	noCompany, err := Generate("secreto", "u-1", "", RoleAdmin, "inventory-pro", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		issuer string
		token  string
	}{
		{"firma incorrecta", "otro", "inventory-pro", valid},
		{"emisor distinto", "secreto", "otro-emisor", valid},
		{"expirado", "secreto", "inventory-pro", expired},
		{"sin empresa", "secreto", "inventory-pro", noCompany},
		{"basura", "secreto", "", "no-es-un-token"},
		{"secret vacío", "", "", valid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.secret, tt.issuer, tt.token)
			assert.Error(t, err)
		})
	}
}

func TestGenerate_EmptySecret(t *testing.T) {
	_, err := Generate("", "u", "c", RoleAdmin, "i", time.Hour)
	assert.Error(t, err)
}
