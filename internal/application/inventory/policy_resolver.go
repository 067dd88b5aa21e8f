package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/inventario-valorizacion/internal/domain"
	"github.com/jhoicas/inventario-valorizacion/internal/domain/entity"
)

// StaticPolicyResolver política por defecto con excepciones por empresa, leídas de configuración.
// No conoce periodos: la fecha se ignora.
type StaticPolicyResolver struct {
	Default   entity.ValuationPolicy
	Overrides map[string]entity.ValuationPolicy
}

// PolicyFor implementa PolicyResolver.
func (r StaticPolicyResolver) PolicyFor(_ context.Context, companyID string, _ time.Time) (entity.ValuationPolicy, error) {
	if p, ok := r.Overrides[companyID]; ok {
		return p, nil
	}
	if r.Default == "" {
		return entity.PolicyWeightedAverage, nil
	}
	return r.Default, nil
}

// NewStaticPolicyResolver parsea la política por defecto y la lista "empresa=POLITICA,otra=POLITICA".
func NewStaticPolicyResolver(defaultPolicy, companyPolicies string) (StaticPolicyResolver, error) {
	r := StaticPolicyResolver{Default: entity.PolicyWeightedAverage}
	if strings.TrimSpace(defaultPolicy) != "" {
		p, err := entity.ParseValuationPolicy(defaultPolicy)
		if err != nil {
			return r, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		r.Default = p
	}
	overrides, err := ParseCompanyPolicies(companyPolicies)
	if err != nil {
		return r, err
	}
	r.Overrides = overrides
	return r, nil
}

// ParseCompanyPolicies convierte "empresa=FIFO,otra=PROMEDIO_PONDERADO" en un mapa.
func ParseCompanyPolicies(raw string) (map[string]entity.ValuationPolicy, error) {
	out := make(map[string]entity.ValuationPolicy)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		company, policy, ok := strings.Cut(pair, "=")
		company = strings.TrimSpace(company)
		if !ok || company == "" {
			return nil, fmt.Errorf("%w: política por empresa mal formada: %q", domain.ErrInvalidInput, pair)
		}
		p, err := entity.ParseValuationPolicy(policy)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		out[company] = p
	}
	return out, nil
}
