package service

import (
	"strings"

	gateways "hnet_backend/internals/features/payment/gateways/service"
)

// EndpointResolver picks the IngresarPago endpoint for a company id. Some
// companies settle against their own municipality instance; everyone else
// uses the shared default endpoint.
type EndpointResolver struct {
	overrides map[string]string
}

func NewEndpointResolver(overrides map[string]string) *EndpointResolver {
	normalized := make(map[string]string, len(overrides))
	for companyID, endpoint := range overrides {
		key := gateways.NormalizeCompanyID(companyID)
		if key == "" {
			continue
		}
		normalized[key] = strings.TrimSpace(endpoint)
	}
	return &EndpointResolver{overrides: normalized}
}

// Resolve returns the endpoint override for companyID, or "" when the
// company uses the default endpoint (no entry, or a blank entry).
func (r *EndpointResolver) Resolve(companyID string) string {
	normalized := gateways.NormalizeCompanyID(companyID)
	if normalized == "" {
		return ""
	}
	return r.overrides[normalized]
}
