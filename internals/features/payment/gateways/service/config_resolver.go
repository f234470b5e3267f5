package service

import (
	"strings"
)

/* ===================== Company profiles ===================== */

// CompanyProfile carries the gateway credentials and routing of one company.
// Empty fields of a company-specific profile fall back to the shared one.
type CompanyProfile struct {
	CompanyID    string `json:"company_id"`
	Label        string `json:"label"`
	CommerceCode string `json:"commerce_code"`
	APIKey       string `json:"api_key"`
	Environment  string `json:"environment"`
	FinalURL     string `json:"final_url"`
}

// ConfigResolver selects the gateway profile for a company id, falling back
// to the shared default profile when no company-specific entry exists.
type ConfigResolver struct {
	shared    CompanyProfile
	byCompany map[string]CompanyProfile
}

func NewConfigResolver(shared CompanyProfile, companies []CompanyProfile) *ConfigResolver {
	resolver := &ConfigResolver{
		shared:    shared,
		byCompany: make(map[string]CompanyProfile, len(companies)),
	}

	for _, candidate := range companies {
		profile := resolver.buildProfile(candidate)
		if profile.CompanyID == "" {
			continue
		}
		resolver.byCompany[profile.CompanyID] = profile
	}

	return resolver
}

// ResolveByCompanyID returns the company's profile, or the shared default.
func (r *ConfigResolver) ResolveByCompanyID(companyID string) CompanyProfile {
	normalized := NormalizeCompanyID(companyID)
	if normalized != "" {
		if profile, ok := r.byCompany[normalized]; ok {
			return profile
		}
	}
	return r.DefaultProfile()
}

func (r *ConfigResolver) DefaultProfile() CompanyProfile {
	return r.shared
}

// buildProfile overlays the candidate on the shared profile, field by field.
func (r *ConfigResolver) buildProfile(candidate CompanyProfile) CompanyProfile {
	profile := r.shared
	profile.CompanyID = NormalizeCompanyID(candidate.CompanyID)

	if strings.TrimSpace(candidate.Label) != "" {
		profile.Label = strings.TrimSpace(candidate.Label)
	} else if profile.CompanyID != "" {
		profile.Label = profile.CompanyID
	}

	if candidate.CommerceCode != "" {
		profile.CommerceCode = candidate.CommerceCode
	}
	if candidate.APIKey != "" {
		profile.APIKey = candidate.APIKey
	}
	if candidate.Environment != "" {
		profile.Environment = candidate.Environment
	}
	if candidate.FinalURL != "" {
		profile.FinalURL = candidate.FinalURL
	}

	return profile
}

// NormalizeCompanyID uppercases the id and strips everything outside [0-9A-Z],
// so "76.734.662-k" and "76734662K" address the same company.
func NormalizeCompanyID(value string) string {
	upper := strings.ToUpper(strings.TrimSpace(value))

	var normalized strings.Builder
	for _, r := range upper {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') {
			normalized.WriteRune(r)
		}
	}
	return normalized.String()
}
