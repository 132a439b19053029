package domain

import "time"

// FeatureSLA gates the SLA policy and status endpoints.
const FeatureSLA = "helpdesk_sla"

// Entitlement records whether a tenant may use a feature.
type Entitlement struct {
	TenantID    string
	Feature     string
	Enabled     bool
	TrialEndsAt *time.Time
	UpdatedAt   time.Time
}

// Active reports whether the feature is usable at now: explicitly enabled or
// still inside its trial window.
func (e *Entitlement) Active(now time.Time) bool {
	if e.Enabled {
		return true
	}
	return e.TrialEndsAt != nil && now.Before(*e.TrialEndsAt)
}
