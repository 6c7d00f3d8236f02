// Package model defines domain types for the chat platform.
package model

import (
	"time"
)

// Plan is a tenant's subscription plan.
type Plan string

const (
	PlanStarter      Plan = "starter"
	PlanProfessional Plan = "professional"
	PlanBusiness     Plan = "business"
	PlanEnterprise   Plan = "enterprise"
)

// Plans lists every known plan. Lookup tables below must cover all of them.
var Plans = []Plan{PlanStarter, PlanProfessional, PlanBusiness, PlanEnterprise}

// Normalize maps an unknown plan value to the starter plan. Policy code never
// branches on raw plan strings.
func (p Plan) Normalize() Plan {
	switch p {
	case PlanStarter, PlanProfessional, PlanBusiness, PlanEnterprise:
		return p
	default:
		return PlanStarter
	}
}

// Limits holds per-calendar-month usage caps. A value <= 0 means unlimited.
type Limits struct {
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
	Agents        int `json:"agents"`
}

// Features holds the feature set a plan entitles a tenant to.
type Features struct {
	CustomBranding   bool `json:"custom_branding"`
	PremiumModels    bool `json:"premium_models"`
	PriorityQueue    bool `json:"priority_queue"`
	AnalyticsExport  bool `json:"analytics_export"`
	DomainAllowlists bool `json:"domain_allowlists"`
}

// planLimits is the single source of truth for plan entitlements. Limits are
// never edited independently of the plan outside billing events.
var planLimits = map[Plan]Limits{
	PlanStarter:      {Conversations: 500, Messages: 2500, Agents: 1},
	PlanProfessional: {Conversations: 2500, Messages: 15000, Agents: 5},
	PlanBusiness:     {Conversations: 10000, Messages: 75000, Agents: 20},
	PlanEnterprise:   {Conversations: -1, Messages: -1, Agents: -1},
}

var planFeatures = map[Plan]Features{
	PlanStarter:      {},
	PlanProfessional: {CustomBranding: true, DomainAllowlists: true},
	PlanBusiness:     {CustomBranding: true, DomainAllowlists: true, AnalyticsExport: true},
	PlanEnterprise:   {CustomBranding: true, DomainAllowlists: true, AnalyticsExport: true, PremiumModels: true, PriorityQueue: true},
}

// PlanLimits returns the usage limits for a plan. Unknown plans get the
// starter limits.
func PlanLimits(p Plan) Limits {
	return planLimits[p.Normalize()]
}

// PlanFeatures returns the feature set for a plan.
func PlanFeatures(p Plan) Features {
	return planFeatures[p.Normalize()]
}

// Tenant is a paying customer organization. Tenants are soft-deactivated,
// never hard-deleted.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Plan      Plan      `json:"plan"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Limits returns the tenant's usage caps, derived from its plan.
func (t *Tenant) Limits() Limits {
	return PlanLimits(t.Plan)
}

// Features returns the tenant's feature set, derived from its plan.
func (t *Tenant) Features() Features {
	return PlanFeatures(t.Plan)
}
