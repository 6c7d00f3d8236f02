package routing

import (
	"github.com/Env1ct/Conversa/internal/ai"
	"github.com/Env1ct/Conversa/internal/model"
)

// policy encodes the product's cost/quality tradeoff: which model tier serves
// each (plan, complexity) pair. Total over both enums; tests enforce
// completeness.
var policy = map[model.Plan]map[Complexity]ai.Tier{
	model.PlanEnterprise: {
		ComplexitySimple:  ai.TierPremiumFast,
		ComplexityMedium:  ai.TierPremiumFast,
		ComplexityComplex: ai.TierPremiumDeep,
	},
	model.PlanBusiness: {
		ComplexitySimple:  ai.TierEconomy,
		ComplexityMedium:  ai.TierStandard,
		ComplexityComplex: ai.TierStandard,
	},
	model.PlanProfessional: {
		ComplexitySimple:  ai.TierEconomy,
		ComplexityMedium:  ai.TierEconomy,
		ComplexityComplex: ai.TierStandard,
	},
	model.PlanStarter: {
		ComplexitySimple:  ai.TierEconomy,
		ComplexityMedium:  ai.TierEconomy,
		ComplexityComplex: ai.TierEconomy,
	},
}

// Select maps a tenant plan and message complexity to a model tier. Unknown
// plans get the starter row; an unknown complexity falls back to the economy
// tier so Select is total.
func Select(plan model.Plan, cx Complexity) ai.Tier {
	row := policy[plan.Normalize()]
	if tier, ok := row[cx]; ok {
		return tier
	}
	return ai.TierEconomy
}
