package ai

// Per-1K-token USD rates by concrete model. Unknown models cost zero rather
// than failing: a missing rate must never break a turn.
type rate struct {
	inPer1K  float64
	outPer1K float64
}

var rates = map[string]rate{
	// OpenAI
	"gpt-4o":        {inPer1K: 0.0025, outPer1K: 0.01},
	"gpt-4o-mini":   {inPer1K: 0.00015, outPer1K: 0.0006},
	"gpt-4-turbo":   {inPer1K: 0.01, outPer1K: 0.03},
	"gpt-3.5-turbo": {inPer1K: 0.0005, outPer1K: 0.0015},

	// Anthropic
	"claude-3-5-sonnet-20241022": {inPer1K: 0.003, outPer1K: 0.015},
	"claude-3-5-haiku-20241022":  {inPer1K: 0.0008, outPer1K: 0.004},
	"claude-3-opus-20240229":     {inPer1K: 0.015, outPer1K: 0.075},
	"claude-3-haiku-20240307":    {inPer1K: 0.00025, outPer1K: 0.00125},
}

// EstimateCost returns the USD cost for separated input/output token counts.
func EstimateCost(model string, tokensIn, tokensOut int) float64 {
	r, ok := rates[model]
	if !ok {
		return 0
	}
	return float64(tokensIn)/1000*r.inPer1K + float64(tokensOut)/1000*r.outPer1K
}

// EstimateCostBlended returns the USD cost for a provider that reports only a
// total token count, assuming a 50/50 input/output split.
func EstimateCostBlended(model string, totalTokens int) float64 {
	half := totalTokens / 2
	return EstimateCost(model, half, totalTokens-half)
}
