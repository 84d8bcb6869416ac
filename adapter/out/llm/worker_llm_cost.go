package llm

import (
	"strings"
	"sync"

	"sponsor_worker/pkg/metrics"
)

// USD per 1M tokens. Unknown models cost 0 but still count tokens.
var modelPricing = map[string]struct {
	InputPer1M  float64
	OutputPer1M float64
}{
	"gpt-4o-mini":  {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4o":       {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4.1-mini": {InputPer1M: 0.40, OutputPer1M: 1.60},
	"gpt-4.1":      {InputPer1M: 2.00, OutputPer1M: 8.00},
}

// CalculateCost estimates the cost of one completion. Dated model
// snapshots ("gpt-4o-mini-2024-07-18") use their base model's price.
func CalculateCost(model string, promptTokens, completionTokens int) float64 {
	pricing, ok := modelPricing[model]
	if !ok {
		best := ""
		for name := range modelPricing {
			if strings.HasPrefix(model, name+"-") && len(name) > len(best) {
				best = name
			}
		}
		if best == "" {
			return 0
		}
		pricing = modelPricing[best]
	}
	return float64(promptTokens)/1_000_000*pricing.InputPer1M +
		float64(completionTokens)/1_000_000*pricing.OutputPer1M
}

// CostTracker accumulates token usage for the life of a client, which is
// one CLI run or one serve process.
type CostTracker struct {
	mu    sync.Mutex
	stats CostStats
}

type CostStats struct {
	Requests         int64   `json:"requests"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalCost        float64 `json:"total_cost"`
}

func NewCostTracker() *CostTracker {
	return &CostTracker{}
}

// Track records one completion and returns its cost.
func (t *CostTracker) Track(model string, promptTokens, completionTokens int) float64 {
	cost := CalculateCost(model, promptTokens, completionTokens)
	metrics.RecordLLMUsage(model, promptTokens, completionTokens, cost)

	t.mu.Lock()
	t.stats.Requests++
	t.stats.PromptTokens += int64(promptTokens)
	t.stats.CompletionTokens += int64(completionTokens)
	t.stats.TotalCost += cost
	t.mu.Unlock()
	return cost
}

func (t *CostTracker) Snapshot() CostStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
