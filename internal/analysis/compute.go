package analysis

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/healtheconlab/ceflow/pkg/schema"
)

// Calculator runs the economic computations: the deterministic base case and
// the two sensitivity passes derived from it.
type Calculator struct {
	// Simulations is the PSA sample count.
	Simulations int
	// Seed fixes the PSA random stream. Zero means a fixed default, keeping
	// runs reproducible.
	Seed int64
}

// NewCalculator creates a Calculator with default settings.
func NewCalculator() *Calculator {
	return &Calculator{Simulations: 1000, Seed: 1}
}

// BaseCase computes discounted costs and QALYs per arm, then the incremental
// comparison: ICER and net monetary benefit at the model's threshold.
func (c *Calculator) BaseCase(_ context.Context, model *Model) (*BaseCaseResult, error) {
	if model == nil {
		return nil, schema.NewError(schema.ErrCodeStepExecution, "nil model")
	}
	return c.baseCaseWith(model, model.Parameters), nil
}

func (c *Calculator) baseCaseWith(model *Model, params map[string]Parameter) *BaseCaseResult {
	horizon := model.TimeHorizonYears
	discount := discountFactor(model.DiscountRate, horizon)

	interventionCost := paramValue(params, "intervention_cost_annual", 15000) * horizon * discount
	comparatorCost := paramValue(params, "comparator_cost_annual", 5000) * horizon * discount
	interventionQALYs := paramValue(params, "utility_intervention", 0.75) * horizon * discount
	comparatorQALYs := paramValue(params, "utility_comparator", 0.65) * horizon * discount

	incCost := interventionCost - comparatorCost
	incQALYs := interventionQALYs - comparatorQALYs

	// ICER is undefined at zero incremental QALYs. It is reported as 0 there
	// so results stay JSON-serializable; dominance is still visible in NMB.
	var icer float64
	if incQALYs != 0 {
		icer = incCost / incQALYs
	}

	nmb := incQALYs*model.WTPThreshold - incCost

	return &BaseCaseResult{
		InterventionCost:  round2(interventionCost),
		ComparatorCost:    round2(comparatorCost),
		InterventionQALYs: round2(interventionQALYs),
		ComparatorQALYs:   round2(comparatorQALYs),
		IncrementalCost:   round2(incCost),
		IncrementalQALYs:  round2(incQALYs),
		ICER:              round2(icer),
		NMB:               round2(nmb),
		CostEffective:     nmb > 0,
	}
}

// DSA runs a one-way deterministic sensitivity analysis: each parameter is
// swung to its low and high bound while the rest stay at base values, and the
// tornado is sorted by ICER impact.
func (c *Calculator) DSA(_ context.Context, model *Model, base *BaseCaseResult) (*DSAResult, error) {
	if model == nil || base == nil {
		return nil, schema.NewError(schema.ErrCodeStepExecution, "DSA requires model and base case result")
	}

	var tornado []TornadoEntry
	for name, p := range model.Parameters {
		low, high := p.Low, p.High
		if low == 0 && high == 0 {
			low, high = p.Value*0.8, p.Value*1.2
		}

		icerLow := c.baseCaseWith(model, overrideParam(model.Parameters, name, low)).ICER
		icerHigh := c.baseCaseWith(model, overrideParam(model.Parameters, name, high)).ICER

		tornado = append(tornado, TornadoEntry{
			Parameter: name,
			BaseValue: p.Value,
			LowValue:  low,
			HighValue: high,
			ICERLow:   icerLow,
			ICERHigh:  icerHigh,
			Impact:    round2(math.Abs(icerHigh - icerLow)),
		})
	}

	sort.Slice(tornado, func(i, j int) bool {
		if tornado[i].Impact != tornado[j].Impact {
			return tornado[i].Impact > tornado[j].Impact
		}
		return tornado[i].Parameter < tornado[j].Parameter
	})

	top := len(tornado)
	if top > 5 {
		top = 5
	}
	sensitive := make([]string, 0, top)
	for _, entry := range tornado[:top] {
		sensitive = append(sensitive, entry.Parameter)
	}

	return &DSAResult{Tornado: tornado, MostSensitive: sensitive}, nil
}

// PSA draws correlated-free normal samples around the base incremental cost
// and QALYs, then derives the acceptability curve over a threshold grid.
func (c *Calculator) PSA(ctx context.Context, model *Model, base *BaseCaseResult) (*PSAResult, error) {
	if model == nil || base == nil {
		return nil, schema.NewError(schema.ErrCodeStepExecution, "PSA requires model and base case result")
	}

	n := c.Simulations
	if n <= 0 {
		n = 1000
	}
	seed := c.Seed
	if seed == 0 {
		seed = 1
	}
	rng := rand.New(rand.NewSource(seed))

	costs := make([]float64, n)
	qalys := make([]float64, n)
	icers := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, schema.NewError(schema.ErrCodeStepExecution, "PSA cancelled").WithCause(err)
		}
		costs[i] = base.IncrementalCost + rng.NormFloat64()*math.Abs(base.IncrementalCost)*0.2
		qalys[i] = base.IncrementalQALYs + rng.NormFloat64()*math.Abs(base.IncrementalQALYs)*0.15
		if qalys[i] != 0 {
			icers = append(icers, costs[i]/qalys[i])
		}
	}

	const (
		wtpMax    = 150000.0
		wtpPoints = 31
	)
	ceac := make([]CEACPoint, 0, wtpPoints)
	for i := 0; i < wtpPoints; i++ {
		wtp := wtpMax * float64(i) / float64(wtpPoints-1)
		winners := 0
		for j := 0; j < n; j++ {
			if qalys[j]*wtp-costs[j] > 0 {
				winners++
			}
		}
		ceac = append(ceac, CEACPoint{
			WTP:         round2(wtp),
			Probability: round2(float64(winners) / float64(n)),
		})
	}

	meanICER := 0.0
	if base.IncrementalQALYs != 0 {
		meanICER = mean(costs) / mean(qalys)
	}

	return &PSAResult{
		Simulations:      n,
		MeanICER:         round2(meanICER),
		CredibleInterval: [2]float64{round2(percentile(icers, 2.5)), round2(percentile(icers, 97.5))},
		CEAC:             ceac,
	}, nil
}

func overrideParam(params map[string]Parameter, name string, value float64) map[string]Parameter {
	out := make(map[string]Parameter, len(params))
	for k, v := range params {
		out[k] = v
	}
	p := out[name]
	p.Value = value
	out[name] = p
	return out
}

func paramValue(params map[string]Parameter, name string, fallback float64) float64 {
	if p, ok := params[name]; ok {
		return p.Value
	}
	return fallback
}

func discountFactor(rate, horizon float64) float64 {
	if rate <= 0 || horizon <= 0 {
		return 1
	}
	// Average discount factor over the horizon, applied uniformly.
	return (1 - math.Pow(1+rate, -horizon)) / (rate * horizon)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func percentile(xs []float64, pct float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	idx := pct / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func round2(x float64) float64 {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return x
	}
	return math.Round(x*100) / 100
}
