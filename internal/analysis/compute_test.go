package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T) *Model {
	t.Helper()
	parsed := &ParsedRequest{ModelType: ModelMarkov, DiseaseArea: "diabetes"}
	ev, err := NewCatalogProvider().Retrieve(context.Background(), parsed)
	require.NoError(t, err)
	model, err := NewBuilder().Build(context.Background(), parsed, ev)
	require.NoError(t, err)
	return model
}

func TestBaseCase(t *testing.T) {
	calc := NewCalculator()
	model := newTestModel(t)

	result, err := calc.BaseCase(context.Background(), model)
	require.NoError(t, err)

	// Discounting cancels in the ratio, so the ICER is exactly the
	// undiscounted incremental cost per incremental QALY.
	assert.InDelta(t, 100000.0, result.ICER, 0.01)
	assert.Greater(t, result.IncrementalCost, 0.0)
	assert.Greater(t, result.IncrementalQALYs, 0.0)
	assert.InDelta(t, 85302.03, result.IncrementalCost, 0.1)
	assert.InDelta(t, -42651.01, result.NMB, 0.1)
	assert.False(t, result.CostEffective)
}

func TestBaseCaseNilModel(t *testing.T) {
	calc := NewCalculator()

	_, err := calc.BaseCase(context.Background(), nil)
	require.Error(t, err)
}

func TestDSATornadoOrdering(t *testing.T) {
	calc := NewCalculator()
	model := newTestModel(t)

	base, err := calc.BaseCase(context.Background(), model)
	require.NoError(t, err)
	result, err := calc.DSA(context.Background(), model, base)
	require.NoError(t, err)

	require.Len(t, result.Tornado, len(model.Parameters))
	for i := 1; i < len(result.Tornado); i++ {
		assert.GreaterOrEqual(t, result.Tornado[i-1].Impact, result.Tornado[i].Impact)
	}
	// The comparator utility swings incremental QALYs hardest.
	assert.Equal(t, "utility_comparator", result.Tornado[0].Parameter)
	assert.Equal(t, result.Tornado[0].Parameter, result.MostSensitive[0])
	assert.LessOrEqual(t, len(result.MostSensitive), 5)
}

func TestDSAFallbackRangeWhenUnbounded(t *testing.T) {
	calc := NewCalculator()
	model := newTestModel(t)
	model.Parameters["flat_param"] = Parameter{Value: 10}

	base, err := calc.BaseCase(context.Background(), model)
	require.NoError(t, err)
	result, err := calc.DSA(context.Background(), model, base)
	require.NoError(t, err)

	var entry *TornadoEntry
	for i := range result.Tornado {
		if result.Tornado[i].Parameter == "flat_param" {
			entry = &result.Tornado[i]
		}
	}
	require.NotNil(t, entry)
	assert.InDelta(t, 8.0, entry.LowValue, 0.001)
	assert.InDelta(t, 12.0, entry.HighValue, 0.001)
}

func TestPSAReproducible(t *testing.T) {
	model := newTestModel(t)
	ctx := context.Background()

	calc := NewCalculator()
	base, err := calc.BaseCase(ctx, model)
	require.NoError(t, err)

	first, err := calc.PSA(ctx, model, base)
	require.NoError(t, err)
	second, err := calc.PSA(ctx, model, base)
	require.NoError(t, err)

	assert.Equal(t, first.MeanICER, second.MeanICER)
	assert.Equal(t, first.CEAC, second.CEAC)
}

func TestPSACEACShape(t *testing.T) {
	calc := NewCalculator()
	model := newTestModel(t)
	ctx := context.Background()

	base, err := calc.BaseCase(ctx, model)
	require.NoError(t, err)
	result, err := calc.PSA(ctx, model, base)
	require.NoError(t, err)

	assert.Equal(t, 1000, result.Simulations)
	require.Len(t, result.CEAC, 31)
	assert.Equal(t, 0.0, result.CEAC[0].WTP)
	assert.InDelta(t, 150000.0, result.CEAC[len(result.CEAC)-1].WTP, 0.01)

	// With positive incremental cost, nothing is cost-effective at zero
	// willingness to pay; nearly everything is at the top of the grid.
	assert.Less(t, result.CEAC[0].Probability, 0.05)
	assert.Greater(t, result.CEAC[len(result.CEAC)-1].Probability, 0.8)

	assert.InDelta(t, 100000.0, result.MeanICER, 20000.0)
	assert.Less(t, result.CredibleInterval[0], result.CredibleInterval[1])
}
