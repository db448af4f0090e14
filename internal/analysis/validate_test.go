package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCleanModel(t *testing.T) {
	v := NewValidator()
	model := newTestModel(t)

	result, err := v.Run(context.Background(), model)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	assert.Contains(t, result.Suggestions, "model parameters look good")
}

func TestValidateUtilityOutOfRange(t *testing.T) {
	v := NewValidator()
	model := newTestModel(t)
	model.Parameters["utility_intervention"] = Parameter{Value: 1.2}

	result, err := v.Run(context.Background(), model)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "utility_intervention")
}

func TestValidateHighUtilityWarns(t *testing.T) {
	v := NewValidator()
	model := newTestModel(t)
	model.Parameters["utility_intervention"] = Parameter{Value: 0.97}

	result, err := v.Run(context.Background(), model)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "very high")
}

func TestValidateNegativeCost(t *testing.T) {
	v := NewValidator()
	model := newTestModel(t)
	model.Parameters["intervention_cost_annual"] = Parameter{Value: -100}

	result, err := v.Run(context.Background(), model)
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestValidateProbabilityBounds(t *testing.T) {
	v := NewValidator()
	model := newTestModel(t)
	model.Parameters["transition_probability"] = Parameter{Value: 1.5}

	result, err := v.Run(context.Background(), model)
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestValidateMissingRequiredParameterWarns(t *testing.T) {
	v := NewValidator()
	model := newTestModel(t)
	delete(model.Parameters, "utility_comparator")

	result, err := v.Run(context.Background(), model)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Contains(t, result.Warnings, "missing utility_comparator parameter")
}

func TestValidateEmptyStructure(t *testing.T) {
	v := NewValidator()
	model := newTestModel(t)
	model.Structure = nil

	result, err := v.Run(context.Background(), model)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "model structure is empty")
}
