package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/healtheconlab/ceflow/pkg/schema"
)

// ruleSeverity classifies what a triggered rule contributes to the result.
type ruleSeverity int

const (
	severityError ruleSeverity = iota
	severityWarning
	severitySuggestion
)

// rule is one plausibility check expressed in expr. The expression is
// evaluated per parameter with {name, value, low, high, quality} in scope and
// triggers when it returns true.
type rule struct {
	Expression string
	Severity   ruleSeverity
	Message    string
}

// Domain findings are always data in the validation result, never Go errors.
// The Run method only fails on rule compilation or evaluation defects.
var parameterRules = []rule{
	{
		Expression: `(name contains "prob" or name contains "probability") and (value < 0 or value > 1)`,
		Severity:   severityError,
		Message:    "probability %s = %g not in [0, 1]",
	},
	{
		Expression: `name contains "utility" and (value < 0 or value > 1)`,
		Severity:   severityError,
		Message:    "utility %s = %g not in [0, 1]",
	},
	{
		Expression: `name contains "utility" and value > 0.95`,
		Severity:   severityWarning,
		Message:    "utility %s = %g seems very high",
	},
	{
		Expression: `name contains "cost" and value < 0`,
		Severity:   severityError,
		Message:    "cost %s = %g is negative",
	},
	{
		Expression: `high > low and low != 0 and (high - low) / low > 1.0`,
		Severity:   severityWarning,
		Message:    "parameter %s has a wide uncertainty range (%g)",
	},
	{
		Expression: `quality == "low"`,
		Severity:   severitySuggestion,
		Message:    "parameter %s is backed by low-quality evidence; consider a targeted search",
	},
}

// Validator checks model structure and parameters for internal consistency
// and plausibility. Compiled rule programs are cached and shared across runs.
type Validator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{cache: make(map[string]*vm.Program)}
}

// Run evaluates every rule over every parameter and checks structural
// completeness. Implausible values, missing inputs and quality concerns all
// land in the result; an error return means the validator itself broke.
func (v *Validator) Run(_ context.Context, model *Model) (*ValidationResult, error) {
	if model == nil {
		return nil, schema.NewError(schema.ErrCodeStepExecution, "nil model")
	}

	result := &ValidationResult{
		Errors:      []string{},
		Warnings:    []string{},
		Suggestions: []string{},
	}

	for name, p := range model.Parameters {
		env := map[string]any{
			"name":    strings.ToLower(name),
			"value":   p.Value,
			"low":     p.Low,
			"high":    p.High,
			"quality": p.Quality,
		}
		for _, r := range parameterRules {
			triggered, err := v.eval(r.Expression, env)
			if err != nil {
				return nil, err
			}
			if !triggered {
				continue
			}
			msg := formatFinding(r.Message, name, p)
			switch r.Severity {
			case severityError:
				result.Errors = append(result.Errors, msg)
			case severityWarning:
				result.Warnings = append(result.Warnings, msg)
			case severitySuggestion:
				result.Suggestions = append(result.Suggestions, msg)
			}
		}
	}

	for _, required := range requiredParameters(model.Type) {
		if _, ok := model.Parameters[required]; !ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("missing %s parameter", required))
		}
	}
	if len(model.Structure) == 0 {
		result.Errors = append(result.Errors, "model structure is empty")
	}

	if len(result.Errors) == 0 && len(result.Warnings) == 0 {
		result.Suggestions = append(result.Suggestions, "model parameters look good")
	}
	result.Valid = len(result.Errors) == 0
	return result, nil
}

func (v *Validator) eval(expression string, env map[string]any) (bool, error) {
	prg, err := v.getOrCompile(expression)
	if err != nil {
		return false, err
	}
	out, err := vm.Run(prg, env)
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeStepExecution,
			"rule evaluation failed for %q: %s", expression, err.Error()).WithCause(err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeStepExecution,
			"rule %q did not return a boolean", expression)
	}
	return b, nil
}

func (v *Validator) getOrCompile(expression string) (*vm.Program, error) {
	v.mu.RLock()
	if prg, ok := v.cache[expression]; ok {
		v.mu.RUnlock()
		return prg, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()
	if prg, ok := v.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStepExecution,
			"compile rule %q: %s", expression, err.Error()).WithCause(err)
	}
	v.cache[expression] = prg
	return prg, nil
}

func formatFinding(template, name string, p Parameter) string {
	switch strings.Count(template, "%") {
	case 2:
		if strings.Contains(template, "uncertainty") {
			return fmt.Sprintf(template, name, p.High-p.Low)
		}
		return fmt.Sprintf(template, name, p.Value)
	default:
		return fmt.Sprintf(template, name)
	}
}
