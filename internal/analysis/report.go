package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/healtheconlab/ceflow/pkg/schema"
)

// Reporter renders the human-readable analysis summary. Field extraction from
// the accumulated outputs goes through jq expressions, so the renderer never
// assumes which sections are present. Compiled queries are cached and shared.
type Reporter struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewReporter creates a Reporter.
func NewReporter() *Reporter {
	return &Reporter{cache: make(map[string]*gojq.Code)}
}

// reportSection is one block of the rendered report. Query selects the
// section's data from the output document; absent data skips the section.
type reportSection struct {
	Title  string
	Query  string
	Render func(v any) []string
}

var reportSections = []reportSection{
	{
		Title: "Analysis",
		Query: `.parsed // empty`,
		Render: func(v any) []string {
			m, _ := v.(map[string]any)
			lines := []string{fmt.Sprintf("- Project: %v", m["project_name"])}
			if s, _ := m["summary"].(string); s != "" {
				lines = append(lines, fmt.Sprintf("- Scope: %s", s))
			}
			return lines
		},
	},
	{
		Title: "Evidence",
		Query: `.evidence // empty | {n: (.parameters | length), sources: .sources, missing: (.missing // [])}`,
		Render: func(v any) []string {
			m, _ := v.(map[string]any)
			lines := []string{fmt.Sprintf("- Parameters retrieved: %v", m["n"])}
			if sources, _ := m["sources"].([]any); len(sources) > 0 {
				lines = append(lines, fmt.Sprintf("- Sources: %s", joinAny(sources)))
			}
			if missing, _ := m["missing"].([]any); len(missing) > 0 {
				lines = append(lines, fmt.Sprintf("- Missing estimates: %s", joinAny(missing)))
			}
			return lines
		},
	},
	{
		Title: "Model",
		Query: `.model // empty | {type: .type, horizon: .time_horizon_years, discount: .discount_rate, wtp: .wtp_threshold}`,
		Render: func(v any) []string {
			m, _ := v.(map[string]any)
			return []string{
				fmt.Sprintf("- Type: %v", m["type"]),
				fmt.Sprintf("- Time horizon: %v years, discount rate %v", m["horizon"], m["discount"]),
				fmt.Sprintf("- Willingness-to-pay threshold: $%v/QALY", m["wtp"]),
			}
		},
	},
	{
		Title: "Validation",
		Query: `.validation // empty`,
		Render: func(v any) []string {
			m, _ := v.(map[string]any)
			errs, _ := m["errors"].([]any)
			warns, _ := m["warnings"].([]any)
			lines := []string{fmt.Sprintf("- Errors: %d, warnings: %d", len(errs), len(warns))}
			for _, e := range errs {
				lines = append(lines, fmt.Sprintf("  - ERROR: %v", e))
			}
			for _, w := range warns {
				lines = append(lines, fmt.Sprintf("  - warning: %v", w))
			}
			return lines
		},
	},
	{
		Title: "Base Case",
		Query: `.base_case // empty`,
		Render: func(v any) []string {
			m, _ := v.(map[string]any)
			verdict := "not cost-effective"
			if ce, _ := m["cost_effective"].(bool); ce {
				verdict = "cost-effective"
			}
			return []string{
				fmt.Sprintf("- Incremental cost: $%v", m["incremental_cost"]),
				fmt.Sprintf("- Incremental QALYs: %v", m["incremental_qalys"]),
				fmt.Sprintf("- ICER: $%v/QALY", m["icer"]),
				fmt.Sprintf("- NMB: $%v (%s at threshold)", m["nmb"], verdict),
			}
		},
	},
	{
		Title: "Deterministic Sensitivity",
		Query: `.dsa // empty | {top: (.most_sensitive // []), n: (.tornado_data | length)}`,
		Render: func(v any) []string {
			m, _ := v.(map[string]any)
			lines := []string{fmt.Sprintf("- Parameters analyzed: %v", m["n"])}
			if top, _ := m["top"].([]any); len(top) > 0 {
				lines = append(lines, fmt.Sprintf("- Most influential: %s", joinAny(top)))
			}
			return lines
		},
	},
	{
		Title: "Probabilistic Sensitivity",
		Query: `.psa // empty`,
		Render: func(v any) []string {
			m, _ := v.(map[string]any)
			lines := []string{
				fmt.Sprintf("- Simulations: %v", m["n_simulations"]),
				fmt.Sprintf("- Mean ICER: $%v/QALY", m["mean_icer"]),
			}
			if ci, _ := m["credible_interval"].([]any); len(ci) == 2 {
				lines = append(lines, fmt.Sprintf("- 95%% credible interval: $%v to $%v", ci[0], ci[1]))
			}
			return lines
		},
	},
}

// Render builds the markdown report from whichever outputs are present in the
// document. Sections with no data are omitted rather than rendered empty.
func (r *Reporter) Render(ctx context.Context, title string, outputs map[string]json.RawMessage) (string, error) {
	doc := make(map[string]any, len(outputs))
	for key, raw := range outputs {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return "", schema.NewErrorf(schema.ErrCodeStepExecution, "decode output %q: %s", key, err.Error()).WithCause(err)
		}
		doc[key] = v
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", title)

	for _, section := range reportSections {
		v, err := r.query(ctx, section.Query, doc)
		if err != nil {
			return "", err
		}
		if v == nil {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n", section.Title)
		for _, line := range section.Render(v) {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

func (r *Reporter) query(ctx context.Context, expression string, doc map[string]any) (any, error) {
	code, err := r.getOrCompile(expression)
	if err != nil {
		return nil, err
	}
	iter := code.RunWithContext(ctx, doc)
	val, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if qerr, isErr := val.(error); isErr {
		return nil, schema.NewErrorf(schema.ErrCodeStepExecution,
			"report query %q failed: %s", expression, qerr.Error()).WithCause(qerr)
	}
	return val, nil
}

func (r *Reporter) getOrCompile(expression string) (*gojq.Code, error) {
	r.mu.RLock()
	if code, ok := r.cache[expression]; ok {
		r.mu.RUnlock()
		return code, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if code, ok := r.cache[expression]; ok {
		return code, nil
	}

	q, err := gojq.Parse(expression)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStepExecution, "parse report query %q: %s", expression, err.Error()).WithCause(err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStepExecution, "compile report query %q: %s", expression, err.Error()).WithCause(err)
	}
	r.cache[expression] = code
	return code, nil
}

func joinAny(items []any) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprint(item))
	}
	return strings.Join(parts, "; ")
}
