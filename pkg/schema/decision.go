package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// Decision is the external answer supplied when a suspended run resumes.
type Decision struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment,omitempty"`
}

// ApprovalDecisionShape is the JSON Schema persisted with every approval
// checkpoint. A resume decision must satisfy it before the checkpoint is
// consumed.
const ApprovalDecisionShape = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["approved"],
  "properties": {
    "approved": { "type": "boolean" },
    "comment": { "type": "string" }
  },
  "additionalProperties": false
}`

// ParseDecision checks a raw decision payload against the decision shape
// stored in a checkpoint and unmarshals it. It returns an INVALID_DECISION
// error describing every schema violation; no state is touched by validation.
func ParseDecision(shape, payload json.RawMessage) (Decision, error) {
	var dec Decision
	if len(shape) == 0 {
		shape = json.RawMessage(ApprovalDecisionShape)
	}

	compiled, err := compileShape(shape)
	if err != nil {
		return dec, NewError(ErrCodeInvalidDecision, "invalid decision shape").WithCause(err)
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(payload)))
	if err != nil {
		return dec, NewError(ErrCodeInvalidDecision, "decision is not valid JSON").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return dec, toDecisionError(err)
	}

	if err := json.Unmarshal(payload, &dec); err != nil {
		return dec, NewError(ErrCodeInvalidDecision, "unmarshal decision").WithCause(err)
	}
	return dec, nil
}

func compileShape(shape json.RawMessage) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(shape)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal shape: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	const url = "ceflow://decision-shape"
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add shape resource: %w", err)
	}
	return c.Compile(url)
}

func toDecisionError(err error) *PipelineError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return NewError(ErrCodeInvalidDecision, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 1 {
		return NewError(ErrCodeInvalidDecision, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return NewErrorf(ErrCodeInvalidDecision, "decision failed validation with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
