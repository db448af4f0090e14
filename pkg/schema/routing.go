package schema

import "encoding/json"

// DirectiveKind enumerates what the router tells the engine to do next.
type DirectiveKind string

const (
	DirectiveContinue  DirectiveKind = "continue"
	DirectiveSuspend   DirectiveKind = "suspend"
	DirectiveTerminate DirectiveKind = "terminate"
)

// Directive is the router's answer after a step completes: run another step,
// suspend the run at a checkpoint, or stop.
type Directive struct {
	Kind DirectiveKind
	// Next is the step to run when Kind is DirectiveContinue.
	Next string
	// DecisionShape is the JSON Schema the resume decision must satisfy when
	// Kind is DirectiveSuspend.
	DecisionShape json.RawMessage
	// SkipComputation marks a route straight to the report because blocking
	// validation findings ruled computation out.
	SkipComputation bool
}

// Continue builds a directive that routes to the named step.
func Continue(step string) Directive {
	return Directive{Kind: DirectiveContinue, Next: step}
}

// ContinueSkipping builds a directive that routes to the named step while
// recording that computation was skipped.
func ContinueSkipping(step string) Directive {
	return Directive{Kind: DirectiveContinue, Next: step, SkipComputation: true}
}

// Suspend builds a directive that pauses the run until a decision matching
// shape is supplied.
func Suspend(shape json.RawMessage) Directive {
	return Directive{Kind: DirectiveSuspend, DecisionShape: shape}
}

// Terminate builds a directive that ends the run.
func Terminate() Directive {
	return Directive{Kind: DirectiveTerminate}
}
