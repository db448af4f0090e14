package schema

// Mode is the operating mode of a pipeline run. It controls how much of the
// analysis proceeds without an analyst decision.
type Mode string

const (
	// ModeAssisted keeps the analyst in control: the pipeline always pauses
	// for approval before any computation runs.
	ModeAssisted Mode = "assisted"
	// ModeAugmented automates parameter work but still pauses for approval
	// before computation.
	ModeAugmented Mode = "augmented"
	// ModeAutomated runs the full analysis, sensitivity passes included,
	// with no approval pause.
	ModeAutomated Mode = "automated"
)

// Valid reports whether m is one of the known operating modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeAssisted, ModeAugmented, ModeAutomated:
		return true
	}
	return false
}

// ModePolicy is the routing decision table for a mode. It is pure
// configuration: constructed once, shared read-only across runs.
type ModePolicy struct {
	// RequireApproval pauses the run at a checkpoint after validation,
	// before the base-case computation.
	RequireApproval bool
	// RunSensitivity enables the DSA and PSA passes after the base case.
	RunSensitivity bool
}

var modePolicies = map[Mode]ModePolicy{
	ModeAssisted:  {RequireApproval: true, RunSensitivity: false},
	ModeAugmented: {RequireApproval: true, RunSensitivity: false},
	ModeAutomated: {RequireApproval: false, RunSensitivity: true},
}

// PolicyFor returns the routing policy for a mode. Unknown modes get the
// assisted policy, which is the most conservative.
func PolicyFor(m Mode) ModePolicy {
	if p, ok := modePolicies[m]; ok {
		return p
	}
	return modePolicies[ModeAssisted]
}
