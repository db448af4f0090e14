package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModeValid(t *testing.T) {
	assert.True(t, ModeAssisted.Valid())
	assert.True(t, ModeAugmented.Valid())
	assert.True(t, ModeAutomated.Valid())
	assert.False(t, Mode("manual").Valid())
	assert.False(t, Mode("").Valid())
}

func TestPolicyTable(t *testing.T) {
	cases := []struct {
		mode            Mode
		requireApproval bool
		runSensitivity  bool
	}{
		{ModeAssisted, true, false},
		{ModeAugmented, true, false},
		{ModeAutomated, false, true},
	}
	for _, tc := range cases {
		p := PolicyFor(tc.mode)
		assert.Equal(t, tc.requireApproval, p.RequireApproval, "mode %s", tc.mode)
		assert.Equal(t, tc.runSensitivity, p.RunSensitivity, "mode %s", tc.mode)
	}
}

func TestPolicyForUnknownModeIsConservative(t *testing.T) {
	p := PolicyFor(Mode("mystery"))
	assert.True(t, p.RequireApproval)
	assert.False(t, p.RunSensitivity)
}

func TestRunStatusTerminal(t *testing.T) {
	assert.True(t, RunStatusCompleted.Terminal())
	assert.True(t, RunStatusFailed.Terminal())
	assert.False(t, RunStatusRunning.Terminal())
	assert.False(t, RunStatusSuspended.Terminal())
	assert.False(t, RunStatusPending.Terminal())
}
