package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/rileyhilliard/agentdeploy/internal/deploy"
	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func events(states []deploy.State, final deploy.Outcome) []deploy.Event {
	var evs []deploy.Event
	at := t0
	for _, s := range states {
		evs = append(evs, deploy.Event{State: s, At: at})
		at = at.Add(time.Second)
	}
	evs = append(evs, deploy.Event{State: final.State, At: at, Outcome: &final})
	return evs
}

func TestDeployDisplay_FreshInstall(t *testing.T) {
	var buf bytes.Buffer
	d := NewDeployDisplay(&buf)

	for _, ev := range events(
		[]deploy.State{deploy.StateStart, deploy.StateCheckInstallDir, deploy.StatePrepareDir},
		deploy.Outcome{Success: true, State: deploy.StateSuccess},
	) {
		d.Observe(ev)
	}

	assert.Equal(t,
		"● Connect 1.0s\n"+
			"● Inspect host 1.0s\n"+
			"● Prepare directory 1.0s\n",
		buf.String())
}

func TestDeployDisplay_Failure(t *testing.T) {
	var buf bytes.Buffer
	d := NewDeployDisplay(&buf)

	for _, ev := range events(
		[]deploy.State{deploy.StateStart, deploy.StateCheckInstallDir, deploy.StateVerifyPort},
		deploy.Outcome{Success: false, State: deploy.StateVerifyPort},
	) {
		d.Observe(ev)
	}

	assert.Equal(t,
		"● Connect 1.0s\n"+
			"● Inspect host 1.0s\n"+
			"✗ Verify port 1.0s\n",
		buf.String())
}

func TestDeployDisplay_AlreadyRunning(t *testing.T) {
	var buf bytes.Buffer
	d := NewDeployDisplay(&buf)

	for _, ev := range events(
		[]deploy.State{deploy.StateStart, deploy.StateCheckInstallDir},
		deploy.Outcome{Success: true, State: deploy.StateAlreadyRunning},
	) {
		d.Observe(ev)
	}

	assert.Contains(t, buf.String(), "● Inspect host 1.0s\n⊘ Install (already running)\n")
}

func TestRenderOutcome(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		out := deploy.Outcome{
			Success:    true,
			Message:    "nc_agent deployed successfully",
			State:      deploy.StateSuccess,
			Host:       "10.0.0.5",
			StartedAt:  t0,
			FinishedAt: t0.Add(4200 * time.Millisecond),
		}

		assert.Equal(t, "✓ nc_agent deployed successfully (10.0.0.5, 4.2s)\n", RenderOutcome(out))
	})

	t.Run("failure with log", func(t *testing.T) {
		out := deploy.Outcome{
			Message:    "nc_agent process did not start. Log:\nbind: address in use\nexiting",
			State:      deploy.StateVerifyProcess,
			Code:       "VERIFY",
			AttemptID:  "a1",
			Host:       "10.0.0.5",
			StartedAt:  t0,
			FinishedAt: t0.Add(5 * time.Second),
		}

		assert.Equal(t,
			"✗ nc_agent process did not start. Log: (10.0.0.5, 5.0s)\n"+
				"    bind: address in use\n"+
				"    exiting\n"+
				"  stopped in verify_process [VERIFY], attempt a1\n",
			RenderOutcome(out))
	})
}
