package deploy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_String(t *testing.T) {
	assert.Equal(t, "start", StateStart.String())
	assert.Equal(t, "dir_stale_check_log", StateDirStaleCheckLog.String())
	assert.Equal(t, "verify_port", StateVerifyPort.String())
	assert.Equal(t, "state(99)", State(99).String())
}

func TestState_Terminal(t *testing.T) {
	for s := StateStart; s <= StateFailure; s++ {
		want := s == StateAlreadyRunning || s == StateSuccess || s == StateFailure
		assert.Equal(t, want, s.Terminal(), s.String())
	}
}

func TestParseState(t *testing.T) {
	for s := StateStart; s <= StateFailure; s++ {
		parsed, err := ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := ParseState("launching")
	assert.Error(t, err)
}

func TestOutcome_JSON(t *testing.T) {
	out := Outcome{Success: false, Message: "nope", State: StateVerifyPort, Code: "VERIFY"}

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"verify_port"`)
	assert.NotContains(t, string(data), "log_tail")

	var back Outcome
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, StateVerifyPort, back.State)
}

func TestLayout(t *testing.T) {
	l := DefaultLayout()
	assert.Equal(t, "/opt/nc_agent/install.tar.gz", l.ArchivePath())
	assert.Equal(t, "/opt/nc_agent/nc_agent.log", l.LogPath())

	assert.Equal(t, DefaultLayout(), Layout{}.withDefaults())
	assert.Equal(t, "cd /opt/nc_agent && tar -xzf install.tar.gz", ExtractCmd(l.InstallDir))
	assert.Equal(t, "cd /opt/nc_agent && nohup ./nc_agent > /opt/nc_agent/nc_agent.log 2>&1 &", LaunchCmd(l))
	assert.Equal(t, "rm -rf /opt/nc_agent", RemoveDirCmd(l.InstallDir))
	assert.Equal(t, "mkdir -p /opt/nc_agent", MakeDirCmd(l.InstallDir))
}

func TestState_Label(t *testing.T) {
	assert.Equal(t, "Upload package", StateUploadArtifact.Label())
	assert.Equal(t, "success", StateSuccess.Label())
}
