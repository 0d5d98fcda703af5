package deploy

import "fmt"

// State is a step of a deployment attempt.
type State int

const (
	StateStart State = iota
	StateCheckInstallDir
	StateAlreadyRunning
	StateDirStaleCheckLog
	StatePrepareDir
	StateUploadArtifact
	StateExtract
	StateLaunchProcess
	StateSettle
	StateVerifyProcess
	StateVerifyPort
	StateSuccess
	StateFailure
)

var stateNames = [...]string{
	StateStart:            "start",
	StateCheckInstallDir:  "check_install_dir",
	StateAlreadyRunning:   "already_running",
	StateDirStaleCheckLog: "dir_stale_check_log",
	StatePrepareDir:       "prepare_dir",
	StateUploadArtifact:   "upload_artifact",
	StateExtract:          "extract",
	StateLaunchProcess:    "launch_process",
	StateSettle:           "settle",
	StateVerifyProcess:    "verify_process",
	StateVerifyPort:       "verify_port",
	StateSuccess:          "success",
	StateFailure:          "failure",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state as its snake_case name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a snake_case state name.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState returns the State named name.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return StateFailure, fmt.Errorf("unknown deploy state %q", name)
}

// Terminal reports whether an attempt stops in this state.
func (s State) Terminal() bool {
	return s == StateAlreadyRunning || s == StateSuccess || s == StateFailure
}

// Label is the short description shown while the state runs.
func (s State) Label() string {
	switch s {
	case StateStart:
		return "Connect"
	case StateCheckInstallDir:
		return "Inspect host"
	case StateAlreadyRunning:
		return "Already running"
	case StateDirStaleCheckLog:
		return "Read agent log"
	case StatePrepareDir:
		return "Prepare directory"
	case StateUploadArtifact:
		return "Upload package"
	case StateExtract:
		return "Extract"
	case StateLaunchProcess:
		return "Launch agent"
	case StateSettle:
		return "Wait for startup"
	case StateVerifyProcess:
		return "Verify process"
	case StateVerifyPort:
		return "Verify port"
	}
	return s.String()
}
