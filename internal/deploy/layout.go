package deploy

import (
	"fmt"
	"path"
)

// Layout defaults.
const (
	DefaultInstallDir = "/opt/nc_agent"
	DefaultAgentName  = "nc_agent"
	ArchiveName       = "install.tar.gz"
	DefaultTailLines  = 20
)

// Layout describes where the agent lives on the target host.
type Layout struct {
	InstallDir string `json:"install_dir"`
	AgentName  string `json:"agent_name"`
}

// DefaultLayout returns the stock install location.
func DefaultLayout() Layout {
	return Layout{InstallDir: DefaultInstallDir, AgentName: DefaultAgentName}
}

func (l Layout) withDefaults() Layout {
	if l.InstallDir == "" {
		l.InstallDir = DefaultInstallDir
	}
	if l.AgentName == "" {
		l.AgentName = DefaultAgentName
	}
	return l
}

// ArchivePath is where the install package is uploaded.
func (l Layout) ArchivePath() string {
	return path.Join(l.InstallDir, ArchiveName)
}

// LogPath is where the agent's output is redirected.
func (l Layout) LogPath() string {
	return path.Join(l.InstallDir, l.AgentName+".log")
}

// RemoveDirCmd deletes the install directory and everything in it.
func RemoveDirCmd(dir string) string {
	return "rm -rf " + dir
}

// MakeDirCmd creates the install directory.
func MakeDirCmd(dir string) string {
	return "mkdir -p " + dir
}

// ExtractCmd unpacks the uploaded package inside dir.
func ExtractCmd(dir string) string {
	return fmt.Sprintf("cd %s && tar -xzf %s", dir, ArchiveName)
}

// LaunchCmd starts the agent detached from the session, with its output
// redirected to the log.
func LaunchCmd(l Layout) string {
	return fmt.Sprintf("cd %s && nohup ./%s > %s 2>&1 &", l.InstallDir, l.AgentName, l.LogPath())
}
