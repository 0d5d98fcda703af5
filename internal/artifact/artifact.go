// Package artifact locates and inspects the local install package that is
// shipped to deployment targets.
package artifact

import (
	"archive/tar"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/zeebo/blake3"
)

// DefaultPath is the package location relative to the deployment root.
const DefaultPath = "static/install.tar.gz"

// Artifact is a resolved install package on the local disk.
type Artifact struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Digest string `json:"digest,omitempty"` // blake3, hex; set by Inspect
}

// Report is what Inspect learned about the package contents.
type Report struct {
	Artifact
	Entries       int  `json:"entries"`
	HasAgent      bool `json:"has_agent"`
	AgentIsExec   bool `json:"agent_is_executable"`
	AgentEntryDir bool `json:"-"`
}

// Resolve turns rel into an absolute path under root. An absolute rel is
// returned as is; an empty root means the current directory.
func Resolve(root, rel string) (string, error) {
	if rel == "" {
		rel = DefaultPath
	}
	p := rel
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, rel)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrTransfer,
			fmt.Sprintf("Couldn't resolve install package path %s", rel), "")
	}
	return abs, nil
}

// Locate resolves the package path and checks it is a regular file.
// A missing package is a TRANSFER error naming the path it looked for.
func Locate(root, rel string) (Artifact, error) {
	p, err := Resolve(root, rel)
	if err != nil {
		return Artifact{}, err
	}

	info, err := os.Stat(p)
	if err != nil {
		return Artifact{}, errors.WrapWithCode(err, errors.ErrTransfer,
			fmt.Sprintf("Install package not found: %s", p),
			"Build the install package or set artifact.path in .agentdeploy.yaml")
	}
	if !info.Mode().IsRegular() {
		return Artifact{}, errors.New(errors.ErrTransfer,
			fmt.Sprintf("Install package is not a regular file: %s", p),
			"Point artifact.path at the .tar.gz file")
	}
	return Artifact{Path: p, Size: info.Size()}, nil
}

// Digest returns the blake3 digest of the file at p, hex encoded.
func Digest(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrTransfer, "Couldn't open "+p, "")
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrTransfer, "Couldn't read "+p, "")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Inspect locates the package, digests it, and walks the gzip'd tar looking
// for the agent binary named agentName at the top level of the archive.
func Inspect(root, rel, agentName string) (Report, error) {
	a, err := Locate(root, rel)
	if err != nil {
		return Report{}, err
	}
	if a.Digest, err = Digest(a.Path); err != nil {
		return Report{}, err
	}
	report := Report{Artifact: a}

	f, err := os.Open(a.Path)
	if err != nil {
		return Report{}, errors.WrapWithCode(err, errors.ErrTransfer, "Couldn't open "+a.Path, "")
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return Report{}, errors.WrapWithCode(err, errors.ErrTransfer,
			fmt.Sprintf("%s is not a gzip file", a.Path),
			"The package must be a .tar.gz that `tar -xzf` can extract")
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Report{}, errors.WrapWithCode(err, errors.ErrTransfer,
				fmt.Sprintf("%s is not a valid tar archive", a.Path), "")
		}
		report.Entries++
		if path.Clean(strings.TrimPrefix(hdr.Name, "./")) != agentName {
			continue
		}
		switch hdr.Typeflag {
		case tar.TypeReg:
			report.HasAgent = true
			report.AgentIsExec = hdr.FileInfo().Mode().Perm()&0o111 != 0
		case tar.TypeDir:
			report.AgentEntryDir = true
		}
	}
	return report, nil
}

// Problem returns a human-readable reason the package can't start the agent,
// or "" when it looks deployable.
func (r Report) Problem(agentName string) string {
	switch {
	case r.AgentEntryDir:
		return fmt.Sprintf("%s in the package is a directory, not the agent binary", agentName)
	case !r.HasAgent:
		return fmt.Sprintf("the package has no top-level %s binary", agentName)
	case !r.AgentIsExec:
		return fmt.Sprintf("%s in the package is not executable", agentName)
	}
	return ""
}
