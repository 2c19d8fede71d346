// Package mount builds and validates the host to sandbox bind-mount list for
// a container invocation, rejecting traversal and unlisted host paths.
package mount

import (
	"path/filepath"
	"strings"

	"github.com/nanogridbot/nanogridbot/internal/rterr"
)

// Spec is one bind-mount entry: host path bound at container path, ro or rw.
type Spec struct {
	HostPath      string
	ContainerPath string
	ReadWrite     bool
}

func (s Spec) mode() string {
	if s.ReadWrite {
		return "rw"
	}
	return "ro"
}

// Arg renders the -v HOST:CONTAINER:MODE argument for the sandbox argv.
func (s Spec) Arg() string {
	return s.HostPath + ":" + s.ContainerPath + ":" + s.mode()
}

// Additional is a caller-supplied extra mount before validation; Mode is the
// raw string as received — only the exact literal "rw" upgrades it to
// read-write, everything else (including empty) stays read-only.
type Additional struct {
	HostPath      string
	ContainerPath string
	Mode          string
}

// Roots is the allowed-prefix set a validated additional mount's host path
// must descend from.
type Roots struct {
	GroupsDir string
	DataDir   string
	StoreDir  string
	BaseDir   string
}

func (r Roots) allowed(path string) bool {
	for _, root := range []string{r.GroupsDir, r.DataDir, r.StoreDir, r.BaseDir} {
		if root == "" {
			continue
		}
		if isAncestor(root, path) {
			return true
		}
	}
	return false
}

func isAncestor(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "..")
}

// Validator builds the ordered MountSpec list for a container invocation per
// the fixed five-slot layout plus validated additional mounts.
type Validator struct {
	Roots Roots
}

func New(roots Roots) *Validator {
	return &Validator{Roots: roots}
}

// Build composes the mount list for (groupFolder, chatJID, isMain,
// additionalMounts). Order is significant: it matches the sandbox's expected
// workspace layout.
func (v *Validator) Build(groupFolder, chatJID string, isMain bool, additional []Additional) ([]Spec, error) {
	var specs []Spec

	specs = append(specs, Spec{
		HostPath:      filepath.Join(v.Roots.GroupsDir, groupFolder),
		ContainerPath: "/workspace/group",
		ReadWrite:     true,
	})
	specs = append(specs, Spec{
		HostPath:      filepath.Join(v.Roots.DataDir, "global"),
		ContainerPath: "/workspace/global",
		ReadWrite:     false,
	})
	specs = append(specs, Spec{
		HostPath:      filepath.Join(v.Roots.DataDir, "sessions"),
		ContainerPath: "/workspace/sessions",
		ReadWrite:     true,
	})
	specs = append(specs, Spec{
		HostPath:      filepath.Join(v.Roots.DataDir, "ipc", chatJID),
		ContainerPath: "/workspace/ipc",
		ReadWrite:     true,
	})
	if isMain {
		specs = append(specs, Spec{
			HostPath:      v.Roots.BaseDir,
			ContainerPath: "/workspace/project",
			ReadWrite:     false,
		})
	}

	for _, a := range additional {
		spec, ok, err := v.validateAdditional(a)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		specs = append(specs, spec)
	}

	return specs, nil
}

// validateAdditional returns (spec, true, nil) for a usable mount,
// (_, false, nil) for one silently skipped (empty path), or a SecurityError
// for a rejected one.
func (v *Validator) validateAdditional(a Additional) (Spec, bool, error) {
	if a.HostPath == "" || a.ContainerPath == "" {
		return Spec{}, false, nil
	}
	if containsTraversal(a.HostPath) || containsTraversal(a.ContainerPath) {
		return Spec{}, false, rterr.New(rterr.Security, "validate mount", errTraversal(a.HostPath))
	}
	if !v.Roots.allowed(a.HostPath) {
		return Spec{}, false, rterr.New(rterr.Security, "validate mount", errDisallowed(a.HostPath))
	}
	return Spec{
		HostPath:      a.HostPath,
		ContainerPath: a.ContainerPath,
		ReadWrite:     a.Mode == "rw",
	}, true, nil
}

// ValidFolder reports whether folder is usable as a group's workspace
// folder: non-empty, a single path component (no separators), and never
// "..".
func ValidFolder(folder string) bool {
	if folder == "" || folder == ".." || folder == "." {
		return false
	}
	if strings.Contains(folder, "\x00") {
		return false
	}
	if strings.ContainsAny(folder, "/\\") {
		return false
	}
	return true
}

func containsTraversal(path string) bool {
	if strings.Contains(path, "\x00") {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

type traversalError struct{ path string }

func (e traversalError) Error() string { return "traversal attempt in path: " + e.path }

func errTraversal(path string) error { return traversalError{path: path} }

type disallowedError struct{ path string }

func (e disallowedError) Error() string { return "host path not under an allowed root: " + e.path }

func errDisallowed(path string) error { return disallowedError{path: path} }
