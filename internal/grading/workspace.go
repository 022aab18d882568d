package grading

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

// Workspace is a scratch directory a single candidate run executes in
type Workspace struct {
	Dir    string
	remove func() error
}

// Cleanup removes the workspace
func (w *Workspace) Cleanup() error {
	if w.remove == nil {
		return nil
	}
	return w.remove()
}

// Path resolves a file name inside the workspace
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// WorkspaceFactory hands out fresh workspaces
type WorkspaceFactory interface {
	Create(label string) (*Workspace, error)
}

// TempWorkspaces creates workspaces as temporary directories under Root.
// An empty Root uses the system temporary directory.
type TempWorkspaces struct {
	Root string
}

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Create implements WorkspaceFactory
func (t TempWorkspaces) Create(label string) (*Workspace, error) {
	if t.Root != "" {
		if err := os.MkdirAll(t.Root, 0755); err != nil {
			return nil, fmt.Errorf("create scratch root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(t.Root, "grader-"+unsafeLabel.ReplaceAllString(label, "_")+"-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{
		Dir:    dir,
		remove: func() error { return os.RemoveAll(dir) },
	}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
