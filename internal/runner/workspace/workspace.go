// Package workspace allocates and destroys per-session directories.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	appErr "liverun/pkg/errors"
	"liverun/pkg/utils/logger"

	"go.uber.org/zap"
)

// Workspace is one session's private directory.
type Workspace struct {
	SessionID  string
	Path       string
	SourcePath string

	destroyOnce sync.Once
}

// Manager creates workspaces under a root directory.
type Manager struct {
	root string
}

// NewManager creates a manager rooted at root; an empty root uses the OS temp dir.
func NewManager(root string) (*Manager, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Manager{root: root}, nil
}

// Root returns the directory that holds all workspaces.
func (m *Manager) Root() string {
	return m.root
}

// Create allocates a fresh directory and writes source into fileName.
func (m *Manager) Create(ctx context.Context, sessionID, fileName, source string) (*Workspace, error) {
	if err := validateFileName(fileName); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, appErr.WorkspaceFailure(err, "create")
	}
	dir, err := os.MkdirTemp(m.root, "sess-"+sanitize(sessionID)+"-")
	if err != nil {
		return nil, appErr.WorkspaceFailure(err, "create")
	}
	ws := &Workspace{
		SessionID:  sessionID,
		Path:       dir,
		SourcePath: filepath.Join(dir, fileName),
	}
	if err := os.WriteFile(ws.SourcePath, []byte(source), 0o644); err != nil {
		m.Destroy(ctx, ws)
		return nil, appErr.WorkspaceFailure(err, "write source")
	}
	logger.Debug(ctx, "workspace created", zap.String("path", dir))
	return ws, nil
}

// Destroy removes the workspace tree. It is safe to call more than once and on nil;
// failures are logged, never returned.
func (m *Manager) Destroy(ctx context.Context, ws *Workspace) {
	if ws == nil {
		return
	}
	ws.destroyOnce.Do(func() {
		if err := os.RemoveAll(ws.Path); err != nil {
			logger.Warn(ctx, "workspace cleanup failed", zap.String("path", ws.Path), zap.Error(err))
			return
		}
		logger.Debug(ctx, "workspace destroyed", zap.String("path", ws.Path))
	})
}

func validateFileName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return appErr.ValidationError("source_file_name", "must be a bare file name")
	}
	return nil
}

// sanitize keeps session ids from shaping the directory name in unexpected ways.
func sanitize(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
		if b.Len() >= 36 {
			break
		}
	}
	if b.Len() == 0 {
		return "anon"
	}
	return b.String()
}
