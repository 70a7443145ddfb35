package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	appErr "liverun/pkg/errors"
)

func TestCreateWritesSource(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	ws, err := mgr.Create(context.Background(), "sess-1", "main.py", "print('hi')\n")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer mgr.Destroy(context.Background(), ws)

	if filepath.Dir(ws.Path) != mgr.Root() {
		t.Fatalf("workspace %s not under root %s", ws.Path, mgr.Root())
	}
	data, err := os.ReadFile(filepath.Join(ws.Path, "main.py"))
	if err != nil {
		t.Fatalf("read source: %v", err)
	}
	if string(data) != "print('hi')\n" {
		t.Fatalf("unexpected source: %q", string(data))
	}
	entries, err := os.ReadDir(ws.Path)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file, got %d", len(entries))
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	ws, err := mgr.Create(context.Background(), "sess-2", "main.c", "int main(){}")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := os.WriteFile(filepath.Join(ws.Path, "app"), []byte("bin"), 0o755); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	mgr.Destroy(context.Background(), ws)
	mgr.Destroy(context.Background(), ws)
	mgr.Destroy(context.Background(), nil)

	if _, err := os.Stat(ws.Path); !os.IsNotExist(err) {
		t.Fatalf("workspace still exists: %v", err)
	}
}

func TestDestroyToleratesMissingPath(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	ws, err := mgr.Create(context.Background(), "sess-3", "main.js", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := os.RemoveAll(ws.Path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	mgr.Destroy(context.Background(), ws)
}

func TestCreateRejectsPathLikeNames(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	for _, name := range []string{"", "..", "../escape.py", "dir/main.py"} {
		if _, err := mgr.Create(context.Background(), "sess", name, "x"); !appErr.Is(err, appErr.ValidationFailed) {
			t.Fatalf("name %q: expected validation error, got %v", name, err)
		}
	}
}

func TestCreateFailsOnUnwritableRoot(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	root := t.TempDir()
	mgr, err := NewManager(root)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := os.Chmod(root, 0o500); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	defer os.Chmod(root, 0o755)

	_, err = mgr.Create(context.Background(), "sess", "main.py", "x")
	if !appErr.Is(err, appErr.WorkspaceIOError) {
		t.Fatalf("expected WorkspaceIOError, got %v", err)
	}
}

func TestCollidingFileNamesGetDistinctWorkspaces(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	a, err := mgr.Create(context.Background(), "same", "Main.java", "class A {}")
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := mgr.Create(context.Background(), "same", "Main.java", "class B {}")
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if a.Path == b.Path {
		t.Fatal("workspaces must never share a path")
	}
	mgr.Destroy(context.Background(), a)
	data, err := os.ReadFile(b.SourcePath)
	if err != nil || string(data) != "class B {}" {
		t.Fatalf("destroying one workspace disturbed the other: %q %v", string(data), err)
	}
	mgr.Destroy(context.Background(), b)
}
