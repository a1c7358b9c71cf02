package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) record(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func txtOnly(path string) bool { return strings.EqualFold(filepath.Ext(path), ".txt") }

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_DebouncesWritesAndFilters(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	w := New(dir, txtOnly, rec.record, WithDebounce(100*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	f := filepath.Join(sub, "f.txt")
	for i := range 3 {
		if err := os.WriteFile(f, []byte(strings.Repeat("x", i+1)), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(sub, "ignored.bin"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { return len(rec.snapshot()) >= 1 }) {
		t.Fatal("no change reported")
	}
	time.Sleep(300 * time.Millisecond)
	got := rec.snapshot()
	if len(got) != 1 || got[0] != f {
		t.Errorf("changes = %v, want [%s]", got, f)
	}
}

func TestWatcher_NewDirectory(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := New(dir, txtOnly, rec.record, WithDebounce(50*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Build the folder outside the root, then move it in.
	staging := filepath.Join(t.TempDir(), "incoming")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(staging, "a.txt"), []byte("a"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(staging, filepath.Join(dir, "incoming")); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "incoming", "a.txt")
	if !waitFor(t, func() bool {
		for _, p := range rec.snapshot() {
			if p == want {
				return true
			}
		}
		return false
	}) {
		t.Errorf("changes = %v, want %s", rec.snapshot(), want)
	}
}

func TestWatcher_StartCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	w := New(root, nil, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root not created: %v", err)
	}
}

func TestWatcher_StopOnContextCancel(t *testing.T) {
	rec := &recorder{}
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	w := New(dir, nil, rec.record, WithDebounce(time.Hour))
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
	w.Stop()
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir, path string
		want      bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}
