package features

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// testFile is a minimal RotatableFile over an *os.File
type testFile struct {
	path   string
	f      *os.File
	closes int
	opens  int

	closeErr error // returned by CloseFile after closing
}

func openTestFile(t *testing.T, path string) *testFile {
	t.Helper()
	tf := &testFile{path: path}
	if err := tf.OpenFile(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if tf.f != nil {
			tf.f.Close()
		}
	})
	return tf
}

func (f *testFile) Path() string { return f.path }

func (f *testFile) CloseFile() error {
	f.closes++
	err := f.f.Close()
	f.f = nil
	if f.closeErr != nil {
		return f.closeErr
	}
	return err
}

func (f *testFile) OpenFile() error {
	f.opens++
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	f.f = file
	return nil
}

func (f *testFile) write(s string) {
	_, _ = f.f.WriteString(s)
}

type flakyStrategy struct {
	failures int32
	err      error
	calls    atomic.Int32
	next     types.RotationStrategy
}

func (s *flakyStrategy) Archive(ctx types.RotationContext) (string, error) {
	if s.calls.Add(1) <= s.failures {
		return "", s.err
	}
	return s.next.Archive(ctx)
}

func TestRotationManager_ForceRotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	f := openTestFile(t, path)
	f.write("before\n")

	m := NewRotationManager(nil, NewPatternStrategy("%n.%i%e"))

	var events []string
	m.OnBeforeRotation(func(p string) { events = append(events, "before:"+filepath.Base(p)) })
	m.OnAfterRotation(func(p, archive string) { events = append(events, "after:"+filepath.Base(archive)) })

	archive, err := m.ForceRotate(f)
	if err != nil {
		t.Fatalf("ForceRotate() error = %v", err)
	}
	if archive != filepath.Join(dir, "app.1.log") {
		t.Errorf("archive = %q", archive)
	}
	if readFile(t, archive) != "before\n" {
		t.Error("archive lost content")
	}

	f.write("after\n")
	if got := readFile(t, path); got != "after\n" {
		t.Errorf("new file = %q, want only the new write", got)
	}

	if len(events) != 2 || events[0] != "before:app.log" || events[1] != "after:app.1.log" {
		t.Errorf("events = %v", events)
	}
	if m.Rotations() != 1 {
		t.Errorf("rotations = %d, want 1", m.Rotations())
	}
}

func TestRotationManager_CheckUsesPolicy(t *testing.T) {
	dir := t.TempDir()
	f := openTestFile(t, filepath.Join(dir, "app.log"))

	policy, _ := NewSizeLimitPolicy(10)
	m := NewRotationManager(policy, NewNumberedStrategy(2, ArchiveMove))

	rotations := 0
	for i := 0; i < 6; i++ {
		rotated, err := m.Check(f, types.RotationPolicyArgs{Rendered: "1234"})
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		if rotated {
			rotations++
		}
		f.write("1234\n")
	}

	// 5 bytes per write: writes 1-2 fill the limit, write 3 rotates, and so on.
	if rotations != 2 {
		t.Errorf("rotations = %d, want 2", rotations)
	}
	if policy.Written() != 0 {
		t.Errorf("written = %d, want 0", policy.Written())
	}
}

func TestRotationManager_RetriesTransientFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	f := openTestFile(t, path)

	strategy := &flakyStrategy{failures: 2, err: errors.New("device busy"), next: NewPatternStrategy("%n.%i%e")}
	m := NewRotationManager(nil, strategy)
	m.SetRetry(3, time.Millisecond)

	if _, err := m.ForceRotate(f); err != nil {
		t.Fatalf("ForceRotate() error = %v", err)
	}
	if got := strategy.calls.Load(); got != 3 {
		t.Errorf("strategy called %d times, want 3", got)
	}
}

func TestRotationManager_FailureReopensOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	f := openTestFile(t, path)
	f.write("kept\n")

	strategy := &flakyStrategy{failures: 100, err: errors.New("read-only file system")}
	m := NewRotationManager(nil, strategy)
	m.SetRetry(2, time.Millisecond)

	var after int
	m.OnAfterRotation(func(string, string) { after++ })

	_, err := m.ForceRotate(f)
	if !errors.Is(err, types.ErrLogIO) {
		t.Fatalf("expected ErrLogIO, got %v", err)
	}
	if strategy.calls.Load() != 2 {
		t.Errorf("strategy called %d times, want 2", strategy.calls.Load())
	}
	if f.f == nil {
		t.Fatal("original file should be reopened")
	}

	f.write("still here\n")
	if got := readFile(t, path); got != "kept\nstill here\n" {
		t.Errorf("file = %q", got)
	}
	if after != 0 {
		t.Error("after-rotation hooks must not run on failure")
	}
	if m.Failures() != 1 || m.Rotations() != 0 {
		t.Errorf("failures/rotations = %d/%d", m.Failures(), m.Rotations())
	}
}

func TestRotationManager_NoRetryOnRotationError(t *testing.T) {
	dir := t.TempDir()
	f := openTestFile(t, filepath.Join(dir, "app.log"))

	strategy := &flakyStrategy{failures: 100, err: types.NewLogError(types.ErrLogRotation, "rotate", "", "no name", nil)}
	m := NewRotationManager(nil, strategy)
	m.SetRetry(5, time.Millisecond)

	_, err := m.ForceRotate(f)
	if !errors.Is(err, types.ErrLogRotation) {
		t.Fatalf("expected ErrLogRotation, got %v", err)
	}
	if strategy.calls.Load() != 1 {
		t.Errorf("strategy called %d times, want 1", strategy.calls.Load())
	}
}

func TestParseRotationFailureMode(t *testing.T) {
	if m, err := ParseRotationFailureMode("propagate"); err != nil || m != RotationPropagate {
		t.Errorf("got %v, %v", m, err)
	}
	if m, err := ParseRotationFailureMode(""); err != nil || m != RotationContinue {
		t.Errorf("got %v, %v", m, err)
	}
	if _, err := ParseRotationFailureMode("ignore"); err == nil {
		t.Error("expected error")
	}
}

func TestRotationManager_CloseFailureReopensOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	f := openTestFile(t, path)
	f.write("kept\n")
	f.closeErr = errors.New("no space left on device")

	m := NewRotationManager(nil, NewPatternStrategy("%n.%i%e"))
	_, err := m.ForceRotate(f)
	if !errors.Is(err, types.ErrLogIO) {
		t.Fatalf("expected ErrLogIO, got %v", err)
	}
	if f.f == nil {
		t.Fatal("original file should be reopened")
	}
	if _, err := os.Stat(filepath.Join(dir, "app.1.log")); !os.IsNotExist(err) {
		t.Error("no archive should exist after a failed close")
	}

	f.write("still here\n")
	if got := readFile(t, path); got != "kept\nstill here\n" {
		t.Errorf("file = %q", got)
	}
	if m.Failures() != 1 {
		t.Errorf("failures = %d, want 1", m.Failures())
	}
}

func TestRotationManager_RemoveHooks(t *testing.T) {
	dir := t.TempDir()
	f := openTestFile(t, filepath.Join(dir, "app.log"))
	m := NewRotationManager(nil, NewPatternStrategy("%n.%i%e"))

	var before, kept, removed int
	removeBefore := m.OnBeforeRotation(func(string) { before++ })
	m.OnAfterRotation(func(string, string) { kept++ })
	removeAfter := m.OnAfterRotation(func(string, string) { removed++ })

	f.write("one\n")
	if _, err := m.ForceRotate(f); err != nil {
		t.Fatal(err)
	}
	removeBefore()
	removeAfter()
	removeAfter()

	f.write("two\n")
	if _, err := m.ForceRotate(f); err != nil {
		t.Fatal(err)
	}
	if before != 1 || removed != 1 || kept != 2 {
		t.Errorf("before=%d removed=%d kept=%d, want 1 1 2", before, removed, kept)
	}
}
