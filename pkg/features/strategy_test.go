package features

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

var rotationTime = time.Date(2024, 1, 15, 14, 30, 52, 0, time.UTC)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestPatternStrategy_Name(t *testing.T) {
	tests := []struct {
		pattern string
		index   int
		want    string
	}{
		{DefaultArchivePattern, 0, "/var/log/app-20240115-143052.log"},
		{"%n.%i%e", 3, "/var/log/app.3.log"},
		{"%n_%Y-%m-%d%e", 0, "/var/log/app_2024-01-15.log"},
		{"old/%n%e", 0, "/var/log/old/app.log"},
		{"/archive/%n%e", 0, "/archive/app.log"},
		{"%n%%%e", 0, "/var/log/app%.log"},
	}

	for _, tt := range tests {
		s := NewPatternStrategy(tt.pattern)
		if got := s.Name("/var/log/app.log", rotationTime, tt.index); got != tt.want {
			t.Errorf("Name(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}

func TestPatternStrategy_FirstUnusedIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	s := NewPatternStrategy("%n.%i%e")

	writeFile(t, filepath.Join(dir, "app.1.log"), "taken")
	writeFile(t, filepath.Join(dir, "app.2.log"), "taken")
	writeFile(t, path, "current")

	archive, err := s.Archive(types.RotationContext{Path: path, Time: rotationTime})
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if want := filepath.Join(dir, "app.3.log"); archive != want {
		t.Errorf("archive = %q, want %q", archive, want)
	}
	if readFile(t, archive) != "current" {
		t.Error("archive has the wrong content")
	}
	if exists(path) {
		t.Error("original path should be free after archiving")
	}
}

func TestPatternStrategy_SuffixWithoutIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	s := NewPatternStrategy("")

	var archives []string
	for i := 0; i < 3; i++ {
		writeFile(t, path, "gen")
		archive, err := s.Archive(types.RotationContext{Path: path, Time: rotationTime})
		if err != nil {
			t.Fatalf("Archive() #%d error = %v", i, err)
		}
		archives = append(archives, filepath.Base(archive))
	}

	want := []string{"app-20240115-143052.log", "app-20240115-143052.log.1", "app-20240115-143052.log.2"}
	for i := range want {
		if archives[i] != want[i] {
			t.Errorf("archive %d = %q, want %q", i, archives[i], want[i])
		}
	}
}

func TestPatternStrategy_SelfCollision(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	writeFile(t, path, "x")

	_, err := NewPatternStrategy("%n%e").Archive(types.RotationContext{Path: path, Time: rotationTime})
	if !errors.Is(err, types.ErrLogRotation) {
		t.Errorf("expected ErrLogRotation, got %v", err)
	}
}

func TestPatternStrategy_Compress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	writeFile(t, path, "compress me")

	s := NewPatternStrategy("%n.%i%e")
	s.Compress = true
	archive, err := s.Archive(types.RotationContext{Path: path, Time: rotationTime})
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if want := filepath.Join(dir, "app.1.log.gz"); archive != want {
		t.Fatalf("archive = %q, want %q", archive, want)
	}
	data, err := DecompressFile(archive)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "compress me" {
		t.Errorf("content = %q", data)
	}

	writeFile(t, path, "second")
	archive, _ = s.Archive(types.RotationContext{Path: path, Time: rotationTime})
	if want := filepath.Join(dir, "app.2.log.gz"); archive != want {
		t.Errorf("second archive = %q, want %q", archive, want)
	}
}

func TestPatternStrategy_MaxFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	writeFile(t, filepath.Join(dir, "other.txt"), "unrelated")

	s := NewPatternStrategy("%n.%i%e")
	s.MaxFiles = 2

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		writeFile(t, path, "gen")
		stamp := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(path, stamp, stamp); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Archive(types.RotationContext{Path: path, Time: rotationTime}); err != nil {
			t.Fatalf("Archive() #%d error = %v", i, err)
		}
	}

	archives, err := s.Archives(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(archives) != 2 {
		t.Fatalf("kept %d archives, want 2: %v", len(archives), archives)
	}
	if !exists(filepath.Join(dir, "other.txt")) {
		t.Error("unrelated files must not be removed")
	}
}

func TestPatternStrategy_MissingFile(t *testing.T) {
	_, err := NewPatternStrategy("").Archive(types.RotationContext{Path: filepath.Join(t.TempDir(), "gone.log")})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestNumberedStrategy_Move(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	s := NewNumberedStrategy(3, ArchiveMove)

	for _, gen := range []string{"a", "b", "c", "d"} {
		writeFile(t, path, gen)
		archive, err := s.Archive(types.RotationContext{Path: path})
		if err != nil {
			t.Fatalf("Archive(%s) error = %v", gen, err)
		}
		if archive != filepath.Join(dir, "app.1.log") {
			t.Fatalf("archive = %q", archive)
		}
	}

	want := map[string]string{"app.1.log": "d", "app.2.log": "c", "app.3.log": "b"}
	for name, content := range want {
		if got := readFile(t, filepath.Join(dir, name)); got != content {
			t.Errorf("%s = %q, want %q", name, got, content)
		}
	}
	if exists(filepath.Join(dir, "app.4.log")) {
		t.Error("archives beyond MaxFiles must be removed")
	}
}

func TestNumberedStrategy_Compress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	s := NewNumberedStrategy(2, ArchiveCompress)

	writeFile(t, path, "first")
	if _, err := s.Archive(types.RotationContext{Path: path}); err != nil {
		t.Fatal(err)
	}
	writeFile(t, path, "second")
	archive, err := s.Archive(types.RotationContext{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if archive != filepath.Join(dir, "app.1.log.gz") {
		t.Fatalf("archive = %q", archive)
	}

	older, err := DecompressFile(filepath.Join(dir, "app.2.log.gz"))
	if err != nil {
		t.Fatal(err)
	}
	if string(older) != "first" {
		t.Errorf("app.2.log.gz = %q, want first", older)
	}
}

func TestNumberedStrategy_Delete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	writeFile(t, path, "bye")

	archive, err := NewNumberedStrategy(0, ArchiveDelete).Archive(types.RotationContext{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if archive != "" {
		t.Errorf("archive = %q, want empty", archive)
	}
	if exists(path) {
		t.Error("file should be deleted")
	}
}

func TestParseArchiveBehaviour(t *testing.T) {
	for in, want := range map[string]ArchiveBehaviour{"": ArchiveCompress, "move": ArchiveMove, "DELETE": ArchiveDelete} {
		got, err := ParseArchiveBehaviour(in)
		if err != nil || got != want {
			t.Errorf("ParseArchiveBehaviour(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseArchiveBehaviour("zip"); !errors.Is(err, types.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
