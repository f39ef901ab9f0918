package features

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCompressFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.1.log")
	dst := src + CompressedExt
	content := []byte("line one\nline two\n")
	if err := os.WriteFile(src, content, 0644); err != nil {
		t.Fatal(err)
	}

	if err := CompressFile(src, dst); err != nil {
		t.Fatalf("CompressFile() error = %v", err)
	}
	if exists(src) {
		t.Error("source should be removed")
	}

	got, err := DecompressFile(dst)
	if err != nil {
		t.Fatalf("DecompressFile() error = %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content = %q, want %q", got, content)
	}
}

func TestCompressFile_MissingSource(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.gz")
	if err := CompressFile(filepath.Join(dir, "missing.log"), dst); err == nil {
		t.Fatal("expected error")
	}
	if exists(dst) {
		t.Error("no destination should be left behind")
	}
}
