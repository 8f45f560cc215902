package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndReadBack(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	key, err := store.Write(context.Background(), "generated/images/a.png", []byte("png"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "generated/images/a.png" {
		t.Fatalf("key = %q", key)
	}
	data, err := os.ReadFile(filepath.Join(store.BasePath(), "generated", "images", "a.png"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "png" {
		t.Fatalf("data = %q", data)
	}
}

func TestWriteRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	tests := []string{
		"../outside.txt",
		"a/../../outside.txt",
		"",
		"   ",
		".",
	}
	for _, key := range tests {
		if _, err := store.Write(context.Background(), key, []byte("x")); err == nil {
			t.Fatalf("Write(%q) should have been rejected", key)
		}
	}
}

func TestWriteNormalizesKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	tests := []struct {
		in   string
		want string
	}{
		{"/leading/slash.png", "leading/slash.png"},
		{"./dotted/key.png", "dotted/key.png"},
		{"a//b.png", "a/b.png"},
	}
	for _, tc := range tests {
		got, err := store.Write(context.Background(), tc.in, []byte("x"))
		if err != nil {
			t.Fatalf("Write(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Write(%q) key = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	if _, err := NewFileStore("  "); err == nil {
		t.Fatal("empty base path should be rejected")
	}
}

func TestWriteCancelledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Write(ctx, "a.png", []byte("x")); err == nil {
		t.Fatal("cancelled context should abort the write")
	}
}
