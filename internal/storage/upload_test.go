package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUploader_SaveKeepsExtension(t *testing.T) {
	u := NewUploader(t.TempDir(), nil)

	p, err := u.Save(strings.NewReader("RIFF...."), "Meeting.WAV", 1024)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Ext(p) != ".wav" {
		t.Fatalf("expected .wav extension, got %s", p)
	}
	data, err := os.ReadFile(p)
	if err != nil || string(data) != "RIFF...." {
		t.Fatalf("unexpected content %q (err=%v)", data, err)
	}
	if !u.Exists(p) {
		t.Fatalf("Exists should report the saved file")
	}
}

func TestUploader_SaveTooLargeLeavesNothing(t *testing.T) {
	base := t.TempDir()
	u := NewUploader(base, nil)

	_, err := u.Save(strings.NewReader(strings.Repeat("x", 11)), "a.mp3", 10)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(base, uploadsDirName))
	if len(entries) != 0 {
		t.Fatalf("expected no leftover uploads, got %d", len(entries))
	}
}

func TestUploader_RemoveIsIdempotent(t *testing.T) {
	u := NewUploader(t.TempDir(), nil)
	p, err := u.WriteOutput([]byte("1\n"), ".srt")
	if err != nil {
		t.Fatalf("WriteOutput: %v", err)
	}
	if err := u.Remove(p); err != nil {
		t.Fatalf("first Remove: %v", err)
	}
	if err := u.Remove(p); err != nil {
		t.Fatalf("second Remove must ignore missing file: %v", err)
	}
	if u.Exists(p) {
		t.Fatalf("file should be gone")
	}
}
