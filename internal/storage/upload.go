package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	uploadsDirName = "uploads"
	outputsDirName = "outputs"
)

var ErrTooLarge = errors.New("upload exceeds size limit")

// Uploader keeps transient audio payloads and generated captions on local disk.
type Uploader struct {
	uploadsDir string
	outputsDir string
	logger     *slog.Logger
}

// NewUploader stores to baseDir/uploads and baseDir/outputs.
func NewUploader(baseDir string, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		uploadsDir: filepath.Join(baseDir, uploadsDirName),
		outputsDir: filepath.Join(baseDir, outputsDirName),
		logger:     logger,
	}
}

// Save copies src into a fresh file that keeps the original extension.
// maxBytes <= 0 disables the limit. On any error nothing is left on disk.
func (u *Uploader) Save(src io.Reader, filename string, maxBytes int64) (string, error) {
	if err := os.MkdirAll(u.uploadsDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure uploads dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".bin"
	}
	dstPath := filepath.Join(u.uploadsDir, randomHex(16)+ext)

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	r := src
	if maxBytes > 0 {
		r = io.LimitReader(src, maxBytes+1)
	}
	n, copyErr := io.Copy(dst, r)
	closeErr := dst.Close()

	switch {
	case copyErr != nil:
		_ = os.Remove(dstPath)
		return "", fmt.Errorf("copy upload: %w", copyErr)
	case closeErr != nil:
		_ = os.Remove(dstPath)
		return "", fmt.Errorf("close upload: %w", closeErr)
	case maxBytes > 0 && n > maxBytes:
		_ = os.Remove(dstPath)
		return "", ErrTooLarge
	}
	return dstPath, nil
}

// WriteOutput writes a generated artifact such as an .srt file.
func (u *Uploader) WriteOutput(data []byte, suffix string) (string, error) {
	if err := os.MkdirAll(u.outputsDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure outputs dir: %w", err)
	}
	p := filepath.Join(u.outputsDir, randomHex(16)+suffix)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		_ = os.Remove(p)
		return "", fmt.Errorf("write output: %w", err)
	}
	return p, nil
}

// Remove deletes path. A file that is already gone is not an error; other
// failures are logged and returned.
func (u *Uploader) Remove(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	u.logger.Warn("remove transient file", "path", path, "error", err)
	return err
}

func (u *Uploader) Exists(path string) bool {
	if path == "" {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
