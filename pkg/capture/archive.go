package capture

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Archive compresses a finished traffic log to <path>.zst and returns the
// archive path. The source file is left in place; a partial archive is
// removed on failure.
func Archive(path string) (string, error) {
	if !strings.HasSuffix(path, ".jsonl") {
		return "", fmt.Errorf("archive %s: not a .jsonl log", path)
	}
	destPath := path + ".zst"

	src, err := os.Open(path) //#nosec G304 -- log written by this process
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dest, err := os.Create(destPath) //#nosec G304 -- derived from log path
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}

	if err := compressTo(dest, src); err != nil {
		_ = os.Remove(destPath)
		return "", err
	}
	return destPath, nil
}

// compressTo zstd-encodes src into dest and closes dest. A close failure is
// returned like any other: the archive is not complete until it is closed.
func compressTo(dest io.WriteCloser, src io.Reader) error {
	encoder, err := zstd.NewWriter(dest)
	if err != nil {
		dest.Close()
		return fmt.Errorf("create zstd encoder: %w", err)
	}

	if _, err := io.Copy(encoder, src); err != nil {
		encoder.Close()
		dest.Close()
		return fmt.Errorf("compress: %w", err)
	}
	if err := encoder.Close(); err != nil {
		dest.Close()
		return fmt.Errorf("finalize compression: %w", err)
	}
	if err := dest.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}
