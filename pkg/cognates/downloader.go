package cognates

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/japaniel/sieve/pkg/logger"
)

// maxDownloadSize caps a dataset download.
const maxDownloadSize = 256 << 20

// Ensure makes sure a dataset file exists at path, downloading it from url if
// it does not. An empty url with a missing file is an error.
func Ensure(ctx context.Context, path, url string, log *zap.Logger) error {
	log = logger.OrNop(log)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if url == "" {
		return fmt.Errorf("cognate dataset %s is missing and no download url is configured", path)
	}

	log.Info("cognate dataset not found, downloading", zap.String("path", path), zap.String("url", url))
	start := time.Now()
	n, err := download(ctx, url, path)
	if err != nil {
		return fmt.Errorf("download cognates: %w", err)
	}
	log.Info("cognate dataset downloaded",
		zap.String("path", path),
		zap.Int64("bytes", n),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// download writes url to a temporary file next to dest and renames it into
// place, so an interrupted download never leaves a truncated dataset behind.
func download(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", "sieve-cli")

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download failed: %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after the rename

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxDownloadSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write dataset: %w", err)
	}
	if n > maxDownloadSize {
		return 0, fmt.Errorf("dataset exceeds %d bytes", maxDownloadSize)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, err
	}
	return n, nil
}
