// Package utils provides download and cache helpers shared by the viewer and
// the feed simulator.
package utils

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

var ErrNotFound = errors.New("file not found on server")

// CacheDir is where downloaded datasets land. Overridable for tests.
var CacheDir = "data/cache"

type progressWriter struct {
	io.Writer
	total uint64
	last  uint64
	label string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.total += uint64(n)
	if pw.total-pw.last > 5*1024*1024 { // Log every 5MB
		log.Info().Str("file", pw.label).Uint64("mb", pw.total/1024/1024).Msg("downloading")
		pw.last = pw.total
	}
	return n, err
}

// DownloadFile downloads a URL to a local path, writing through a temp file in
// the same directory so the final rename is atomic.
func DownloadFile(url, path string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("closing response body")
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	defer func() {
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", tmpName).Msg("removing temp file")
		}
	}()

	pw := &progressWriter{Writer: tmpFile, label: filepath.Base(path)}
	if _, err := io.Copy(pw, resp.Body); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// GetCacheFileName returns the local cache filename for a URL. The sanitized
// logPrefix is folded in to keep distinct datasets from colliding.
func GetCacheFileName(url, logPrefix string) string {
	urlParts := strings.Split(url, "/")
	fileName := urlParts[len(urlParts)-1]

	sanitized := strings.Trim(logPrefix, "[]")
	sanitized = strings.ReplaceAll(sanitized, " ", "_")
	if sanitized != "" {
		fileName = sanitized + "_" + fileName
	}
	return fileName
}

// GetCachedReader returns a reader for the URL, downloading into the local
// cache on first use. With useCache false it streams straight from the
// network.
func GetCachedReader(url string, useCache bool, logPrefix string) (io.ReadCloser, error) {
	if useCache {
		if err := os.MkdirAll(CacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
		localPath := filepath.Join(CacheDir, GetCacheFileName(url, logPrefix))

		if _, err := os.Stat(localPath); os.IsNotExist(err) {
			log.Info().Str("prefix", logPrefix).Str("url", url).Msg("downloading")
			if err := DownloadFile(url, localPath); err != nil {
				return nil, err
			}
		} else {
			log.Debug().Str("prefix", logPrefix).Str("file", localPath).Msg("using cached file")
		}
		f, err := os.Open(localPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache: %w", err)
		}
		return f, nil
	}

	log.Info().Str("prefix", logPrefix).Str("url", url).Msg("streaming")
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}
	return resp.Body, nil
}
