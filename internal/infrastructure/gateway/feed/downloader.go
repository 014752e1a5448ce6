package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/jesmann/epgmerge/internal/application/dto"
	"github.com/jesmann/epgmerge/internal/domain/model/artifact"
)

// CacheMaxAge is how long a downloaded source stays valid before it is
// re-fetched from the provider
const CacheMaxAge = 24 * time.Hour

const downloadAttempts = 3

// Fetch downloads the requested sources into the cache directory, serving
// from cache when the copy is under CacheMaxAge old. A source that fails
// all attempts is skipped with a warning; the phase errors only when not a
// single source could be produced.
func (e *Engine) Fetch(ctx context.Context, req dto.MergeRequest) (*dto.FetchResult, error) {
	if err := e.fs.MkdirAll(e.cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	var files []string
	var lastErr error
	for _, source := range req.Sources {
		name, err := artifact.ValidateName(source)
		if err != nil {
			e.warnLog("skipping source %q: %v", source, err)
			lastErr = err
			continue
		}
		path, err := e.fetchOne(ctx, name, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.warnLog("source %s unavailable: %v", name, err)
			lastErr = err
			continue
		}
		files = append(files, path)
	}

	if len(files) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("no sources could be downloaded: %w", lastErr)
		}
		return nil, fmt.Errorf("no sources requested")
	}
	return &dto.FetchResult{Files: files}, nil
}

func (e *Engine) fetchOne(ctx context.Context, source string, req dto.MergeRequest) (string, error) {
	cachePath := filepath.Join(e.cacheDir, source)
	if info, err := e.fs.Stat(cachePath); err == nil {
		if e.now().Sub(info.ModTime()) < CacheMaxAge {
			e.infoLog("using cached copy of %s", source)
			return cachePath, nil
		}
	}

	url := e.manifest.SourceURL(req.TimeframeDays, req.FeedType, source)
	var lastErr error
	for attempt := 1; attempt <= downloadAttempts; attempt++ {
		if err := e.download(ctx, url, cachePath); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return "", err
			}
			continue
		}
		e.infoLog("downloaded %s", url)
		return cachePath, nil
	}
	return "", fmt.Errorf("after %d attempts: %w", downloadAttempts, lastErr)
}

func (e *Engine) download(ctx context.Context, url, cachePath string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	f, err := afero.TempFile(e.fs, e.cacheDir, ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := f.Name()
	defer e.fs.Remove(tmpName)

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", cachePath, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return e.fs.Rename(tmpName, cachePath)
}
