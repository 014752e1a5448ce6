package feed

import (
	"net/http"
	"time"

	"github.com/spf13/afero"

	infraconfig "github.com/jesmann/epgmerge/internal/infra/config"
)

// Engine downloads XMLTV sources from the feed provider and merges them
// into a single channel-filtered guide. It implements the merge engine port
// in two phases so the caller can bound each with its own deadline.
type Engine struct {
	fs       afero.Fs
	client   *http.Client
	manifest *infraconfig.Manifest

	cacheDir string // downloaded sources, reused for CacheMaxAge
	workDir  string // merge output under construction

	// now is swappable in tests to age the cache
	now func() time.Time

	infoLog func(format string, args ...interface{})
	warnLog func(format string, args ...interface{})
}

// NewEngine creates a feed engine. client may be nil, in which case a
// default client without a timeout is used; deadlines come from the caller's
// context.
func NewEngine(
	fs afero.Fs,
	client *http.Client,
	manifest *infraconfig.Manifest,
	cacheDir, workDir string,
	infoLog, warnLog func(format string, args ...interface{}),
) *Engine {
	if client == nil {
		client = &http.Client{}
	}
	return &Engine{
		fs:       fs,
		client:   client,
		manifest: manifest,
		cacheDir: cacheDir,
		workDir:  workDir,
		now:      time.Now,
		infoLog:  infoLog,
		warnLog:  warnLog,
	}
}
