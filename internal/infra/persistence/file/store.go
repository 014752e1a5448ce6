package file

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/jesmann/epgmerge/internal/domain/model/artifact"
)

// Store manages the three artifact areas on one filesystem:
//
//	<base>/scratch   in-progress merge output, unsuffixed working files
//	<base>/current   exactly one file per configured output name
//	<base>/archive   <name>.<YYYYMMDD_HHMMSS> demoted artifacts
//
// All moves between areas are single renames, never truncate-and-rewrite,
// so concurrent readers only ever see stable files.
type Store struct {
	fs         afero.Fs
	scratchDir string
	currentDir string
	archiveDir string

	// Serializes promote against delete and other promotes. Reads do not
	// take it.
	mu sync.Mutex

	// now is swappable in tests to force timestamp collisions
	now func() time.Time
}

// NewStore creates the store and its area directories
func NewStore(fs afero.Fs, baseDir string) (*Store, error) {
	s := &Store{
		fs:         fs,
		scratchDir: filepath.Join(baseDir, "scratch"),
		currentDir: filepath.Join(baseDir, "current"),
		archiveDir: filepath.Join(baseDir, "archive"),
		now:        time.Now,
	}
	for _, dir := range []string{s.scratchDir, s.currentDir, s.archiveDir} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return s, nil
}

// Stage writes the reader's bytes atomically into the scratch area,
// overwriting any prior scratch file of the same name
func (s *Store) Stage(name string, r io.Reader) (int64, error) {
	name, err := artifact.ValidateName(name)
	if err != nil {
		return 0, err
	}
	n, err := writeAtomic(s.fs, filepath.Join(s.scratchDir, name), r)
	if err != nil {
		return 0, fmt.Errorf("stage %s: %w", name, err)
	}
	return n, nil
}

// Promote installs a staged artifact as current. If a current file already
// exists under targetName it is first demoted into the archive area with a
// timestamp suffix; both steps are renames. A failure between the two steps
// returns *artifact.PartialPromoteError: the demoted file is safe in the
// archive, the current slot is empty, and nothing has been lost.
func (s *Store) Promote(scratchName, targetName string) (*artifact.PromoteResult, error) {
	scratchName, err := artifact.ValidateName(scratchName)
	if err != nil {
		return nil, err
	}
	targetName, err = artifact.ValidateName(targetName)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	scratchPath := filepath.Join(s.scratchDir, scratchName)
	staged, err := s.fs.Stat(scratchPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("scratch %s: %w", scratchName, artifact.ErrNotFound)
		}
		return nil, fmt.Errorf("stat scratch %s: %w", scratchName, err)
	}

	promotedAt := s.now().UTC()
	currentPath := filepath.Join(s.currentDir, targetName)

	// Step 1: demote the prior current file, if any
	archivedAs := ""
	if _, err := s.fs.Stat(currentPath); err == nil {
		// Bump the suffix on a same-second promote so an existing archive
		// is never overwritten
		ts := promotedAt
		archivedAs = artifact.ArchivedName(targetName, ts)
		for {
			if _, err := s.fs.Stat(filepath.Join(s.archiveDir, archivedAs)); os.IsNotExist(err) {
				break
			}
			ts = ts.Add(time.Second)
			archivedAs = artifact.ArchivedName(targetName, ts)
		}
		archivePath := filepath.Join(s.archiveDir, archivedAs)
		if err := s.fs.Rename(currentPath, archivePath); err != nil {
			return nil, fmt.Errorf("demote %s: %w", targetName, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat current %s: %w", targetName, err)
	}

	// Step 2: install the staged artifact
	if err := s.fs.Rename(scratchPath, currentPath); err != nil {
		if archivedAs != "" {
			return nil, &artifact.PartialPromoteError{ArchivedAs: archivedAs, Err: err}
		}
		return nil, fmt.Errorf("install %s: %w", targetName, err)
	}

	return &artifact.PromoteResult{
		Filename:   targetName,
		ArchivedAs: archivedAs,
		PromotedAt: promotedAt,
		SizeBytes:  staged.Size(),
	}, nil
}

// ListArchives lists the archive area. No ordering guarantee; sorting is
// the metadata index's job.
func (s *Store) ListArchives() ([]artifact.FileInfo, error) {
	entries, err := afero.ReadDir(s.fs, s.archiveDir)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	var out []artifact.FileInfo
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, artifact.FileInfo{Name: e.Name(), Size: e.Size(), ModTime: e.ModTime()})
	}
	return out, nil
}

// Open returns a reader for a current or archived artifact by filename
func (s *Store) Open(filename string) (io.ReadCloser, *artifact.FileInfo, error) {
	filename, err := artifact.ValidateName(filename)
	if err != nil {
		return nil, nil, err
	}
	for _, dir := range []string{s.currentDir, s.archiveDir} {
		path := filepath.Join(dir, filename)
		info, err := s.fs.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, nil, fmt.Errorf("stat %s: %w", filename, err)
		}
		f, err := s.fs.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", filename, err)
		}
		return f, &artifact.FileInfo{Name: filename, Size: info.Size(), ModTime: info.ModTime()}, nil
	}
	return nil, nil, fmt.Errorf("%s: %w", filename, artifact.ErrNotFound)
}

// Delete removes an archived file. The current slot is protected.
func (s *Store) Delete(filename string) error {
	filename, err := artifact.ValidateName(filename)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.fs.Stat(filepath.Join(s.currentDir, filename)); err == nil {
		return fmt.Errorf("%s: %w", filename, artifact.ErrForbidden)
	}

	path := filepath.Join(s.archiveDir, filename)
	if _, err := s.fs.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", filename, artifact.ErrNotFound)
		}
		return fmt.Errorf("stat %s: %w", filename, err)
	}
	if err := s.fs.Remove(path); err != nil {
		return fmt.Errorf("delete %s: %w", filename, err)
	}
	return nil
}

// CurrentInfo describes the current slot for targetName, or nil when empty
func (s *Store) CurrentInfo(targetName string) (*artifact.FileInfo, error) {
	targetName, err := artifact.ValidateName(targetName)
	if err != nil {
		return nil, err
	}
	info, err := s.fs.Stat(filepath.Join(s.currentDir, targetName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat current %s: %w", targetName, err)
	}
	return &artifact.FileInfo{Name: targetName, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// DiscardScratch removes a scratch file, ignoring absence
func (s *Store) DiscardScratch(name string) error {
	name, err := artifact.ValidateName(name)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(filepath.Join(s.scratchDir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard scratch %s: %w", name, err)
	}
	return nil
}
