// Package storage tracks which photos in a batch directory have already been
// cataloged. The only state is the marker in each file's name.
package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
	"github.com/lehigh-university-libraries/albumtracker/internal/models"
)

// DefaultMarker is inserted before the extension of cataloged files
const DefaultMarker = "processed"

// Store applies and recognises the processed marker
type Store struct {
	marker string
}

// New returns a Store using marker, or DefaultMarker when empty
func New(marker string) *Store {
	marker = strings.Trim(strings.TrimSpace(marker), ".")
	if marker == "" {
		marker = DefaultMarker
	}
	return &Store{marker: marker}
}

// Scan lists the regular, non-hidden files directly inside dir, sorted by
// name. Subdirectories are not descended into.
func (s *Store) Scan(dir string) ([]models.ImageAsset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapkf(err, errors.ErrIO, "failed to read directory %s", dir)
	}

	// os.ReadDir returns entries sorted by filename
	assets := make([]models.ImageAsset, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		if !e.Type().IsRegular() {
			if e.Type()&os.ModeSymlink == 0 {
				continue
			}
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
		}
		assets = append(assets, models.ImageAsset{
			Path:      path,
			Name:      name,
			Processed: s.IsProcessed(name),
		})
	}
	return assets, nil
}

// IsProcessed reports whether name already carries the marker
func (s *Store) IsProcessed(name string) bool {
	suffix := "." + s.marker
	if strings.HasSuffix(name, suffix) {
		return true
	}
	ext := filepath.Ext(name)
	return strings.HasSuffix(strings.TrimSuffix(name, ext), suffix)
}

// MarkedName returns name with the marker inserted before its extension:
// cover.jpg becomes cover.processed.jpg.
func (s *Store) MarkedName(name string) string {
	ext := filepath.Ext(name)
	if ext == name {
		// dotfile-like names have no stem to keep
		return name + "." + s.marker
	}
	return strings.TrimSuffix(name, ext) + "." + s.marker + ext
}

// MarkProcessed renames the asset so later scans skip it and returns the new
// path. An existing file at the target is never overwritten. Failures carry
// ErrMarker as well as ErrIO: the remote write has already happened.
func (s *Store) MarkProcessed(asset models.ImageAsset) (string, error) {
	if s.IsProcessed(asset.Name) {
		return asset.Path, nil
	}
	target := filepath.Join(filepath.Dir(asset.Path), s.MarkedName(asset.Name))

	if _, err := os.Lstat(target); err == nil {
		return "", markerErr(errors.Newf("refusing to overwrite existing %s", target), asset.Path)
	} else if !os.IsNotExist(err) {
		return "", markerErr(errors.Wrapf(err, "failed to check %s", target), asset.Path)
	}

	if err := os.Rename(asset.Path, target); err != nil {
		return "", markerErr(errors.Wrapf(err, "failed to rename %s", asset.Path), asset.Path)
	}
	return target, nil
}

func markerErr(err error, path string) error {
	err = errors.Mark(errors.Mark(err, errors.ErrIO), errors.ErrMarker)
	return errors.WithHintf(err, "%s was cataloged but not marked; rename it by hand before the next run", path)
}

// Lock guards a batch directory against concurrent runs
type Lock struct {
	path string
	fl   *flock.Flock
}

// LockDir takes an exclusive, non-blocking lock for dir. The lock file
// lives in the OS temp directory so the batch directory stays untouched.
func LockDir(dir string) (*Lock, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapkf(err, errors.ErrIO, "failed to resolve %s", dir)
	}
	key := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs)).String()
	path := filepath.Join(os.TempDir(), "albumtracker-"+key+".lock")

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrapkf(err, errors.ErrIO, "failed to acquire lock %s", path)
	}
	if !ok {
		return nil, errors.WithHintf(
			errors.Newkf(errors.ErrIO, "another albumtracker run is processing %s", abs),
			"wait for it to finish or remove %s if it crashed", path)
	}
	return &Lock{path: path, fl: fl}, nil
}

// Path returns the lock file location
func (l *Lock) Path() string {
	return l.path
}

// Unlock releases the lock
func (l *Lock) Unlock() error {
	if err := l.fl.Unlock(); err != nil {
		return errors.Wrapf(err, "failed to release lock %s", l.path)
	}
	return nil
}
