package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
	"github.com/lehigh-university-libraries/albumtracker/internal/models"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	return path
}

func TestIsProcessed(t *testing.T) {
	s := New("")
	tests := []struct {
		name string
		want bool
	}{
		{"cover.jpg", false},
		{"cover.processed.jpg", true},
		{"cover.PROCESSED.jpg", false},
		{"processed.jpg", false},
		{"cover.processed", true},
		{"cover.processed.tar.gz", false},
		{"my.processed.photo.png", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.IsProcessed(tt.name))
		})
	}
}

func TestMarkedName(t *testing.T) {
	s := New(".done.")
	assert.Equal(t, "cover.done.jpg", s.MarkedName("cover.jpg"))
	assert.Equal(t, "IMG_0001.done.HEIC", s.MarkedName("IMG_0001.HEIC"))
	assert.Equal(t, "scan.done", s.MarkedName("scan"))
	assert.True(t, s.IsProcessed(s.MarkedName("a.b.png")))
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.jpg")
	touch(t, dir, "a.png")
	touch(t, dir, "c.processed.jpg")
	touch(t, dir, ".DS_Store")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	touch(t, filepath.Join(dir, "nested"), "d.jpg")

	assets, err := New("").Scan(dir)
	require.NoError(t, err)

	names := make([]string, 0, len(assets))
	for _, a := range assets {
		names = append(names, a.Name)
		assert.Equal(t, filepath.Join(dir, a.Name), a.Path)
	}
	assert.Equal(t, []string{"a.png", "b.jpg", "c.processed.jpg"}, names)
	assert.False(t, assets[0].Processed)
	assert.True(t, assets[2].Processed)
}

func TestScanMissingDir(t *testing.T) {
	_, err := New("").Scan(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIO))
}

func TestMarkProcessed(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "cover.jpg")
	s := New("")

	got, err := s.MarkProcessed(models.ImageAsset{Path: path, Name: "cover.jpg"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cover.processed.jpg"), got)
	assert.NoFileExists(t, path)
	assert.FileExists(t, got)

	assets, err := s.Scan(dir)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.True(t, assets[0].Processed)
}

func TestMarkProcessedRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "cover.jpg")
	existing := touch(t, dir, "cover.processed.jpg")
	require.NoError(t, os.WriteFile(existing, []byte("keep me"), 0o644))

	_, err := New("").MarkProcessed(models.ImageAsset{Path: path, Name: "cover.jpg"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIO))
	assert.True(t, errors.Is(err, errors.ErrMarker))
	assert.True(t, errors.IsSystemic(err))

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
	assert.FileExists(t, path)
}

func TestMarkProcessedMissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := New("").MarkProcessed(models.ImageAsset{Path: filepath.Join(dir, "gone.jpg"), Name: "gone.jpg"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMarker))
}

func TestLockDir(t *testing.T) {
	dir := t.TempDir()

	first, err := LockDir(dir)
	require.NoError(t, err)

	_, err = LockDir(dir)
	require.Error(t, err, "second run on the same directory is refused")
	assert.True(t, errors.Is(err, errors.ErrIO))

	other, err := LockDir(t.TempDir())
	require.NoError(t, err, "other directories are independent")
	require.NoError(t, other.Unlock())

	require.NoError(t, first.Unlock())

	again, err := LockDir(dir)
	require.NoError(t, err)
	require.NoError(t, again.Unlock())
}
