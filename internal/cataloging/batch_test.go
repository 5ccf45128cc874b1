package cataloging

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/albumtracker/internal/config"
	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
	"github.com/lehigh-university-libraries/albumtracker/internal/models"
)

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func abbeyRoadSearch() searcherFunc {
	return found(models.Candidate{ID: 123, Title: "Abbey Road"})
}

func TestBatchAbbeyRoad(t *testing.T) {
	dir := t.TempDir()
	writeCover(t, dir, "IMG_0001.png")

	h := newHarness(t, labelOf("Abbey Road"), abbeyRoadSearch(), "0\n")
	report, err := NewBatch(h.store, h.service, false, h.out).Run(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, models.StageProcessed, report.Results[0].Stage)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.Aborted)
	assert.Contains(t, h.out.String(), "created The Beatles — Abbey Road (Vinyl)")
	assert.Contains(t, h.out.String(), "1 processed, 0 skipped, 0 failed")
	assert.Equal(t, []string{"IMG_0001.processed.png"}, listDir(t, dir))
}

func TestBatchNeverPreparesProcessedFiles(t *testing.T) {
	dir := t.TempDir()
	writeCover(t, dir, "a.processed.png")
	writeCover(t, dir, "b.processed.png")

	h := newHarness(t, labelOf("Abbey Road"), abbeyRoadSearch(), "0\n0\n")
	report, err := NewBatch(h.store, h.service, false, h.out).Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Empty(t, h.preparer.calls)
	assert.Empty(t, h.committer.released)
	assert.Equal(t, 2, report.Count(models.StageSkipped))
}

func TestBatchIsIdempotentAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	writeCover(t, dir, "cover.png")

	first := newHarness(t, labelOf("Abbey Road"), abbeyRoadSearch(), "0\n")
	_, err := NewBatch(first.store, first.service, false, first.out).Run(context.Background(), dir)
	require.NoError(t, err)

	second := newHarness(t, labelOf("Abbey Road"), abbeyRoadSearch(), "0\n")
	report, err := NewBatch(second.store, second.service, false, second.out).Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Empty(t, second.preparer.calls)
	assert.Empty(t, second.committer.released)
	assert.Equal(t, 1, report.Count(models.StageSkipped))
}

func TestBatchContinuesPastFileFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-corrupt.jpg"), []byte("garbage"), 0o644))
	writeCover(t, dir, "b-typo.png")
	writeCover(t, dir, "c-good.png")

	// the first answer is for b-typo.png, the second for c-good.png
	h := newHarness(t, labelOf("Abbey Road"), abbeyRoadSearch(), "seven\n0\n")
	report, err := NewBatch(h.store, h.service, false, h.out).Run(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, report.Results, 3)
	assert.Equal(t, models.StagePreparing, report.Results[0].FailedAt)
	assert.True(t, errors.Is(report.Results[0].Err, errors.ErrDecode))
	assert.Equal(t, models.StageDisambiguating, report.Results[1].FailedAt)
	assert.True(t, errors.Is(report.Results[1].Err, errors.ErrInput))
	assert.Equal(t, models.StageProcessed, report.Results[2].Stage)
	assert.Len(t, report.Failed(), 2)
	assert.False(t, report.Aborted)

	assert.Equal(t, []string{"a-corrupt.jpg", "b-typo.png", "c-good.processed.png"}, listDir(t, dir))
}

func TestBatchAbortPolicy(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-corrupt.jpg"), []byte("garbage"), 0o644))
	writeCover(t, dir, "b-good.png")

	h := newHarness(t, labelOf("Abbey Road"), abbeyRoadSearch(), "0\n")
	report, err := NewBatch(h.store, h.service, true, h.out).Run(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDecode))

	assert.True(t, report.Aborted)
	assert.Equal(t, 1, report.Count(models.StagePending))
	assert.Equal(t, []string{"a-corrupt.jpg"}, h.preparer.calls)
	assert.Equal(t, []string{"a-corrupt.jpg", "b-good.png"}, listDir(t, dir))
}

func TestBatchAbortsOnSystemicFailure(t *testing.T) {
	dir := t.TempDir()
	writeCover(t, dir, "a.png")
	writeCover(t, dir, "b.png")

	calls := 0
	rejected := recognizerFunc(func(context.Context, models.EncodedImage) (models.Label, error) {
		calls++
		return models.Label{}, errors.Newk(errors.ErrAuth, "credential tool failed")
	})

	h := newHarness(t, rejected, abbeyRoadSearch(), "0\n0\n")
	report, err := NewBatch(h.store, h.service, false, h.out).Run(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAuth))

	assert.Equal(t, 1, calls, "the second file is not attempted")
	assert.True(t, report.Aborted)
	assert.Equal(t, models.StagePending, report.Results[1].Stage)
	assert.Contains(t, h.out.String(), "not attempted")
	assert.Equal(t, []string{"a.png", "b.png"}, listDir(t, dir))
}

func TestBatchMarkerConflictIsSystemic(t *testing.T) {
	dir := t.TempDir()
	writeCover(t, dir, "a.png")
	writeCover(t, dir, "a.processed.png")
	writeCover(t, dir, "b.png")

	h := newHarness(t, labelOf("Abbey Road"), abbeyRoadSearch(), "0\n0\n")
	report, err := NewBatch(h.store, h.service, false, h.out).Run(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMarker))

	assert.Equal(t, []int64{123}, h.committer.released, "b.png is not committed after a.png could not be marked")
	assert.True(t, report.Aborted)
	assert.Contains(t, strings.Join(errors.GetAllHints(err), " "), "rename it by hand")
}

func TestBatchCanceled(t *testing.T) {
	dir := t.TempDir()
	writeCover(t, dir, "a.png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := newHarness(t, labelOf("Abbey Road"), abbeyRoadSearch(), "0\n")
	report, err := NewBatch(h.store, h.service, false, h.out).Run(ctx, dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.preparer.calls)
	assert.Equal(t, 1, report.Count(models.StagePending))
}

func TestBatchRefusesConcurrentRun(t *testing.T) {
	dir := t.TempDir()
	writeCover(t, dir, "a.png")

	inner := newHarness(t, labelOf("x"), found(), "")
	h := newHarness(t, recognizerFunc(func(ctx context.Context, img models.EncodedImage) (models.Label, error) {
		_, err := NewBatch(inner.store, inner.service, false, nil).Run(ctx, filepath.Dir(img.Source))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrIO))
		return models.Label{Text: "Abbey Road"}, nil
	}), abbeyRoadSearch(), "0\n")

	_, err := NewBatch(h.store, h.service, false, h.out).Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, inner.preparer.calls)
}

func TestBuildFailsBeforeNetworkWithoutCredentials(t *testing.T) {
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterNoResponder(func(req *http.Request) (*http.Response, error) {
		t.Errorf("unexpected request to %s", req.URL)
		return httpmock.NewStringResponse(http.StatusInternalServerError, ""), nil
	})

	dir := t.TempDir()
	writeCover(t, dir, "cover.png")

	cfg := config.Default()
	cfg.Discogs.User = "crate-digger"
	cfg.Discogs.Token = "tok123"
	cfg.Vision.SDKPath = "/usr/bin/gcloud"
	cfg.Vision.CredentialsFile = ""
	require.NoError(t, cfg.Validate())

	batch, cleanup, err := Build(context.Background(), cfg, strings.NewReader("0\n"), nil)
	defer cleanup()
	require.Error(t, err)
	assert.Nil(t, batch)
	assert.True(t, errors.Is(err, errors.ErrAuth))
	assert.Equal(t, "AuthError", errors.KindName(err))

	assert.Zero(t, httpmock.GetTotalCallCount())
	assert.Equal(t, []string{"cover.png"}, listDir(t, dir))
}

func TestBuildWiresConfiguredRecognizer(t *testing.T) {
	cfg := config.Default()
	cfg.Discogs.User = "crate-digger"
	cfg.Discogs.Token = "tok123"
	cfg.Recognizer = "ollama"

	batch, cleanup, err := Build(context.Background(), cfg, strings.NewReader(""), nil)
	defer cleanup()
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.False(t, batch.abortOnError)

	cfg.Recognizer = "openai"
	_, cleanup2, err := Build(context.Background(), cfg, strings.NewReader(""), nil)
	defer cleanup2()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAuth), "missing OPENAI_API_KEY")
}
