package cataloging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
	"github.com/lehigh-university-libraries/albumtracker/internal/models"
	"github.com/lehigh-university-libraries/albumtracker/internal/providers"
	"github.com/lehigh-university-libraries/albumtracker/internal/render"
)

// Preparer turns a photo on disk into a size-bounded payload
type Preparer interface {
	Prepare(ctx context.Context, path string) (models.EncodedImage, error)
}

// Searcher finds catalog candidates for a label
type Searcher interface {
	Search(ctx context.Context, label string) ([]models.Candidate, error)
}

// Chooser resolves candidates to one operator selection
type Chooser interface {
	Choose(ctx context.Context, candidates []models.Candidate) (models.Selection, error)
}

// Committer writes a release to the remote collection
type Committer interface {
	AddToCollection(ctx context.Context, releaseID int64) (models.CollectionEntry, error)
}

// Marker records that a file has been cataloged
type Marker interface {
	IsProcessed(name string) bool
	MarkProcessed(asset models.ImageAsset) (string, error)
}

// Service runs the ingestion pipeline for one file at a time
type Service struct {
	preparer   Preparer
	recognizer providers.Recognizer
	searcher   Searcher
	chooser    Chooser
	committer  Committer
	marker     Marker

	out      io.Writer
	colorize bool
}

// NewService wires the pipeline stages. Progress lines are written to out.
func NewService(p Preparer, r providers.Recognizer, s Searcher, c Chooser, w Committer, m Marker, out io.Writer) *Service {
	if out == nil {
		out = io.Discard
	}
	return &Service{
		preparer:   p,
		recognizer: r,
		searcher:   s,
		chooser:    c,
		committer:  w,
		marker:     m,
		out:        out,
		colorize:   render.ShouldColorize(out),
	}
}

// ProcessFile takes asset from Pending to Processed, or to Failed at the
// first stage that errors. Stages always run in order and none is skipped.
// The file is marked only after the collection write succeeded; an asset
// that already carries the marker is skipped before anything is read.
func (s *Service) ProcessFile(ctx context.Context, asset models.ImageAsset) models.FileResult {
	res := models.FileResult{Asset: asset, Stage: models.StagePending}
	logger := slog.With("path", asset.Path)

	if asset.Processed || s.marker.IsProcessed(asset.Name) {
		res.Stage = models.StageSkipped
		logger.Debug("Skipping processed file")
		return res
	}

	fail := func(stage models.Stage, err error) models.FileResult {
		res.Stage = models.StageFailed
		res.FailedAt = stage
		res.Err = err
		logger.Error("File failed", "stage", stage, "kind", errors.KindName(err), "err", err)
		fmt.Fprintf(s.out, "%s failed while %s: %v\n", render.Bad("<<", s.colorize), stage, err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(s.out, "   hint: %s\n", hint)
		}
		return res
	}

	fmt.Fprintf(s.out, "%s %s\n", render.Accent(">>", s.colorize), asset.Name)

	res.Stage = models.StagePreparing
	img, err := s.preparer.Prepare(ctx, asset.Path)
	if err != nil {
		return fail(res.Stage, err)
	}
	fmt.Fprintf(s.out, "Processing image at %s -> %dx%d %s (%d bytes)\n", asset.Path, img.Width, img.Height, img.Format, len(img.Data))

	res.Stage = models.StageRecognizing
	label, err := s.recognizer.Recognize(ctx, img)
	if err != nil {
		return fail(res.Stage, err)
	}
	if label.Text == "" {
		return fail(res.Stage, errors.Newk(errors.ErrParse, "recognizer returned an empty label"))
	}
	res.Label = &label
	logger.Info("Recognized", "label", label.Text, "provider", label.Provider)
	fmt.Fprintf(s.out, "label -> %s\n", label.Text)

	res.Stage = models.StageSearching
	candidates, err := s.searcher.Search(ctx, label.Text)
	if err != nil {
		return fail(res.Stage, err)
	}
	logger.Debug("Search finished", "label", label.Text, "candidates", len(candidates))

	res.Stage = models.StageDisambiguating
	if len(candidates) == 0 {
		return fail(res.Stage, errors.WithHint(
			errors.Newkf(errors.ErrEmptyCandidates, "no catalog candidates for %q", label.Text),
			"retake the photo or catalog this record by hand"))
	}
	sel, err := s.chooser.Choose(ctx, candidates)
	if err != nil {
		return fail(res.Stage, err)
	}
	res.Selection = &sel
	c := sel.Candidate
	logger.Info("Selected", "index", sel.Index, "release_id", c.ID)
	fmt.Fprintf(s.out, "chose [%d] %s (%s, %s, %s)\n", sel.Index, c.Title, c.Country, c.Released, c.Format)

	res.Stage = models.StageWriting
	entry, err := s.committer.AddToCollection(ctx, c.ID)
	if err != nil {
		return fail(res.Stage, err)
	}
	res.Entry = &entry
	fmt.Fprintf(s.out, "created %s\n", entry)

	newPath, err := s.marker.MarkProcessed(asset)
	if err != nil {
		return fail(res.Stage, err)
	}
	res.Stage = models.StageProcessed
	logger.Info("File processed", "release_id", entry.ReleaseID, "instance_id", entry.InstanceID, "marked", newPath)
	fmt.Fprintf(s.out, "%s %s\n", render.Good("<<:", s.colorize), filepath.Base(newPath))
	return res
}
