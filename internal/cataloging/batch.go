package cataloging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
	"github.com/lehigh-university-libraries/albumtracker/internal/models"
	"github.com/lehigh-university-libraries/albumtracker/internal/render"
	"github.com/lehigh-university-libraries/albumtracker/internal/storage"
)

// Batch walks one directory through the pipeline, file by file
type Batch struct {
	store        *storage.Store
	service      *Service
	abortOnError bool
	out          io.Writer
}

// NewBatch returns a Batch. With abortOnError set the first failed file
// stops the run; otherwise only systemic failures do.
func NewBatch(store *storage.Store, service *Service, abortOnError bool, out io.Writer) *Batch {
	if out == nil {
		out = io.Discard
	}
	return &Batch{store: store, service: service, abortOnError: abortOnError, out: out}
}

// Run catalogs every unprocessed file in dir. The file list is taken once at
// the start. Files are processed strictly one after another.
//
// The returned error is non-nil only when the run stopped early; per-file
// failures that were skipped past are in the report.
func (b *Batch) Run(ctx context.Context, dir string) (*models.BatchReport, error) {
	report := &models.BatchReport{
		RunID:     uuid.NewString(),
		Dir:       dir,
		StartedAt: time.Now(),
	}
	logger := slog.With("run_id", report.RunID, "dir", dir)

	lock, err := storage.LockDir(dir)
	if err != nil {
		return report, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("Failed to release batch lock", "lock", lock.Path(), "err", err)
		}
	}()

	assets, err := b.store.Scan(dir)
	if err != nil {
		return report, err
	}
	logger.Info("Batch started", "files", len(assets), "lock", lock.Path())

	var stop error
	for i, asset := range assets {
		if stop == nil {
			if err := ctx.Err(); err != nil {
				stop = errors.Wrap(err, "batch interrupted")
			}
		}
		if stop != nil {
			report.Results = append(report.Results, models.FileResult{Asset: asset, Stage: models.StagePending})
			continue
		}

		if asset.Processed {
			report.Results = append(report.Results, models.FileResult{Asset: asset, Stage: models.StageSkipped})
			continue
		}

		res := b.service.ProcessFile(ctx, asset)
		report.Results = append(report.Results, res)

		if res.Stage != models.StageFailed {
			continue
		}
		switch {
		case errors.IsSystemic(res.Err):
			stop = errors.Wrapf(res.Err, "batch aborted at %s", asset.Name)
		case b.abortOnError:
			stop = errors.Wrapf(res.Err, "batch stopped at %s (on_error: abort)", asset.Name)
		}
		if stop != nil {
			logger.Error("Batch aborted", "file", asset.Name, "remaining", len(assets)-i-1, "kind", errors.KindName(res.Err))
		}
	}

	report.Aborted = stop != nil
	logger.Info("Batch finished",
		"processed", report.Count(models.StageProcessed),
		"skipped", report.Count(models.StageSkipped),
		"failed", report.Count(models.StageFailed),
		"aborted", report.Aborted,
		"duration", time.Since(report.StartedAt))

	b.printSummary(report)
	return report, stop
}

func (b *Batch) printSummary(report *models.BatchReport) {
	if len(report.Results) == 0 {
		fmt.Fprintf(b.out, "No files found in %s\n", report.Dir)
		return
	}
	colorize := render.ShouldColorize(b.out)

	rows := make([][]string, 0, len(report.Results))
	for _, r := range report.Results {
		outcome := ""
		switch r.Stage {
		case models.StageProcessed:
			if r.Entry != nil {
				outcome = r.Entry.String()
			}
		case models.StageFailed:
			outcome = fmt.Sprintf("%s at %s: %v", errors.KindName(r.Err), r.FailedAt, r.Err)
		case models.StagePending:
			outcome = "not attempted"
		case models.StageSkipped:
			outcome = "already processed"
		}
		rows = append(rows, []string{r.Asset.Name, stageLabel(r.Stage, colorize), outcome})
	}

	fmt.Fprintln(b.out, render.Table([]string{"File", "Stage", "Result"}, rows, nil, colorize))
	fmt.Fprintf(b.out, "run %s: %d processed, %d skipped, %d failed, %d not attempted\n",
		report.RunID,
		report.Count(models.StageProcessed),
		report.Count(models.StageSkipped),
		report.Count(models.StageFailed),
		report.Count(models.StagePending))
}

func stageLabel(stage models.Stage, colorize bool) string {
	switch stage {
	case models.StageProcessed:
		return render.Good(string(stage), colorize)
	case models.StageFailed:
		return render.Bad(string(stage), colorize)
	case models.StagePending:
		return render.Warn(string(stage), colorize)
	default:
		return string(stage)
	}
}
