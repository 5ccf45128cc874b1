package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/albumtracker/internal/cataloging"
	"github.com/lehigh-university-libraries/albumtracker/internal/config"
	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
	"github.com/lehigh-university-libraries/albumtracker/internal/models"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "albumtracker <dir>",
		Short: "Catalog photographed records into your Discogs collection",
		Long: `albumtracker identifies records from photos and adds them to your Discogs collection.

For every photo in <dir> that has not been processed yet it asks Google Cloud
Vision (or a configured LLM) what the photo shows, searches Discogs for
matching releases, asks you to pick one, and adds it to your collection.
Cataloged photos are renamed (cover.jpg -> cover.processed.jpg) so the next
run skips them.

Configuration comes from the environment, an optional .env file and an
optional YAML file named by AT_CONFIG:

  GOOGLE_APPLICATION_CREDENTIALS  application default credentials (vision)
  AT_GCP_SDK                      path to the gcloud binary (vision)
  AT_DISCOGS_USER                 your Discogs username
  AT_DISCOGS_TOKEN                your Discogs personal access token
  AT_RECOGNIZER                   vision (default), gemini, openai or ollama
  AT_ON_ERROR                     continue (default) or abort`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
		RunE: runBatch,
	}

	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	dir := args[0]

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := cfg.Validate(); err != nil {
		return withHints(cmd, err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return errors.Newkf(errors.ErrIO, "%s is not a directory", dir)
	}

	ctx := cmd.Context()
	batch, cleanup, err := cataloging.Build(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
	defer cleanup()
	if err != nil {
		return withHints(cmd, err)
	}

	report, err := batch.Run(ctx, dir)
	if err != nil {
		return withHints(cmd, err)
	}
	if failed := len(report.Failed()); failed > 0 {
		return errors.Newf("%d of %d files failed; see the summary above", failed, len(report.Results)-report.Count(models.StageSkipped))
	}
	return nil
}

// withHints prints operator hints attached to err before fang reports it
func withHints(cmd *cobra.Command, err error) error {
	for _, hint := range errors.GetAllHints(err) {
		cmd.PrintErrln("hint: " + hint)
	}
	return err
}
