package cataloging

import (
	"context"
	"io"
	"log/slog"

	"github.com/lehigh-university-libraries/albumtracker/internal/catalog"
	"github.com/lehigh-university-libraries/albumtracker/internal/config"
	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
	"github.com/lehigh-university-libraries/albumtracker/internal/gcpauth"
	"github.com/lehigh-university-libraries/albumtracker/internal/gemini"
	"github.com/lehigh-university-libraries/albumtracker/internal/images"
	"github.com/lehigh-university-libraries/albumtracker/internal/ollama"
	"github.com/lehigh-university-libraries/albumtracker/internal/openai"
	"github.com/lehigh-university-libraries/albumtracker/internal/providers"
	"github.com/lehigh-university-libraries/albumtracker/internal/selector"
	"github.com/lehigh-university-libraries/albumtracker/internal/storage"
	"github.com/lehigh-university-libraries/albumtracker/internal/vision"
)

// NewRecognizer builds the recognizer named by cfg.Recognizer. Credentials
// are checked here, so a missing key fails before any file is touched. The
// returned func releases the recognizer's resources.
func NewRecognizer(ctx context.Context, cfg *config.Config) (providers.Recognizer, func(), error) {
	noop := func() {}
	llm := providers.Config{Model: cfg.LLM.Model}

	switch cfg.Recognizer {
	case "vision":
		src, err := gcpauth.New(ctx, cfg.Vision.SDKPath, cfg.Vision.CredentialsFile, cfg.Vision.TokenLifetime)
		if err != nil {
			return nil, noop, err
		}
		r, err := vision.New(ctx, src.TokenSource(), cfg.Vision.Endpoint, cfg.Vision.RequestTimeout)
		if err != nil {
			return nil, noop, err
		}
		return r, noop, nil
	case "gemini":
		g, err := gemini.New(ctx, cfg.LLM.GeminiAPIKey, llm)
		if err != nil {
			return nil, noop, err
		}
		return g, func() {
			if err := g.Close(); err != nil {
				slog.Warn("Failed to close gemini client", "err", err)
			}
		}, nil
	case "openai":
		o, err := openai.New(cfg.LLM.OpenAIAPIKey, llm)
		if err != nil {
			return nil, noop, err
		}
		return o, noop, nil
	case "ollama":
		return ollama.New(cfg.LLM.OllamaURL, llm), noop, nil
	default:
		return nil, noop, errors.Newf("unsupported recognizer: %s", cfg.Recognizer)
	}
}

// NewCatalogClient builds the Discogs client from cfg
func NewCatalogClient(cfg *config.Config) (*catalog.Client, error) {
	d := cfg.Discogs
	return catalog.NewClient(d.User, d.Token,
		catalog.WithBaseURL(d.BaseURL),
		catalog.WithPreferredFormat(d.PreferredFormat),
		catalog.WithCountry(d.Country),
		catalog.WithFolder(d.FolderID),
		catalog.WithMaxCandidates(d.MaxCandidates),
		catalog.WithRequestTimeout(d.RequestTimeout),
		catalog.WithRatePerMinute(d.RateLimitPerMinute),
	)
}

// Build assembles a Batch from configuration. Operator answers are read
// from in; progress and prompts go to out. Every credential is validated
// before Build returns, so no network call is made on a misconfigured run.
func Build(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) (*Batch, func(), error) {
	if out == nil {
		out = io.Discard
	}
	recognizer, closeRecognizer, err := NewRecognizer(ctx, cfg)
	if err != nil {
		return nil, func() {}, err
	}

	client, err := NewCatalogClient(cfg)
	if err != nil {
		closeRecognizer()
		return nil, func() {}, err
	}

	store := storage.New(cfg.Marker)
	service := NewService(
		images.NewPreparer(cfg.Images.MaxDimension, cfg.Images.JPEGQuality).WithMaxSourcePixels(cfg.Images.MaxSourcePixels),
		recognizer,
		client,
		selector.New(in, out),
		client,
		store,
		out,
	)
	return NewBatch(store, service, cfg.AbortOnError(), out), closeRecognizer, nil
}
