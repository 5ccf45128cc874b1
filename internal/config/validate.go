package config

import (
	"fmt"
	"strings"

	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
)

// Validate reports every configuration problem at once. Missing Discogs
// credentials are tagged as auth errors so the command can fail before the
// batch touches the network.
func (c *Config) Validate() error {
	var problems []string
	auth := false

	switch c.Recognizer {
	case "vision", "gemini", "openai", "ollama":
	default:
		problems = append(problems, fmt.Sprintf("unsupported recognizer %q (want vision, gemini, openai or ollama)", c.Recognizer))
	}

	switch c.OnError {
	case OnErrorContinue, OnErrorAbort:
	default:
		problems = append(problems, fmt.Sprintf("on_error must be %q or %q, got %q", OnErrorContinue, OnErrorAbort, c.OnError))
	}

	if c.Discogs.User == "" {
		problems = append(problems, EnvDiscogsUser+" is not set")
		auth = true
	}
	if c.Discogs.Token == "" {
		problems = append(problems, EnvDiscogsToken+" is not set")
		auth = true
	}
	if c.Discogs.BaseURL == "" {
		problems = append(problems, "discogs base_url must not be empty")
	}
	if c.Discogs.MaxCandidates < 1 {
		problems = append(problems, fmt.Sprintf("max_candidates must be between 1 and %d", MaxCandidatesLimit))
	}
	if c.Discogs.FolderID < 1 {
		problems = append(problems, "folder_id must be 1 or above (folder 0 is the read-only \"All\" view)")
	}
	if c.Discogs.RateLimitPerMinute < 1 {
		problems = append(problems, "rate_limit_per_minute must be positive")
	}
	if c.Images.MaxDimension < 1 {
		problems = append(problems, "max_dimension must be positive")
	}
	if c.Images.MaxSourcePixels < c.Images.MaxDimension*c.Images.MaxDimension {
		problems = append(problems, "max_source_pixels must be at least max_dimension squared")
	}
	if c.Images.JPEGQuality < 1 || c.Images.JPEGQuality > 100 {
		problems = append(problems, "jpeg_quality must be between 1 and 100")
	}
	if c.Marker == "" || strings.ContainsAny(c.Marker, `/\`) {
		problems = append(problems, "marker must be a non-empty name without path separators")
	}

	if len(problems) == 0 {
		return nil
	}
	err := errors.Newf("invalid configuration: %s", strings.Join(problems, "; "))
	if auth {
		err = errors.Mark(err, errors.ErrAuth)
		err = errors.WithHint(err, "set "+EnvDiscogsUser+" and "+EnvDiscogsToken+" in the environment or a .env file")
	}
	return err
}
