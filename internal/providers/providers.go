package providers

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
	"github.com/lehigh-university-libraries/albumtracker/internal/models"
)

// LabelPrompt asks a multimodal model for the same thing a web best-guess
// detection yields: a short search phrase for the pictured record.
const LabelPrompt = `This photo shows a music release (vinyl record, CD or cassette), usually its front cover.
Reply with a single line of the form "Artist - Title" naming the release.
Do not add quotes, punctuation or commentary. If you cannot tell, reply with an empty line.`

// Config represents the configuration for an LLM label provider
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
}

// Recognizer turns a prepared image into a best-guess label
type Recognizer interface {
	Recognize(ctx context.Context, img models.EncodedImage) (models.Label, error)
}

// NewLabel normalizes text into a Label. Models like to wrap answers in
// quotes or add a trailing period; those are stripped. An empty result is a
// parse error: the service answered but had nothing to say.
func NewLabel(provider, text string) (models.Label, error) {
	var t string
	for _, line := range strings.Split(norm.NFC.String(text), "\n") {
		if t = strings.TrimSpace(line); t != "" {
			break
		}
	}
	t = strings.TrimSuffix(t, ".")
	t = strings.Trim(t, "\"`“”")
	t = strings.TrimSuffix(strings.TrimSpace(t), ".")
	t = strings.Join(strings.Fields(t), " ")
	if t == "" {
		return models.Label{}, errors.WithHint(
			errors.Newkf(errors.ErrParse, "%s returned no best-guess label", provider),
			"the photo may be too dark, blurred or not show a cover")
	}
	return models.Label{Text: t, Provider: provider}, nil
}
