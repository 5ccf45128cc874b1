package gemini

import (
	"context"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
	"github.com/lehigh-university-libraries/albumtracker/internal/models"
	"github.com/lehigh-university-libraries/albumtracker/internal/providers"
)

const (
	providerName = "gemini"

	// DefaultModel is used when no model is configured
	DefaultModel = "gemini-1.5-flash"
)

// Gemini is a label provider for Google Gemini
type Gemini struct {
	client *genai.Client
	config providers.Config
}

var _ providers.Recognizer = (*Gemini)(nil)

// New returns a new Gemini provider. The API key is required up front so a
// missing key stops the batch before any photo is read.
func New(ctx context.Context, apiKey string, config providers.Config) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.WithHint(
			errors.Newk(errors.ErrAuth, "GEMINI_API_KEY environment variable not set"),
			"create a key at https://aistudio.google.com/app/apikey")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Prompt == "" {
		config.Prompt = providers.LabelPrompt
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapk(err, errors.ErrAuth, "failed to create new gemini client")
	}
	return &Gemini{client: client, config: config}, nil
}

// Close releases the underlying client
func (g *Gemini) Close() error {
	return g.client.Close()
}

// Recognize asks Gemini to name the release in the photo
func (g *Gemini) Recognize(ctx context.Context, img models.EncodedImage) (models.Label, error) {
	model := g.client.GenerativeModel(g.config.Model)
	model.SetTemperature(float32(g.config.Temperature))

	resp, err := model.GenerateContent(ctx, genai.ImageData(img.Format, img.Data), genai.Text(g.config.Prompt))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Label{}, ctxErr
		}
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
			return models.Label{}, errors.Wrapk(err, errors.ErrAuth, "gemini rejected the API key")
		}
		return models.Label{}, errors.Wrapk(err, errors.ErrNetwork, "failed to generate content")
	}

	return labelFromResponse(resp)
}

func labelFromResponse(resp *genai.GenerateContentResponse) (models.Label, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return models.Label{}, errors.Newk(errors.ErrParse, "no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return models.Label{}, errors.Newk(errors.ErrParse, "empty content returned from Gemini")
	}

	if txt, ok := candidate.Content.Parts[0].(genai.Text); ok {
		return providers.NewLabel(providerName, string(txt))
	}

	return models.Label{}, errors.Newk(errors.ErrParse, "unexpected response format from Gemini")
}
