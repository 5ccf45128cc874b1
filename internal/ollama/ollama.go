package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
	"github.com/lehigh-university-libraries/albumtracker/internal/models"
	"github.com/lehigh-university-libraries/albumtracker/internal/providers"
)

const (
	providerName = "ollama"

	// DefaultURL is where a local Ollama listens
	DefaultURL = "http://localhost:11434"
	// DefaultModel is used when no model is configured
	DefaultModel = "llava"
)

// Ollama is a label provider for a local Ollama vision model
type Ollama struct {
	baseURL    string
	config     providers.Config
	httpClient *http.Client
}

var _ providers.Recognizer = (*Ollama)(nil)

// New returns a new Ollama provider
func New(baseURL string, config providers.Config) *Ollama {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Prompt == "" {
		config.Prompt = providers.LabelPrompt
	}
	return &Ollama{
		baseURL:    strings.TrimRight(baseURL, "/"),
		config:     config,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Recognize asks the local model to name the release in the photo
func (o *Ollama) Recognize(ctx context.Context, img models.EncodedImage) (models.Label, error) {
	url := o.baseURL + "/api/generate"

	requestBody, err := json.Marshal(map[string]interface{}{
		"model":  o.config.Model,
		"prompt": o.config.Prompt,
		"images": []string{img.Base64()},
		"stream": false,
		"options": map[string]interface{}{
			"temperature": o.config.Temperature,
		},
	})
	if err != nil {
		return models.Label{}, errors.Wrap(err, "failed to marshal request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestBody))
	if err != nil {
		return models.Label{}, errors.Wrap(err, "failed to create new request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Label{}, ctxErr
		}
		return models.Label{}, errors.WithHint(
			errors.Wrapk(err, errors.ErrNetwork, "failed to send request"),
			"is `ollama serve` running at "+o.baseURL+"?")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return models.Label{}, errors.Newkf(errors.ErrNetwork, "received non-200 status code: %d - %s", resp.StatusCode, string(body))
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return models.Label{}, errors.Wrapk(err, errors.ErrParse, "failed to decode response body")
	}

	return providers.NewLabel(providerName, response.Response)
}
