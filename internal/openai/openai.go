package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
	"github.com/lehigh-university-libraries/albumtracker/internal/models"
	"github.com/lehigh-university-libraries/albumtracker/internal/providers"
)

const (
	providerName = "openai"

	// DefaultURL is the chat completions endpoint
	DefaultURL = "https://api.openai.com/v1/chat/completions"
	// DefaultModel is used when no model is configured
	DefaultModel = "gpt-4o-mini"
)

// OpenAI is a label provider for OpenAI vision models
type OpenAI struct {
	apiKey     string
	url        string
	config     providers.Config
	httpClient *http.Client
}

var _ providers.Recognizer = (*OpenAI)(nil)

// Option configures an OpenAI provider
type Option func(*OpenAI)

// WithURL overrides the chat completions endpoint
func WithURL(url string) Option {
	return func(o *OpenAI) {
		if url != "" {
			o.url = url
		}
	}
}

// WithHTTPClient overrides the default HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(o *OpenAI) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// New returns a new OpenAI provider
func New(apiKey string, config providers.Config, opts ...Option) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.Newk(errors.ErrAuth, "OPENAI_API_KEY environment variable not set")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Prompt == "" {
		config.Prompt = providers.LabelPrompt
	}
	o := &OpenAI{
		apiKey:     apiKey,
		url:        DefaultURL,
		config:     config,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// Recognize sends the photo as a data URI and returns the model's answer
func (o *OpenAI) Recognize(ctx context.Context, img models.EncodedImage) (models.Label, error) {
	requestBody, err := json.Marshal(map[string]interface{}{
		"model": o.config.Model,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []contentPart{
					{Type: "text", Text: o.config.Prompt},
					{Type: "image_url", ImageURL: &imageURL{URL: fmt.Sprintf("data:%s;base64,%s", img.MIMEType(), img.Base64())}},
				},
			},
		},
		"temperature": o.config.Temperature,
		"max_tokens":  64,
	})
	if err != nil {
		return models.Label{}, errors.Wrap(err, "failed to marshal request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewBuffer(requestBody))
	if err != nil {
		return models.Label{}, errors.Wrap(err, "failed to create new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Label{}, ctxErr
		}
		return models.Label{}, errors.Wrapk(err, errors.ErrNetwork, "failed to send request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return models.Label{}, errors.Newkf(errors.ErrAuth, "openai rejected the API key: status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return models.Label{}, errors.Newkf(errors.ErrNetwork, "received non-200 status code: %d - %s", resp.StatusCode, string(body))
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return models.Label{}, errors.Wrapk(err, errors.ErrParse, "failed to decode response body")
	}

	if len(response.Choices) == 0 {
		return models.Label{}, errors.Newk(errors.ErrParse, "no choices returned from OpenAI")
	}

	return providers.NewLabel(providerName, response.Choices[0].Message.Content)
}
