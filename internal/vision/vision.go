// Package vision asks Google Cloud Vision web detection for the best-guess
// label of a prepared photo.
package vision

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	visionapi "google.golang.org/api/vision/v1"

	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
	"github.com/lehigh-university-libraries/albumtracker/internal/models"
	"github.com/lehigh-university-libraries/albumtracker/internal/providers"
)

const (
	// DefaultEndpoint is the public Cloud Vision service root
	DefaultEndpoint = "https://vision.googleapis.com/"

	providerName  = "vision"
	featureWebDet = "WEB_DETECTION"
)

// Client is a Recognizer backed by Cloud Vision
type Client struct {
	svc     *visionapi.Service
	timeout time.Duration
}

var _ providers.Recognizer = (*Client)(nil)

// New creates a Client authenticating with ts. Extra options are passed to
// the generated service and override the defaults.
func New(ctx context.Context, ts oauth2.TokenSource, endpoint string, timeout time.Duration, opts ...option.ClientOption) (*Client, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	all := []option.ClientOption{option.WithEndpoint(endpoint)}
	if ts != nil {
		all = append(all, option.WithTokenSource(ts))
	}
	all = append(all, opts...)

	svc, err := visionapi.NewService(ctx, all...)
	if err != nil {
		return nil, errors.Wrapk(err, errors.ErrAuth, "failed to create vision client")
	}
	return &Client{svc: svc, timeout: timeout}, nil
}

// Recognize submits img for single-result web detection and returns the
// first best-guess label.
func (c *Client) Recognize(ctx context.Context, img models.EncodedImage) (models.Label, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := &visionapi.BatchAnnotateImagesRequest{
		Requests: []*visionapi.AnnotateImageRequest{{
			Image: &visionapi.Image{Content: img.Base64()},
			Features: []*visionapi.Feature{{
				Type:       featureWebDet,
				MaxResults: 1,
			}},
		}},
	}

	start := time.Now()
	resp, err := c.svc.Images.Annotate(req).Context(callCtx).Do()
	latency := time.Since(start)
	if err != nil {
		return models.Label{}, classify(ctx, err, latency)
	}

	slog.Debug("Vision annotate finished", "path", img.Source, "latency", latency)
	return extractLabel(resp)
}

func extractLabel(resp *visionapi.BatchAnnotateImagesResponse) (models.Label, error) {
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return models.Label{}, errors.Newk(errors.ErrParse, "vision response carried no annotations")
	}
	r := resp.Responses[0]
	if r.Error != nil && (r.Error.Code != 0 || r.Error.Message != "") {
		return models.Label{}, errors.Newkf(errors.ErrParse, "vision could not annotate the image: %s (code %d)", r.Error.Message, r.Error.Code)
	}
	if r.WebDetection == nil || len(r.WebDetection.BestGuessLabels) == 0 || r.WebDetection.BestGuessLabels[0] == nil {
		return models.Label{}, errors.WithHint(
			errors.Newk(errors.ErrParse, "vision returned no best-guess label"),
			"the photo may be too dark, blurred or not show a cover")
	}
	return providers.NewLabel(providerName, r.WebDetection.BestGuessLabels[0].Label)
}

// classify maps a failed call onto the error taxonomy. ctx is the caller's
// context, not the per-request timeout, so a slow service is a network
// error while operator cancellation stays a cancellation.
func classify(ctx context.Context, err error, latency time.Duration) error {
	// token source failures surface through the transport untouched
	if errors.Is(err, errors.ErrAuth) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrapf(ctxErr, "vision request interrupted (latency=%v)", latency)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return errors.Wrapk(err, errors.ErrParse, "failed to decode vision response")
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.WithHint(
				errors.Wrapkf(err, errors.ErrAuth, "vision rejected the credentials (status %d)", apiErr.Code),
				"check that the Cloud Vision API is enabled for the credential's project")
		default:
			return errors.Wrapkf(err, errors.ErrNetwork, "vision returned status %d (latency=%v)", apiErr.Code, latency)
		}
	}
	return errors.Wrapkf(err, errors.ErrNetwork, "vision request failed (latency=%v)", latency)
}
