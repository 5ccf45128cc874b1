package config

import "time"

// MaxCandidatesLimit bounds how many catalog candidates are ever shown
const MaxCandidatesLimit = 10

const (
	defaultRecognizer     = "vision"
	defaultVisionEndpoint = "https://vision.googleapis.com/"
	defaultDiscogsBaseURL = "https://api.discogs.com"
	defaultFormat         = "Vinyl"
	defaultFolderID       = 1
	defaultMaxDimension   = 1024
	defaultJPEGQuality    = 85
	defaultMaxPixels      = 300_000_000
	defaultMarker         = "processed"
	defaultRatePerMinute  = 60
	defaultTokenLifetime  = 50 * time.Minute
	defaultRequestTimeout = 30 * time.Second
	defaultOllamaURL      = "http://localhost:11434"
	defaultLogLevel       = "info"
)

// Default returns a configuration populated with built-in defaults
func Default() *Config {
	return &Config{
		Recognizer: defaultRecognizer,
		LogLevel:   defaultLogLevel,
		OnError:    OnErrorContinue,
		Marker:     defaultMarker,
		Vision: Vision{
			Endpoint:       defaultVisionEndpoint,
			TokenLifetime:  defaultTokenLifetime,
			RequestTimeout: defaultRequestTimeout,
		},
		Discogs: Discogs{
			BaseURL:            defaultDiscogsBaseURL,
			PreferredFormat:    defaultFormat,
			FolderID:           defaultFolderID,
			MaxCandidates:      MaxCandidatesLimit,
			RequestTimeout:     defaultRequestTimeout,
			RateLimitPerMinute: defaultRatePerMinute,
		},
		Images: Images{
			MaxDimension:    defaultMaxDimension,
			JPEGQuality:     defaultJPEGQuality,
			MaxSourcePixels: defaultMaxPixels,
		},
		LLM: LLM{
			OllamaURL: defaultOllamaURL,
		},
	}
}
