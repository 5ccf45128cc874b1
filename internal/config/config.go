package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load
const (
	EnvConfigPath       = "AT_CONFIG"
	EnvRecognizer       = "AT_RECOGNIZER"
	EnvLogLevel         = "AT_LOG_LEVEL"
	EnvDiscogsUser      = "AT_DISCOGS_USER"
	EnvDiscogsToken     = "AT_DISCOGS_TOKEN"
	EnvGCPSDK           = "AT_GCP_SDK"
	EnvGCPCredentials   = "GOOGLE_APPLICATION_CREDENTIALS"
	EnvGeminiAPIKey     = "GEMINI_API_KEY"
	EnvOpenAIAPIKey     = "OPENAI_API_KEY"
	EnvOllamaURL        = "OLLAMA_URL"
	EnvDiscogsBaseURL   = "AT_DISCOGS_BASE_URL"
	EnvVisionEndpoint   = "AT_VISION_ENDPOINT"
	EnvPreferredFormat  = "AT_FORMAT"
	EnvCountry          = "AT_COUNTRY"
	EnvOnError          = "AT_ON_ERROR"
	EnvMaxCandidates    = "AT_MAX_CANDIDATES"
	EnvCollectionFolder = "AT_FOLDER_ID"
)

// Failure policies for the batch orchestrator
const (
	OnErrorContinue = "continue"
	OnErrorAbort    = "abort"
)

// Config holds everything the ingestion pipeline needs
type Config struct {
	Recognizer string `yaml:"recognizer"` // vision, gemini, openai, ollama
	LogLevel   string `yaml:"log_level"`
	OnError    string `yaml:"on_error"`

	Vision  Vision  `yaml:"vision"`
	Discogs Discogs `yaml:"discogs"`
	Images  Images  `yaml:"images"`
	LLM     LLM     `yaml:"llm"`

	// Marker is inserted before a file's extension once it has been cataloged
	Marker string `yaml:"marker"`
}

// Vision configures Google Cloud Vision and its credential tool
type Vision struct {
	Endpoint        string        `yaml:"endpoint"`
	SDKPath         string        `yaml:"sdk_path"`
	CredentialsFile string        `yaml:"-"`
	TokenLifetime   time.Duration `yaml:"token_lifetime"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// Discogs configures the catalog and collection service
type Discogs struct {
	BaseURL            string        `yaml:"base_url"`
	User               string        `yaml:"user"`
	Token              string        `yaml:"-"`
	PreferredFormat    string        `yaml:"preferred_format"`
	Country            string        `yaml:"country"`
	FolderID           int           `yaml:"folder_id"`
	MaxCandidates      int           `yaml:"max_candidates"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
}

// Images configures image preparation
type Images struct {
	MaxDimension    int `yaml:"max_dimension"`
	JPEGQuality     int `yaml:"jpeg_quality"`
	// MaxSourcePixels refuses photos whose width*height exceeds it
	MaxSourcePixels int `yaml:"max_source_pixels"`
}

// LLM configures the alternative label providers
type LLM struct {
	Model        string `yaml:"model"`
	GeminiAPIKey string `yaml:"-"`
	OpenAIAPIKey string `yaml:"-"`
	OllamaURL    string `yaml:"ollama_url"`
}

// Load builds the configuration from defaults, the optional YAML file named by
// AT_CONFIG, and environment overrides, in that order of precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
		slog.Debug("Loaded config file", "path", path)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapkf(err, errors.ErrIO, "failed to read config file %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapkf(err, errors.ErrInput, "failed to parse config file %s", path)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Recognizer, EnvRecognizer)
	setString(&c.LogLevel, EnvLogLevel)
	setString(&c.OnError, EnvOnError)
	setString(&c.Vision.Endpoint, EnvVisionEndpoint)
	setString(&c.Vision.SDKPath, EnvGCPSDK)
	setString(&c.Vision.CredentialsFile, EnvGCPCredentials)
	setString(&c.Discogs.BaseURL, EnvDiscogsBaseURL)
	setString(&c.Discogs.User, EnvDiscogsUser)
	setString(&c.Discogs.Token, EnvDiscogsToken)
	setString(&c.Discogs.PreferredFormat, EnvPreferredFormat)
	setString(&c.Discogs.Country, EnvCountry)
	setString(&c.LLM.GeminiAPIKey, EnvGeminiAPIKey)
	setString(&c.LLM.OpenAIAPIKey, EnvOpenAIAPIKey)
	setString(&c.LLM.OllamaURL, EnvOllamaURL)

	if err := setInt(&c.Discogs.MaxCandidates, EnvMaxCandidates); err != nil {
		return err
	}
	return setInt(&c.Discogs.FolderID, EnvCollectionFolder)
}

func (c *Config) normalize() {
	c.Recognizer = strings.ToLower(strings.TrimSpace(c.Recognizer))
	c.OnError = strings.ToLower(strings.TrimSpace(c.OnError))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Discogs.BaseURL = strings.TrimRight(strings.TrimSpace(c.Discogs.BaseURL), "/")
	c.Marker = strings.Trim(strings.TrimSpace(c.Marker), ".")
	if c.Discogs.MaxCandidates > MaxCandidatesLimit {
		c.Discogs.MaxCandidates = MaxCandidatesLimit
	}
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AbortOnError reports whether any file failure should stop the batch
func (c *Config) AbortOnError() bool {
	return c.OnError == OnErrorAbort
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return errors.Wrapkf(err, errors.ErrInput, "%s must be an integer", key)
	}
	*dst = n
	return nil
}
