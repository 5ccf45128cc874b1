// Package gcpauth mints Google Cloud bearer tokens by shelling out to the
// gcloud CLI, the same way an operator would on the command line.
package gcpauth

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"golang.org/x/oauth2"

	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
)

// DefaultLifetime is how long a printed token is trusted before the tool is
// run again. gcloud access tokens live for an hour.
const DefaultLifetime = 50 * time.Minute

var printTokenArgs = []string{"auth", "application-default", "print-access-token"}

// CommandSource runs the credential tool to obtain access tokens
type CommandSource struct {
	ctx      context.Context
	argv     []string
	lifetime time.Duration
	now      func() time.Time
}

// New validates the credential environment and returns a CommandSource.
// It never runs the tool, so a misconfigured environment fails before any
// network call is made.
//
// credentialsFile is the value of GOOGLE_APPLICATION_CREDENTIALS; only its
// presence is checked, the tool itself reads the file. sdkPath may carry
// leading arguments and is split with shell quoting rules.
func New(ctx context.Context, sdkPath, credentialsFile string, lifetime time.Duration) (*CommandSource, error) {
	if strings.TrimSpace(credentialsFile) == "" {
		return nil, errors.WithHint(
			errors.Newk(errors.ErrAuth, "GOOGLE_APPLICATION_CREDENTIALS is not set"),
			"run `gcloud auth application-default login` and export GOOGLE_APPLICATION_CREDENTIALS")
	}
	if strings.TrimSpace(sdkPath) == "" {
		return nil, errors.WithHint(
			errors.Newk(errors.ErrAuth, "AT_GCP_SDK is not set"),
			"set AT_GCP_SDK to the path of the gcloud binary")
	}

	argv, err := shellquote.Split(sdkPath)
	if err != nil {
		return nil, errors.Wrapk(err, errors.ErrAuth, "failed to parse AT_GCP_SDK")
	}
	if len(argv) == 0 {
		return nil, errors.Newk(errors.ErrAuth, "AT_GCP_SDK names no command")
	}
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}

	return &CommandSource{
		ctx:      ctx,
		argv:     append(argv, printTokenArgs...),
		lifetime: lifetime,
		now:      time.Now,
	}, nil
}

// Token runs the tool and returns the trimmed token it prints
func (s *CommandSource) Token() (*oauth2.Token, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(s.ctx, s.argv[0], s.argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := s.now()
	if err := cmd.Run(); err != nil {
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.WithDetailf(
			errors.Wrapkf(err, errors.ErrAuth, "credential tool %s failed", s.argv[0]),
			"stderr: %s", strings.TrimSpace(stderr.String()))
	}

	token := strings.TrimSpace(stdout.String())
	if token == "" {
		return nil, errors.Newkf(errors.ErrAuth, "credential tool %s printed no token", s.argv[0])
	}

	slog.Debug("Minted access token", "tool", s.argv[0], "duration", s.now().Sub(start))
	return &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
		Expiry:      start.Add(s.lifetime),
	}, nil
}

// TokenSource returns s wrapped so a token is reused until it expires
func (s *CommandSource) TokenSource() oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, s)
}
