package gcpauth

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTool writes a shell script standing in for gcloud. Each run appends
// its arguments to a log file so tests can count invocations.
func fakeTool(t *testing.T, body string) (tool, log string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	dir := t.TempDir()
	log = filepath.Join(dir, "calls.log")
	tool = filepath.Join(dir, "gcloud")
	script := "#!/bin/sh\necho \"$@\" >> '" + log + "'\n" + body + "\n"
	require.NoError(t, os.WriteFile(tool, []byte(script), 0o755))
	return tool, log
}

func calls(t *testing.T, log string) []string {
	t.Helper()
	data, err := os.ReadFile(log)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestNewRequiresEnvironment(t *testing.T) {
	tests := []struct {
		name        string
		sdk         string
		credentials string
		contains    string
	}{
		{name: "no credentials", sdk: "/usr/bin/gcloud", credentials: "", contains: "GOOGLE_APPLICATION_CREDENTIALS"},
		{name: "no sdk", sdk: "", credentials: "/tmp/adc.json", contains: "AT_GCP_SDK"},
		{name: "blank sdk", sdk: "   ", credentials: "/tmp/adc.json", contains: "AT_GCP_SDK"},
		{name: "unbalanced quote", sdk: `"/opt/google cloud/gcloud`, credentials: "/tmp/adc.json", contains: "AT_GCP_SDK"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := New(context.Background(), tt.sdk, tt.credentials, 0)
			require.Error(t, err)
			assert.Nil(t, src)
			assert.True(t, errors.Is(err, errors.ErrAuth))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestTokenRunsTool(t *testing.T) {
	tool, log := fakeTool(t, "echo '  ya29.test-token  '")

	src, err := New(context.Background(), tool, "/tmp/adc.json", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, calls(t, log), "construction must not run the tool")

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "ya29.test-token", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.True(t, tok.Valid())

	assert.Equal(t, []string{"auth application-default print-access-token"}, calls(t, log))
}

func TestTokenSourceReusesToken(t *testing.T) {
	tool, log := fakeTool(t, "echo ya29.reused")

	src, err := New(context.Background(), tool, "/tmp/adc.json", time.Hour)
	require.NoError(t, err)

	ts := src.TokenSource()
	for i := 0; i < 3; i++ {
		tok, err := ts.Token()
		require.NoError(t, err)
		assert.Equal(t, "ya29.reused", tok.AccessToken)
	}
	assert.Len(t, calls(t, log), 1)
}

func TestTokenToolFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "non-zero exit", body: "echo 'ERROR: not logged in' >&2\nexit 1"},
		{name: "empty output", body: "echo ''"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool, _ := fakeTool(t, tt.body)
			src, err := New(context.Background(), tool, "/tmp/adc.json", time.Minute)
			require.NoError(t, err)

			_, err = src.Token()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrAuth))
		})
	}
}

func TestSDKPathWithArguments(t *testing.T) {
	tool, log := fakeTool(t, "echo ya29.args")

	src, err := New(context.Background(), tool+" --quiet", "/tmp/adc.json", time.Minute)
	require.NoError(t, err)

	_, err = src.Token()
	require.NoError(t, err)
	assert.Equal(t, []string{"--quiet auth application-default print-access-token"}, calls(t, log))
}
