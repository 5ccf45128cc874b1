package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
	"github.com/lehigh-university-libraries/albumtracker/internal/models"
	"github.com/lehigh-university-libraries/albumtracker/internal/providers"
)

func TestRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var body struct {
			Model  string   `json:"model"`
			Prompt string   `json:"prompt"`
			Images []string `json:"images"`
			Stream bool     `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llava:13b", body.Model)
		assert.Equal(t, providers.LabelPrompt, body.Prompt)
		assert.Equal(t, []string{"anBlZy1ieXRlcw=="}, body.Images)
		assert.False(t, body.Stream)

		_, _ = w.Write([]byte(`{"response":" John Coltrane - Blue Train \n","done":true}`))
	}))
	t.Cleanup(srv.Close)

	o := New(srv.URL+"/", providers.Config{Model: "llava:13b"})
	label, err := o.Recognize(context.Background(), models.EncodedImage{Data: []byte("jpeg-bytes"), Format: "jpeg"})
	require.NoError(t, err)
	assert.Equal(t, "John Coltrane - Blue Train", label.Text)
	assert.Equal(t, "ollama", label.Provider)
}

func TestRecognizeFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{name: "model missing", status: http.StatusNotFound, body: `{"error":"model 'llava' not found"}`, kind: errors.ErrNetwork},
		{name: "empty answer", status: http.StatusOK, body: `{"response":""}`, kind: errors.ErrParse},
		{name: "not json", status: http.StatusOK, body: `nope`, kind: errors.ErrParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			_, err := New(srv.URL, providers.Config{}).Recognize(context.Background(), models.EncodedImage{Format: "jpeg"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, errors.KindOf(err), "got %v", err)
		})
	}
}
