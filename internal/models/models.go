package models

import (
	"encoding/base64"
	"fmt"
	"time"
)

// ImageAsset is a source photo discovered in the batch directory
type ImageAsset struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	Processed bool   `json:"processed"` // name already carries the processed marker
}

// EncodedImage is the downsampled, re-encoded payload sent to a recognizer
type EncodedImage struct {
	Source string `json:"source"`
	Data   []byte `json:"-"`
	Format string `json:"format"` // "jpeg"
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Base64 returns the payload as standard base64, as inlined in JSON requests
func (e EncodedImage) Base64() string {
	return base64.StdEncoding.EncodeToString(e.Data)
}

// MIMEType returns the content type of the payload
func (e EncodedImage) MIMEType() string {
	return "image/" + e.Format
}

// Label is a recognizer's best guess at what the photo shows
type Label struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
}

// Candidate is one catalog release offered for disambiguation
type Candidate struct {
	ID       int64  `json:"id"`
	MasterID int64  `json:"master_id,omitempty"`
	Title    string `json:"title"`
	Country  string `json:"country"`
	Released string `json:"released"`
	Format   string `json:"format"`
}

// Selection is the operator's disambiguation choice
type Selection struct {
	Index     int       `json:"index"`
	Candidate Candidate `json:"candidate"`
}

// CollectionEntry is what the collection service reports it created
type CollectionEntry struct {
	InstanceID int64  `json:"instance_id"`
	ReleaseID  int64  `json:"release_id"`
	Artist     string `json:"artist"`
	Title      string `json:"title"`
	Format     string `json:"format"`
}

func (e CollectionEntry) String() string {
	return fmt.Sprintf("%s — %s (%s)", e.Artist, e.Title, e.Format)
}

// Stage is a step of the per-file ingestion state machine
type Stage string

const (
	StagePending        Stage = "pending"
	StagePreparing      Stage = "preparing"
	StageRecognizing    Stage = "recognizing"
	StageSearching      Stage = "searching"
	StageDisambiguating Stage = "disambiguating"
	StageWriting        Stage = "writing"
	StageProcessed      Stage = "processed"
	StageSkipped        Stage = "skipped"
	StageFailed         Stage = "failed"
)

// FileResult records how far one asset got through the pipeline
type FileResult struct {
	Asset     ImageAsset       `json:"asset"`
	Stage     Stage            `json:"stage"`
	FailedAt  Stage            `json:"failed_at,omitempty"` // stage that was running when Err occurred
	Label     *Label           `json:"label,omitempty"`
	Selection *Selection       `json:"selection,omitempty"`
	Entry     *CollectionEntry `json:"entry,omitempty"`
	Err       error            `json:"-"`
}

// BatchReport summarises one batch run
type BatchReport struct {
	RunID     string       `json:"run_id"`
	Dir       string       `json:"dir"`
	StartedAt time.Time    `json:"started_at"`
	Results   []FileResult `json:"results"`
	Aborted   bool         `json:"aborted"`
}

// Count returns how many results ended in stage s
func (r *BatchReport) Count(s Stage) int {
	n := 0
	for _, res := range r.Results {
		if res.Stage == s {
			n++
		}
	}
	return n
}

// Failed returns the results that ended in failure
func (r *BatchReport) Failed() []FileResult {
	var failed []FileResult
	for _, res := range r.Results {
		if res.Stage == StageFailed {
			failed = append(failed, res)
		}
	}
	return failed
}
