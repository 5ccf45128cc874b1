package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
	"github.com/lehigh-university-libraries/albumtracker/internal/models"
)

type artist struct {
	Name string `json:"name"`
}

type format struct {
	Name string `json:"name"`
}

type basicInformation struct {
	ID      int64    `json:"id"`
	Title   string   `json:"title"`
	Artists []artist `json:"artists"`
	Formats []format `json:"formats"`
}

type addResponse struct {
	InstanceID       int64             `json:"instance_id"`
	ResourceURL      string            `json:"resource_url"`
	BasicInformation *basicInformation `json:"basic_information"`
}

type releaseResponse struct {
	ID      int64    `json:"id"`
	Title   string   `json:"title"`
	Artists []artist `json:"artists"`
	Formats []format `json:"formats"`
}

// AddToCollection adds releaseID to the owner's collection folder and
// reports what was created.
//
// The write is not idempotent: every call creates a new instance. Once the
// POST succeeds no error from this method means the release is absent; a
// ParseError here says the entry exists but could not be described.
func (c *Client) AddToCollection(ctx context.Context, releaseID int64) (models.CollectionEntry, error) {
	path := fmt.Sprintf("/users/%s/collection/folders/%d/releases/%d", url.PathEscape(c.user), c.folderID, releaseID)

	var resp addResponse
	if _, err := c.do(ctx, "POST", path, nil, &resp); err != nil {
		if errors.Is(err, errors.ErrParse) {
			return models.CollectionEntry{}, writtenHint(err, releaseID)
		}
		return models.CollectionEntry{}, err
	}

	slog.Info("Added release to collection", "release_id", releaseID, "instance_id", resp.InstanceID, "folder_id", c.folderID)

	info := resp.BasicInformation
	if info == nil {
		// the add endpoint usually answers with only the instance id
		var rel releaseResponse
		if _, err := c.do(ctx, "GET", fmt.Sprintf("/releases/%d", releaseID), nil, &rel); err != nil {
			if errors.IsSystemic(err) {
				return models.CollectionEntry{}, writtenHint(err, releaseID)
			}
			return models.CollectionEntry{}, writtenHint(
				errors.Mark(errors.Wrap(err, "failed to describe the added release"), errors.ErrParse), releaseID)
		}
		info = &basicInformation{ID: rel.ID, Title: rel.Title, Artists: rel.Artists, Formats: rel.Formats}
	}

	entry, err := describe(resp.InstanceID, releaseID, info)
	if err != nil {
		return models.CollectionEntry{}, writtenHint(err, releaseID)
	}
	return entry, nil
}

func describe(instanceID, releaseID int64, info *basicInformation) (models.CollectionEntry, error) {
	if len(info.Artists) == 0 || strings.TrimSpace(info.Artists[0].Name) == "" {
		return models.CollectionEntry{}, errors.Newk(errors.ErrParse, "collection response has no artist")
	}
	if strings.TrimSpace(info.Title) == "" {
		return models.CollectionEntry{}, errors.Newk(errors.ErrParse, "collection response has no title")
	}
	if len(info.Formats) == 0 || strings.TrimSpace(info.Formats[0].Name) == "" {
		return models.CollectionEntry{}, errors.Newk(errors.ErrParse, "collection response has no format")
	}
	if info.ID != 0 {
		releaseID = info.ID
	}
	return models.CollectionEntry{
		InstanceID: instanceID,
		ReleaseID:  releaseID,
		Artist:     info.Artists[0].Name,
		Title:      info.Title,
		Format:     info.Formats[0].Name,
	}, nil
}

func writtenHint(err error, releaseID int64) error {
	return errors.WithHintf(err,
		"release %d was added to the collection before this error; check it on discogs before re-running this file", releaseID)
}
