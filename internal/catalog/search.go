package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/patrickmn/go-cache"

	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
	"github.com/lehigh-university-libraries/albumtracker/internal/models"
)

type searchResult struct {
	ID       int64    `json:"id"`
	Type     string   `json:"type"`
	MasterID int64    `json:"master_id"`
	Title    string   `json:"title"`
	Country  string   `json:"country"`
	Year     string   `json:"year"`
	Format   []string `json:"format"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type version struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Country  string `json:"country"`
	Released string `json:"released"`
	Format   string `json:"format"`
}

type versionsResponse struct {
	Versions []version `json:"versions"`
}

// Search finds releases matching label, in the catalog's ranking order.
//
// When the top hit belongs to a master release, the master's versions are
// returned instead, filtered to the preferred format and newest first.
// Otherwise the release hits themselves are returned. Either way at most
// the configured number of candidates come back; an empty slice is not an
// error here.
func (c *Client) Search(ctx context.Context, label string) ([]models.Candidate, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, errors.Newk(errors.ErrInput, "search label must not be empty")
	}

	q := url.Values{}
	q.Set("q", label)
	q.Set("per_page", strconv.Itoa(c.maxCandidates))

	var resp searchResponse
	if _, err := c.do(ctx, "GET", "/database/search", q, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		slog.Debug("Discogs search returned nothing", "label", label)
		return []models.Candidate{}, nil
	}

	top := resp.Results[0]
	masterID := top.MasterID
	if masterID == 0 && top.Type == "master" {
		masterID = top.ID
	}
	if masterID > 0 {
		slog.Debug("Resolving master versions", "label", label, "master_id", masterID)
		return c.Versions(ctx, masterID)
	}

	candidates := make([]models.Candidate, 0, c.maxCandidates)
	for _, r := range resp.Results {
		if len(candidates) == c.maxCandidates {
			break
		}
		if r.Type != "" && r.Type != "release" {
			continue
		}
		candidates = append(candidates, models.Candidate{
			ID:       r.ID,
			MasterID: r.MasterID,
			Title:    r.Title,
			Country:  r.Country,
			Released: r.Year,
			Format:   strings.Join(r.Format, ", "),
		})
	}
	return candidates, nil
}

// Versions lists the concrete releases of a master. Results are memoised
// for the life of the client.
func (c *Client) Versions(ctx context.Context, masterID int64) ([]models.Candidate, error) {
	key := fmt.Sprintf("%d|%s|%s|%d", masterID, c.preferredFormat, c.country, c.maxCandidates)
	if cached, ok := c.versions.Get(key); ok {
		if candidates, ok := cached.([]models.Candidate); ok {
			slog.Debug("Master versions cache hit", "master_id", masterID)
			return append([]models.Candidate(nil), candidates...), nil
		}
	}

	q := url.Values{}
	if c.preferredFormat != "" {
		q.Set("format", c.preferredFormat)
	}
	q.Set("sort", "released")
	q.Set("sort_order", "desc")
	if c.country != "" {
		q.Set("country", c.country)
	}
	q.Set("per_page", strconv.Itoa(c.maxCandidates))

	var resp versionsResponse
	if _, err := c.do(ctx, "GET", fmt.Sprintf("/masters/%d/versions", masterID), q, &resp); err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, c.maxCandidates)
	for _, v := range resp.Versions {
		if len(candidates) == c.maxCandidates {
			break
		}
		candidates = append(candidates, models.Candidate{
			ID:       v.ID,
			MasterID: masterID,
			Title:    v.Title,
			Country:  v.Country,
			Released: v.Released,
			Format:   v.Format,
		})
	}

	c.versions.Set(key, candidates, cache.NoExpiration)
	return append([]models.Candidate(nil), candidates...), nil
}
