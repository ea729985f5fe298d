// Package hosting talks to the code-hosting provider's REST API to fetch
// the PR metadata and diffs that resolution and dependency analysis run
// on. Everything is fetched once per run and cached by the caller.
package hosting

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	"github.com/rs/zerolog/log"

	"github.com/releaseagent/pkg/models"
)

// GitHubClient is a thin client for the GitHub REST v3 API. Only the
// endpoints a triage run needs are wrapped.
type GitHubClient struct {
	baseURL    string
	token      string
	owner      string
	repo       string
	httpClient *http.Client
}

// NewGitHubClient creates a client for owner/repo. baseURL is overridable
// for GitHub Enterprise and for tests; empty means api.github.com.
func NewGitHubClient(baseURL, token, owner, repo string) *GitHubClient {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &GitHubClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		owner:      owner,
		repo:       repo,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *GitHubClient) get(ctx context.Context, path, accept string) ([]byte, error) {
	url := fmt.Sprintf("%s/repos/%s/%s%s", c.baseURL, c.owner, c.repo, path)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	if accept == "" {
		accept = "application/vnd.github.v3+json"
	}
	req.Header.Set("Accept", accept)

	log.Debug().Str("url", url).Msg("GitHub API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GitHub request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read GitHub response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned %s for %s: %s", resp.Status, url, truncate(string(body), 200))
	}
	return body, nil
}

type prPayload struct {
	Number         int        `json:"number"`
	Title          string     `json:"title"`
	MergedAt       *time.Time `json:"merged_at"`
	MergeCommitSHA string     `json:"merge_commit_sha"`
}

func (p prPayload) toRecord() models.PRRecord {
	rec := models.PRRecord{
		Number:   p.Number,
		Title:    p.Title,
		MergeSHA: p.MergeCommitSHA,
	}
	if p.MergedAt != nil {
		rec.MergedAt = *p.MergedAt
	}
	return rec
}

// GetPR fetches one pull request with its diff and changed files.
func (c *GitHubClient) GetPR(ctx context.Context, number int) (*models.PRRecord, error) {
	body, err := c.get(ctx, fmt.Sprintf("/pulls/%d", number), "")
	if err != nil {
		return nil, err
	}

	var payload prPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode PR #%d: %w", number, err)
	}

	rec := payload.toRecord()
	if err := c.attachDiff(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListMergedPRs fetches closed PRs against base and keeps the merged
// ones, up to limit. Pagination stops early once unmerged-only pages show
// up past the limit.
func (c *GitHubClient) ListMergedPRs(ctx context.Context, base string, limit int) ([]models.PRRecord, error) {
	var merged []models.PRRecord
	for page := 1; len(merged) < limit; page++ {
		path := fmt.Sprintf("/pulls?state=closed&base=%s&sort=updated&direction=desc&per_page=100&page=%d", base, page)
		body, err := c.get(ctx, path, "")
		if err != nil {
			return nil, err
		}

		var payloads []prPayload
		if err := json.Unmarshal(body, &payloads); err != nil {
			return nil, fmt.Errorf("failed to decode PR list page %d: %w", page, err)
		}
		if len(payloads) == 0 {
			break
		}

		for _, p := range payloads {
			if p.MergedAt == nil {
				continue
			}
			merged = append(merged, p.toRecord())
			if len(merged) >= limit {
				break
			}
		}
	}

	log.Debug().Int("count", len(merged)).Str("base", base).Msg("Fetched merged PR history")
	return merged, nil
}

// GetDiff fetches the unified diff of a pull request.
func (c *GitHubClient) GetDiff(ctx context.Context, number int) (string, error) {
	body, err := c.get(ctx, fmt.Sprintf("/pulls/%d", number), "application/vnd.github.v3.diff")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// attachDiff fills DiffText and FilesChanged from the PR's diff.
func (c *GitHubClient) attachDiff(ctx context.Context, rec *models.PRRecord) error {
	diff, err := c.GetDiff(ctx, rec.Number)
	if err != nil {
		return err
	}
	rec.DiffText = diff

	files, err := ChangedFiles(diff)
	if err != nil {
		return fmt.Errorf("failed to parse diff of PR #%d: %w", rec.Number, err)
	}
	rec.FilesChanged = files
	return nil
}

// PopulateFiles fills DiffText and FilesChanged on records that lack
// them. Used for the merge history, where the list endpoint does not
// carry file information.
func (c *GitHubClient) PopulateFiles(ctx context.Context, recs []models.PRRecord) error {
	for i := range recs {
		if len(recs[i].FilesChanged) > 0 {
			continue
		}
		if err := c.attachDiff(ctx, &recs[i]); err != nil {
			return err
		}
	}
	return nil
}

// ChangedFiles extracts the post-image paths touched by a unified diff.
// Deleted files report their pre-image path.
func ChangedFiles(diff string) ([]string, error) {
	files, _, err := gitdiff.Parse(strings.NewReader(diff))
	if err != nil {
		return nil, err
	}

	var paths []string
	seen := make(map[string]struct{})
	for _, f := range files {
		path := f.NewName
		if path == "" {
			path = f.OldName
		}
		if path == "" {
			continue
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}
	return paths, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
