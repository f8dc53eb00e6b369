// Package hosting is the code-hosting API client used by the completion
// waterfall to check whether a task's linked pull request or issue has
// been merged or closed. It speaks the GitHub REST surface but only the
// slice the waterfall needs.
package hosting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/phrazzld/triage-api/internal/completion"
	"github.com/phrazzld/triage-api/internal/ratelimit"
)

// Client reads pull-request and issue state from a GitHub-style API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// NewClient creates a hosting client. The token is required; the API
// rejects unauthenticated state reads for private repositories and the
// waterfall must not behave differently per repository visibility.
func NewClient(baseURL, token string, limiter *ratelimit.Limiter) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("hosting API base URL cannot be empty")
	}
	if token == "" {
		return nil, fmt.Errorf("hosting API token cannot be empty")
	}

	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    limiter,
	}, nil
}

type pullResponse struct {
	State    string     `json:"state"`
	Merged   bool       `json:"merged"`
	MergedAt *time.Time `json:"merged_at"`
	ClosedAt *time.Time `json:"closed_at"`
}

type issueResponse struct {
	State    string     `json:"state"`
	ClosedAt *time.Time `json:"closed_at"`
}

// GetItemState returns the state of the numbered item in owner/repo. It
// tries the pulls endpoint first and falls back to issues, since task
// provenance records only a number, not the item kind. A missing item is
// reported as (nil, nil) so the waterfall treats it as no evidence.
func (c *Client) GetItemState(ctx context.Context, owner, repo string, number int) (*completion.HostingItemState, error) {
	pullPath := fmt.Sprintf("/repos/%s/%s/pulls/%d", url.PathEscape(owner), url.PathEscape(repo), number)

	var pull pullResponse
	found, err := c.getJSON(ctx, pullPath, &pull)
	if err != nil {
		return nil, err
	}
	if found {
		state := pull.State
		if pull.Merged || pull.MergedAt != nil {
			state = "merged"
		}
		return &completion.HostingItemState{
			State:    state,
			ClosedAt: pull.ClosedAt,
			MergedAt: pull.MergedAt,
		}, nil
	}

	issuePath := fmt.Sprintf("/repos/%s/%s/issues/%d", url.PathEscape(owner), url.PathEscape(repo), number)

	var issue issueResponse
	found, err = c.getJSON(ctx, issuePath, &issue)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	return &completion.HostingItemState{
		State:    issue.State,
		ClosedAt: issue.ClosedAt,
	}, nil
}

// getJSON performs a rate-limited GET. Returns false without error on a
// 404 so callers can distinguish "not found" from transport failures.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) (bool, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build hosting request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("hosting request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("hosting request returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode hosting response: %w", err)
	}
	return true, nil
}
