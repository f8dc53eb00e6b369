// Package feeds is the HTTP client for the source-feed gateway: the
// service that aggregates chat messages, code-review comments, notes,
// error logs, coding-session transcripts, and voice segments. Fetch jobs
// and the completion waterfall's judge tiers both read through it.
package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/phrazzld/triage-api/internal/domain"
)

// Client talks to the feed gateway. All methods are read-only GETs.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a feed client for the given base URL. An optional
// bearer token is attached to every request.
func NewClient(baseURL, token string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("feed base URL cannot be empty")
	}

	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// FetchItems pulls recent raw items from the named source.
// GET {base}/sources/{source}/items?since=...&limit=...
func (c *Client) FetchItems(ctx context.Context, source string, since time.Time, limit int) ([]domain.SourceItem, error) {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var items []domain.SourceItem
	err := c.getJSON(ctx, fmt.Sprintf("/sources/%s/items", url.PathEscape(source)), query, &items)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// sessionMessage is one message in a coding-session transcript.
type sessionMessage struct {
	Text string `json:"text"`
}

// session is one coding session, newest-first from the gateway.
type session struct {
	Messages []sessionMessage `json:"messages"`
}

// RecentSessionMessages returns the last sessions' trailing messages for
// a project, flattened in session order.
// GET {base}/projects/{id}/sessions?limit=...
func (c *Client) RecentSessionMessages(ctx context.Context, projectID string, sessions, messagesPerSession int) ([]string, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(sessions))

	var recent []session
	err := c.getJSON(ctx, fmt.Sprintf("/projects/%s/sessions", url.PathEscape(projectID)), query, &recent)
	if err != nil {
		return nil, err
	}

	var messages []string
	for _, s := range recent {
		msgs := s.Messages
		if len(msgs) > messagesPerSession {
			msgs = msgs[len(msgs)-messagesPerSession:]
		}
		for _, m := range msgs {
			messages = append(messages, m.Text)
		}
	}
	return messages, nil
}

// MessagesAfter returns the chat messages in a thread posted after the
// origin message.
// GET {base}/threads/{id}/messages?after=...
func (c *Client) MessagesAfter(ctx context.Context, threadID, originMessageID string) ([]string, error) {
	query := url.Values{}
	query.Set("after", originMessageID)

	var items []domain.SourceItem
	err := c.getJSON(ctx, fmt.Sprintf("/threads/%s/messages", url.PathEscape(threadID)), query, &items)
	if err != nil {
		return nil, err
	}

	messages := make([]string, 0, len(items))
	for _, item := range items {
		messages = append(messages, item.Text)
	}
	return messages, nil
}

// RecentSegments returns voice-transcript segments on or after the given
// time, capped at limit.
// GET {base}/transcripts/segments?since=...&limit=...
func (c *Client) RecentSegments(ctx context.Context, since time.Time, limit int) ([]string, error) {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}
	query.Set("limit", strconv.Itoa(limit))

	var items []domain.SourceItem
	err := c.getJSON(ctx, "/transcripts/segments", query, &items)
	if err != nil {
		return nil, err
	}

	segments := make([]string, 0, len(items))
	for _, item := range items {
		segments = append(segments, item.Text)
	}
	return segments, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed request returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode feed response: %w", err)
	}
	return nil
}
