// Package stats talks to the quiz backend's REST endpoints for the few
// reads that do not travel over the websocket: the authoritative XP total
// and the teacher's override-eligibility list.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultTimeout = 10 * time.Second

// Client fetches stats over HTTP. Concurrent callers asking for the same
// resource are coalesced into a single request.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	group   singleflight.Group
}

// NewClient returns a stats client for the given API base URL. The token is
// sent as a bearer credential on every request.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(token),
		http:    httpClient,
	}
}

type myStatsResponse struct {
	XP    int `json:"xp"`
	Level int `json:"level"`
}

// MyXP returns the caller's authoritative XP total.
func (c *Client) MyXP(ctx context.Context) (int, error) {
	v, err, _ := c.group.Do("my-stats", func() (interface{}, error) {
		var out myStatsResponse
		if err := c.getJSON(ctx, "/stats/my-stats", &out); err != nil {
			return 0, err
		}
		return out.XP, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

type eligibilityResponse struct {
	Eligible []string `json:"eligible"`
}

// OverrideEligible returns the set of student usernames the caller may
// currently override, keyed by username.
func (c *Client) OverrideEligible(ctx context.Context) (map[string]bool, error) {
	v, err, _ := c.group.Do("override-eligible", func() (interface{}, error) {
		var out eligibilityResponse
		if err := c.getJSON(ctx, "/stats/override-eligible", &out); err != nil {
			return nil, err
		}
		set := make(map[string]bool, len(out.Eligible))
		for _, name := range out.Eligible {
			set[name] = true
		}
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]bool), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stats: %s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
