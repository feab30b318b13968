package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"xbot/internal/logging"
)

// HTTPClient talks to the surrounding bot system's HTTP surface, which
// fronts the actual social-network API. Implements Publisher and
// FollowerSource.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient creates a collaborator client.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// PostContent publishes content and returns the assigned content ID.
func (c *HTTPClient) PostContent(ctx context.Context, text string) (PostResult, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return PostResult{}, fmt.Errorf("failed to marshal post request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/posts", bytes.NewReader(payload))
	if err != nil {
		return PostResult{}, fmt.Errorf("failed to create post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PostResult{}, fmt.Errorf("post request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return PostResult{}, fmt.Errorf("failed to read post response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return PostResult{}, fmt.Errorf("post returned status %d", resp.StatusCode)
	}

	var result PostResult
	if err := json.Unmarshal(body, &result); err != nil {
		return PostResult{}, fmt.Errorf("failed to parse post response: %w", err)
	}

	logging.API("Posted content (id=%s, success=%v)", result.ContentID, result.Success)
	return result, nil
}

// CurrentFollowerCount reads the follower count at this instant.
func (c *HTTPClient) CurrentFollowerCount(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/followers/count", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create follower request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("follower request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("follower count returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("failed to parse follower response: %w", err)
	}

	logging.APIDebug("Follower count read: %d", parsed.Count)
	return parsed.Count, nil
}
