package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client resolves display names from the external profile service over HTTP.
// Read-only; the market never writes through it.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 3 * time.Second},
	}
}

func (c *Client) ResolveDisplayName(ctx context.Context, id uuid.UUID) (string, error) {
	url := fmt.Sprintf("%s/api/v1/profiles/%s", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("profile lookup %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("profile %s not found", id)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("profile lookup %s: status %d", id, resp.StatusCode)
	}

	var body struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("profile lookup %s: decode: %w", id, err)
	}
	return body.DisplayName, nil
}

// Static is a fixed id-to-name resolver for tests and local runs.
type Static map[uuid.UUID]string

func (s Static) ResolveDisplayName(ctx context.Context, id uuid.UUID) (string, error) {
	name, ok := s[id]
	if !ok {
		return "", fmt.Errorf("profile %s not found", id)
	}
	return name, nil
}
