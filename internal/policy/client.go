package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrSearchUnavailable = errors.New("policy search unavailable")

// Client calls a remote search endpoint, either a policy sidecar or the
// main API under /api/v1/policies.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: base url is not configured", ErrSearchUnavailable)
	}
	body, err := json.Marshal(searchRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}
	defer response.Body.Close()

	responseBytes, err := io.ReadAll(io.LimitReader(response.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrSearchUnavailable, err)
	}
	var payload searchResponse
	decodeErr := json.Unmarshal(responseBytes, &payload)
	if response.StatusCode != http.StatusOK {
		message := strings.TrimSpace(payload.Error)
		if message == "" {
			message = strings.TrimSpace(string(responseBytes))
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrSearchUnavailable, response.StatusCode, message)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSearchUnavailable, decodeErr)
	}
	return payload.Results, nil
}
