// Package apiclient talks to a running roster-assist HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dwizi/roster-assist/internal/config"
)

// StatusError carries the API's error message and HTTP status.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
}

type QueryRequest struct {
	Query       string `json:"query"`
	Model       string `json:"model,omitempty"`
	RequesterID string `json:"requester_id,omitempty"`
}

type ScheduleUpdate struct {
	Employee  string `json:"employee"`
	Date      string `json:"date"`
	ShiftType string `json:"shift_type"`
}

type Outcome struct {
	Employee  string `json:"employee"`
	Date      string `json:"date"`
	ShiftType string `json:"shift_type"`
	Action    string `json:"action"`
	Reason    string `json:"reason"`
	EntryID   string `json:"entry_id"`
}

type QueryResponse struct {
	Answer          string           `json:"answer"`
	ScheduleUpdates []ScheduleUpdate `json:"schedule_updates"`
	Outcomes        []Outcome        `json:"outcomes"`
	Applied         int              `json:"applied"`
	Skipped         int              `json:"skipped"`
	Model           string           `json:"model"`
	Error           string           `json:"error"`
}

type Interaction struct {
	ID            string `json:"id"`
	Query         string `json:"query"`
	Answer        string `json:"answer"`
	Model         string `json:"model"`
	CreatedAtUnix int64  `json:"created_at_unix"`
}

type ModelsResponse struct {
	Models  []string `json:"models"`
	Default string   `json:"default"`
}

type PolicyDocument struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	SourcePath    string `json:"source_path"`
	UploaderID    string `json:"uploader_id"`
	Chars         int    `json:"chars"`
	Chunks        int    `json:"chunks"`
	CreatedAtUnix int64  `json:"created_at_unix"`
	UpdatedAtUnix int64  `json:"updated_at_unix"`
}

type IngestPolicyRequest struct {
	Title      string `json:"title"`
	SourcePath string `json:"source_path,omitempty"`
	Content    string `json:"content"`
	UploaderID string `json:"uploader_id,omitempty"`
}

type ReindexResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
	Chunks int    `json:"chunks"`
}

func New(cfg config.Config) *Client {
	timeout := time.Duration(cfg.APITimeoutSec) * time.Second
	if timeout < time.Second {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Query submits a question. A mutation failure still returns the decoded
// answer alongside the error.
func (c *Client) Query(ctx context.Context, input QueryRequest) (QueryResponse, error) {
	input.Query = strings.TrimSpace(input.Query)
	if input.Query == "" {
		return QueryResponse{}, fmt.Errorf("query is required")
	}
	var response QueryResponse
	err := c.postJSON(ctx, "/api/v1/query", input, &response)
	return response, err
}

func (c *Client) History(ctx context.Context, requesterID string, limit int) ([]Interaction, error) {
	requesterID = strings.TrimSpace(requesterID)
	if requesterID == "" {
		return nil, fmt.Errorf("requester id is required")
	}
	query := url.Values{}
	query.Set("requester_id", requesterID)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var response struct {
		Items []Interaction `json:"items"`
	}
	if err := c.getJSON(ctx, "/api/v1/history?"+query.Encode(), &response); err != nil {
		return nil, err
	}
	return response.Items, nil
}

func (c *Client) Models(ctx context.Context) (ModelsResponse, error) {
	var response ModelsResponse
	err := c.getJSON(ctx, "/api/v1/models", &response)
	return response, err
}

func (c *Client) ListPolicies(ctx context.Context) ([]PolicyDocument, error) {
	var response struct {
		Items []PolicyDocument `json:"items"`
	}
	if err := c.getJSON(ctx, "/api/v1/policies", &response); err != nil {
		return nil, err
	}
	return response.Items, nil
}

func (c *Client) IngestPolicy(ctx context.Context, input IngestPolicyRequest) (PolicyDocument, error) {
	var response PolicyDocument
	err := c.postJSON(ctx, "/api/v1/policies", input, &response)
	return response, err
}

func (c *Client) DeletePolicy(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("policy id is required")
	}
	return c.postJSON(ctx, "/api/v1/policies/delete", map[string]string{"id": id}, nil)
}

func (c *Client) Reindex(ctx context.Context) (ReindexResponse, error) {
	var response ReindexResponse
	err := c.postJSON(ctx, "/api/v1/policies/reindex", map[string]string{}, &response)
	return response, err
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(requestBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		var apiError struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &apiError)
		if strings.TrimSpace(apiError.Error) == "" {
			apiError.Error = res.Status
		}
		if out != nil {
			_ = json.Unmarshal(body, out)
		}
		return &StatusError{Status: res.StatusCode, Message: apiError.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsStatus reports whether err is an API error with the given status.
func IsStatus(err error, status int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Status == status
}
