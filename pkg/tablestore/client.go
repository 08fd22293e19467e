package tablestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ClientConfig represents the configuration for the database API client.
type ClientConfig struct {
	APIURL   string
	Token    string
	Version  string        // Sent as Notion-Version
	Timeout  time.Duration // Default: 30 seconds
	PageSize int           // Default: 100
}

// Client is a database API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	version    string
	pageSize   int
}

// NewClient creates a new database API client.
func NewClient(config ClientConfig) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	pageSize := config.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:  strings.TrimRight(config.APIURL, "/"),
		token:    config.Token,
		version:  config.Version,
		pageSize: pageSize,
	}
}

// GetDatabase retrieves a database and its property schema.
func (c *Client) GetDatabase(ctx context.Context, databaseID string) (*Database, error) {
	var db Database
	if err := c.do(ctx, http.MethodGet, "/v1/databases/"+databaseID, nil, &db); err != nil {
		return nil, fmt.Errorf("failed to get database %s: %w", databaseID, err)
	}
	return &db, nil
}

// UpdateDatabase adds or changes database properties.
func (c *Client) UpdateDatabase(ctx context.Context, databaseID string, properties map[string]PropertySchema) (*Database, error) {
	var db Database
	req := UpdateDatabaseRequest{Properties: properties}
	if err := c.do(ctx, http.MethodPatch, "/v1/databases/"+databaseID, req, &db); err != nil {
		return nil, fmt.Errorf("failed to update database %s: %w", databaseID, err)
	}
	return &db, nil
}

// QueryDatabase fetches one page of query results.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, req QueryRequest) (*QueryResponse, error) {
	if req.PageSize == 0 {
		req.PageSize = c.pageSize
	}

	var resp QueryResponse
	if err := c.do(ctx, http.MethodPost, "/v1/databases/"+databaseID+"/query", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to query database %s: %w", databaseID, err)
	}
	return &resp, nil
}

// QueryAll fetches all pages matching filter, following the cursor until exhausted.
func (c *Client) QueryAll(ctx context.Context, databaseID string, filter *Filter) ([]Page, error) {
	var allPages []Page
	cursor := ""

	for {
		resp, err := c.QueryDatabase(ctx, databaseID, QueryRequest{
			Filter:      filter,
			StartCursor: cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("cursor=%q: %w", cursor, err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			break
		}

		cursor = *resp.NextCursor
	}

	return allPages, nil
}

// CreatePage creates a row in a database.
func (c *Client) CreatePage(ctx context.Context, databaseID string, properties Properties) (*Page, error) {
	var page Page
	req := CreatePageRequest{
		Parent:     Parent{Type: "database_id", DatabaseID: databaseID},
		Properties: properties,
	}
	if err := c.do(ctx, http.MethodPost, "/v1/pages", req, &page); err != nil {
		return nil, fmt.Errorf("failed to create page in %s: %w", databaseID, err)
	}
	return &page, nil
}

// UpdatePage updates properties of a row.
func (c *Client) UpdatePage(ctx context.Context, pageID string, properties Properties) (*Page, error) {
	var page Page
	req := UpdatePageRequest{Properties: properties}
	if err := c.do(ctx, http.MethodPatch, "/v1/pages/"+pageID, req, &page); err != nil {
		return nil, fmt.Errorf("failed to update page %s: %w", pageID, err)
	}
	return &page, nil
}

// do sends a JSON request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	req.Header.Set("Content-Type", "application/json")
	if c.version != "" {
		req.Header.Set("Notion-Version", c.version)
	}

	slog.Debug("tablestore request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.parseError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseError parses an error response from the API.
func (c *Client) parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Status: resp.StatusCode, Code: "unreadable_response"}
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Code == "" {
		return &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode), Message: strings.TrimSpace(string(body))}
	}
	apiErr.Status = resp.StatusCode
	return &apiErr
}
