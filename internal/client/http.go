package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/alfredjeanlab/pipefilter/internal/filter"
	"github.com/alfredjeanlab/pipefilter/internal/server"
)

// HTTPClient implements Client against the HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a client for baseURL (e.g. "http://localhost:8080").
// When token is non-empty it is sent as a bearer token.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func (c *HTTPClient) Compile(ctx context.Context, resource, op, rawQuery string) (*CompileResult, error) {
	path := "/v1/resources/" + url.PathEscape(resource) + "/pipeline"
	if rawQuery = strings.TrimPrefix(rawQuery, "?"); rawQuery != "" {
		path += "?" + rawQuery
	}
	var header http.Header
	if op != "" {
		header = http.Header{server.OperationHeader: {op}}
	}
	var res CompileResult
	if err := c.get(ctx, path, header, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) Describe(ctx context.Context, resource string) ([]filter.ParameterDescriptor, error) {
	var resp struct {
		Parameters []filter.ParameterDescriptor `json:"parameters"`
	}
	if err := c.get(ctx, "/v1/resources/"+url.PathEscape(resource)+"/parameters", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Parameters, nil
}

func (c *HTTPClient) Resources(ctx context.Context) ([]string, error) {
	var resp struct {
		Resources []string `json:"resources"`
	}
	if err := c.get(ctx, "/v1/resources", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Resources, nil
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// get performs a GET request and decodes the JSON response into result.
func (c *HTTPClient) get(ctx context.Context, path string, header http.Header, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
