package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
)

// HTTPTestClient issues requests against a status server.
type HTTPTestClient struct {
	BaseURL string
	Origin  string
	Client  *http.Client
}

// NewHTTPTestClient creates a client for baseURL. A non-empty origin is
// sent on every request.
func NewHTTPTestClient(baseURL, origin string) *HTTPTestClient {
	return &HTTPTestClient{
		BaseURL: baseURL,
		Origin:  origin,
		Client:  &http.Client{},
	}
}

// GET makes a GET request
func (c *HTTPTestClient) GET(t *testing.T, path string) *http.Response {
	t.Helper()
	return c.do(t, http.MethodGet, path)
}

// OPTIONS makes a CORS preflight request
func (c *HTTPTestClient) OPTIONS(t *testing.T, path string) *http.Response {
	t.Helper()
	return c.do(t, http.MethodOptions, path)
}

func (c *HTTPTestClient) do(t *testing.T, method, path string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, c.BaseURL+path, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if c.Origin != "" {
		req.Header.Set("Origin", c.Origin)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	return resp
}

// DecodeJSON decodes response body into target
func DecodeJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		t.Fatalf("Failed to decode response (body: %s): %v", string(body), err)
	}
}

// ReadBody reads and returns the response body as string
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}

	return string(body)
}

// AssertStatusCode asserts the response status code
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()

	if resp.StatusCode != expected {
		body := ReadBody(t, resp)
		t.Errorf("Expected status %d, got %d. Body: %s", expected, resp.StatusCode, body)
	}
}
