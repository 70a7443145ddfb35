package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "liverun/pkg/errors"
)

// Language is one entry of the server's language list.
type Language struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Compiled bool   `json:"compiled"`
}

type envelope struct {
	Code    pkgerrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
}

// Client calls the runner's HTTP API.
type Client struct {
	baseURL string
	timeout time.Duration
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.timeout = timeout
	}
}

// Languages fetches the supported language table.
func (c *Client) Languages(ctx context.Context) ([]Language, error) {
	var data struct {
		Languages []Language `json:"languages"`
	}
	if err := c.get(ctx, "/api/v1/languages", &data); err != nil {
		return nil, err
	}
	return data.Languages, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	client := &http.Client{Timeout: c.timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body failed: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("HTTP %d: unexpected body: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if env.Code != pkgerrors.Success {
		return pkgerrors.Newf(env.Code, "HTTP %d: %s", resp.StatusCode, env.Message)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data failed: %w", err)
	}
	return nil
}
