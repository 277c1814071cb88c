// Package blob talks to the Supabase Storage REST API where proof photos are
// copied once a request is submitted.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client uploads and downloads objects with the service-role key.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// New creates a storage client for the project at projectURL.
func New(projectURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(projectURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Upload writes data to bucket/path, replacing any existing object.
func (c *Client) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	if bucket == "" || path == "" {
		return fmt.Errorf("storage: bucket and path are required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.objectURL(bucket, path), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("storage: create request failed: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")
	req.Header.Set("Cache-Control", "max-age=3600")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("storage: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("storage: upload failed (%d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// Download fetches an object and its content type.
func (c *Client) Download(ctx context.Context, bucket, path string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.objectURL(bucket, path), nil)
	if err != nil {
		return nil, "", fmt.Errorf("storage: create request failed: %w", err)
	}
	c.authorize(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("storage: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("storage: read body failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("storage: download failed (%d): %s", resp.StatusCode, string(body))
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("apikey", c.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
}

func (c *Client) objectURL(bucket, path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.BaseURL + "/storage/v1/object/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}
