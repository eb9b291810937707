// Package remote talks to a docstruct microservice and exposes extraction
// as an MCP tool.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brunobiangulo/docstruct"
)

// DefaultTimeout bounds a single upload round trip.
const DefaultTimeout = 30 * time.Second

// Client uploads files to the extract_structure endpoint of a running
// microservice.
type Client struct {
	url    string
	apiKey string
	http   *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sends the key as a bearer token.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithTimeout replaces DefaultTimeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient returns a client for the endpoint at url, e.g.
// http://localhost:8080/extract_structure.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:  strings.TrimSpace(url),
		http: &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ExtractFile uploads the file at path and returns the service's Result.
// Every failure, local or remote, comes back as a failed Result.
func (c *Client) ExtractFile(ctx context.Context, path string) docstruct.Result {
	if c.url == "" {
		slog.Error("remote: no service URL configured")
		return docstruct.FailureResult(fmt.Errorf("%w: configuration missing microservice URL", docstruct.ErrRemoteRequest))
	}

	slog.Info("remote: extracting structure", "file", path, "url", c.url)
	res, err := c.upload(ctx, path)
	if err != nil {
		slog.Error("remote: extraction failed", "file", path, "error", err)
		return docstruct.FailureResult(err)
	}
	return res
}

func (c *Client) upload(ctx context.Context, path string) (docstruct.Result, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return docstruct.Result{}, fmt.Errorf("file not found: %s", path)
		}
		return docstruct.Result{}, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return docstruct.Result{}, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return docstruct.Result{}, fmt.Errorf("reading file: %w", err)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return docstruct.Result{}, fmt.Errorf("%w: %w", docstruct.ErrRemoteRequest, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return docstruct.Result{}, fmt.Errorf("%w: %w", docstruct.ErrRemoteRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return docstruct.Result{}, fmt.Errorf("%w: reading response: %w", docstruct.ErrRemoteRequest, err)
	}

	var result docstruct.Result
	decodeErr := json.Unmarshal(respBody, &result)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Prefer the service's own error message when it sent one.
		if decodeErr == nil && result.Error != "" {
			return docstruct.Result{}, fmt.Errorf("%w: status %d: %s", docstruct.ErrRemoteRequest, resp.StatusCode, result.Error)
		}
		return docstruct.Result{}, fmt.Errorf("%w: status %d: %s", docstruct.ErrRemoteRequest, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if decodeErr != nil {
		return docstruct.Result{}, fmt.Errorf("%w: decoding response: %w", docstruct.ErrRemoteRequest, decodeErr)
	}
	return result, nil
}
