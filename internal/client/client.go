// Package client is the HTTP implementation of the workspace command service.
package client

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/corvex/corvex/internal/logging"
	"github.com/corvex/corvex/internal/models"
	"github.com/corvex/corvex/internal/protocol"
	"github.com/corvex/corvex/internal/retry"
)

// ErrUnauthenticated is wrapped, together with models.ErrPermissionDenied,
// when the server rejects the bearer token.
var ErrUnauthenticated = errors.New("unauthenticated")

// Client talks to a corvex command service over HTTP. Reads are retried
// with backoff; mutations are sent exactly once.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	retryConfig  retry.Config

	reconnectMin time.Duration
	reconnectMax time.Duration

	mu        sync.RWMutex
	online    bool
	lastPing  time.Time
	authToken string
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig retry.Config
	AuthToken   string
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: cfg.Timeout, Transport: transport},
		streamClient: &http.Client{Transport: transport},
		retryConfig:  cfg.RetryConfig,
		reconnectMin: time.Second,
		reconnectMax: 30 * time.Second,
		online:       true,
		authToken:    cfg.AuthToken,
	}
}

// SetAuthToken sets the JWT auth token for requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// applyAuth adds the auth header to a request if a token is set.
func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// IsOnline returns true if the last request reached the server.
func (c *Client) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online != online {
		if online {
			logging.Info("server is back online", zap.String("server", c.baseURL))
		} else {
			logging.Warn("server is offline", zap.String("server", c.baseURL))
		}
	}
	c.online = online
	c.lastPing = time.Now()
}

// Ping checks if the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setOnline(false)
		return fmt.Errorf("%w: %v", models.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.setOnline(false)
		return fmt.Errorf("%w: server returned %d", models.ErrRemoteUnavailable, resp.StatusCode)
	}

	c.setOnline(true)
	return nil
}

// escapePath escapes each segment of a node id for use in a URL path.
func escapePath(path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

// roundTrip sends one request and decodes a JSON response into out.
func (c *Client) roundTrip(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept-Encoding", "gzip")
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setOnline(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return retry.Retryable(fmt.Errorf("%s %s: %w: %v", method, path, models.ErrRemoteUnavailable, err))
	}
	defer resp.Body.Close()

	var rd io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return retry.Retryable(fmt.Errorf("%s %s: %w: %v", method, path, models.ErrRemoteUnavailable, err))
		}
		defer gr.Close()
		rd = gr
	}

	if resp.StatusCode >= 300 {
		c.setOnline(resp.StatusCode < 500)
		var errResp protocol.ErrorResponse
		json.NewDecoder(rd).Decode(&errResp)
		return statusError(method+" "+path, resp.StatusCode, errResp)
	}

	c.setOnline(true)

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(rd).Decode(out); err != nil {
		return retry.Retryable(fmt.Errorf("%s %s: %w: decode response: %v", method, path, models.ErrRemoteUnavailable, err))
	}
	return nil
}

// statusError classifies a failed response. The kind reported by the server
// wins over the status code.
func statusError(op string, code int, resp protocol.ErrorResponse) error {
	msg := resp.Error
	if msg == "" {
		msg = http.StatusText(code)
	}

	if code == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w: %w: %s", op, ErrUnauthenticated, models.ErrPermissionDenied, msg)
	}

	var kind error
	if resp.Kind != "" && code < 500 {
		kind = models.KindFromName(resp.Kind)
	} else {
		switch code {
		case http.StatusNotFound:
			kind = models.ErrNotFound
		case http.StatusConflict:
			kind = models.ErrConflict
		case http.StatusForbidden:
			kind = models.ErrPermissionDenied
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			kind = models.ErrInvalid
		default:
			kind = models.ErrRemoteUnavailable
		}
	}

	err := fmt.Errorf("%s: %w: %s", op, kind, msg)
	if code >= 500 {
		return retry.Retryable(err)
	}
	return err
}

// read performs a GET with retries.
func (c *Client) read(ctx context.Context, path string, out any) error {
	return retry.Do(ctx, c.retryConfig, func() error {
		return c.roundTrip(ctx, "GET", path, nil, out)
	})
}

// mutate performs a single attempt. A lost response to a mutation is left to
// the caller's reconciliation rather than repeated.
func (c *Client) mutate(ctx context.Context, method, path string, body any) error {
	return retry.Do(ctx, retry.Once(), func() error {
		return c.roundTrip(ctx, method, path, body, nil)
	})
}

// ListAll fetches the whole workspace listing.
func (c *Client) ListAll(ctx context.Context) (*models.Folder, error) {
	var tr protocol.TreeResponse
	if err := c.read(ctx, "/api/v1/tree", &tr); err != nil {
		return nil, err
	}
	if tr.Root == nil {
		return &models.Folder{Files: []models.FileEntry{}, Subfolders: []*models.Folder{}}, nil
	}
	return tr.Root, nil
}

// CreateFile creates an empty file.
func (c *Client) CreateFile(ctx context.Context, path string) error {
	return c.mutate(ctx, "POST", "/api/v1/files/"+escapePath(path), nil)
}

// CreateFolder creates an empty folder.
func (c *Client) CreateFolder(ctx context.Context, path string) error {
	return c.mutate(ctx, "POST", "/api/v1/folders/"+escapePath(path), nil)
}

func (c *Client) pathChange(ctx context.Context, endpoint string, kind models.Kind, oldPath, newPath string) error {
	return c.mutate(ctx, "POST", endpoint, protocol.PathChangeRequest{
		Kind:    kind.String(),
		OldPath: oldPath,
		NewPath: newPath,
	})
}

func (c *Client) RenameFile(ctx context.Context, oldPath, newPath string) error {
	return c.pathChange(ctx, "/api/v1/rename", models.KindFile, oldPath, newPath)
}

func (c *Client) RenameFolder(ctx context.Context, oldPath, newPath string) error {
	return c.pathChange(ctx, "/api/v1/rename", models.KindFolder, oldPath, newPath)
}

func (c *Client) MoveFile(ctx context.Context, oldPath, newPath string) error {
	return c.pathChange(ctx, "/api/v1/move", models.KindFile, oldPath, newPath)
}

func (c *Client) MoveFolder(ctx context.Context, oldPath, newPath string) error {
	return c.pathChange(ctx, "/api/v1/move", models.KindFolder, oldPath, newPath)
}

func (c *Client) DeleteFile(ctx context.Context, path string) error {
	return c.mutate(ctx, "DELETE", "/api/v1/files/"+escapePath(path), nil)
}

func (c *Client) DeleteFolder(ctx context.Context, path string) error {
	return c.mutate(ctx, "DELETE", "/api/v1/folders/"+escapePath(path), nil)
}

// GetFileContent fetches the text of a file.
func (c *Client) GetFileContent(ctx context.Context, path string) (string, error) {
	var cr protocol.ContentResponse
	if err := c.read(ctx, "/api/v1/content/"+escapePath(path), &cr); err != nil {
		return "", err
	}
	return cr.Content, nil
}

// SaveFileContent replaces the text of a file.
func (c *Client) SaveFileContent(ctx context.Context, path, text string) error {
	return c.mutate(ctx, "PUT", "/api/v1/content/"+escapePath(path), protocol.ContentRequest{Content: text})
}
