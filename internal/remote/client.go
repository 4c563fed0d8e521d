// Package remote is the HTTP client for the backend's CRUD and version
// contract.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/store"
	"tokostok/backend/internal/xid"
)

// ErrUnavailable covers transport failures, timeouts and 5xx answers.
var ErrUnavailable = errors.New("remote unavailable")

// StatusError is a 4xx answer from the backend.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned status %d: %s", e.Status, e.Message)
}

// Is maps the statuses the backend uses for store sentinels back onto them.
func (e *StatusError) Is(target error) bool {
	switch target {
	case store.ErrNotFound:
		return e.Status == http.StatusNotFound
	case store.ErrInsufficientStock:
		return e.Status == http.StatusConflict
	}
	return false
}

type TokenSource func(ctx context.Context) (string, error)

type Client struct {
	baseURL  string
	http     *http.Client
	deviceID string
	token    TokenSource
	logger   *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithDeviceID(id string) Option {
	return func(c *Client) { c.deviceID = id }
}

// WithTokenSource sends a bearer token minted by src on every request.
func WithTokenSource(src TokenSource) Option {
	return func(c *Client) { c.token = src }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New returns a client for baseURL. timeout bounds each request.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Version implements syncer.VersionService. A 404 means the kind was never
// written remotely.
func (c *Client) Version(ctx context.Context, kind domain.Kind) (domain.DataVersion, bool, error) {
	var version domain.DataVersion
	err := c.do(ctx, http.MethodGet, versionPath(kind), nil, &version)
	if errors.Is(err, store.ErrNotFound) {
		return domain.DataVersion{}, false, nil
	}
	if err != nil {
		return domain.DataVersion{}, false, err
	}
	return version, true, nil
}

func (c *Client) PutVersion(ctx context.Context, version domain.DataVersion) error {
	return c.do(ctx, http.MethodPut, versionPath(version.ID), version, nil)
}

// InsertSaleItems upserts each sale with its stock row and delivery in one
// remote transaction.
func (c *Client) InsertSaleItems(ctx context.Context, items []domain.SaleItems) error {
	if len(items) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/api/v1/sales/items", map[string]any{"items": items}, nil)
}

func versionPath(kind domain.Kind) string {
	return "/api/v1/versions/" + strconv.Itoa(int(kind))
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	requestID := xid.New("req")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-ID", c.deviceID)
	}
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return fmt.Errorf("mint device token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("remote call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
		zap.Duration("took", time.Since(started)),
	)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrUnavailable, method, path, resp.StatusCode, readMessage(resp.Body))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &StatusError{Status: resp.StatusCode, Message: readMessage(resp.Body)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %w", ErrUnavailable, method, path, err)
	}
	return nil
}

func readMessage(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
		return envelope.Error
	}
	return strings.TrimSpace(string(raw))
}
