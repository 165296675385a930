package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eslsoft/lexmatrix/internal/entity"
)

// APIKeyHeader carries the caller's key for another instance.
const APIKeyHeader = "X-API-Key"

// Client talks to other dictionary service instances and downloads documents by URL.
type Client struct {
	http     *http.Client
	maxBytes int64
	logger   logrus.FieldLogger
}

// NewClient returns a client whose requests time out after timeout and whose bodies are capped
// at maxBytes.
func NewClient(timeout time.Duration, maxBytes int64, logger logrus.FieldLogger) *Client {
	return &Client{
		http:     &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Fetch downloads rawURL, failing when the body exceeds the size ceiling.
func (c *Client) Fetch(ctx context.Context, rawURL, apiKey string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &entity.ValidationError{Field: "url", Msg: fmt.Sprintf("unsupported url %q", rawURL)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set(APIKeyHeader, apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"url":      u.Redacted(),
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("remote fetch")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: unexpected status %d", u.Redacted(), resp.StatusCode)
	}
	if c.maxBytes > 0 && resp.ContentLength > c.maxBytes {
		return nil, tooLarge(c.maxBytes)
	}

	body := io.Reader(resp.Body)
	if c.maxBytes > 0 {
		body = io.LimitReader(resp.Body, c.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u.Redacted(), err)
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return nil, tooLarge(c.maxBytes)
	}
	return data, nil
}

func tooLarge(limit int64) error {
	return &entity.ValidationError{Field: "url", Msg: fmt.Sprintf("document exceeds %d bytes", limit)}
}

// About returns the metadata of dictionaryID on endpoint.
func (c *Client) About(ctx context.Context, endpoint, dictionaryID, apiKey string) (*entity.Dictionary, error) {
	var dict entity.Dictionary
	if err := c.getJSON(ctx, apiKey, &dict, endpoint, "about", dictionaryID); err != nil {
		return nil, err
	}
	return &dict, nil
}

// List returns every entry summary of dictionaryID on endpoint.
func (c *Client) List(ctx context.Context, endpoint, dictionaryID, apiKey string) ([]entity.Lemma, error) {
	var lemmas []entity.Lemma
	if err := c.getJSON(ctx, apiKey, &lemmas, endpoint, "list", dictionaryID); err != nil {
		return nil, err
	}
	return lemmas, nil
}

// Entry downloads one entry serialized as f.
func (c *Client) Entry(ctx context.Context, endpoint string, f entity.ExportFormat, dictionaryID, entryID, apiKey string) ([]byte, error) {
	u, err := url.JoinPath(endpoint, string(f), dictionaryID, entryID)
	if err != nil {
		return nil, &entity.ValidationError{Field: "endpoint", Msg: err.Error()}
	}
	return c.Fetch(ctx, u, apiKey)
}

func (c *Client) getJSON(ctx context.Context, apiKey string, dst any, endpoint string, elem ...string) error {
	u, err := url.JoinPath(endpoint, elem...)
	if err != nil {
		return &entity.ValidationError{Field: "endpoint", Msg: err.Error()}
	}
	data, err := c.Fetch(ctx, u, apiKey)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", u, err)
	}
	return nil
}
