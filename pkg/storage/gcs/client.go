// Package gcs uploads member barcode images to a Cloud Storage bucket over the
// JSON API.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/angelmondragon/studiopass/pkg/config"
	"github.com/angelmondragon/studiopass/pkg/logger"
)

const (
	storageAPI     = "https://storage.googleapis.com"
	requestTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second
)

var errNotInitialized = errors.New("gcs client not initialized")

// Uploader stores an object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, object, contentType string, body io.Reader) (string, error)
}

type Client struct {
	httpClient  *http.Client
	tokenSource *tokenSource
	bucket      string
	apiBase     string
	publicBase  string
}

// NewClient picks credentials in order: inline JSON, a key file, then the
// metadata server. The bucket is listed once before returning.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	httpClient := &http.Client{Timeout: requestTimeout}

	ts, err := selectTokenSource(httpClient, gcp)
	if err != nil {
		return nil, err
	}
	client := &Client{
		httpClient:  httpClient,
		tokenSource: ts,
		bucket:      cfg.BucketName,
		apiBase:     storageAPI,
		publicBase:  strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", cfg.BucketName), "gcs.connected")
	}
	return client, nil
}

func selectTokenSource(httpClient *http.Client, gcp config.GCPConfig) (*tokenSource, error) {
	switch {
	case gcp.CredentialsJSON != "":
		return newServiceAccountTokenSource(httpClient, gcp.CredentialsJSON)
	case gcp.ApplicationCredentials != "":
		raw, err := os.ReadFile(gcp.ApplicationCredentials)
		if err != nil {
			return nil, fmt.Errorf("reading credentials file: %w", err)
		}
		return newServiceAccountTokenSource(httpClient, string(raw))
	default:
		return newMetadataTokenSource(httpClient), nil
	}
}

func (c *Client) Close() error {
	return nil
}

// Ping lists at most one object, which needs storage.objects.list on the bucket.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.tokenSource == nil || c.bucket == "" {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/storage/v1/b/%s/o?maxResults=1", c.api(), url.PathEscape(c.bucket))
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil, func(h http.Header) {
		h.Set("Accept", "application/json")
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError("gcs bucket check failed", resp)
	}
	return nil
}

// Upload writes body to object with a single media upload and returns the
// object's public URL. Existing objects are overwritten.
func (c *Client) Upload(ctx context.Context, object, contentType string, body io.Reader) (string, error) {
	if c == nil || c.tokenSource == nil {
		return "", errNotInitialized
	}
	object = strings.TrimLeft(strings.TrimSpace(object), "/")
	if object == "" {
		return "", errors.New("object name is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	query := url.Values{"uploadType": {"media"}, "name": {object}}
	endpoint := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?%s", c.api(), url.PathEscape(c.bucket), query.Encode())
	resp, err := c.do(ctx, http.MethodPost, endpoint, body, func(h http.Header) {
		h.Set("Content-Type", contentType)
		h.Set("Cache-Control", "no-cache")
	})
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", statusError("gcs upload failed", resp)
	}
	return c.PublicURL(object), nil
}

func (c *Client) PublicURL(object string) string {
	base := c.publicBase
	if base == "" {
		base = storageAPI
	}
	return base + "/" + c.bucket + "/" + strings.TrimLeft(object, "/")
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, headers func(http.Header)) (*http.Response, error) {
	token, err := c.tokenSource.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	headers(req.Header)
	return c.httpClient.Do(req)
}

func (c *Client) api() string {
	if c.apiBase == "" {
		return storageAPI
	}
	return strings.TrimRight(c.apiBase, "/")
}

func statusError(prefix string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if msg := strings.TrimSpace(string(b)); msg != "" {
		return fmt.Errorf("%s: %s: %s", prefix, resp.Status, msg)
	}
	return fmt.Errorf("%s: %s", prefix, resp.Status)
}
