package actor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gabriel-vasile/mimetype"

	"kiln/internal/config"
	"kiln/internal/logging"
)

const (
	uploadAttempts      = 3
	uploadRetryInterval = 3 * time.Second
	uploadTimeout       = 480 * time.Second
)

// HTTPUploader posts clips to a multipart form endpoint that answers with
// the hosted URL as plain text or JSON.
type HTTPUploader struct {
	endpoint string
	field    string
	format   string
	client   *http.Client
	logger   *slog.Logger

	// RetryInterval is the pause between failed attempts.
	RetryInterval time.Duration
}

// NewHTTPUploader builds an uploader from the [upload] config section.
func NewHTTPUploader(cfg config.Upload, logger *slog.Logger) (*HTTPUploader, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse upload proxy: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	field := cfg.FieldName
	if field == "" {
		field = "fileToUpload"
	}
	return &HTTPUploader{
		endpoint:      cfg.URL,
		field:         field,
		format:        cfg.ResponseFormat,
		client:        &http.Client{Timeout: uploadTimeout, Transport: transport},
		logger:        logging.NewComponentLogger(logger, "uploader"),
		RetryInterval: uploadRetryInterval,
	}, nil
}

// Put uploads path, retrying failed requests up to three times.
func (u *HTTPUploader) Put(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read clip: %w", err)
	}
	contentType := mimetype.Detect(data).String()
	if strings.HasPrefix(contentType, "text/") || contentType == "application/octet-stream" {
		contentType = contentTypeByExt(path)
	}

	attempt := 0
	operation := func() (string, error) {
		attempt++
		location, err := u.upload(ctx, filepath.Base(path), contentType, data)
		if err != nil {
			u.logger.Debug("upload attempt failed",
				logging.Int("attempt", attempt),
				logging.Int("max_attempts", uploadAttempts),
				logging.Error(err),
			)
		}
		return location, err
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(u.RetryInterval)),
		backoff.WithMaxTries(uploadAttempts),
	)
}

func (u *HTTPUploader) upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("reqtype", "fileupload"); err != nil {
		return "", backoff.Permanent(err)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, u.field, name))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	if _, err := part.Write(data); err != nil {
		return "", backoff.Permanent(err)
	}
	if err := writer.Close(); err != nil {
		return "", backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("build upload request: %w", err))
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	text := strings.TrimSpace(string(payload))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload failed (%d): %s", resp.StatusCode, text)
	}
	location, err := u.parseLocation(text)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	return location, nil
}

func (u *HTTPUploader) parseLocation(text string) (string, error) {
	if u.format == "json" {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(text), &decoded); err != nil {
			return "", fmt.Errorf("upload response is not JSON: %s", text)
		}
		for _, key := range []string{"url", "data"} {
			if value, ok := decoded[key].(string); ok && strings.TrimSpace(value) != "" {
				return strings.TrimSpace(value), nil
			}
		}
		return "", fmt.Errorf("no URL in upload response: %s", text)
	}
	if strings.HasPrefix(text, "https://") || strings.HasPrefix(text, "http://") {
		return text, nil
	}
	return "", fmt.Errorf("upload response is not a URL: %s", text)
}

func contentTypeByExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}
