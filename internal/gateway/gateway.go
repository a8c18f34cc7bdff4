package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"kiln/internal/logging"
	"kiln/internal/provider"
	"kiln/internal/services"
)

const (
	userAgent       = "kiln/0.1.0"
	multipartHeader = "X-Use-Multipart"
	maxErrorBody    = 4096
)

// Response is a decoded provider response.
type Response struct {
	Status int
	Data   any
}

// StatusError reports a non-2xx provider response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("provider returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("provider returned HTTP %d: %s", e.Status, body)
}

// Options configures a Client.
type Options struct {
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Client executes RequestSpecs.
type Client struct {
	http   *http.Client
	logger *slog.Logger
}

// New constructs a Client. Zero timeouts fall back to 480s per request and
// 300s to connect.
func New(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		requestTimeout := opts.RequestTimeout
		if requestTimeout <= 0 {
			requestTimeout = 480 * time.Second
		}
		connectTimeout := opts.ConnectTimeout
		if connectTimeout <= 0 {
			connectTimeout = 300 * time.Second
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext
		transport.TLSHandshakeTimeout = connectTimeout
		client = &http.Client{Timeout: requestTimeout, Transport: transport}
	}
	return &Client{
		http:   client,
		logger: logging.NewComponentLogger(opts.Logger, "gateway"),
	}
}

// Execute sends spec and decodes the response. credential, when non-empty,
// is sent as a bearer token unless spec already sets Authorization.
func (c *Client) Execute(ctx context.Context, spec provider.RequestSpec, credential string) (Response, error) {
	method := strings.ToUpper(strings.TrimSpace(spec.Method))
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return Response{}, services.Wrap(services.ErrValidation, "gateway", "execute",
			fmt.Sprintf("unsupported HTTP method %q", spec.Method), nil)
	}
	if strings.TrimSpace(spec.URL) == "" {
		return Response{}, services.Wrap(services.ErrValidation, "gateway", "execute", "request URL is empty", nil)
	}

	headers, multipartRequested := splitHeaders(spec.Headers)
	useMultipart := spec.Multipart || multipartRequested

	var (
		body        io.Reader
		contentType string
	)
	if method != http.MethodGet && spec.Body != nil {
		var err error
		if useMultipart {
			body, contentType, err = encodeMultipart(spec.Body)
		} else {
			body, contentType, err = encodeJSON(spec.Body)
		}
		if err != nil {
			return Response{}, services.Wrap(services.ErrValidation, "gateway", "encode body", "could not encode request body", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, spec.URL, body)
	if err != nil {
		return Response{}, services.Wrap(services.ErrValidation, "gateway", "build request", "invalid request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if contentType != "" {
		// Multipart boundaries must win over any caller content type.
		if useMultipart || req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", contentType)
		}
	}
	if token := strings.TrimSpace(credential); token != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, ctxErr
		}
		return Response{}, services.Wrap(services.ErrGatewayTransport, "gateway", "execute",
			fmt.Sprintf("%s %s failed", method, redactURL(spec.URL)), err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, services.Wrap(services.ErrGatewayTransport, "gateway", "read response", "could not read provider response", err)
	}

	c.logger.Debug("provider request completed",
		logging.String("method", method),
		logging.String("url", redactURL(spec.URL)),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{Status: resp.StatusCode}, &StatusError{Status: resp.StatusCode, Body: truncateBody(payload, maxErrorBody)}
	}

	return Response{Status: resp.StatusCode, Data: decodeBody(payload, resp.StatusCode)}, nil
}

// Download streams a GET of rawURL into w and returns the byte count.
// credential, when non-empty, is sent as a bearer token.
func (c *Client) Download(ctx context.Context, rawURL, credential string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSpace(rawURL), nil)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "gateway", "download", "invalid download URL", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if token := strings.TrimSpace(credential); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, services.Wrap(services.ErrGatewayTransport, "gateway", "download",
			fmt.Sprintf("GET %s failed", redactURL(rawURL)), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+utf8.UTFMax))
		return 0, &StatusError{Status: resp.StatusCode, Body: truncateBody(payload, maxErrorBody)}
	}

	written, err := io.Copy(w, resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return written, ctxErr
		}
		return written, services.Wrap(services.ErrGatewayTransport, "gateway", "download", "could not read download body", err)
	}
	c.logger.Debug("download completed",
		logging.String("url", redactURL(rawURL)),
		logging.Int64("bytes", written),
		logging.Duration("elapsed", time.Since(started)),
	)
	return written, nil
}

// splitHeaders copies headers, stripping the multipart marker header.
func splitHeaders(in map[string]string) (map[string]string, bool) {
	out := make(map[string]string, len(in))
	multipartRequested := false
	for key, value := range in {
		if strings.EqualFold(key, multipartHeader) {
			if strings.EqualFold(strings.TrimSpace(value), "true") {
				multipartRequested = true
			}
			continue
		}
		out[key] = value
	}
	return out, multipartRequested
}

func encodeJSON(body any) (io.Reader, string, error) {
	if s, ok := body.(string); ok {
		return strings.NewReader(s), "application/json", nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(data), "application/json", nil
}

// encodeMultipart sends each top-level field as a text part. Non-string
// values are JSON encoded.
func encodeMultipart(body any) (io.Reader, string, error) {
	fields, ok := body.(map[string]any)
	if !ok {
		if stringsMap, isStrings := body.(map[string]string); isStrings {
			fields = make(map[string]any, len(stringsMap))
			for k, v := range stringsMap {
				fields[k] = v
			}
		} else {
			return nil, "", errors.New("multipart body must be an object")
		}
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, key := range keys {
		var text string
		switch v := fields[key].(type) {
		case string:
			text = v
		case nil:
			continue
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, "", fmt.Errorf("encode field %s: %w", key, err)
			}
			text = string(encoded)
		}
		if err := writer.WriteField(key, text); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

// decodeBody parses JSON or wraps the text as {"raw_response", "status"}.
func decodeBody(payload []byte, status int) any {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 {
		var data any
		if err := json.Unmarshal(trimmed, &data); err == nil {
			return data
		}
	}
	return map[string]any{
		"raw_response": string(payload),
		"status":       float64(status),
	}
}

// truncateBody cuts payload to at most limit bytes without splitting a rune
// and replaces any invalid UTF-8 it carries.
func truncateBody(payload []byte, limit int) string {
	if len(payload) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(payload[cut]) {
			cut--
		}
		payload = payload[:cut]
	}
	return strings.ToValidUTF8(string(payload), "\uFFFD")
}

func redactURL(raw string) string {
	if idx := strings.IndexByte(raw, '?'); idx >= 0 {
		return raw[:idx]
	}
	return raw
}
