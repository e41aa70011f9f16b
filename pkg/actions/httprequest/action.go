// Package httprequest provides the http_request action.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
)

const defaultTimeout = 30 * time.Second

var (
	// ErrHTTPMethodInvalid is returned when the HTTP method is invalid.
	ErrHTTPMethodInvalid = errors.New("invalid HTTP method")
	// ErrHTTPRequestURLInvalid is returned when the request url is missing.
	ErrHTTPRequestURLInvalid = errors.New("invalid HTTP request url")
	// ErrHTTPServerError is returned when the server returns an error status code.
	ErrHTTPServerError = errors.New("server error during HTTP request")
)

// Action performs an HTTP request with optional headers, body and retry.
type Action struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	Timeout time.Duration
	Retry   RetryConfig
}

// RetryConfig defines retry behavior for HTTP requests.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// NewAction creates an Action from node configuration.
func NewAction(config map[string]any) (*Action, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, fmt.Errorf("missing or invalid 'url' in configuration: %w", ErrHTTPRequestURLInvalid)
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	headers := make(map[string]string)

	if headersMap, ok := config["headers"].(map[string]any); ok {
		for k, v := range headersMap {
			if strVal, ok := v.(string); ok {
				headers[k] = strVal
			}
		}
	}

	timeout := defaultTimeout
	if ms, ok := number(config["timeoutMs"]); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	action := &Action{
		Method:  strings.ToUpper(method),
		URL:     url,
		Headers: headers,
		Body:    bodyString(config["body"]),
		Timeout: timeout,
		Retry:   parseRetryConfig(config["retry"]),
	}

	if err := action.Validate(); err != nil {
		return nil, err
	}

	return action, nil
}

func bodyString(body any) string {
	switch b := body.(type) {
	case nil:
		return ""
	case string:
		return b
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return fmt.Sprint(b)
		}

		return string(encoded)
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func parseRetryConfig(retryConfig any) RetryConfig {
	retry := RetryConfig{Attempts: 1}

	retryMap, ok := retryConfig.(map[string]any)
	if !ok {
		return retry
	}

	if attempts, ok := number(retryMap["attempts"]); ok && attempts >= 1 {
		retry.Attempts = int(attempts)
	}

	if delay, ok := number(retryMap["delayMs"]); ok && delay > 0 {
		retry.Delay = time.Duration(delay) * time.Millisecond
	}

	return retry
}

// Validate checks the method and that every template parses.
func (a *Action) Validate() error {
	switch a.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodHead, http.MethodOptions:
	default:
		return fmt.Errorf("%w: %s", ErrHTTPMethodInvalid, a.Method)
	}

	if _, err := template.Parse(a.URL); err != nil {
		return fmt.Errorf("invalid url template: %w", err)
	}

	if _, err := template.Parse(a.Body); err != nil {
		return fmt.Errorf("invalid body template: %w", err)
	}

	for key, value := range a.Headers {
		if _, err := template.Parse(value); err != nil {
			return fmt.Errorf("invalid header '%s' template: %w", key, err)
		}
	}

	return nil
}

// Execute performs the request, retrying on transport errors and 5xx responses.
func (a *Action) Execute(ctx context.Context, input protocol.ActionInput, logger *slog.Logger) (any, error) {
	logger = logger.With("module", "http_request_action")
	logger.DebugContext(ctx, "Executing HTTPRequestAction")

	var (
		lastErr error
		resp    *http.Response
	)

	client := &http.Client{Timeout: a.Timeout}

	for attempt := 1; attempt <= a.Retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, "retrying http request", "attempt", attempt, "attempts", a.Retry.Attempts)

			if err := wait(ctx, a.Retry.Delay); err != nil {
				return nil, err
			}
		}

		req, err := a.buildRequest(ctx, input)
		if err != nil {
			return nil, err
		}

		resp, err = client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request failed: %w", err)
			resp = nil

			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError && attempt < a.Retry.Attempts {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("%w: status %d", ErrHTTPServerError, resp.StatusCode)
			resp = nil

			continue
		}

		break
	}

	if resp == nil {
		return nil, fmt.Errorf("all retry attempts failed, last error: %w", lastErr)
	}

	return a.processResponse(ctx, resp, logger)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (a *Action) buildRequest(ctx context.Context, input protocol.ActionInput) (*http.Request, error) {
	scope := input.Scope()

	url, err := template.RenderString(a.URL, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to render url template: %w", err)
	}

	body, err := template.RenderString(a.Body, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to render body template: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, a.Method, url, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	for key, value := range a.Headers {
		headerValue, err := template.RenderString(value, scope)
		if err != nil {
			return nil, fmt.Errorf("failed to render header '%s' template: %w", key, err)
		}

		req.Header.Set(key, headerValue)
	}

	return req, nil
}

func (a *Action) processResponse(ctx context.Context, resp *http.Response, logger *slog.Logger) (any, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var body any

	if len(bodyBytes) > 0 {
		err = json.Unmarshal(bodyBytes, &body)
		if err != nil {
			body = string(bodyBytes)

			logger.DebugContext(ctx, "response is not JSON, returning as string")
		}
	}

	headers := make(map[string]any, len(resp.Header))
	for key, values := range resp.Header {
		headers[key] = strings.Join(values, ", ")
	}

	logger.InfoContext(ctx, "http request completed", "status_code", resp.StatusCode, "bytes", len(bodyBytes))

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     headers,
	}, nil
}
