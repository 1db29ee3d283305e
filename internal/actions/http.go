package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rendis/opflow/pkg/schema"
)

// HTTPConfig configures the http action.
type HTTPConfig struct {
	MaxResponseBody int64
	DefaultTimeout  time.Duration
	Client          *http.Client // nil: a client on a clone of http.DefaultTransport
}

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout     = 30 * time.Second
)

// HTTPAction implements the "http" action: one request per invocation,
// yielding status, headers and the (JSON-decoded when possible) body.
type HTTPAction struct {
	config HTTPConfig
	client *http.Client
}

// NewHTTPAction creates a new http action.
func NewHTTPAction(cfg HTTPConfig) *HTTPAction {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultHTTPTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	return &HTTPAction{config: cfg, client: client}
}

func (a *HTTPAction) Name() string { return "http" }

func (a *HTTPAction) Schema() ActionSchema {
	return ActionSchema{
		Description: "Send an HTTP request; yields {status_code, headers, body}",
		Async:       true,
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"url"},
			"properties": map[string]any{
				"method":               map[string]any{"type": "string"},
				"url":                  map[string]any{"type": "string"},
				"headers":              map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
				"body":                 map[string]any{},
				"body_from_input":      map[string]any{"type": "boolean"},
				"timeout":              map[string]any{"type": "string"},
				"fail_on_error_status": map[string]any{"type": "boolean"},
			},
		},
	}
}

func (a *HTTPAction) Validate(params map[string]any) error {
	rawURL, err := requireString("http", params, "url")
	if err != nil {
		return err
	}
	if !strings.Contains(rawURL, "${{") {
		u, err := url.ParseRequestURI(rawURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return schema.NewErrorf(schema.ErrCodeValidation, "http: invalid url %q", rawURL)
		}
	}
	_, err = durationParam("http", params, "timeout", a.config.DefaultTimeout)
	return err
}

func (a *HTTPAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	params := input.Params
	if params == nil {
		params = map[string]any{}
	}
	if err := a.Validate(params); err != nil {
		return nil, err
	}

	method := strings.ToUpper(stringParam(params, "method", http.MethodGet))
	rawURL := stringParam(params, "url", "")
	timeout, _ := durationParam("http", params, "timeout", a.config.DefaultTimeout)

	var body any
	if boolParam(params, "body_from_input", false) {
		body = input.Value
	} else if b, ok := params["body"]; ok {
		body = b
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeExecution, "http: failed to marshal body as JSON").WithCause(err)
		}
		bodyReader = bytes.NewReader(b)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, bodyReader)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "http: failed to create request").WithCause(err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if hm, ok := params["headers"].(map[string]any); ok {
		for k, v := range hm {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "http: request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, a.config.MaxResponseBody))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "http: failed to read response body").WithCause(err)
	}

	var parsed any
	if len(bodyBytes) > 0 {
		if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
			if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
				parsed = string(bodyBytes)
			}
		} else {
			parsed = string(bodyBytes)
		}
	}

	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        parsed,
	}

	if boolParam(params, "fail_on_error_status", false) && resp.StatusCode >= 400 {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "http: server returned %d", resp.StatusCode).
			WithDetails(result)
	}
	return &ActionOutput{Value: result}, nil
}

var _ Action = (*HTTPAction)(nil)
