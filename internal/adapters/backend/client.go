// Package backend is the portal's client for the HR domain backend.
//
// A Client is immutable and shared. Requests are issued through a Caller bound
// to one TokenSource; every call asks that source for a fresh token and sets it
// on that request only.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	domainauth "github.com/hredge/portal/internal/domain/auth"
	"github.com/hredge/portal/internal/observability/metrics"
	"github.com/hredge/portal/internal/observability/statsd"
	"github.com/hredge/portal/internal/ports"
)

// DefaultTimeout bounds every backend call.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// errorMessageExpr picks the human message out of the backend's error envelopes.
const errorMessageExpr = "error || detail || non_field_errors[0]"

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	// TokenTemplate names the credential the backend expects.
	TokenTemplate string
	UserAgent     string
	Logger        *slog.Logger
	Metrics       statsd.Sink
}

// Client holds everything shared between callers. It has no mutable state.
type Client struct {
	base      *url.URL
	http      *http.Client
	template  string
	userAgent string
	logger    *slog.Logger
	metrics   statsd.Sink
}

// New validates opts and builds a Client.
func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, errors.New("backend base URL is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse backend base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend base URL must be http or https, got %q", base.Scheme)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if _, compileErr := jmespath.Compile(errorMessageExpr); compileErr != nil {
		return nil, fmt.Errorf("compile error envelope expression: %w", compileErr)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	template := opts.TokenTemplate
	if template == "" {
		template = domainauth.TemplateIDToken
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "hr-portal"
	}

	return &Client{
		base:      base,
		http:      hc,
		template:  template,
		userAgent: ua,
		logger:    logger.With("component", "backend"),
		metrics:   opts.Metrics,
	}, nil
}

// As returns a Caller that authenticates as ts.
func (c *Client) As(ts ports.TokenSource) *Caller {
	return &Caller{client: c, tokens: ts}
}

// Caller issues backend requests on behalf of one token source.
type Caller struct {
	client *Client
	tokens ports.TokenSource
}

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int
	Message string
	// Fields holds field-keyed validation messages, when the backend sent them.
	Fields map[string][]string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend %d", e.Status)
}

// HTTPStatus returns the backend's response status.
func (e *APIError) HTTPStatus() int { return e.Status }

// Unauthorized reports a 401 or 403, the expected outcome of a call made without a usable token.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// NotFound reports a 404.
func (e *APIError) NotFound() bool { return e.Status == http.StatusNotFound }

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

type request struct {
	method   string
	path     string
	query    url.Values
	body     any
	endpoint string
}

func (k *Caller) get(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	return k.do(ctx, request{method: http.MethodGet, path: path, query: query, endpoint: endpoint}, out)
}

func (k *Caller) send(ctx context.Context, method, endpoint, path string, body, out any) error {
	return k.do(ctx, request{method: method, path: path, body: body, endpoint: endpoint}, out)
}

func (k *Caller) do(ctx context.Context, r request, out any) error {
	c := k.client
	start := time.Now()

	req, err := k.newRequest(ctx, r)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.EmitBackendCall(c.metrics, metrics.BackendCallMetric{Endpoint: r.endpoint, Duration: time.Since(start), Err: err})
		return fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	metrics.EmitBackendCall(c.metrics, metrics.BackendCallMetric{Endpoint: r.endpoint, Status: resp.StatusCode, Duration: time.Since(start)})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeAPIError(resp)
		c.logger.DebugContext(ctx, "backend error response",
			"endpoint", r.endpoint,
			"status", resp.StatusCode,
			"message", apiErr.Message)
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
		return fmt.Errorf("decode %s response: %w", r.endpoint, decodeErr)
	}
	return nil
}

func (k *Caller) newRequest(ctx context.Context, r request) (*http.Request, error) {
	c := k.client
	ref, err := url.Parse(strings.TrimPrefix(r.path, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", r.path, err)
	}
	u := c.base.ResolveReference(ref)
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		buf, marshalErr := json.Marshal(r.body)
		if marshalErr != nil {
			return nil, fmt.Errorf("encode %s request: %w", r.endpoint, marshalErr)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", r.endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if token := k.token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// token asks the source for a credential. Failures degrade to an unauthenticated call.
func (k *Caller) token(ctx context.Context) string {
	if k.tokens == nil {
		return ""
	}
	tok, err := k.tokens.Token(ctx, domainauth.TokenRequest{Template: k.client.template})
	if err != nil {
		k.client.logger.WarnContext(ctx, "token unavailable, calling backend unauthenticated", "error", err)
		if k.client.metrics != nil {
			k.client.metrics.Count("backend.token_unavailable", 1, nil)
		}
		return ""
	}
	return strings.TrimSpace(tok)
}

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}

	var envelope any
	if json.Unmarshal(raw, &envelope) != nil {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}

	if v, searchErr := jmespath.Search(errorMessageExpr, envelope); searchErr == nil {
		if s, ok := v.(string); ok {
			apiErr.Message = s
		}
	}
	apiErr.Fields = fieldErrors(envelope)
	if apiErr.Message == "" && len(apiErr.Fields) > 0 {
		apiErr.Message = "validation failed"
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// fieldErrors collects {"field": ["msg", ...]} entries from a validation envelope.
func fieldErrors(envelope any) map[string][]string {
	m, ok := envelope.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string][]string)
	for field, v := range m {
		switch field {
		case "error", "detail", "non_field_errors":
			continue
		}
		switch msgs := v.(type) {
		case []any:
			for _, msg := range msgs {
				if s, isStr := msg.(string); isStr {
					out[field] = append(out[field], s)
				}
			}
		case string:
			out[field] = append(out[field], msgs)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
