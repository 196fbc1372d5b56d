package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/failure"
)

var tracer = otel.Tracer("github.com/WailSalutem-Health-Care/telemed-dashboard/api")

// TokenSource yields the bearer credential attached to each request.
type TokenSource interface {
	Credential(ctx context.Context) (string, error)
}

// MetricsRecorder records per-request metrics.
type MetricsRecorder interface {
	RecordAPIRequest(ctx context.Context, op string, statusCode int, durationMs float64, outcome string)
}

// Client wraps the backend REST surface. Every operation issues exactly one
// request, never retries, and returns failures as *Error.
type Client struct {
	http    *resty.Client
	tokens  TokenSource
	metrics MetricsRecorder
	logger  *zap.Logger
}

type Option func(*Client)

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(c *Client) { c.metrics = m }
}

// WithHTTPClient swaps the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		base := c.http.BaseURL
		c.http = resty.NewWithClient(hc).SetBaseURL(base)
		setDefaults(c.http)
	}
}

// NewClient creates a client for baseURL. tokens may be nil for
// unauthenticated use.
func NewClient(baseURL string, tokens TokenSource, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	rc := resty.New().SetBaseURL(baseURL)
	setDefaults(rc)

	c := &Client{
		http:   rc,
		tokens: tokens,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func setDefaults(rc *resty.Client) {
	rc.SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
}

type call struct {
	op     string
	method string
	path   string
	body   any
	result any
	token  string
}

func (c *Client) do(ctx context.Context, cl call) error {
	ctx, span := tracer.Start(ctx, "api."+cl.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", cl.method),
			attribute.String("http.route", cl.path),
		),
	)
	defer span.End()

	req := c.http.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString())

	token := cl.token
	if token == "" && c.tokens != nil {
		if t, err := c.tokens.Credential(ctx); err == nil {
			token = t
		}
	}
	if token != "" {
		req.SetAuthToken(token)
	}
	if cl.body != nil {
		req.SetBody(cl.body)
	}

	start := time.Now()
	resp, err := req.Execute(cl.method, cl.path)
	elapsed := float64(time.Since(start).Milliseconds())

	if err != nil {
		c.record(ctx, cl.op, 0, elapsed, string(KindNetwork))
		span.SetStatus(codes.Error, "request failed")
		c.logger.Debug("request failed", zap.String("op", cl.op), zap.Error(err))
		return &Error{Kind: KindNetwork, Op: cl.op, Message: err.Error(), Err: err}
	}

	status := resp.StatusCode()
	span.SetAttributes(attribute.Int("http.status_code", status))
	if status < 200 || status >= 300 {
		c.record(ctx, cl.op, status, elapsed, string(KindHTTP))
		span.SetStatus(codes.Error, "non-2xx response")
		return &Error{Kind: KindHTTP, Op: cl.op, Status: status, Message: httpMessage(resp.Body())}
	}

	if cl.result != nil {
		if err := json.Unmarshal(resp.Body(), cl.result); err != nil {
			c.record(ctx, cl.op, status, elapsed, string(KindDecode))
			span.SetStatus(codes.Error, "decode failed")
			return &Error{Kind: KindDecode, Op: cl.op, Status: status, Message: err.Error(), Err: err}
		}
	}

	c.record(ctx, cl.op, status, elapsed, "ok")
	span.SetStatus(codes.Ok, "")
	return nil
}

func (c *Client) record(ctx context.Context, op string, status int, ms float64, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordAPIRequest(ctx, op, status, ms, outcome)
	}
}

func requireID(field string, id ID) error {
	if id == "" {
		return failure.Invalid(field, "must not be empty")
	}
	return nil
}

func seg(id ID) string {
	return url.PathEscape(string(id))
}
