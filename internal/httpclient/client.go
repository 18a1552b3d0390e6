// Package httpclient provides an instrumented HTTP client with OTEL tracing
// and metrics.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbitrage-scanner/internal/ratelimit"
)

const (
	defaultDialKeepAlive   = 10 * time.Second
	defaultRequestTimeout  = 10 * time.Second
	defaultMaxConnsPerHost = 8
	defaultIdleConnTimeout = 2 * time.Minute

	instrumentationName = "instrumented_http_client"
)

// TraceOption selects bodies recorded as span events.
type TraceOption string

const (
	TraceRequest  TraceOption = "request"
	TraceResponse TraceOption = "response"
)

// Client builds instrumented requests.
type Client interface {
	NewRequest() Request
	NewRequestWithOptions(opts ...RequestOption) Request
}

type clientOptions struct {
	httpClient     *http.Client
	roundTripper   http.RoundTripper
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	providerName   string
	baseURL        string
	headers        map[string]string
	requestTimeout time.Duration
	limiter        *ratelimit.Limiter
	logRequest     bool
	logResponse    bool
}

// ClientOption configures the client.
type ClientOption func(*clientOptions)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) { o.httpClient = c }
}

func WithRoundTripper(rt http.RoundTripper) ClientOption {
	return func(o *clientOptions) { o.roundTripper = rt }
}

func WithMeterProvider(mp metric.MeterProvider) ClientOption {
	return func(o *clientOptions) { o.meterProvider = mp }
}

// WithProviderName tags metrics and spans with the remote's name.
func WithProviderName(name string) ClientOption {
	return func(o *clientOptions) { o.providerName = name }
}

func WithBaseURL(u string) ClientOption {
	return func(o *clientOptions) { o.baseURL = u }
}

// WithHeaders sets headers sent on every request.
func WithHeaders(h map[string]string) ClientOption {
	return func(o *clientOptions) { o.headers = h }
}

func WithRequestTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.requestTimeout = d }
}

// WithRateLimiter makes every request wait for a token first.
func WithRateLimiter(l *ratelimit.Limiter) ClientOption {
	return func(o *clientOptions) { o.limiter = l }
}

// WithTraceOptions sets the tracer and which bodies to record.
func WithTraceOptions(tracer trace.Tracer, opts ...TraceOption) ClientOption {
	return func(o *clientOptions) {
		o.tracer = tracer
		for _, opt := range opts {
			switch opt {
			case TraceRequest:
				o.logRequest = true
			case TraceResponse:
				o.logResponse = true
			}
		}
	}
}

// InstrumentedClient wraps http.Client with OTEL instrumentation.
type InstrumentedClient struct {
	client       *http.Client
	requests     metric.Int64Counter
	duration     metric.Float64Histogram
	tracer       trace.Tracer
	limiter      *ratelimit.Limiter
	providerName string
	baseURL      string
	headers      map[string]string
	logRequest   bool
	logResponse  bool
}

var _ Client = (*InstrumentedClient)(nil)

// NewInstrumentedClient creates a client whose transport is traced by otelhttp.
func NewInstrumentedClient(opts ...ClientOption) (*InstrumentedClient, error) {
	o := &clientOptions{requestTimeout: defaultRequestTimeout, providerName: "default"}
	for _, opt := range opts {
		opt(o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	httpClient.Timeout = o.requestTimeout

	transport := o.roundTripper
	if transport == nil {
		transport = httpClient.Transport
	}
	if transport == nil {
		transport = &http.Transport{
			DialContext:     (&net.Dialer{KeepAlive: defaultDialKeepAlive}).DialContext,
			MaxConnsPerHost: defaultMaxConnsPerHost,
			IdleConnTimeout: defaultIdleConnTimeout,
		}
	}
	httpClient.Transport = otelhttp.NewTransport(transport,
		otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
			return otelhttptrace.NewClientTrace(ctx)
		}),
	)

	mp := o.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName,
		metric.WithInstrumentationAttributes(attribute.String("provider", o.providerName)))

	requests, err := meter.Int64Counter("http_client_requests_total",
		metric.WithDescription("Total number of HTTP requests"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("http_client_request_duration_ms",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	tracer := o.tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}

	return &InstrumentedClient{
		client:       httpClient,
		requests:     requests,
		duration:     duration,
		tracer:       tracer,
		limiter:      o.limiter,
		providerName: o.providerName,
		baseURL:      o.baseURL,
		headers:      o.headers,
		logRequest:   o.logRequest,
		logResponse:  o.logResponse,
	}, nil
}

func (c *InstrumentedClient) NewRequest() Request {
	return c.NewRequestWithOptions()
}

func (c *InstrumentedClient) NewRequestWithOptions(opts ...RequestOption) Request {
	ro := &requestOptions{}
	for _, opt := range opts {
		opt(ro)
	}

	headers := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		headers[k] = v
	}

	return &requestBuilder{
		c:            c,
		headers:      headers,
		errorHandler: ro.errorHandler,
		labels:       ro.labels,
	}
}
