package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Request builds and executes one HTTP call.
type Request interface {
	Get(ctx context.Context, path string) (*Response, error)
	Post(ctx context.Context, path string) (*Response, error)
	Patch(ctx context.Context, path string) (*Response, error)
	Delete(ctx context.Context, path string) (*Response, error)

	SetBody(body any) Request
	SetHeader(key, value string) Request
	SetQueryParam(key, value string) Request
	SetResult(result any) Request
}

// ResponseErrorHandler turns a completed response into an error, or nil.
type ResponseErrorHandler func(statusCode int, body []byte) error

// Label is an extra metric attribute.
type Label struct {
	Key   string
	Value string
}

func NewLabel(key, value string) *Label {
	return &Label{Key: key, Value: value}
}

type requestOptions struct {
	errorHandler ResponseErrorHandler
	labels       []*Label
}

// RequestOption configures a single request.
type RequestOption func(*requestOptions)

func WithResponseErrorHandler(h ResponseErrorHandler) RequestOption {
	return func(o *requestOptions) { o.errorHandler = h }
}

func WithLabels(labels ...*Label) RequestOption {
	return func(o *requestOptions) { o.labels = labels }
}

// Response carries the buffered body.
type Response struct {
	*http.Response
	body []byte
}

func (r *Response) Body() []byte   { return r.body }
func (r *Response) String() string { return string(r.body) }
func (r *Response) IsError() bool  { return r.StatusCode >= 400 }

type requestBuilder struct {
	c            *InstrumentedClient
	headers      map[string]string
	query        url.Values
	body         any
	result       any
	errorHandler ResponseErrorHandler
	labels       []*Label
}

func (r *requestBuilder) Get(ctx context.Context, path string) (*Response, error) {
	return r.execute(ctx, http.MethodGet, path)
}

func (r *requestBuilder) Post(ctx context.Context, path string) (*Response, error) {
	return r.execute(ctx, http.MethodPost, path)
}

func (r *requestBuilder) Patch(ctx context.Context, path string) (*Response, error) {
	return r.execute(ctx, http.MethodPatch, path)
}

func (r *requestBuilder) Delete(ctx context.Context, path string) (*Response, error) {
	return r.execute(ctx, http.MethodDelete, path)
}

// SetBody sets the payload; values other than []byte, string and io.Reader
// are JSON encoded.
func (r *requestBuilder) SetBody(body any) Request {
	r.body = body
	return r
}

func (r *requestBuilder) SetHeader(key, value string) Request {
	r.headers[key] = value
	return r
}

func (r *requestBuilder) SetQueryParam(key, value string) Request {
	if r.query == nil {
		r.query = url.Values{}
	}
	r.query.Set(key, value)
	return r
}

// SetResult decodes a JSON response body into result.
func (r *requestBuilder) SetResult(result any) Request {
	r.result = result
	return r
}

func (r *requestBuilder) execute(ctx context.Context, method, path string) (*Response, error) {
	ctx, span := r.c.tracer.Start(ctx, "http.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
			attribute.String("provider", r.c.providerName),
		),
	)
	defer span.End()

	start := time.Now()

	if r.c.limiter != nil {
		if err := r.c.limiter.Wait(ctx); err != nil {
			r.fail(ctx, span, start, err)
			return nil, err
		}
	}

	fullURL, err := r.buildURL(path)
	if err != nil {
		r.fail(ctx, span, start, err)
		return nil, err
	}

	bodyReader, err := r.encodeBody(span)
	if err != nil {
		r.fail(ctx, span, start, err)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		r.fail(ctx, span, start, err)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := r.c.client.Do(req)
	if err != nil {
		r.fail(ctx, span, start, err)
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		r.fail(ctx, span, start, err)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if r.c.logResponse {
		span.AddEvent("response.body", trace.WithAttributes(attribute.String("http.response_body", string(body))))
	}

	response := &Response{Response: resp, body: body}

	if r.errorHandler != nil {
		if herr := r.errorHandler(resp.StatusCode, body); herr != nil {
			span.RecordError(herr)
			span.SetStatus(codes.Error, herr.Error())
			r.record(ctx, start, false)
			return response, herr
		}
	}

	if r.result != nil && len(body) > 0 && !response.IsError() {
		if err := json.Unmarshal(body, r.result); err != nil {
			r.fail(ctx, span, start, err)
			return response, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	r.record(ctx, start, !response.IsError())
	return response, nil
}

func (r *requestBuilder) buildURL(path string) (string, error) {
	full := path
	if r.c.baseURL != "" && !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		full = strings.TrimSuffix(r.c.baseURL, "/") + "/" + strings.TrimPrefix(path, "/")
	}

	u, err := url.Parse(full)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", full, err)
	}
	if len(r.query) > 0 {
		q := u.Query()
		for k, vs := range r.query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (r *requestBuilder) encodeBody(span trace.Span) (io.Reader, error) {
	var raw []byte
	switch b := r.body.(type) {
	case nil:
		return nil, nil
	case io.Reader:
		return b, nil
	case []byte:
		raw = b
	case string:
		raw = []byte(b)
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		raw = encoded
		if _, ok := r.headers["Content-Type"]; !ok {
			r.headers["Content-Type"] = "application/json"
		}
	}

	if r.c.logRequest {
		span.AddEvent("request.body", trace.WithAttributes(attribute.String("http.request_body", string(raw))))
	}
	return bytes.NewReader(raw), nil
}

func (r *requestBuilder) fail(ctx context.Context, span trace.Span, start time.Time, err error) {
	span.RecordError(err)

	var netErr net.Error
	if errors.Is(err, context.Canceled) {
		span.SetAttributes(attribute.Bool("context.cancelled", true))
	}
	if errors.As(err, &netErr) && netErr.Timeout() {
		span.SetAttributes(attribute.Bool("request.timeout", true))
	}

	span.SetStatus(codes.Error, err.Error())
	r.record(ctx, start, false)
}

func (r *requestBuilder) record(ctx context.Context, start time.Time, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("provider", r.c.providerName),
		attribute.Bool("success", success),
	}
	for _, l := range r.labels {
		attrs = append(attrs, attribute.String(l.Key, l.Value))
	}

	set := metric.WithAttributes(attrs...)
	r.c.requests.Add(ctx, 1, set)
	r.c.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000, set)
}
