package apperror

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"
)

// AppError carries a stable code across module boundaries. Codes map to an
// HTTP status for the control API and to a catalog message.
type AppError struct {
	Code       Code
	Message    string
	StatusCode int
	Context    string
	TraceID    string
	Timestamp  time.Time
	cause      error
	stack      []uintptr
}

func (e *AppError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Code))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Context != "" {
		sb.WriteString(" [")
		sb.WriteString(e.Context)
		sb.WriteString("]")
	}
	if e.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.cause.Error())
	}
	return sb.String()
}

func (e *AppError) Unwrap() error { return e.cause }

// Is matches any AppError with the same code, so errors.Is works against a
// bare &AppError{Code: c}.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && e.Code == t.Code
}

// WithTraceID tags the error with the active trace.
func (e *AppError) WithTraceID(traceID string) *AppError {
	e.TraceID = traceID
	return e
}

// Body is the JSON shape of an error returned to API clients.
type Body struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Context   string `json:"context,omitempty"`
	TraceID   string `json:"traceId,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Response wraps Body under the "error" key.
type Response struct {
	Error Body `json:"error"`
}

// Body returns the client-facing fields. The cause and stack stay server side.
func (e *AppError) Body() Body {
	return Body{
		Code:      e.Code,
		Message:   e.Message,
		Context:   e.Context,
		TraceID:   e.TraceID,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
	}
}

// ToResponse is the envelope written by the control API.
func (e *AppError) ToResponse() Response {
	return Response{Error: e.Body()}
}

// LogValue implements slog.LogValuer. Server errors include the call stack.
func (e *AppError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("code", string(e.Code)),
		slog.Int("status", e.StatusCode),
	}
	if e.Context != "" {
		attrs = append(attrs, slog.String("context", e.Context))
	}
	if e.cause != nil {
		attrs = append(attrs, slog.String("cause", e.cause.Error()))
	}
	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID))
	}
	if e.StatusCode >= http.StatusInternalServerError && len(e.stack) > 0 {
		attrs = append(attrs, slog.String("stack", e.formatStack()))
	}
	return slog.GroupValue(attrs...)
}

func (e *AppError) formatStack() string {
	var sb strings.Builder
	frames := runtime.CallersFrames(e.stack)
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			fmt.Fprintf(&sb, "\n\t%s:%d %s", frame.File, frame.Line, frame.Function)
		}
		if !more {
			return sb.String()
		}
	}
}

func captureStack() []uintptr {
	var pcs [24]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[:n]
}

// Option customizes an AppError built by New.
type Option func(*AppError)

// WithMessage overrides the catalog message.
func WithMessage(message string) Option {
	return func(e *AppError) { e.Message = message }
}

// WithContext attaches a short detail such as the offending field or venue.
func WithContext(context string) Option {
	return func(e *AppError) { e.Context = context }
}

// WithStatusCode overrides the status implied by the code.
func WithStatusCode(statusCode int) Option {
	return func(e *AppError) { e.StatusCode = statusCode }
}

// WithCause records the underlying error for errors.Is and errors.As.
func WithCause(cause error) Option {
	return func(e *AppError) { e.cause = cause }
}

// New builds an AppError for code. Message and status default from the
// catalog; unknown codes use the code itself and 500.
func New(code Code, opts ...Option) *AppError {
	err := &AppError{
		Code:       code,
		Message:    messages[code],
		StatusCode: getDefaultStatusCode(code),
		Timestamp:  time.Now(),
		stack:      captureStack(),
	}
	for _, opt := range opts {
		opt(err)
	}
	if err.Message == "" {
		err.Message = string(code)
	}
	return err
}

// Wrap converts err to an AppError. An AppError already in the chain is
// returned as is, gaining context only if it had none.
func Wrap(err error, code Code, context string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		if context != "" && appErr.Context == "" {
			appErr.Context = context
		}
		return appErr
	}
	return New(code, WithContext(context), WithCause(err))
}

// IsAppError reports whether err's chain holds an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetCode returns the code of the first AppError in err's chain, or
// CodeUnknownError.
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknownError
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code Code) bool {
	return errors.Is(err, &AppError{Code: code})
}

// StatusOf maps err to an HTTP status. Plain errors are 500.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
