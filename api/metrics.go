package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName          = "todo-api/api"
	requestSpanName     = "todo.http.request"
	requestEventName    = "todo.request.completed"
	requestEventDomain  = "todo-api"
	observabilityMsg    = "observability.event"
	unmatchedRouteLabel = "unmatched"
)

type requestMetrics struct {
	logger    *log.Logger
	span      trace.Span
	start     time.Time
	method    string
	route     string
	requestID string
	errorCode ErrorCode
}

// newRequestMetrics starts the server span for a request. The tracer is
// looked up per request so a provider installed after startup is honoured.
func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	if route == "" {
		route = unmatchedRouteLabel
	}
	spanCtx, span := otel.GetTracerProvider().Tracer(tracerName).Start(ctx, requestSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
		),
	)
	return &requestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
		method: method,
		route:  route,
	}, spanCtx
}

func (m *requestMetrics) SetRequestID(id string) {
	m.requestID = id
}

func (m *requestMetrics) SetErrorCode(code ErrorCode) {
	m.errorCode = code
}

// Log ends the span and emits one structured entry for the request.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	severityText, severityNumber := severityForStatus(status, err)
	totalMS := durationToMillis(time.Since(m.start))

	attrs := map[string]any{
		"http.method":      m.method,
		"http.route":       m.route,
		"http.status_code": status,
		"todo.request_id":  m.requestID,
		"todo.total_ms":    totalMS,
	}
	spanAttrs := []attribute.KeyValue{
		attribute.Int("http.status_code", status),
		attribute.String("todo.request_id", m.requestID),
		attribute.Float64("todo.total_ms", totalMS),
	}
	if m.errorCode != "" {
		attrs["todo.error_code"] = string(m.errorCode)
		spanAttrs = append(spanAttrs, attribute.String("todo.error_code", string(m.errorCode)))
	}

	if m.span != nil {
		m.span.SetAttributes(spanAttrs...)
		m.span.AddEvent(observabilityMsg, trace.WithAttributes(
			attribute.String("event.name", requestEventName),
			attribute.String("event.domain", requestEventDomain),
			attribute.String("severity_text", severityText),
		))
		if status >= http.StatusInternalServerError {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
				m.span.RecordError(err)
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attrs,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error(observabilityMsg)
	case "WARN":
		entry.Warn(observabilityMsg)
	default:
		entry.Info(observabilityMsg)
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	case err != nil:
		return "ERROR", 17
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

// ObservabilityMiddleware wraps each request in a span and logs one
// observability event when it completes. Handler errors are rendered here
// so the logged status is the one the caller received.
func ObservabilityMiddleware(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			metrics, ctx := newRequestMetrics(req.Context(), logger, req.Method, c.Path())
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				metrics.SetErrorCode(toAPIError(err, c).Code)
				c.Error(err)
			}
			metrics.SetRequestID(requestID(c))
			metrics.Log(c.Response().Status, err)
			return nil
		}
	}
}
