package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName       = "repricelab/api"
	boardSpanName    = "kanban.board.request"
	boardEventName   = "board.request"
	boardEventDomain = "kanban"
	attrPrefix       = "repricelab.board."
)

// boardRequestMetrics records one board API request as an
// observability.event log record and a server span.
type boardRequestMetrics struct {
	logger        *log.Logger
	span          trace.Span
	route         string
	boardID       string
	start         time.Time
	authDuration  time.Duration
	loadDuration  time.Duration
	applyDuration time.Duration
	commands      int
	skipped       int
	tasksReturned int
	errorStage    string
}

func newBoardRequestMetrics(ctx context.Context, logger *log.Logger, route, boardID string) (*boardRequestMetrics, context.Context) {
	ctx, span := otel.GetTracerProvider().Tracer(tracerName).Start(ctx, boardSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &boardRequestMetrics{
		logger:  logger,
		span:    span,
		route:   route,
		boardID: boardID,
		start:   time.Now(),
	}, ctx
}

func (m *boardRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *boardRequestMetrics) ObserveLoad(d time.Duration) {
	if d > 0 {
		m.loadDuration = d
	}
}

func (m *boardRequestMetrics) ObserveApply(d time.Duration) {
	if d > 0 {
		m.applyDuration = d
	}
}

func (m *boardRequestMetrics) SetCommands(received, skipped int) {
	m.commands = max(received, 0)
	m.skipped = max(skipped, 0)
}

func (m *boardRequestMetrics) SetTasksReturned(count int) {
	m.tasksReturned = max(count, 0)
}

func (m *boardRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

func (m *boardRequestMetrics) attributes(status int, err error) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.Int("http.status_code", status),
		attribute.String(attrPrefix+"id", m.boardID),
		attribute.Float64(attrPrefix+"total_ms", durationToMillis(time.Since(m.start))),
		attribute.Int(attrPrefix+"tasks_returned", m.tasksReturned),
	}
	if m.commands > 0 {
		attrs = append(attrs,
			attribute.Int(attrPrefix+"commands", m.commands),
			attribute.Int(attrPrefix+"commands_skipped", m.skipped),
		)
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"auth_ms", durationToMillis(m.authDuration)))
	}
	if m.loadDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"load_ms", durationToMillis(m.loadDuration)))
	}
	if m.applyDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"apply_ms", durationToMillis(m.applyDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String(attrPrefix+"error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}
	return attrs
}

// Log emits the record and ends the span. It must be called once.
func (m *boardRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	attrs := m.attributes(status, err)
	sevText, sevNumber := severityForStatus(status, err)

	m.span.SetAttributes(attrs...)
	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", boardEventName),
		attribute.String("event.domain", boardEventDomain),
		attribute.String("severity_text", sevText),
		attribute.Int("severity_number", sevNumber),
	}, attrs...)
	m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
	if sevText == "ERROR" {
		msg := http.StatusText(status)
		if err != nil {
			msg = err.Error()
		}
		m.span.SetStatus(codes.Error, msg)
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	defer m.span.End()

	if m.logger == nil {
		return
	}
	attrMap := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		attrMap[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      boardEventName,
		"event.domain":    boardEventDomain,
		"attributes":      attrMap,
		"severity_text":   sevText,
		"severity_number": sevNumber,
	}
	if sc := m.span.SpanContext(); sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
		fields["span_id"] = sc.SpanID().String()
	}

	entry := m.logger.WithFields(fields)
	switch sevText {
	case "ERROR":
		entry.Error("observability.event")
	case "WARN":
		entry.Warn("observability.event")
	default:
		entry.Info("observability.event")
	}
}

// severityForStatus maps a response to OpenTelemetry log severity.
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
