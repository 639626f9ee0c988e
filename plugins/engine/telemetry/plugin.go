package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rom8726/labflow"
)

var _ labflow.Plugin = (*TelemetryPlugin)(nil)

type spanEntry struct {
	span      trace.Span
	createdAt time.Time
}

type itemCtxEntry struct {
	ctx       context.Context
	createdAt time.Time
}

// TelemetryPlugin opens one span per acceptance item and a child span per
// section visit. Section spans live from entry to finish or rejection.
type TelemetryPlugin struct {
	labflow.BasePlugin

	tracer   trace.Tracer
	mu       sync.RWMutex
	spans    map[string]*spanEntry
	itemCtxs map[int64]*itemCtxEntry
	stateTTL time.Duration
	itemTTL  time.Duration
	now      func() time.Time
}

type TelemetryOption func(*TelemetryPlugin)

func WithStateTTL(ttl time.Duration) TelemetryOption {
	return func(p *TelemetryPlugin) {
		p.stateTTL = ttl
	}
}

func WithItemTTL(ttl time.Duration) TelemetryOption {
	return func(p *TelemetryPlugin) {
		p.itemTTL = ttl
	}
}

func New(tracer trace.Tracer, opts ...TelemetryOption) *TelemetryPlugin {
	if tracer == nil {
		tracer = otel.Tracer("labflow")
	}

	plugin := &TelemetryPlugin{
		BasePlugin: labflow.NewBasePlugin("telemetry", labflow.PriorityHigh),
		tracer:     tracer,
		spans:      make(map[string]*spanEntry),
		itemCtxs:   make(map[int64]*itemCtxEntry),
		stateTTL:   24 * time.Hour,
		itemTTL:    7 * 24 * time.Hour,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(plugin)
	}

	return plugin
}

func (p *TelemetryPlugin) OnSampleCollected(
	ctx context.Context,
	item *labflow.AcceptanceItem,
	sample *labflow.Sample,
) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	itemCtx := p.itemContext(ctx, item)

	_, span := p.tracer.Start(itemCtx, "sample.collected", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.Int64("sample.id", sample.ID),
		attribute.String("sample.barcode", sample.Barcode),
		attribute.String("sample.type_id", sample.SampleTypeID),
	)
	span.End()

	p.cleanupExpired()

	return nil
}

func (p *TelemetryPlugin) OnStateEntered(
	ctx context.Context,
	item *labflow.AcceptanceItem,
	state *labflow.AcceptanceItemState,
) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	itemCtx := p.itemContext(ctx, item)

	spanName := fmt.Sprintf("section.%s", state.SectionID)
	_, span := p.tracer.Start(itemCtx, spanName, trace.WithSpanKind(trace.SpanKindInternal))

	attrs := []attribute.KeyValue{
		attribute.Int64("state.id", state.ID),
		attribute.String("state.section_id", state.SectionID),
		attribute.Int("state.order", state.Order),
		attribute.String("state.status", string(state.Status)),
		attribute.Int64("item.id", item.ID),
		attribute.String("item.workflow_id", state.WorkflowID),
	}
	if state.StartedBy != nil {
		attrs = append(attrs, attribute.String("state.started_by", *state.StartedBy))
	}
	span.SetAttributes(attrs...)

	p.spans[stateKey(state.ID)] = &spanEntry{
		span:      span,
		createdAt: p.now(),
	}

	p.cleanupExpired()

	return nil
}

func (p *TelemetryPlugin) OnStateFinished(
	_ context.Context,
	_ *labflow.AcceptanceItem,
	state *labflow.AcceptanceItemState,
) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := stateKey(state.ID)
	if entry, ok := p.spans[key]; ok {
		entry.span.SetAttributes(
			attribute.String("state.status", string(state.Status)),
			attribute.Int("state.parameters", len(state.Parameters)),
		)
		entry.span.SetStatus(codes.Ok, "section finished")
		entry.span.End()
		delete(p.spans, key)
	}

	return nil
}

func (p *TelemetryPlugin) OnStateRejected(
	_ context.Context,
	_ *labflow.AcceptanceItem,
	state *labflow.AcceptanceItemState,
) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := stateKey(state.ID)
	if entry, ok := p.spans[key]; ok {
		entry.span.SetAttributes(attribute.String("state.status", string(state.Status)))
		if state.RejectionDetail != nil {
			entry.span.SetAttributes(attribute.String("state.rejection_detail", *state.RejectionDetail))
		}
		if state.ReworkTarget != nil {
			entry.span.SetAttributes(attribute.String("state.rework_target", state.ReworkTarget.String()))
		}
		entry.span.SetStatus(codes.Error, "section rejected")
		entry.span.End()
		delete(p.spans, key)
	}

	return nil
}

func (p *TelemetryPlugin) OnItemReportable(_ context.Context, item *labflow.AcceptanceItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := itemKey(item.ID)
	if entry, ok := p.spans[key]; ok {
		entry.span.SetStatus(codes.Ok, "item reportable")
		entry.span.End()
		delete(p.spans, key)
	}
	delete(p.itemCtxs, item.ID)

	return nil
}

// itemContext returns the context carrying the item span, starting it on
// first use. Callers hold p.mu.
func (p *TelemetryPlugin) itemContext(ctx context.Context, item *labflow.AcceptanceItem) context.Context {
	if entry, ok := p.itemCtxs[item.ID]; ok {
		return entry.ctx
	}

	itemCtx, span := p.tracer.Start(ctx, fmt.Sprintf("item.%d", item.ID), trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.Int64("item.id", item.ID),
		attribute.Int64("item.acceptance_id", item.AcceptanceID),
		attribute.String("item.method_id", item.MethodID),
	)

	now := p.now()
	p.spans[itemKey(item.ID)] = &spanEntry{span: span, createdAt: now}
	p.itemCtxs[item.ID] = &itemCtxEntry{ctx: itemCtx, createdAt: now}

	return itemCtx
}

func (p *TelemetryPlugin) cleanupExpired() {
	now := p.now()

	for key, entry := range p.spans {
		ttl := p.stateTTL
		if isItemKey(key) {
			ttl = p.itemTTL
		}

		if now.Sub(entry.createdAt) > ttl {
			entry.span.SetStatus(codes.Error, "span expired due to TTL")
			entry.span.End()
			delete(p.spans, key)
		}
	}

	for itemID, entry := range p.itemCtxs {
		if now.Sub(entry.createdAt) > p.itemTTL {
			delete(p.itemCtxs, itemID)
		}
	}
}

func stateKey(id int64) string { return fmt.Sprintf("state:%d", id) }

func itemKey(id int64) string { return fmt.Sprintf("item:%d", id) }

func isItemKey(key string) bool { return strings.HasPrefix(key, "item:") }
