package audit

import (
	"context"
	"time"

	"github.com/rom8726/labflow"
)

var _ labflow.Plugin = (*AuditPlugin)(nil)

type AuditLogEntry struct {
	Timestamp     time.Time      `json:"timestamp"`
	EventType     string         `json:"event_type"`
	ItemID        int64          `json:"item_id"`
	MethodID      string         `json:"method_id"`
	StateID       *int64         `json:"state_id,omitempty"`
	SectionID     string         `json:"section_id,omitempty"`
	Status        string         `json:"status,omitempty"`
	Actor         string         `json:"actor,omitempty"`
	Detail        string         `json:"detail,omitempty"`
	Duration      *time.Duration `json:"duration,omitempty"`
	SampleID      *int64         `json:"sample_id,omitempty"`
	SampleBarcode string         `json:"sample_barcode,omitempty"`
}

type Writer interface {
	Write(ctx context.Context, entry *AuditLogEntry) error
}

// AuditPlugin mirrors item transitions to an external audit sink. The
// engine's own activity log stays the source of truth.
type AuditPlugin struct {
	labflow.BasePlugin

	writer Writer
	now    func() time.Time
}

func New(writer Writer) *AuditPlugin {
	return &AuditPlugin{
		BasePlugin: labflow.NewBasePlugin("audit", labflow.PriorityNormal),
		writer:     writer,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (p *AuditPlugin) OnStateEntered(
	ctx context.Context,
	item *labflow.AcceptanceItem,
	state *labflow.AcceptanceItemState,
) error {
	entry := p.stateEntry("section_entered", item, state)
	entry.Actor = deref(state.StartedBy)

	return p.logEvent(ctx, entry)
}

func (p *AuditPlugin) OnStateFinished(
	ctx context.Context,
	item *labflow.AcceptanceItem,
	state *labflow.AcceptanceItemState,
) error {
	entry := p.stateEntry("section_finished", item, state)
	entry.Actor = deref(state.FinishedBy)
	entry.Duration = processingTime(state)

	return p.logEvent(ctx, entry)
}

func (p *AuditPlugin) OnStateRejected(
	ctx context.Context,
	item *labflow.AcceptanceItem,
	state *labflow.AcceptanceItemState,
) error {
	entry := p.stateEntry("section_rejected", item, state)
	entry.Actor = deref(state.FinishedBy)
	entry.Detail = deref(state.RejectionDetail)
	if state.ReworkTarget != nil {
		entry.Detail += " -> " + state.ReworkTarget.String()
	}
	entry.Duration = processingTime(state)

	return p.logEvent(ctx, entry)
}

func (p *AuditPlugin) OnSampleCollected(
	ctx context.Context,
	item *labflow.AcceptanceItem,
	sample *labflow.Sample,
) error {
	entry := AuditLogEntry{
		Timestamp:     p.now(),
		EventType:     "sample_collected",
		ItemID:        item.ID,
		MethodID:      item.MethodID,
		SampleID:      &sample.ID,
		SampleBarcode: sample.Barcode,
	}

	return p.logEvent(ctx, &entry)
}

func (p *AuditPlugin) OnItemReportable(ctx context.Context, item *labflow.AcceptanceItem) error {
	entry := AuditLogEntry{
		Timestamp: p.now(),
		EventType: "item_reportable",
		ItemID:    item.ID,
		MethodID:  item.MethodID,
		Status:    string(item.Status),
	}

	return p.logEvent(ctx, &entry)
}

func (p *AuditPlugin) stateEntry(
	eventType string,
	item *labflow.AcceptanceItem,
	state *labflow.AcceptanceItemState,
) *AuditLogEntry {
	return &AuditLogEntry{
		Timestamp: p.now(),
		EventType: eventType,
		ItemID:    item.ID,
		MethodID:  item.MethodID,
		StateID:   &state.ID,
		SectionID: state.SectionID,
		Status:    string(state.Status),
	}
}

func (p *AuditPlugin) logEvent(ctx context.Context, entry *AuditLogEntry) error {
	return p.writer.Write(ctx, entry)
}

func processingTime(state *labflow.AcceptanceItemState) *time.Duration {
	if state.StartedAt == nil || state.FinishedAt == nil {
		return nil
	}
	d := state.FinishedAt.Sub(*state.StartedAt)

	return &d
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
