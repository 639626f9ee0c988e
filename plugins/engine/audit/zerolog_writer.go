package audit

import (
	"context"

	"github.com/rs/zerolog"
)

var _ Writer = (*ZerologWriter)(nil)

// ZerologWriter emits each audit entry as one structured log event.
type ZerologWriter struct {
	log zerolog.Logger
}

func NewZerologWriter(log zerolog.Logger) *ZerologWriter {
	return &ZerologWriter{log: log.With().Str("component", "audit").Logger()}
}

func (w *ZerologWriter) Write(_ context.Context, entry *AuditLogEntry) error {
	event := w.log.Info().
		Time("at", entry.Timestamp).
		Str("event_type", entry.EventType).
		Int64("item_id", entry.ItemID).
		Str("method_id", entry.MethodID)

	if entry.StateID != nil {
		event = event.Int64("state_id", *entry.StateID).Str("section_id", entry.SectionID)
	}
	if entry.Status != "" {
		event = event.Str("status", entry.Status)
	}
	if entry.Actor != "" {
		event = event.Str("actor", entry.Actor)
	}
	if entry.Detail != "" {
		event = event.Str("detail", entry.Detail)
	}
	if entry.Duration != nil {
		event = event.Dur("duration", *entry.Duration)
	}
	if entry.SampleID != nil {
		event = event.Int64("sample_id", *entry.SampleID).Str("barcode", entry.SampleBarcode)
	}

	event.Msg("audit")

	return nil
}
