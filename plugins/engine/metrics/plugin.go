package metrics

import (
	"context"
	"time"

	"github.com/rom8726/labflow"
)

var _ labflow.Plugin = (*MetricsPlugin)(nil)

// MetricsPlugin feeds section throughput into a MetricsCollector. Processing
// time is taken from the state's own timestamps.
type MetricsPlugin struct {
	labflow.BasePlugin

	collector MetricsCollector
}

func New(collector MetricsCollector) *MetricsPlugin {
	return &MetricsPlugin{
		BasePlugin: labflow.NewBasePlugin("metrics", labflow.PriorityHigh),
		collector:  collector,
	}
}

func (p *MetricsPlugin) OnStateEntered(
	_ context.Context,
	_ *labflow.AcceptanceItem,
	state *labflow.AcceptanceItemState,
) error {
	if p.collector != nil {
		p.collector.RecordStateEntered(state.WorkflowID, state.SectionID)
	}

	return nil
}

func (p *MetricsPlugin) OnStateFinished(
	_ context.Context,
	_ *labflow.AcceptanceItem,
	state *labflow.AcceptanceItemState,
) error {
	if p.collector != nil {
		p.collector.RecordStateFinished(state.WorkflowID, state.SectionID, processingTime(state))
	}

	return nil
}

func (p *MetricsPlugin) OnStateRejected(
	_ context.Context,
	_ *labflow.AcceptanceItem,
	state *labflow.AcceptanceItemState,
) error {
	if p.collector == nil {
		return nil
	}

	target := ""
	if state.ReworkTarget != nil {
		target = string(state.ReworkTarget.Kind)
	}
	p.collector.RecordStateRejected(state.WorkflowID, state.SectionID, target, processingTime(state))

	return nil
}

func (p *MetricsPlugin) OnSampleCollected(
	_ context.Context,
	_ *labflow.AcceptanceItem,
	sample *labflow.Sample,
) error {
	if p.collector != nil {
		p.collector.RecordSampleCollected(sample.SampleTypeID)
	}

	return nil
}

func (p *MetricsPlugin) OnItemReportable(ctx context.Context, item *labflow.AcceptanceItem) error {
	if p.collector != nil {
		p.collector.RecordItemReportable(item.MethodID)
	}

	return nil
}

func processingTime(state *labflow.AcceptanceItemState) time.Duration {
	if state.StartedAt == nil || state.FinishedAt == nil {
		return 0
	}

	return state.FinishedAt.Sub(*state.StartedAt)
}
