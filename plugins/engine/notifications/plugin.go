package notifications

import (
	"context"
	"time"

	"github.com/rom8726/labflow"
)

var _ labflow.Plugin = (*NotificationsPlugin)(nil)

type NotificationType string

const (
	NotificationTypeSampleCollected NotificationType = "sample_collected"
	NotificationTypeItemReportable  NotificationType = "item_reportable"
	NotificationTypeStateRejected   NotificationType = "state_rejected"
)

type Notification struct {
	Type         NotificationType `json:"type"`
	ItemID       int64            `json:"item_id"`
	AcceptanceID int64            `json:"acceptance_id"`
	MethodID     string           `json:"method_id"`
	SampleID     *int64           `json:"sample_id,omitempty"`
	Barcode      string           `json:"barcode,omitempty"`
	SampleTypeID string           `json:"sample_type_id,omitempty"`
	StateID      *int64           `json:"state_id,omitempty"`
	SectionID    string           `json:"section_id,omitempty"`
	Detail       string           `json:"detail,omitempty"`
	ReworkTarget string           `json:"rework_target,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

type NotificationChannel interface {
	Send(ctx context.Context, notification Notification) error
}

type NotificationsPlugin struct {
	labflow.BasePlugin

	channel NotificationChannel
	now     func() time.Time
}

func New(channel NotificationChannel) *NotificationsPlugin {
	return &NotificationsPlugin{
		BasePlugin: labflow.NewBasePlugin("notifications", labflow.PriorityNormal),
		channel:    channel,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// OnSampleCollected tells the labeling station a sample was activated for an item.
func (p *NotificationsPlugin) OnSampleCollected(
	ctx context.Context,
	item *labflow.AcceptanceItem,
	sample *labflow.Sample,
) error {
	if p.channel == nil {
		return nil
	}

	notification := Notification{
		Type:         NotificationTypeSampleCollected,
		ItemID:       item.ID,
		AcceptanceID: item.AcceptanceID,
		MethodID:     item.MethodID,
		SampleID:     &sample.ID,
		Barcode:      sample.Barcode,
		SampleTypeID: sample.SampleTypeID,
		OccurredAt:   p.now(),
	}

	return p.channel.Send(ctx, notification)
}

func (p *NotificationsPlugin) OnItemReportable(ctx context.Context, item *labflow.AcceptanceItem) error {
	if p.channel == nil {
		return nil
	}

	notification := Notification{
		Type:         NotificationTypeItemReportable,
		ItemID:       item.ID,
		AcceptanceID: item.AcceptanceID,
		MethodID:     item.MethodID,
		OccurredAt:   p.now(),
	}

	return p.channel.Send(ctx, notification)
}

// OnStateRejected only announces rejections that send the item back to
// sample collection; those need a new draw.
func (p *NotificationsPlugin) OnStateRejected(
	ctx context.Context,
	item *labflow.AcceptanceItem,
	state *labflow.AcceptanceItemState,
) error {
	if p.channel == nil || state.ReworkTarget == nil || !state.ReworkTarget.IsExternal() {
		return nil
	}

	var detail string
	if state.RejectionDetail != nil {
		detail = *state.RejectionDetail
	}

	notification := Notification{
		Type:         NotificationTypeStateRejected,
		ItemID:       item.ID,
		AcceptanceID: item.AcceptanceID,
		MethodID:     item.MethodID,
		StateID:      &state.ID,
		SectionID:    state.SectionID,
		Detail:       detail,
		ReworkTarget: state.ReworkTarget.String(),
		OccurredAt:   p.now(),
	}

	return p.channel.Send(ctx, notification)
}
