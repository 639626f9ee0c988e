package labflow

import (
	"context"
)

// IEngine is the surface the HTTP layer depends on.
type IEngine interface {
	EnterByBarcode(ctx context.Context, actor Actor, barcode, sectionID string) ([]*AcceptanceItemState, error)
	EnterByItem(ctx context.Context, actor Actor, itemID int64, sectionID string) (*AcceptanceItemState, error)
	Queue(ctx context.Context, actor Actor, itemID int64) (*AcceptanceItemState, error)
	Finish(
		ctx context.Context,
		actor Actor,
		stateID int64,
		values map[string]string,
	) (*AcceptanceItemState, error)
	Reject(
		ctx context.Context,
		actor Actor,
		stateID int64,
		detail string,
		target ReworkTarget,
	) (*AcceptanceItemState, error)
	ResolveOrCreateSample(ctx context.Context, actor Actor, req SampleRequest) (*Sample, error)
	ActivateForItems(ctx context.Context, actor Actor, sampleID int64, itemIDs []int64) ([]*SampleLink, error)
	CancelItem(ctx context.Context, actor Actor, itemID int64, reason string) error
	MarkReported(ctx context.Context, actor Actor, itemID, reportID int64) error
	DeleteState(ctx context.Context, actor Actor, stateID int64) error

	GetWorkflow(ctx context.Context, workflowID string) (*WorkflowDefinition, error)
	GetWorkflows(ctx context.Context) ([]*WorkflowDefinition, error)
	GetPosition(ctx context.Context, itemID int64) (*Position, error)
	GetHistory(ctx context.Context, itemID int64) ([]*AcceptanceItemState, error)
	GetReworkTargets(ctx context.Context, stateID int64) ([]ReworkOption, error)
	GetActivity(ctx context.Context, entityType, entityID string) ([]*ActivityEntry, error)
	GetSectionStats(ctx context.Context) ([]SectionStats, error)
}
