package labflow

import (
	"context"
	"time"
)

type Store interface {
	SaveWorkflowDefinition(ctx context.Context, def *WorkflowDefinition) error
	GetWorkflowDefinition(ctx context.Context, id string) (*WorkflowDefinition, error)
	GetWorkflowDefinitionByMethod(ctx context.Context, methodID string) (*WorkflowDefinition, error)
	GetWorkflowDefinitions(ctx context.Context) ([]*WorkflowDefinition, error)

	CreateAcceptanceItem(ctx context.Context, item *AcceptanceItem) error
	GetAcceptanceItem(ctx context.Context, id int64) (*AcceptanceItem, error)
	// LockAcceptanceItem reads the item and holds a row lock until the
	// surrounding transaction ends. Every state-changing operation on the
	// item starts here.
	LockAcceptanceItem(ctx context.Context, id int64) (*AcceptanceItem, error)
	UpdateAcceptanceItem(ctx context.Context, item *AcceptanceItem) error

	CreateSample(ctx context.Context, sample *Sample) error
	GetSample(ctx context.Context, id int64) (*Sample, error)
	GetSampleByBarcode(ctx context.Context, barcode string) (*Sample, error)
	CreateSampleLink(ctx context.Context, link *SampleLink) error
	// DeactivateSampleLinks flips active links of the item to inactive.
	// An empty sampleTypeID deactivates links of every type.
	DeactivateSampleLinks(
		ctx context.Context,
		itemID int64,
		sampleTypeID string,
		at time.Time,
	) ([]*SampleLink, error)
	GetActiveSampleLinks(ctx context.Context, itemID int64) ([]*SampleLink, error)
	GetActiveSampleLinksByBarcode(ctx context.Context, barcode string) ([]*SampleLink, error)

	CreateState(ctx context.Context, state *AcceptanceItemState) error
	UpdateState(ctx context.Context, state *AcceptanceItemState) error
	GetState(ctx context.Context, id int64) (*AcceptanceItemState, error)
	GetStatesByItem(ctx context.Context, itemID int64) ([]*AcceptanceItemState, error)
	DeleteState(ctx context.Context, id int64) error

	AppendActivity(ctx context.Context, entry *ActivityEntry) error
	GetActivity(ctx context.Context, entityType, entityID string) ([]*ActivityEntry, error)

	Monitor
}
