package reworkdepth

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/rom8726/labflow"
)

var _ labflow.Plugin = (*ReworkDepthPlugin)(nil)

// WorkflowLookup resolves definitions; *labflow.Engine satisfies it.
type WorkflowLookup interface {
	GetWorkflow(ctx context.Context, workflowID string) (*labflow.WorkflowDefinition, error)
}

type ReworkStats struct {
	Rejections int `json:"rejections"`
	MaxDepth   int `json:"max_depth"`
}

// ReworkDepthPlugin tracks how far back rejections send each item. Depth is
// the number of sections that must be redone: rejected order minus target
// order, with sample collection counting as one step before order 0.
type ReworkDepthPlugin struct {
	labflow.BasePlugin

	workflows WorkflowLookup
	mu        sync.RWMutex
	byItem    map[int64]ReworkStats
}

func New(workflows WorkflowLookup) *ReworkDepthPlugin {
	return &ReworkDepthPlugin{
		BasePlugin: labflow.NewBasePlugin("rework-depth", labflow.PriorityNormal),
		workflows:  workflows,
		byItem:     make(map[int64]ReworkStats),
	}
}

func (p *ReworkDepthPlugin) OnStateRejected(
	ctx context.Context,
	item *labflow.AcceptanceItem,
	state *labflow.AcceptanceItemState,
) error {
	if state.ReworkTarget == nil {
		return nil
	}

	depth, err := p.depth(ctx, state)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	stats := p.byItem[item.ID]
	stats.Rejections++
	if depth > stats.MaxDepth {
		stats.MaxDepth = depth
		log.Info().
			Int64("item_id", item.ID).
			Str("section_id", state.SectionID).
			Str("target", state.ReworkTarget.String()).
			Int("depth", depth).
			Msg("[labflow] rework depth updated")
	}
	p.byItem[item.ID] = stats

	return nil
}

// OnItemReportable forgets the item once it has left the bench.
func (p *ReworkDepthPlugin) OnItemReportable(_ context.Context, item *labflow.AcceptanceItem) error {
	p.Reset(item.ID)

	return nil
}

func (p *ReworkDepthPlugin) depth(ctx context.Context, state *labflow.AcceptanceItemState) (int, error) {
	if state.ReworkTarget.IsExternal() {
		return state.Order + 1, nil
	}

	def, err := p.workflows.GetWorkflow(ctx, state.WorkflowID)
	if err != nil {
		return 0, fmt.Errorf("get workflow: %w", err)
	}

	step, ok := def.StepBySection(state.ReworkTarget.SectionID)
	if !ok {
		return 0, fmt.Errorf("section %q not in workflow %q", state.ReworkTarget.SectionID, def.ID)
	}

	return state.Order - step.Order, nil
}

func (p *ReworkDepthPlugin) Stats(itemID int64) ReworkStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.byItem[itemID]
}

func (p *ReworkDepthPlugin) Reset(itemID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.byItem, itemID)
}

func (p *ReworkDepthPlugin) All() map[int64]ReworkStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make(map[int64]ReworkStats, len(p.byItem))
	for k, v := range p.byItem {
		result[k] = v
	}

	return result
}
