package labflow

import (
	"context"
	"fmt"
)

// GetPosition derives the item's current place in its workflow from history.
// The item and its history are read from one snapshot.
func (engine *Engine) GetPosition(ctx context.Context, itemID int64) (*Position, error) {
	var pos *Position

	err := engine.txManager.RepeatableRead(ctx, func(ctx context.Context) error {
		item, err := engine.store.GetAcceptanceItem(ctx, itemID)
		if err != nil {
			return fmt.Errorf("get acceptance item: %w", err)
		}

		def, err := engine.workflowForItem(ctx, item)
		if err != nil {
			return err
		}

		history, err := engine.store.GetStatesByItem(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("get states: %w", err)
		}

		pos = DerivePosition(def, history)
		pos.ItemID = item.ID

		return nil
	})
	if err != nil {
		return nil, err
	}

	return pos, nil
}

func (engine *Engine) GetHistory(ctx context.Context, itemID int64) ([]*AcceptanceItemState, error) {
	if _, err := engine.store.GetAcceptanceItem(ctx, itemID); err != nil {
		return nil, fmt.Errorf("get acceptance item: %w", err)
	}

	return engine.store.GetStatesByItem(ctx, itemID)
}

// GetReworkTargets lists the destinations a rejection of the state may use:
// every strictly earlier section plus sample collection.
func (engine *Engine) GetReworkTargets(ctx context.Context, stateID int64) ([]ReworkOption, error) {
	state, err := engine.store.GetState(ctx, stateID)
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}

	def, err := engine.GetWorkflow(ctx, state.WorkflowID)
	if err != nil {
		return nil, err
	}

	step, ok := def.StepBySection(state.SectionID)
	if !ok {
		return nil, newNotFound("section in workflow "+def.ID, state.SectionID)
	}

	earlier := def.StepsBeforeOrder(step.Order)
	options := make([]ReworkOption, 0, len(earlier)+1)
	for _, s := range earlier {
		order := s.Order
		options = append(options, ReworkOption{Target: ReworkToSection(s.SectionID), Order: &order})
	}
	options = append(options, ReworkOption{Target: ReworkToSampleCollection()})

	return options, nil
}

func (engine *Engine) GetActivity(ctx context.Context, entityType, entityID string) ([]*ActivityEntry, error) {
	return engine.store.GetActivity(ctx, entityType, entityID)
}

func (engine *Engine) GetSectionStats(ctx context.Context) ([]SectionStats, error) {
	return engine.store.GetSectionStats(ctx)
}
