package labflow

import (
	"slices"
	"sort"
)

// DerivePosition replays an item's state history against its workflow and
// returns where the item stands.
//
// Finished states mark their step done. A rejected state clears the done marks
// of every step at or after its rework target (all of them for the external
// sample collection target). Waiting and processing rows survive a reset:
// there is at most one per section and it is always the live one. The next position is the first step after the
// highest done order; optional steps may be skipped, so the enterable set
// stretches up to and including the next mandatory step.
func DerivePosition(def *WorkflowDefinition, history []*AcceptanceItemState) *Position {
	ordered := slices.Clone(history)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}

		return ordered[i].ID < ordered[j].ID
	})

	done := make(map[int]bool, len(def.Steps))
	latest := make(map[string]*AcceptanceItemState, len(def.Steps))

	for _, state := range ordered {
		step, ok := def.StepBySection(state.SectionID)
		if !ok {
			continue
		}

		latest[state.SectionID] = state

		switch state.Status {
		case StateStatusFinished:
			done[step.Order] = true
		case StateStatusRejected:
			resetFrom := 0
			if state.ReworkTarget != nil && !state.ReworkTarget.IsExternal() {
				if target, ok := def.StepBySection(state.ReworkTarget.SectionID); ok {
					resetFrom = target.Order
				}
			}
			for _, s := range def.Steps {
				if s.Order < resetFrom {
					continue
				}
				delete(done, s.Order)
				if s.SectionID == state.SectionID {
					continue
				}
				if live := latest[s.SectionID]; live != nil && live.Status.IsCurrent() {
					continue
				}
				delete(latest, s.SectionID)
			}
		}
	}

	pos := &Position{
		WorkflowID: def.ID,
		Enterable:  []string{},
		Finished:   []string{},
	}
	if len(history) > 0 {
		pos.ItemID = history[0].AcceptanceItemID
	}

	highest := -1
	for _, step := range def.Steps {
		if done[step.Order] {
			pos.Finished = append(pos.Finished, step.SectionID)
			if step.Order > highest {
				highest = step.Order
			}
		}
		if state := latest[step.SectionID]; state != nil && state.Status == StateStatusProcessing {
			pos.InProgress = state
		}
	}

	if pos.InProgress != nil {
		return pos
	}

	pos.Reportable = true
	for i := range def.Steps {
		step := def.Steps[i]
		if step.Order <= highest {
			continue
		}

		if pos.Step == nil {
			pos.Step = &step
			if state := latest[step.SectionID]; state != nil && state.Status == StateStatusWaiting {
				pos.Waiting = state
			}
		}
		if !step.Optional {
			pos.Reportable = false
		}
		pos.Enterable = append(pos.Enterable, step.SectionID)

		if !step.Optional {
			break
		}
	}

	pos.Complete = pos.Step == nil

	return pos
}

// AllowsEntry reports whether sectionID may be entered right now.
func (p *Position) AllowsEntry(sectionID string) bool {
	return p.InProgress == nil && slices.Contains(p.Enterable, sectionID)
}

func (p *Position) outOfOrder(itemID int64, sectionID string) *OutOfOrderEntryError {
	err := &OutOfOrderEntryError{
		ItemID:    itemID,
		SectionID: sectionID,
		Reason:    ReasonWrongSection,
		Expected:  p.Enterable,
	}

	switch {
	case p.InProgress != nil:
		err.Reason = ReasonInProgress
		err.CurrentSection = p.InProgress.SectionID
	case p.Complete:
		err.Reason = ReasonWorkflowComplete
	}

	return err
}

// currentStateAt returns the non-terminal state at sectionID, if any.
func currentStateAt(history []*AcceptanceItemState, sectionID string) *AcceptanceItemState {
	var current *AcceptanceItemState
	for _, state := range history {
		if state.SectionID != sectionID || !state.Status.IsCurrent() {
			continue
		}
		if current == nil || state.ID > current.ID {
			current = state
		}
	}

	return current
}
