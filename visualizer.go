package labflow

import (
	"fmt"
	"slices"
	"strings"
)

type Visualizer struct{}

func NewVisualizer() *Visualizer {
	return &Visualizer{}
}

// RenderWorkflow prints the section chain of a definition in order.
func (v *Visualizer) RenderWorkflow(def *WorkflowDefinition) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Workflow: %s (method %s)\n", def.Name, def.MethodID)
	b.WriteString("======================================\n\n")

	for _, step := range def.Steps {
		symbol := "→"
		if step.Optional {
			symbol = "○"
		}
		fmt.Fprintf(&b, "%s %d. %s", symbol, step.Order, step.SectionID)
		if step.Optional {
			b.WriteString(" [optional]")
		}
		b.WriteString("\n")

		for _, param := range step.Parameters {
			fmt.Fprintf(&b, "%s%s: %s", v.indent(2), param.Name, param.Type)
			if param.Required {
				b.WriteString(" *")
			}
			if len(param.Options) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(param.Options, ", "))
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// RenderProgress prints every section of the workflow with the latest state
// the item holds there, followed by the derived position.
func (v *Visualizer) RenderProgress(def *WorkflowDefinition, history []*AcceptanceItemState) string {
	var b strings.Builder

	pos := DerivePosition(def, history)

	var itemID int64
	if len(history) > 0 {
		itemID = history[0].AcceptanceItemID
	}
	fmt.Fprintf(&b, "Acceptance item: %d\n", itemID)
	fmt.Fprintf(&b, "Workflow: %s\n", def.ID)
	b.WriteString("======================================\n\n")

	for _, step := range def.Steps {
		latest := latestStateAt(history, step.SectionID)
		switch {
		case latest == nil && slices.Contains(pos.Enterable, step.SectionID):
			fmt.Fprintf(&b, "▶ %s: enterable\n", step.SectionID)
		case latest == nil:
			fmt.Fprintf(&b, "⏸ %s: not started\n", step.SectionID)
		default:
			fmt.Fprintf(&b, "%s %s: %s", v.getStatusSymbol(latest.Status), step.SectionID, latest.Status)
			if latest.Status == StateStatusRejected && latest.ReworkTarget != nil {
				fmt.Fprintf(&b, " → %s", latest.ReworkTarget)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	switch {
	case pos.Complete:
		b.WriteString("✅ workflow complete\n")
	case pos.Reportable:
		b.WriteString("📄 reportable\n")
	}

	return b.String()
}

func (v *Visualizer) getStatusSymbol(status StateStatus) string {
	switch status {
	case StateStatusWaiting:
		return "⏳"
	case StateStatusProcessing:
		return "🔄"
	case StateStatusFinished:
		return "✅"
	case StateStatusRejected:
		return "❌"
	default:
		return "❓"
	}
}

func (v *Visualizer) indent(level int) string {
	return strings.Repeat("  ", level)
}

func latestStateAt(history []*AcceptanceItemState, sectionID string) *AcceptanceItemState {
	var latest *AcceptanceItemState
	for _, state := range history {
		if state.SectionID != sectionID {
			continue
		}
		if latest == nil || state.CreatedAt.After(latest.CreatedAt) ||
			(state.CreatedAt.Equal(latest.CreatedAt) && state.ID > latest.ID) {
			latest = state
		}
	}

	return latest
}
