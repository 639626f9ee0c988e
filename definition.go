package labflow

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

func (def *WorkflowDefinition) StepBySection(sectionID string) (*SectionStep, bool) {
	for i := range def.Steps {
		if def.Steps[i].SectionID == sectionID {
			return &def.Steps[i], true
		}
	}

	return nil, false
}

// StepsBeforeOrder returns the steps strictly earlier than order, ascending.
func (def *WorkflowDefinition) StepsBeforeOrder(order int) []SectionStep {
	res := make([]SectionStep, 0, len(def.Steps))
	for _, step := range def.Steps {
		if step.Order < order {
			res = append(res, step)
		}
	}

	return res
}

// StepsAfterOrder returns the steps strictly later than order, ascending.
func (def *WorkflowDefinition) StepsAfterOrder(order int) []SectionStep {
	res := make([]SectionStep, 0, len(def.Steps))
	for _, step := range def.Steps {
		if step.Order > order {
			res = append(res, step)
		}
	}

	return res
}

func (def *WorkflowDefinition) sortSteps() {
	sort.SliceStable(def.Steps, func(i, j int) bool {
		return def.Steps[i].Order < def.Steps[j].Order
	})
}

func validateDefinition(def *WorkflowDefinition) error {
	if strings.TrimSpace(def.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDefinition)
	}
	if strings.TrimSpace(def.MethodID) == "" {
		return fmt.Errorf("%w: method id is required", ErrInvalidDefinition)
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("%w: workflow %q has no steps", ErrInvalidDefinition, def.ID)
	}

	def.sortSteps()

	sections := make(map[string]struct{}, len(def.Steps))
	for i, step := range def.Steps {
		if step.Order != i {
			return fmt.Errorf("%w: step orders must be contiguous from 0, got %d at position %d",
				ErrInvalidDefinition, step.Order, i)
		}
		if step.SectionID == "" {
			return fmt.Errorf("%w: step %d has no section", ErrInvalidDefinition, step.Order)
		}
		if _, dup := sections[step.SectionID]; dup {
			return fmt.Errorf("%w: section %q appears twice", ErrInvalidDefinition, step.SectionID)
		}
		sections[step.SectionID] = struct{}{}

		names := make(map[string]struct{}, len(step.Parameters))
		for _, spec := range step.Parameters {
			if spec.Name == "" {
				return fmt.Errorf("%w: section %q has an unnamed parameter", ErrInvalidDefinition, step.SectionID)
			}
			if _, dup := names[spec.Name]; dup {
				return fmt.Errorf("%w: section %q declares parameter %q twice",
					ErrInvalidDefinition, step.SectionID, spec.Name)
			}
			names[spec.Name] = struct{}{}

			if !spec.Type.Valid() {
				return fmt.Errorf("%w: parameter %q has unknown type %q", ErrInvalidDefinition, spec.Name, spec.Type)
			}
			if spec.Type == ParameterTypeOptions && len(spec.Options) == 0 {
				return fmt.Errorf("%w: options parameter %q has no options", ErrInvalidDefinition, spec.Name)
			}
		}
	}

	return nil
}

func cloneDefinition(def *WorkflowDefinition) *WorkflowDefinition {
	copied := *def
	copied.Steps = make([]SectionStep, len(def.Steps))
	for i, step := range def.Steps {
		step.Parameters = slices.Clone(step.Parameters)
		for j := range step.Parameters {
			step.Parameters[j].Options = slices.Clone(step.Parameters[j].Options)
		}
		copied.Steps[i] = step
	}

	return &copied
}

// definitionCache holds loaded definitions. Definitions are immutable once
// registered, so entries are only replaced on re-registration.
type definitionCache struct {
	mu       sync.RWMutex
	byID     map[string]*WorkflowDefinition
	byMethod map[string]*WorkflowDefinition
}

func newDefinitionCache() *definitionCache {
	return &definitionCache{
		byID:     make(map[string]*WorkflowDefinition),
		byMethod: make(map[string]*WorkflowDefinition),
	}
}

func (c *definitionCache) get(id string) (*WorkflowDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.byID[id]

	return def, ok
}

func (c *definitionCache) getByMethod(methodID string) (*WorkflowDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.byMethod[methodID]

	return def, ok
}

func (c *definitionCache) put(def *WorkflowDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.byMethod[def.MethodID]; ok && prev.ID != def.ID {
		delete(c.byID, prev.ID)
	}
	c.byID[def.ID] = def
	c.byMethod[def.MethodID] = def
}
