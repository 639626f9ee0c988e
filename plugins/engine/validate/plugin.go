package validate

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"github.com/rom8726/labflow"
)

var _ labflow.Plugin = (*ValidationPlugin)(nil)

// ValidationRule inspects the captured values of a section and returns the
// offending fields with a reason. Nil values are absent optional fields.
type ValidationRule func(values map[string]*string) map[string]string

// ValidationPlugin adds lab-specific checks on top of the parameter specs.
// Violations veto the finish with an IncompleteParametersError.
type ValidationPlugin struct {
	labflow.BasePlugin

	rules map[string][]ValidationRule
	mu    sync.RWMutex
}

func New() *ValidationPlugin {
	return &ValidationPlugin{
		BasePlugin: labflow.NewBasePlugin("validation", labflow.PriorityHigh),
		rules:      make(map[string][]ValidationRule),
	}
}

func (p *ValidationPlugin) AddRule(sectionID string, rule ValidationRule) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rules[sectionID] = append(p.rules[sectionID], rule)
}

func (p *ValidationPlugin) BeforeFinish(
	_ context.Context,
	_ *labflow.AcceptanceItem,
	state *labflow.AcceptanceItemState,
	params []labflow.CapturedParameter,
) error {
	p.mu.RLock()
	rules, exists := p.rules[state.SectionID]
	p.mu.RUnlock()

	if !exists {
		return nil
	}

	values := make(map[string]*string, len(params))
	for _, param := range params {
		values[param.Name] = param.Value
	}

	invalid := make(map[string]string)
	for _, rule := range rules {
		for field, reason := range rule(values) {
			if _, seen := invalid[field]; !seen {
				invalid[field] = reason
			}
		}
	}

	if len(invalid) == 0 {
		return nil
	}

	return &labflow.IncompleteParametersError{StateID: state.ID, Invalid: invalid}
}

// NumberRange requires a present number parameter to lie within [min, max].
func NumberRange(name string, min, max float64) ValidationRule {
	return func(values map[string]*string) map[string]string {
		raw := values[name]
		if raw == nil {
			return nil
		}

		n, err := strconv.ParseFloat(*raw, 64)
		if err != nil {
			return map[string]string{name: "not a number"}
		}
		if n < min || n > max {
			return map[string]string{name: fmt.Sprintf("must be between %g and %g", min, max)}
		}

		return nil
	}
}

// Pattern requires a present parameter to match re.
func Pattern(name string, re *regexp.Regexp) ValidationRule {
	return func(values map[string]*string) map[string]string {
		raw := values[name]
		if raw == nil || re.MatchString(*raw) {
			return nil
		}

		return map[string]string{name: fmt.Sprintf("must match %s", re.String())}
	}
}

// RequiredWith makes dependent mandatory once trigger has a value.
func RequiredWith(dependent, trigger string) ValidationRule {
	return func(values map[string]*string) map[string]string {
		if values[trigger] == nil || values[dependent] != nil {
			return nil
		}

		return map[string]string{dependent: "required when " + trigger + " is set"}
	}
}
