package labflow

import (
	"errors"
	"fmt"
)

type Builder struct {
	id       string
	name     string
	methodID string
	steps    []SectionStep
	err      error
}

func NewBuilder(name, methodID string, opts ...BuilderOption) *Builder {
	builder := &Builder{
		name:     name,
		methodID: methodID,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder
}

// Section appends the next step of the workflow.
func (builder *Builder) Section(sectionID string, opts ...StepOption) *Builder {
	step := SectionStep{
		Order:      len(builder.steps),
		SectionID:  sectionID,
		Parameters: []ParameterSpec{},
	}

	for _, opt := range opts {
		opt(&step)
	}

	builder.steps = append(builder.steps, step)

	return builder
}

func (builder *Builder) Then(sectionID string, opts ...StepOption) *Builder {
	return builder.Section(sectionID, opts...)
}

// Optional marks the last added section as skippable.
func (builder *Builder) Optional() *Builder {
	if step := builder.current("Optional"); step != nil {
		step.Optional = true
	}

	return builder
}

// Param declares a parameter on the last added section.
func (builder *Builder) Param(name string, typ ParameterType, opts ...ParamOption) *Builder {
	step := builder.current(fmt.Sprintf("Param %q", name))
	if step == nil {
		return builder
	}

	spec := ParameterSpec{Name: name, Type: typ}
	for _, opt := range opts {
		opt(&spec)
	}
	step.Parameters = append(step.Parameters, spec)

	return builder
}

func (builder *Builder) Build() (*WorkflowDefinition, error) {
	if builder.err != nil {
		return nil, builder.err
	}

	if builder.name == "" {
		return nil, errors.New("workflow name is required")
	}

	if len(builder.steps) == 0 {
		return nil, fmt.Errorf("builder %q: at least one section is required", builder.name)
	}

	id := builder.id
	if id == "" {
		id = fmt.Sprintf("%s-%s", builder.name, builder.methodID)
	}

	def := &WorkflowDefinition{
		ID:       id,
		Name:     builder.name,
		MethodID: builder.methodID,
		Steps:    append([]SectionStep(nil), builder.steps...),
	}

	if err := validateDefinition(def); err != nil {
		return nil, fmt.Errorf("builder %q: %w", builder.name, err)
	}

	return def, nil
}

func (builder *Builder) current(call string) *SectionStep {
	if len(builder.steps) == 0 {
		if builder.err == nil {
			builder.err = fmt.Errorf("builder %q: %s called with no section", builder.name, call)
		}

		return nil
	}

	return &builder.steps[len(builder.steps)-1]
}
