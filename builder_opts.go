package labflow

type StepOption func(step *SectionStep)

func WithStepOptional() StepOption {
	return func(step *SectionStep) {
		step.Optional = true
	}
}

func WithStepParameters(specs ...ParameterSpec) StepOption {
	return func(step *SectionStep) {
		step.Parameters = append(step.Parameters, specs...)
	}
}

type ParamOption func(spec *ParameterSpec)

func Required() ParamOption {
	return func(spec *ParameterSpec) {
		spec.Required = true
	}
}

func WithOptions(options ...string) ParamOption {
	return func(spec *ParameterSpec) {
		spec.Options = append(spec.Options, options...)
	}
}

type BuilderOption func(builder *Builder)

func WithBuilderID(id string) BuilderOption {
	return func(builder *Builder) {
		builder.id = id
	}
}
