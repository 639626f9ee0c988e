package labflow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout      = "2006-01-02"
	TimeLayout      = "15:04:05"
	shortTimeLayout = "15:04"
)

// FileResolver checks that a file reference points at an uploaded document.
type FileResolver interface {
	Exists(ctx context.Context, ref string) (bool, error)
}

// TypedValue is a parsed parameter value. The concrete type matches the
// declared ParameterType of its spec.
type TypedValue interface {
	Type() ParameterType
	String() string
}

type TextValue string

func (v TextValue) Type() ParameterType { return ParameterTypeText }
func (v TextValue) String() string      { return string(v) }

type NumberValue float64

func (v NumberValue) Type() ParameterType { return ParameterTypeNumber }
func (v NumberValue) String() string {
	return strconv.FormatFloat(float64(v), 'f', -1, 64)
}

type DateValue time.Time

func (v DateValue) Type() ParameterType { return ParameterTypeDate }
func (v DateValue) String() string      { return time.Time(v).Format(DateLayout) }

type TimeValue time.Time

func (v TimeValue) Type() ParameterType { return ParameterTypeTime }
func (v TimeValue) String() string      { return time.Time(v).Format(TimeLayout) }

type OptionValue string

func (v OptionValue) Type() ParameterType { return ParameterTypeOptions }
func (v OptionValue) String() string      { return string(v) }

// FileValue is a reference into document storage.
type FileValue string

func (v FileValue) Type() ParameterType { return ParameterTypeFile }
func (v FileValue) String() string      { return string(v) }

func (t ParameterType) Valid() bool {
	switch t {
	case ParameterTypeText, ParameterTypeDate, ParameterTypeTime,
		ParameterTypeNumber, ParameterTypeOptions, ParameterTypeFile:
		return true
	default:
		return false
	}
}

// Parse converts a raw submitted value into the spec's typed value.
func (spec ParameterSpec) Parse(raw string) (TypedValue, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty value")
	}

	switch spec.Type {
	case ParameterTypeText:
		return TextValue(raw), nil
	case ParameterTypeNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("not a number: %q", raw)
		}

		return NumberValue(n), nil
	case ParameterTypeDate:
		d, err := time.Parse(DateLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("not a date (want YYYY-MM-DD): %q", raw)
		}

		return DateValue(d), nil
	case ParameterTypeTime:
		for _, layout := range []string{TimeLayout, shortTimeLayout} {
			if t, err := time.Parse(layout, raw); err == nil {
				return TimeValue(t), nil
			}
		}

		return nil, fmt.Errorf("not a time (want HH:MM[:SS]): %q", raw)
	case ParameterTypeOptions:
		if !slices.Contains(spec.Options, raw) {
			return nil, fmt.Errorf("%q is not one of [%s]", raw, strings.Join(spec.Options, ", "))
		}

		return OptionValue(raw), nil
	case ParameterTypeFile:
		return FileValue(raw), nil
	default:
		return nil, fmt.Errorf("unknown parameter type %q", spec.Type)
	}
}

// captureParameters validates submitted values against the step's specs.
// Every missing and invalid field is reported in one IncompleteParametersError.
// Other errors come from the file resolver.
func captureParameters(
	ctx context.Context,
	stateID int64,
	step *SectionStep,
	values map[string]string,
	resolver FileResolver,
) ([]CapturedParameter, error) {
	report := &IncompleteParametersError{StateID: stateID, Invalid: make(map[string]string)}

	known := make(map[string]struct{}, len(step.Parameters))
	for _, spec := range step.Parameters {
		known[spec.Name] = struct{}{}
	}
	for name := range values {
		if _, ok := known[name]; !ok {
			report.Invalid[name] = "unknown parameter"
		}
	}

	captured := make([]CapturedParameter, 0, len(step.Parameters))
	for _, spec := range step.Parameters {
		param := CapturedParameter{Name: spec.Name, Type: spec.Type}

		raw := strings.TrimSpace(values[spec.Name])
		if raw == "" {
			if spec.Required {
				report.Missing = append(report.Missing, spec.Name)
			}
			captured = append(captured, param)

			continue
		}

		value, err := spec.Parse(raw)
		if err != nil {
			report.Invalid[spec.Name] = err.Error()

			continue
		}

		if ref, ok := value.(FileValue); ok && resolver != nil {
			exists, err := resolver.Exists(ctx, string(ref))
			if err != nil {
				return nil, fmt.Errorf("resolve file %q: %w", ref, err)
			}
			if !exists {
				report.Invalid[spec.Name] = "file reference not found"

				continue
			}
		}

		str := value.String()
		param.Value = &str
		captured = append(captured, param)
	}

	if !report.empty() {
		return nil, report
	}

	return captured, nil
}

func emptyParameters(step *SectionStep) []CapturedParameter {
	params := make([]CapturedParameter, 0, len(step.Parameters))
	for _, spec := range step.Parameters {
		params = append(params, CapturedParameter{Name: spec.Name, Type: spec.Type})
	}

	return params
}
