package labflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameterSpec_Parse(t *testing.T) {
	tests := []struct {
		name    string
		spec    ParameterSpec
		raw     string
		want    string
		wantErr bool
	}{
		{name: "text", spec: ParameterSpec{Type: ParameterTypeText}, raw: " note ", want: "note"},
		{name: "number", spec: ParameterSpec{Type: ParameterTypeNumber}, raw: "12.5", want: "12.5"},
		{name: "integer number", spec: ParameterSpec{Type: ParameterTypeNumber}, raw: "3", want: "3"},
		{name: "bad number", spec: ParameterSpec{Type: ParameterTypeNumber}, raw: "twelve", wantErr: true},
		{name: "nan", spec: ParameterSpec{Type: ParameterTypeNumber}, raw: "NaN", wantErr: true},
		{name: "infinity", spec: ParameterSpec{Type: ParameterTypeNumber}, raw: "Inf", wantErr: true},
		{name: "signed infinity", spec: ParameterSpec{Type: ParameterTypeNumber}, raw: "+Infinity", wantErr: true},
		{name: "overflow", spec: ParameterSpec{Type: ParameterTypeNumber}, raw: "1e400", wantErr: true},
		{name: "date", spec: ParameterSpec{Type: ParameterTypeDate}, raw: "2026-02-28", want: "2026-02-28"},
		{name: "bad date", spec: ParameterSpec{Type: ParameterTypeDate}, raw: "28.02.2026", wantErr: true},
		{name: "time with seconds", spec: ParameterSpec{Type: ParameterTypeTime}, raw: "09:15:30", want: "09:15:30"},
		{name: "short time", spec: ParameterSpec{Type: ParameterTypeTime}, raw: "09:15", want: "09:15:00"},
		{name: "bad time", spec: ParameterSpec{Type: ParameterTypeTime}, raw: "25:99", wantErr: true},
		{
			name: "option",
			spec: ParameterSpec{Type: ParameterTypeOptions, Options: []string{"pass", "fail"}},
			raw:  "pass", want: "pass",
		},
		{
			name: "unknown option",
			spec: ParameterSpec{Type: ParameterTypeOptions, Options: []string{"pass", "fail"}},
			raw:  "maybe", wantErr: true,
		},
		{name: "file", spec: ParameterSpec{Type: ParameterTypeFile}, raw: "runs/42.fastq", want: "runs/42.fastq"},
		{name: "empty", spec: ParameterSpec{Type: ParameterTypeText}, raw: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := tt.spec.Parse(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.spec.Type, value.Type())
			assert.Equal(t, tt.want, value.String())
		})
	}
}

type stubResolver struct {
	known map[string]bool
	err   error
}

func (r stubResolver) Exists(_ context.Context, ref string) (bool, error) {
	return r.known[ref], r.err
}

func TestCaptureParameters(t *testing.T) {
	step := &SectionStep{
		SectionID: "Sequencing",
		Parameters: []ParameterSpec{
			{Name: "volume_ml", Type: ParameterTypeNumber, Required: true},
			{Name: "result_file", Type: ParameterTypeFile, Required: true},
			{Name: "comment", Type: ParameterTypeText},
		},
	}
	resolver := stubResolver{known: map[string]bool{"runs/1.fastq": true}}

	t.Run("reports every offending field", func(t *testing.T) {
		_, err := captureParameters(context.Background(), 9, step, map[string]string{
			"volume_ml": "lots",
			"operator":  "x",
		}, resolver)

		var incomplete *IncompleteParametersError
		require.ErrorAs(t, err, &incomplete)
		assert.Equal(t, int64(9), incomplete.StateID)
		assert.Equal(t, []string{"result_file"}, incomplete.Missing)
		assert.Contains(t, incomplete.Invalid, "volume_ml")
		assert.Contains(t, incomplete.Invalid, "operator")
		assert.Equal(t, []string{"operator", "result_file", "volume_ml"}, incomplete.Fields())
	})

	t.Run("missing file in storage", func(t *testing.T) {
		_, err := captureParameters(context.Background(), 9, step, map[string]string{
			"volume_ml":   "1",
			"result_file": "runs/2.fastq",
		}, resolver)

		var incomplete *IncompleteParametersError
		require.ErrorAs(t, err, &incomplete)
		assert.Equal(t, "file reference not found", incomplete.Invalid["result_file"])
	})

	t.Run("resolver failure is not a validation error", func(t *testing.T) {
		_, err := captureParameters(context.Background(), 9, step, map[string]string{
			"volume_ml":   "1",
			"result_file": "runs/1.fastq",
		}, stubResolver{err: errors.New("s3 down")})

		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrIncompleteParameters)
	})

	t.Run("success keeps optional empties", func(t *testing.T) {
		params, err := captureParameters(context.Background(), 9, step, map[string]string{
			"volume_ml":   "12.5",
			"result_file": "runs/1.fastq",
		}, resolver)
		require.NoError(t, err)
		require.Len(t, params, 3)

		assert.Equal(t, "12.5", *params[0].Value)
		assert.Equal(t, "runs/1.fastq", *params[1].Value)
		assert.Nil(t, params[2].Value)
	})
}
