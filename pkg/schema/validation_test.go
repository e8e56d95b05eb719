package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationResult_WarningsKeepDocumentValid(t *testing.T) {
	r := &ValidationResult{}
	assert.True(t, r.Valid())
	assert.NoError(t, r.ToError())

	r.AddWarning("connectors[1].start_item_id", ErrCodeNotFound, "dangling connector")
	assert.True(t, r.Valid())
	assert.NoError(t, r.ToError())
	assert.Equal(t, SeverityWarning, r.Warnings[0].Severity)
}

func TestValidationResult_Issues(t *testing.T) {
	r := &ValidationResult{}
	r.AddWarning("items[1].parent_container_id", ErrCodeNotFound, "unknown container")
	r.AddError("items[2].id", ErrCodeConflict, "duplicate id")

	issues := r.Issues()
	require.Len(t, issues, 2)
	assert.Equal(t, SeverityError, issues[0].Severity, "errors come first")
	assert.Equal(t, "error   items[2].id  CONFLICT: duplicate id", issues[0].String())
}

func TestValidationResult_ToError(t *testing.T) {
	tests := []struct {
		name     string
		errors   []string
		warnings int
		msg      string
	}{
		{name: "single", errors: []string{"unknown kind"}, msg: "unknown kind"},
		{name: "several", errors: []string{"bad width", "bad height"}, warnings: 1,
			msg: "document has 2 errors, first at items[0]: bad width"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &ValidationResult{}
			for _, e := range tt.errors {
				r.AddError("items[0]", ErrCodeValidation, e)
			}
			for i := 0; i < tt.warnings; i++ {
				r.AddWarning("/", ErrCodeValidation, "w")
			}

			err := r.ToError()
			require.Error(t, err)
			derr, ok := err.(*DiagramError)
			require.True(t, ok)
			assert.Equal(t, ErrCodeValidation, derr.Code)
			assert.Equal(t, tt.msg, derr.Message)
			assert.Equal(t, "items[0]", derr.Details["path"])
			assert.Equal(t, len(tt.errors), derr.Details["error_count"])
			assert.Equal(t, tt.warnings, derr.Details["warning_count"])
		})
	}
}
