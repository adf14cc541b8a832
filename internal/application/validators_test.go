package application

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/questlog/internal/domain"
)

func TestCustomValidators(t *testing.T) {
	v, err := sharedValidator()
	require.NoError(t, err)

	tests := []struct {
		tag   string
		value string
		ok    bool
	}{
		{"quarter", "Q3 2025", true},
		{"quarter", "Q5 2025", false},
		{"quarter", "q3 2025", false},
		{"quarter", "Q3-2025", false},
		{"retrypolicy", "additive", true},
		{"retrypolicy", "Recompute", true},
		{"retrypolicy", "double", false},
		{"cronspec", "*/5 * * * *", true},
		{"cronspec", "@every 5m", true},
		{"cronspec", "sometimes", false},
	}

	for _, tt := range tests {
		t.Run(tt.tag+"/"+tt.value, func(t *testing.T) {
			err := v.Var(tt.value, tt.tag)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateInput_BuildsValidationError(t *testing.T) {
	err := validateInput("quest", CreateQuestInput{Quarter: "next quarter"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "quest", verr.Entity)
	assert.Contains(t, verr.Errors, "title is required")
	assert.Contains(t, verr.Errors, `quarter must look like "Q3 2025"`)
}

func TestValidateInput_Valid(t *testing.T) {
	assert.NoError(t, validateInput("quest", CreateQuestInput{OwnerID: "u1", Title: "Ship it", Quarter: "Q1 2026"}))
}
