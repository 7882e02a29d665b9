package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckValue_CleanValues(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"plain word", "Renewal"},
		{"multiword", "home care"},
		{"department name", "Information Technology"},
		{"number", 42},
		{"bool", true},
		{"empty string", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, CheckValue("eq_1", tt.value))
		})
	}
}

func TestCheckValue_InjectionDetected(t *testing.T) {
	result := CheckValue("eq_1", "' OR 1=1 --")
	require.NotNil(t, result)
	assert.True(t, result.IsSQLi)
	assert.Equal(t, "eq_1", result.Name)
	assert.NotEmpty(t, result.Fingerprint)
}

func TestCheckBinds(t *testing.T) {
	binds := map[string]any{
		"eq_1":  "Active",
		"eq_2":  "'; DROP TABLE contracts--",
		"top_n": 5,
	}

	results := CheckBinds(binds)
	require.Len(t, results, 1)
	assert.Equal(t, "eq_2", results[0].Name)
}
