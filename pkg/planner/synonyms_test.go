package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/ekaya-inc/contract-nlq/pkg/config"
)

func newTestResolver(t *testing.T) SynonymResolver {
	t.Helper()
	return NewSynonymResolver(config.DefaultRules(), zap.NewNop())
}

func TestSynonymResolver_ResolveColumn(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		phrase string
		want   string
		ok     bool
	}{
		{"owner department", "OWNER_DEPARTMENT", true},
		{"Owner  Department", "OWNER_DEPARTMENT", true},
		{"department", "OWNER_DEPARTMENT", true},
		{"departments", "OWNER_DEPARTMENT", true}, // plural folds to singular
		{"manager", "DEPARTMENT_OUL", true},
		{"managers", "DEPARTMENT_OUL", true},
		{"status", "CONTRACT_STATUS", true},
		{"entity number", "ENTITY_NO", true},
		{"contract owner", "CONTRACT_OWNER", true},
		{"CONTRACT_STATUS", "CONTRACT_STATUS", true}, // physical names pass through
		{"contract status", "CONTRACT_STATUS", true},
		{"STAKEHOLDER", "CONTRACT_STAKEHOLDER_1", true},
		{"frobnicator", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			got, ok := r.ResolveColumn(tt.phrase)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSynonymResolver_ResolveValue_MatchPriority(t *testing.T) {
	r := newTestResolver(t)

	// Exact variant hit.
	m := r.ResolveValue("Contract", "REQUEST_TYPE", "Renewal")
	assert.True(t, m.Matched)
	assert.Equal(t, "renewal", m.Category)
	assert.Contains(t, m.Equals, "Renew Contract")

	// Category name itself matches.
	m = r.ResolveValue("Contract", "REQUEST_TYPE", "ADDENDUM")
	assert.True(t, m.Matched)
	assert.Equal(t, "addendum", m.Category)

	// Prefix hit.
	m = r.ResolveValue("Contract", "REQUEST_TYPE", "renewing agreement")
	assert.True(t, m.Matched)
	assert.Equal(t, "renewal", m.Category)

	// Contains hit.
	m = r.ResolveValue("Contract", "CONTRACT_STATUS", "was terminated early")
	assert.True(t, m.Matched)
	assert.Equal(t, "expired", m.Category)
}

func TestSynonymResolver_ResolveValue_Fallback(t *testing.T) {
	r := newTestResolver(t)

	m := r.ResolveValue("Contract", "REQUEST_TYPE", "Consulting")
	assert.False(t, m.Matched)
	assert.Equal(t, []string{"Consulting"}, m.Contains)
	assert.Empty(t, m.Equals)

	// Unknown column degrades the same way.
	m = r.ResolveValue("Contract", "NO_SUCH_COLUMN", "anything")
	assert.False(t, m.Matched)
	assert.Equal(t, []string{"anything"}, m.Contains)
}

func TestSynonymResolver_Deterministic(t *testing.T) {
	r := newTestResolver(t)

	first := r.ResolveValue("Contract", "REQUEST_TYPE", "renew now")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, r.ResolveValue("Contract", "REQUEST_TYPE", "renew now"))
	}

	col, ok := r.ResolveColumn("owner department")
	for i := 0; i < 10; i++ {
		c, o := r.ResolveColumn("owner department")
		assert.Equal(t, col, c)
		assert.Equal(t, ok, o)
	}
}
