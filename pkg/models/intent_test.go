package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/contract-nlq/pkg/apperrors"
)

func TestIntent_CloneIsDeep(t *testing.T) {
	n := 5
	intent := &Intent{
		Question:    "q",
		Aggregation: AggSum,
		Measure:     Measure{Kind: MeasureGross},
		Window: &TimeWindow{
			Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
			Basis: BasisOverlap,
		},
		TopN: &n,
		EqualityFilters: []EqualityFilter{
			{Column: "ENTITY", Values: []string{"DSFH"}, CaseInsensitive: true, Trim: true},
		},
		FullText: &FullTextQuery{
			Groups:   []TokenGroup{{"maintenance"}},
			Operator: OpOr,
		},
		Projection: []string{"CONTRACT_ID"},
		Notes:      map[string]string{"k": "v"},
	}

	clone := intent.Clone()
	require.Equal(t, intent, clone)

	clone.Window.Start = clone.Window.Start.AddDate(0, 1, 0)
	*clone.TopN = 10
	clone.EqualityFilters[0].Values[0] = "HMG"
	clone.FullText.Groups[0][0] = "cleaning"
	clone.Projection[0] = "ENTITY"
	clone.Notes["k"] = "changed"

	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), intent.Window.Start)
	assert.Equal(t, 5, *intent.TopN)
	assert.Equal(t, "DSFH", intent.EqualityFilters[0].Values[0])
	assert.Equal(t, TokenGroup{"maintenance"}, intent.FullText.Groups[0])
	assert.Equal(t, "CONTRACT_ID", intent.Projection[0])
	assert.Equal(t, "v", intent.Notes["k"])
}

func TestIntent_CloneNil(t *testing.T) {
	var intent *Intent
	assert.Nil(t, intent.Clone())
}

func TestIntent_Grouped(t *testing.T) {
	assert.False(t, (&Intent{}).Grouped())
	assert.False(t, (&Intent{GroupBy: "ENTITY"}).Grouped())
	assert.False(t, (&Intent{Aggregation: AggCount}).Grouped())
	assert.True(t, (&Intent{GroupBy: "ENTITY", Aggregation: AggCount}).Grouped())
}

func TestIntent_Validate(t *testing.T) {
	valid := &Intent{GroupBy: "ENTITY", Aggregation: AggSum}
	assert.NoError(t, valid.Validate())

	projected := &Intent{Projection: []string{"CONTRACT_ID"}}
	assert.NoError(t, projected.Validate())

	mixed := &Intent{GroupBy: "ENTITY", Aggregation: AggSum, Projection: []string{"CONTRACT_ID"}}
	assert.ErrorIs(t, mixed.Validate(), apperrors.ErrInvalidIntent)
}

func TestIntent_Note(t *testing.T) {
	intent := &Intent{}
	intent.Note("a", "1")
	intent.Note("b", "2")
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, intent.Notes)
}

func TestFeedbackState_Terminal(t *testing.T) {
	assert.False(t, FeedbackAnswered.Terminal())
	assert.False(t, FeedbackRetried.Terminal())
	assert.True(t, FeedbackEscalated.Terminal())
	assert.True(t, FeedbackClosed.Terminal())
}
