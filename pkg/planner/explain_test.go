package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/contract-nlq/pkg/models"
)

func TestExplain_EmptyIntent(t *testing.T) {
	assert.Equal(t, "all rows, no constraints", Explain(&models.Intent{}))
	assert.Equal(t, "", Explain(nil))
}

func TestExplain_FullPlan(t *testing.T) {
	n := 5
	intent := &models.Intent{
		Aggregation:       models.AggSum,
		GroupBy:           "OWNER_DEPARTMENT",
		Measure:           models.Measure{Kind: models.MeasureGross},
		SortDescending:    true,
		TopN:              &n,
		UserRequestedTopN: true,
		Window: &models.TimeWindow{
			Start: day(2025, time.May, 1),
			End:   day(2025, time.May, 31),
			Basis: models.BasisOverlap,
		},
		EqualityFilters: []models.EqualityFilter{{
			Column: "CONTRACT_STATUS", Values: []string{"Active"},
		}},
		FullText: &models.FullTextQuery{
			Groups:   []models.TokenGroup{{"maintenance"}, {"cleaning"}},
			Operator: models.OpOr,
		},
	}

	got := Explain(intent)
	assert.Equal(t,
		"sum of gross value | group by OWNER_DEPARTMENT | "+
			"window 2025-05-01..2025-05-31 on active interval | "+
			"filter CONTRACT_STATUS = Active | "+
			"text search (or) maintenance, cleaning | "+
			"order by gross value desc | top 5 rows",
		got)
}

func TestExplain_Stable(t *testing.T) {
	intent := &models.Intent{
		Aggregation: models.AggCount,
		Window: &models.TimeWindow{
			Start: day(2025, time.June, 15),
			End:   day(2025, time.July, 15),
			Basis: models.BasisEnd,
		},
	}
	first := Explain(intent)
	assert.Equal(t, "count rows | window 2025-06-15..2025-07-15 on END_DATE", first)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Explain(intent))
	}
}
