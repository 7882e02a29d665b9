package planner

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/contract-nlq/pkg/apperrors"
	"github.com/ekaya-inc/contract-nlq/pkg/config"
	"github.com/ekaya-inc/contract-nlq/pkg/models"
)

func newTestAssembler(t *testing.T) Assembler {
	t.Helper()
	rules := config.DefaultRules()
	cfg := config.PlannerConfig{Table: "Contract", FTSEngine: "like", ShortTokenLen: 2}
	return NewAssembler("Contract", rules, NewFullTextBuilder(cfg, rules, zap.NewNop()), zap.NewNop())
}

func intPtr(n int) *int { return &n }

func TestAssembler_SelectStar(t *testing.T) {
	a := newTestAssembler(t)

	sql, binds, err := a.Assemble(&models.Intent{})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "Contract"`, sql)
	assert.Empty(t, binds)
}

func TestAssembler_WindowBasisColumn(t *testing.T) {
	a := newTestAssembler(t)

	start := day(2025, time.June, 1)
	end := day(2025, time.June, 30)
	sql, binds, err := a.Assemble(&models.Intent{
		Window: &models.TimeWindow{Start: start, End: end, Basis: models.BasisEnd},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE (END_DATE BETWEEN :date_start AND :date_end)")
	assert.Contains(t, sql, "ORDER BY END_DATE DESC")
	assert.Equal(t, start, binds["date_start"])
	assert.Equal(t, end, binds["date_end"])
}

func TestAssembler_WindowOverlapStrict(t *testing.T) {
	a := newTestAssembler(t)

	sql, binds, err := a.Assemble(&models.Intent{
		Window: &models.TimeWindow{
			Start: day(2025, time.May, 1),
			End:   day(2025, time.May, 31),
			Basis: models.BasisOverlap,
		},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "(START_DATE <= :date_end AND END_DATE >= :date_start)")
	assert.Contains(t, sql, "ORDER BY REQUEST_DATE DESC")
	assert.Len(t, binds, 2)
}

func TestAssembler_CountExpiringWindow(t *testing.T) {
	a := newTestAssembler(t)

	start := day(2025, time.June, 15)
	end := day(2025, time.July, 15)
	sql, binds, err := a.Assemble(&models.Intent{
		Aggregation: models.AggCount,
		Window:      &models.TimeWindow{Start: start, End: end, Basis: models.BasisEnd},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sql, "SELECT COUNT(*)"), sql)
	assert.Contains(t, sql, "END_DATE BETWEEN :date_start AND :date_end")
	assert.NotContains(t, sql, "ORDER BY")
	assert.NotContains(t, sql, "FETCH FIRST")
	assert.Equal(t, end.Sub(start), 30*24*time.Hour)
	_ = binds
}

func TestAssembler_TopNByGrossValue(t *testing.T) {
	a := newTestAssembler(t)

	sql, binds, err := a.Assemble(&models.Intent{
		Measure:           models.Measure{Kind: models.MeasureGross},
		TopN:              intPtr(5),
		UserRequestedTopN: true,
		SortDescending:    true,
		Window: &models.TimeWindow{
			Start: day(2025, time.May, 1),
			End:   day(2025, time.May, 31),
			Basis: models.BasisOverlap,
		},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "ORDER BY "+GrossValueExpr+" DESC")
	assert.Contains(t, sql, "FETCH FIRST :top_n ROWS ONLY")
	assert.Equal(t, 5, binds["top_n"])
	assert.Equal(t, day(2025, time.May, 1), binds["date_start"])
	assert.Equal(t, day(2025, time.May, 31), binds["date_end"])
}

func TestAssembler_BottomNSortsAscending(t *testing.T) {
	a := newTestAssembler(t)

	sql, _, err := a.Assemble(&models.Intent{
		Measure:           models.Measure{Kind: models.MeasureNet},
		TopN:              intPtr(3),
		UserRequestedTopN: true,
		SortDescending:    false,
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "ORDER BY "+NetValueExpr+" ASC")
}

func TestAssembler_NoTopNWithoutUserRequest(t *testing.T) {
	a := newTestAssembler(t)

	sql, binds, err := a.Assemble(&models.Intent{TopN: intPtr(10)})
	require.NoError(t, err)
	assert.NotContains(t, sql, "FETCH FIRST")
	assert.NotContains(t, binds, "top_n")
}

func TestAssembler_GroupedAggregate(t *testing.T) {
	a := newTestAssembler(t)

	sql, _, err := a.Assemble(&models.Intent{
		Aggregation:    models.AggSum,
		GroupBy:        "OWNER_DEPARTMENT",
		Measure:        models.Measure{Kind: models.MeasureGross},
		SortDescending: true,
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "SELECT OWNER_DEPARTMENT AS GROUP_KEY, SUM("+GrossValueExpr+") AS MEASURE")
	assert.Contains(t, sql, "GROUP BY OWNER_DEPARTMENT")
	assert.Contains(t, sql, "ORDER BY MEASURE DESC")
}

func TestAssembler_GroupedCount(t *testing.T) {
	a := newTestAssembler(t)

	sql, _, err := a.Assemble(&models.Intent{
		Aggregation:    models.AggCount,
		GroupBy:        "CONTRACT_STATUS",
		SortDescending: true,
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "SELECT CONTRACT_STATUS AS GROUP_KEY, COUNT(*) AS MEASURE")
}

func TestAssembler_EqualitySingleValue(t *testing.T) {
	a := newTestAssembler(t)

	sql, binds, err := a.Assemble(&models.Intent{
		EqualityFilters: []models.EqualityFilter{{
			Column:          "CONTRACT_STATUS",
			Values:          []string{"Active"},
			CaseInsensitive: true,
			Trim:            true,
		}},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "(UPPER(TRIM(CONTRACT_STATUS)) = UPPER(TRIM(:eq_1)))")
	assert.Equal(t, "Active", binds["eq_1"])
}

func TestAssembler_EqualityMultiValueFoldsToIN(t *testing.T) {
	a := newTestAssembler(t)

	sql, binds, err := a.Assemble(&models.Intent{
		EqualityFilters: []models.EqualityFilter{{
			Column:          "ENTITY",
			Values:          []string{"DSFH", "HMG", "MOH"},
			CaseInsensitive: true,
			Trim:            true,
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(sql, " IN ("), "values fold into one IN")
	assert.Contains(t, sql, "UPPER(TRIM(ENTITY)) IN (UPPER(TRIM(:eq_1)), UPPER(TRIM(:eq_2)), UPPER(TRIM(:eq_3)))")
	assert.Equal(t, "DSFH", binds["eq_1"])
	assert.Equal(t, "HMG", binds["eq_2"])
	assert.Equal(t, "MOH", binds["eq_3"])
}

func TestAssembler_EqualityCaseSensitiveExact(t *testing.T) {
	a := newTestAssembler(t)

	sql, _, err := a.Assemble(&models.Intent{
		EqualityFilters: []models.EqualityFilter{{
			Column: "CONTRACT_OWNER",
			Values: []string{"Alice"},
		}},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "(CONTRACT_OWNER = :eq_1)")
	assert.NotContains(t, sql, "UPPER")
	assert.NotContains(t, sql, "TRIM")
}

func TestAssembler_AliasFanOutSharesBinds(t *testing.T) {
	a := newTestAssembler(t)

	sql, binds, err := a.Assemble(&models.Intent{
		EqualityFilters: []models.EqualityFilter{{
			Column:          "STAKEHOLDER",
			Values:          []string{"ACME"},
			CaseInsensitive: true,
			Trim:            true,
		}},
	})
	require.NoError(t, err)
	require.Len(t, binds, 1, "eight columns share one bind")
	for i := 1; i <= 8; i++ {
		assert.Contains(t, sql, "CONTRACT_STAKEHOLDER_"+string(rune('0'+i)))
	}
	assert.Equal(t, 8, strings.Count(sql, ":eq_1"))
}

func TestAssembler_PatternValuesRenderAsLike(t *testing.T) {
	a := newTestAssembler(t)

	sql, binds, err := a.Assemble(&models.Intent{
		EqualityFilters: []models.EqualityFilter{{
			Column:          "REQUEST_TYPE",
			Values:          []string{"Renewal", "Renew", "renew%", "%extension%"},
			CaseInsensitive: true,
			Trim:            true,
		}},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "IN (UPPER(TRIM(:eq_1)), UPPER(TRIM(:eq_2)))")
	assert.Contains(t, sql, "UPPER(REQUEST_TYPE) LIKE UPPER(:eq_3)")
	assert.Contains(t, sql, "UPPER(REQUEST_TYPE) LIKE UPPER(:eq_4)")
	assert.Equal(t, "renew%", binds["eq_3"])
	assert.Equal(t, "%extension%", binds["eq_4"])
}

func TestAssembler_FullTextAndFiltersCombine(t *testing.T) {
	a := newTestAssembler(t)

	sql, binds, err := a.Assemble(&models.Intent{
		Window: &models.TimeWindow{
			Start: day(2025, time.January, 1),
			End:   day(2025, time.December, 31),
			Basis: models.BasisOverlap,
		},
		EqualityFilters: []models.EqualityFilter{{
			Column:          "CONTRACT_STATUS",
			Values:          []string{"Active"},
			CaseInsensitive: true,
			Trim:            true,
		}},
		FullText: &models.FullTextQuery{
			Groups:   []models.TokenGroup{{"maintenance"}},
			Operator: models.OpOr,
		},
	})
	require.NoError(t, err)

	wherePos := strings.Index(sql, "WHERE")
	require.Positive(t, wherePos)
	assert.Equal(t, 2, strings.Count(sql[wherePos:], " AND ("), "window, filter and fts are AND-joined")
	assert.Equal(t, "%maintenance%", binds["fts_1"])
	assert.Equal(t, "Active", binds["eq_1"])
	assert.Contains(t, binds, "date_start")
	assert.Contains(t, binds, "date_end")
}

func TestAssembler_ExplicitSortColumn(t *testing.T) {
	a := newTestAssembler(t)

	sql, _, err := a.Assemble(&models.Intent{
		SortColumn:     "REQUEST_DATE",
		SortDescending: false,
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "ORDER BY REQUEST_DATE ASC")
}

func TestAssembler_ProjectionList(t *testing.T) {
	a := newTestAssembler(t)

	sql, _, err := a.Assemble(&models.Intent{
		Projection: []string{"CONTRACT_ID", "CONTRACT_OWNER", "END_DATE"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sql, "SELECT CONTRACT_ID, CONTRACT_OWNER, END_DATE FROM"), sql)
}

func TestAssembler_GroupedWithProjectionIsInvalid(t *testing.T) {
	a := newTestAssembler(t)

	_, _, err := a.Assemble(&models.Intent{
		Aggregation: models.AggCount,
		GroupBy:     "OWNER_DEPARTMENT",
		Projection:  []string{"CONTRACT_ID"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidIntent)
}

func TestAssembler_Deterministic(t *testing.T) {
	a := newTestAssembler(t)

	intent := &models.Intent{
		Aggregation:    models.AggSum,
		GroupBy:        "OWNER_DEPARTMENT",
		Measure:        models.Measure{Kind: models.MeasureGross},
		SortDescending: true,
		Window: &models.TimeWindow{
			Start: day(2025, time.January, 1),
			End:   day(2025, time.March, 31),
			Basis: models.BasisRequest,
		},
		EqualityFilters: []models.EqualityFilter{{
			Column: "ENTITY", Values: []string{"DSFH"}, CaseInsensitive: true, Trim: true,
		}},
	}

	sql1, binds1, err := a.Assemble(intent)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		sql2, binds2, err := a.Assemble(intent)
		require.NoError(t, err)
		assert.Equal(t, sql1, sql2)
		assert.Equal(t, binds1, binds2)
	}
}
