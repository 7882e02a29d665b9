package planner

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/contract-nlq/pkg/config"
	"github.com/ekaya-inc/contract-nlq/pkg/models"
)

// Value expressions of the contract table. VAT stores either a rate (0..1)
// or an absolute amount; the gross expression handles both.
const (
	NetValueExpr   = "NVL(CONTRACT_VALUE_NET_OF_VAT,0)"
	GrossValueExpr = "NVL(CONTRACT_VALUE_NET_OF_VAT,0) + CASE WHEN NVL(VAT,0) BETWEEN 0 AND 1 THEN NVL(CONTRACT_VALUE_NET_OF_VAT,0) * NVL(VAT,0) ELSE NVL(VAT,0) END"
)

// Assembler renders an Intent into one SELECT statement and its bind table.
// Rendering is pure: the same intent always yields the same SQL and binds.
type Assembler interface {
	Assemble(intent *models.Intent) (string, map[string]any, error)
}

type assembler struct {
	table  string
	rules  config.PlannerRules
	fts    FullTextBuilder
	logger *zap.Logger
}

var _ Assembler = (*assembler)(nil)

// NewAssembler builds the SQL renderer for the given table.
func NewAssembler(table string, rules config.PlannerRules, fts FullTextBuilder, logger *zap.Logger) Assembler {
	return &assembler{
		table:  table,
		rules:  rules,
		fts:    fts,
		logger: logger.Named("assembler"),
	}
}

func (a *assembler) Assemble(intent *models.Intent) (string, map[string]any, error) {
	if err := intent.Validate(); err != nil {
		return "", nil, fmt.Errorf("failed to assemble intent: %w", err)
	}

	binds := make(map[string]any)
	var sb strings.Builder

	sb.WriteString(a.selectClause(intent))
	sb.WriteString(` FROM "` + a.table + `"`)

	if where := a.whereClause(intent, binds); where != "" {
		sb.WriteString(" WHERE " + where)
	}
	if intent.Grouped() {
		sb.WriteString(" GROUP BY " + intent.GroupBy)
	}
	if order := a.orderClause(intent); order != "" {
		sb.WriteString(" ORDER BY " + order)
	}
	if intent.UserRequestedTopN && intent.TopN != nil {
		binds["top_n"] = *intent.TopN
		sb.WriteString(" FETCH FIRST :top_n ROWS ONLY")
	}

	return sb.String(), binds, nil
}

func (a *assembler) selectClause(intent *models.Intent) string {
	if intent.Grouped() {
		return fmt.Sprintf("SELECT %s AS GROUP_KEY, %s AS MEASURE",
			intent.GroupBy, a.aggregate(intent))
	}
	if intent.Aggregation == models.AggCount {
		return "SELECT COUNT(*) AS CNT"
	}
	if intent.Aggregation != models.AggNone {
		return "SELECT " + a.aggregate(intent) + " AS MEASURE"
	}
	if len(intent.Projection) > 0 {
		return "SELECT " + strings.Join(intent.Projection, ", ")
	}
	return "SELECT *"
}

func (a *assembler) aggregate(intent *models.Intent) string {
	if intent.Aggregation == models.AggCount {
		return "COUNT(*)"
	}
	return strings.ToUpper(string(intent.Aggregation)) + "(" + a.measureExpr(intent) + ")"
}

func (a *assembler) measureExpr(intent *models.Intent) string {
	switch intent.Measure.Kind {
	case models.MeasureGross:
		return GrossValueExpr
	case models.MeasureCustom:
		if intent.Measure.Expr != "" {
			return intent.Measure.Expr
		}
		return NetValueExpr
	default:
		return NetValueExpr
	}
}

func (a *assembler) whereClause(intent *models.Intent, binds map[string]any) string {
	var parts []string

	if w := intent.Window; w != nil {
		binds["date_start"] = w.Start
		binds["date_end"] = w.End
		if w.Basis == models.BasisOverlap {
			// Strict interval intersection: rows missing either bound drop out.
			parts = append(parts, "(START_DATE <= :date_end AND END_DATE >= :date_start)")
		} else {
			parts = append(parts, fmt.Sprintf("(%s BETWEEN :date_start AND :date_end)", w.Basis))
		}
	}

	eqSeq := 0
	for _, f := range intent.EqualityFilters {
		if frag := a.equalityPredicate(f, &eqSeq, binds); frag != "" {
			parts = append(parts, frag)
		}
	}

	if ft := intent.FullText; ft != nil {
		if frag, ftsBinds := a.fts.Build(ft.Groups, ft.Operator); frag != "" {
			parts = append(parts, frag)
			for k, v := range ftsBinds {
				binds[k] = v
			}
		}
	}

	return strings.Join(parts, " AND ")
}

// equalityPredicate renders one filter. Alias columns expand into an OR over
// their physical columns; all physical columns share the same binds. Values
// containing a wildcard render as LIKE terms, the rest fold into one IN (or a
// single equality).
func (a *assembler) equalityPredicate(f models.EqualityFilter, seq *int, binds map[string]any) string {
	columns := a.rules.AliasColumns[f.Column]
	if len(columns) == 0 {
		columns = []string{f.Column}
	}

	var exactBinds, patternBinds []string
	for _, v := range f.Values {
		*seq++
		name := fmt.Sprintf("eq_%d", *seq)
		binds[name] = v
		if strings.ContainsRune(v, '%') {
			patternBinds = append(patternBinds, name)
		} else {
			exactBinds = append(exactBinds, name)
		}
	}
	if len(exactBinds)+len(patternBinds) == 0 {
		return ""
	}

	var perColumn []string
	for _, col := range columns {
		var terms []string
		switch len(exactBinds) {
		case 0:
		case 1:
			terms = append(terms, fmt.Sprintf("%s = %s",
				wrapColumn(col, f), wrapBind(exactBinds[0], f)))
		default:
			wrapped := make([]string, len(exactBinds))
			for i, name := range exactBinds {
				wrapped[i] = wrapBind(name, f)
			}
			terms = append(terms, fmt.Sprintf("%s IN (%s)",
				wrapColumn(col, f), strings.Join(wrapped, ", ")))
		}
		for _, name := range patternBinds {
			if f.CaseInsensitive {
				terms = append(terms, fmt.Sprintf("UPPER(%s) LIKE UPPER(:%s)", col, name))
			} else {
				terms = append(terms, fmt.Sprintf("%s LIKE :%s", col, name))
			}
		}
		perColumn = append(perColumn, strings.Join(terms, " OR "))
	}

	return "(" + strings.Join(perColumn, " OR ") + ")"
}

func wrapColumn(col string, f models.EqualityFilter) string {
	expr := col
	if f.Trim {
		expr = "TRIM(" + expr + ")"
	}
	if f.CaseInsensitive {
		expr = "UPPER(" + expr + ")"
	}
	return expr
}

func wrapBind(name string, f models.EqualityFilter) string {
	expr := ":" + name
	if f.Trim {
		expr = "TRIM(" + expr + ")"
	}
	if f.CaseInsensitive {
		expr = "UPPER(" + expr + ")"
	}
	return expr
}

// orderClause resolves the sort in priority order: explicit column, grouped
// measure, requested top/bottom slice by measure, then window recency.
func (a *assembler) orderClause(intent *models.Intent) string {
	// A global aggregate returns one row; ordering it is meaningless.
	if intent.Aggregation != models.AggNone && !intent.Grouped() {
		return ""
	}
	dir := "DESC"
	if !intent.SortDescending && (intent.SortColumn != "" || intent.UserRequestedTopN || intent.Grouped()) {
		dir = "ASC"
	}

	switch {
	case intent.SortColumn != "":
		col := intent.SortColumn
		if col == "MEASURE" && !intent.Grouped() {
			col = a.measureExpr(intent)
		}
		return col + " " + dir
	case intent.Grouped():
		return "MEASURE " + dir
	case intent.UserRequestedTopN && intent.Aggregation == models.AggNone:
		return a.measureExpr(intent) + " " + dir
	case intent.Window != nil:
		return orderBasisColumn(intent.Window.Basis) + " DESC"
	default:
		return ""
	}
}

// orderBasisColumn picks the recency column for a windowed plan; the overlap
// basis has no single column, so request recency stands in.
func orderBasisColumn(b models.Basis) string {
	if b == models.BasisOverlap {
		return string(models.BasisRequest)
	}
	return string(b)
}
