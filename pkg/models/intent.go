package models

import (
	"time"

	"github.com/ekaya-inc/contract-nlq/pkg/apperrors"
)

// Aggregation names the aggregate applied when a plan is grouped or counted.
type Aggregation string

const (
	AggNone  Aggregation = ""
	AggCount Aggregation = "count"
	AggSum   Aggregation = "sum"
	AggAvg   Aggregation = "avg"
	AggMin   Aggregation = "min"
	AggMax   Aggregation = "max"
)

// Basis is the date column a time window is evaluated against.
type Basis string

const (
	BasisRequest Basis = "REQUEST_DATE"
	BasisStart   Basis = "START_DATE"
	BasisEnd     Basis = "END_DATE"
	// BasisOverlap selects rows whose [START_DATE, END_DATE] interval
	// intersects the window. Requires both physical columns to be non-null.
	BasisOverlap Basis = "OVERLAP"
)

// TimeWindow is a resolved [Start, End] range over a basis column.
// Invariant: Start <= End.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Basis Basis     `json:"basis"`
}

// MeasureKind selects which value expression a plan aggregates or sorts by.
type MeasureKind string

const (
	MeasureNet    MeasureKind = "net"
	MeasureGross  MeasureKind = "gross"
	MeasureCustom MeasureKind = "custom"
)

// Measure is the value expression of a plan. Expr is only set for custom
// fragments; net and gross render to fixed SQL in the assembler.
type Measure struct {
	Kind MeasureKind `json:"kind"`
	Expr string      `json:"expr,omitempty"`
}

// EqualityFilter is a single column filter extracted from question text or a
// feedback directive. Values with more than one entry render as one IN list.
type EqualityFilter struct {
	Column          string   `json:"column"`
	Values          []string `json:"values"`
	CaseInsensitive bool     `json:"ci"`
	Trim            bool     `json:"trim"`
}

// Operator joins full-text token groups.
type Operator string

const (
	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
)

// TokenGroup is an ordered set of tokens matched together. The planner emits
// single-token groups; quoted phrases stay one token.
type TokenGroup []string

// FullTextQuery carries the tokenized free-text search of a plan.
type FullTextQuery struct {
	Groups   []TokenGroup `json:"groups"`
	Operator Operator     `json:"operator"`
}

// Intent is the canonical plan request consumed by the assembler. It is built
// fresh per question and treated as immutable once assembled; corrections
// operate on a Clone, never in place.
type Intent struct {
	Question          string            `json:"question"`
	Aggregation       Aggregation       `json:"aggregation"`
	GroupBy           string            `json:"group_by,omitempty"`
	Measure           Measure           `json:"measure"`
	Window            *TimeWindow       `json:"window,omitempty"`
	TopN              *int              `json:"top_n,omitempty"`
	UserRequestedTopN bool              `json:"user_requested_top_n"`
	SortColumn        string            `json:"sort_column,omitempty"`
	SortDescending    bool              `json:"sort_descending"`
	EqualityFilters   []EqualityFilter  `json:"equality_filters,omitempty"`
	FullText          *FullTextQuery    `json:"full_text,omitempty"`
	Projection        []string          `json:"projection,omitempty"`
	Notes             map[string]string `json:"notes,omitempty"`
}

// Clone returns a deep copy. Feedback overlays mutate the copy only, so a
// stored snapshot can never be aliased across requests.
func (i *Intent) Clone() *Intent {
	if i == nil {
		return nil
	}
	out := *i
	if i.Window != nil {
		w := *i.Window
		out.Window = &w
	}
	if i.TopN != nil {
		n := *i.TopN
		out.TopN = &n
	}
	if i.EqualityFilters != nil {
		out.EqualityFilters = make([]EqualityFilter, len(i.EqualityFilters))
		for idx, f := range i.EqualityFilters {
			f.Values = append([]string(nil), f.Values...)
			out.EqualityFilters[idx] = f
		}
	}
	if i.FullText != nil {
		ft := FullTextQuery{Operator: i.FullText.Operator}
		ft.Groups = make([]TokenGroup, len(i.FullText.Groups))
		for idx, g := range i.FullText.Groups {
			ft.Groups[idx] = append(TokenGroup(nil), g...)
		}
		out.FullText = &ft
	}
	out.Projection = append([]string(nil), i.Projection...)
	if i.Notes != nil {
		out.Notes = make(map[string]string, len(i.Notes))
		for k, v := range i.Notes {
			out.Notes[k] = v
		}
	}
	return &out
}

// Grouped reports whether the plan aggregates into group buckets.
func (i *Intent) Grouped() bool {
	return i.GroupBy != "" && i.Aggregation != AggNone
}

// Validate enforces the row-projection xor grouped-aggregation invariant.
func (i *Intent) Validate() error {
	if i.Grouped() && len(i.Projection) > 0 {
		return apperrors.ErrInvalidIntent
	}
	return nil
}

// Note records a diagnostic entry. Notes never influence planning.
func (i *Intent) Note(key, value string) {
	if i.Notes == nil {
		i.Notes = make(map[string]string)
	}
	i.Notes[key] = value
}
