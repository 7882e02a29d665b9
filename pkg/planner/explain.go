package planner

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/contract-nlq/pkg/models"
)

// Explain renders a compact one-line rationale of a plan for the admin
// explain view. Segments are joined with " | " in a fixed order so the output
// is stable across runs.
func Explain(intent *models.Intent) string {
	if intent == nil {
		return ""
	}
	var parts []string

	if intent.Aggregation != models.AggNone {
		if intent.Aggregation == models.AggCount {
			parts = append(parts, "count rows")
		} else {
			parts = append(parts, fmt.Sprintf("%s of %s value",
				string(intent.Aggregation), string(measureKind(intent))))
		}
	}
	if intent.GroupBy != "" {
		parts = append(parts, "group by "+intent.GroupBy)
	}
	if w := intent.Window; w != nil {
		parts = append(parts, fmt.Sprintf("window %s..%s on %s",
			w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"), basisLabel(w.Basis)))
	}
	for _, f := range intent.EqualityFilters {
		parts = append(parts, fmt.Sprintf("filter %s = %s",
			f.Column, strings.Join(f.Values, " or ")))
	}
	if ft := intent.FullText; ft != nil && len(ft.Groups) > 0 {
		var tokens []string
		for _, g := range ft.Groups {
			tokens = append(tokens, strings.Join(g, " "))
		}
		parts = append(parts, fmt.Sprintf("text search (%s) %s",
			strings.ToLower(string(ft.Operator)), strings.Join(tokens, ", ")))
	}
	if intent.SortColumn != "" {
		parts = append(parts, "order by "+intent.SortColumn+" "+direction(intent.SortDescending))
	} else if intent.UserRequestedTopN || intent.Grouped() {
		parts = append(parts, fmt.Sprintf("order by %s value %s",
			string(measureKind(intent)), direction(intent.SortDescending)))
	}
	if intent.UserRequestedTopN && intent.TopN != nil {
		label := "top"
		if !intent.SortDescending {
			label = "bottom"
		}
		parts = append(parts, fmt.Sprintf("%s %d rows", label, *intent.TopN))
	}
	if len(intent.Projection) > 0 {
		parts = append(parts, "columns "+strings.Join(intent.Projection, ", "))
	}

	if len(parts) == 0 {
		return "all rows, no constraints"
	}
	return strings.Join(parts, " | ")
}

func measureKind(intent *models.Intent) models.MeasureKind {
	if intent.Measure.Kind == "" {
		return models.MeasureNet
	}
	return intent.Measure.Kind
}

func basisLabel(b models.Basis) string {
	if b == models.BasisOverlap {
		return "active interval"
	}
	return string(b)
}

func direction(desc bool) string {
	if desc {
		return "desc"
	}
	return "asc"
}
