package planner

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/contract-nlq/pkg/config"
	"github.com/ekaya-inc/contract-nlq/pkg/models"
	sqlguard "github.com/ekaya-inc/contract-nlq/pkg/sql"
)

// Hints is the parsed form of a correction comment. Nil/empty fields were not
// hinted and must not disturb the prior intent on overlay.
type Hints struct {
	FullText       *models.FullTextQuery
	Filters        []models.EqualityFilter
	SortColumn     string
	SortDescending *bool
	GroupBy        string
	Gross          *bool
	Notes          []string
}

// Empty reports whether the comment carried no usable directive.
func (h Hints) Empty() bool {
	return h.FullText == nil && len(h.Filters) == 0 && h.SortColumn == "" &&
		h.GroupBy == "" && h.Gross == nil && h.SortDescending == nil
}

// HintParser owns the correction mini-language: semicolon-separated
// directives (`fts:`, `eq:`, `order_by:`, `group_by:`, `gross:`). The grammar
// is a wire format; separator semantics must not drift.
type HintParser interface {
	// Parse never fails: malformed clauses are skipped individually and
	// reported in Hints.Notes.
	Parse(comment string) Hints

	// Overlay clones prior and overwrites only the hinted fields. An empty
	// hint set returns a clone that assembles to identical SQL and binds.
	Overlay(prior *models.Intent, h Hints) *models.Intent
}

type hintParser struct {
	table    string
	rules    config.PlannerRules
	resolver SynonymResolver
	fts      FullTextBuilder
	logger   *zap.Logger
	allowed  map[string]bool
}

var _ HintParser = (*hintParser)(nil)

var (
	clauseRe   = regexp.MustCompile(`(?i)^(fts|eq|order_by|group_by|gross)\s*:\s*(.*)$`)
	eqFlagsRe  = regexp.MustCompile(`\(([^)]*)\)\s*$`)
	identRe    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	orderDirRe = regexp.MustCompile(`(?i)\s+(asc|desc)\s*$`)
)

// NewHintParser wires the mini-language against the rule tables; eq values
// pass through the synonym resolver and the injection scanner before they can
// become binds.
func NewHintParser(table string, rules config.PlannerRules, resolver SynonymResolver, fts FullTextBuilder, logger *zap.Logger) HintParser {
	allowed := make(map[string]bool, len(rules.ExplicitFilterColumns)+len(rules.AliasColumns))
	for _, col := range rules.ExplicitFilterColumns {
		allowed[col] = true
	}
	for alias := range rules.AliasColumns {
		allowed[alias] = true
	}
	return &hintParser{
		table:    table,
		rules:    rules,
		resolver: resolver,
		fts:      fts,
		logger:   logger.Named("hints"),
		allowed:  allowed,
	}
}

func (p *hintParser) Parse(comment string) Hints {
	var h Hints
	for _, raw := range strings.Split(comment, ";") {
		clause := strings.TrimSpace(raw)
		if clause == "" {
			continue
		}
		m := clauseRe.FindStringSubmatch(clause)
		if m == nil {
			h.Notes = append(h.Notes, "skipped unrecognized clause: "+clause)
			continue
		}
		payload := strings.TrimSpace(m[2])
		switch strings.ToLower(m[1]) {
		case "fts":
			p.parseFTS(payload, &h)
		case "eq":
			p.parseEq(payload, &h)
		case "order_by":
			p.parseOrderBy(payload, &h)
		case "group_by":
			p.parseGroupBy(payload, &h)
		case "gross":
			p.parseGross(payload, &h)
		}
	}
	return h
}

func (p *hintParser) parseFTS(payload string, h *Hints) {
	groups, op := p.fts.Tokenize(payload, "")
	if len(groups) == 0 {
		h.Notes = append(h.Notes, "skipped empty fts directive")
		return
	}
	h.FullText = &models.FullTextQuery{Groups: groups, Operator: op}
}

func (p *hintParser) parseEq(payload string, h *Hints) {
	ci, trim := true, true
	if m := eqFlagsRe.FindStringSubmatch(payload); m != nil {
		ci, trim = parseEqFlags(m[1])
		payload = strings.TrimSpace(payload[:len(payload)-len(m[0])])
	}

	sep := strings.Index(payload, "=")
	if sep <= 0 {
		h.Notes = append(h.Notes, "skipped malformed eq directive: "+payload)
		return
	}
	colPhrase := strings.TrimSpace(payload[:sep])
	valuePart := strings.TrimSpace(strings.TrimPrefix(payload[sep+1:], "="))

	column, ok := p.canonicalColumn(colPhrase)
	if !ok || !p.allowed[column] {
		h.Notes = append(h.Notes, "skipped eq directive on disallowed column "+colPhrase)
		return
	}

	var values []string
	for _, part := range valueSplitRe.Split(valuePart, -1) {
		v := strings.TrimSpace(strings.Trim(strings.TrimSpace(part), `"'`))
		if v == "" {
			continue
		}
		if res := sqlguard.CheckValue(column, v); res != nil {
			h.Notes = append(h.Notes, fmt.Sprintf(
				"rejected suspicious value for %s (fingerprint %s)", column, res.Fingerprint))
			p.logger.Warn("rejected feedback value",
				zap.String("column", column),
				zap.String("fingerprint", res.Fingerprint))
			continue
		}
		values = append(values, p.expandValue(column, v)...)
	}
	if len(values) == 0 {
		h.Notes = append(h.Notes, "skipped eq directive with no usable values: "+payload)
		return
	}

	h.Filters = append(h.Filters, models.EqualityFilter{
		Column:          column,
		Values:          dedupe(values),
		CaseInsensitive: ci,
		Trim:            trim,
	})
}

// expandValue fans a matched enum value out to its whole category: exact
// variants plus wildcard patterns for the prefix/contains rules. Unmatched
// values stay literal.
func (p *hintParser) expandValue(column, v string) []string {
	match := p.resolver.ResolveValue(p.table, column, v)
	if !match.Matched {
		return []string{v}
	}
	out := append([]string(nil), match.Equals...)
	for _, pre := range match.Prefix {
		out = append(out, pre+"%")
	}
	for _, c := range match.Contains {
		out = append(out, "%"+c+"%")
	}
	if len(out) == 0 {
		return []string{v}
	}
	return out
}

func (p *hintParser) parseOrderBy(payload string, h *Hints) {
	desc := true
	if m := orderDirRe.FindStringSubmatch(payload); m != nil {
		desc = strings.EqualFold(m[1], "desc")
		payload = strings.TrimSpace(payload[:len(payload)-len(m[0])])
	}
	column, ok := p.canonicalColumn(payload)
	if !ok {
		// A raw identifier is acceptable for ordering (any projected column).
		underscored := strings.ReplaceAll(normalizePhrase(payload), " ", "_")
		if !identRe.MatchString(underscored) {
			h.Notes = append(h.Notes, "skipped malformed order_by directive: "+payload)
			return
		}
		column = underscored
	}
	h.SortColumn = column
	h.SortDescending = &desc
}

func (p *hintParser) parseGroupBy(payload string, h *Hints) {
	column, ok := p.canonicalColumn(payload)
	if !ok {
		h.Notes = append(h.Notes, "skipped group_by directive on unknown column "+payload)
		return
	}
	h.GroupBy = column
}

func (p *hintParser) parseGross(payload string, h *Hints) {
	switch strings.ToLower(payload) {
	case "true", "yes", "1", "on":
		v := true
		h.Gross = &v
	case "false", "no", "0", "off":
		v := false
		h.Gross = &v
	default:
		h.Notes = append(h.Notes, "skipped malformed gross directive: "+payload)
	}
}

func (p *hintParser) canonicalColumn(phrase string) (string, bool) {
	underscored := strings.ReplaceAll(normalizePhrase(phrase), " ", "_")
	if _, ok := p.rules.AliasColumns[underscored]; ok {
		return underscored, true
	}
	return p.resolver.ResolveColumn(phrase)
}

func (p *hintParser) Overlay(prior *models.Intent, h Hints) *models.Intent {
	next := prior.Clone()
	if h.Empty() {
		return next
	}

	if h.FullText != nil {
		next.FullText = h.FullText
	}
	for _, f := range h.Filters {
		next.EqualityFilters = upsertFilter(next.EqualityFilters, f)
	}
	if h.SortColumn != "" {
		next.SortColumn = h.SortColumn
	}
	if h.SortDescending != nil {
		next.SortDescending = *h.SortDescending
	}
	if h.GroupBy != "" {
		next.GroupBy = h.GroupBy
		if next.Aggregation == models.AggNone {
			next.Aggregation = models.AggSum
		}
		if len(next.Projection) > 0 {
			next.Projection = nil
			next.Note("projection_dropped", "projection cleared by group_by correction")
		}
	}
	if h.Gross != nil {
		if *h.Gross {
			next.Measure = models.Measure{Kind: models.MeasureGross}
		} else {
			next.Measure = models.Measure{Kind: models.MeasureNet}
		}
	}
	for i, note := range h.Notes {
		next.Note(fmt.Sprintf("hint_note_%d", i+1), note)
	}
	return next
}

// upsertFilter replaces an existing filter on the same column, otherwise
// appends. Corrections are statements of what the filter should be, not
// additions to it.
func upsertFilter(filters []models.EqualityFilter, f models.EqualityFilter) []models.EqualityFilter {
	for i, existing := range filters {
		if existing.Column == f.Column {
			filters[i] = f
			return filters
		}
	}
	return append(filters, f)
}

// parseEqFlags reads the optional flag list of an eq directive. Both flags
// default on; unknown flag tokens are ignored.
func parseEqFlags(s string) (ci, trim bool) {
	ci, trim = true, true
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		switch strings.ToLower(tok) {
		case "ci":
			ci = true
		case "trim":
			trim = true
		case "no_ci", "case_sensitive":
			ci = false
		case "no_trim":
			trim = false
		case "exact", "raw":
			ci, trim = false, false
		}
	}
	return ci, trim
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
