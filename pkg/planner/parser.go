package planner

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/contract-nlq/pkg/apperrors"
	"github.com/ekaya-inc/contract-nlq/pkg/models"
)

// Parser turns a free-text question into an Intent. Parsing is cue-driven and
// deterministic: anything it cannot resolve degrades to a safe default
// recorded in the intent notes, never an error.
type Parser interface {
	Parse(question string, today time.Time) (*models.Intent, error)
}

type parser struct {
	resolver SynonymResolver
	equality EqualityExtractor
	fts      FullTextBuilder
	logger   *zap.Logger
}

var _ Parser = (*parser)(nil)

var (
	topNRe     = regexp.MustCompile(`(?i)\btop\s+` + numPat + `\b`)
	bottomNRe  = regexp.MustCompile(`(?i)\b(?:bottom|lowest|smallest|cheapest)\s+` + numPat + `\b`)
	bottomCue  = regexp.MustCompile(`(?i)\b(?:bottom|lowest|smallest|cheapest)\b`)
	countRe    = regexp.MustCompile(`(?i)\bhow\s+many\b|\bcount\b|\bnumber\s+of\b`)
	sumRe      = regexp.MustCompile(`(?i)\btotal\b|\bsum\b|\boverall\b`)
	avgRe      = regexp.MustCompile(`(?i)\baverage\b|\bavg\b|\bmean\b`)
	maxRe      = regexp.MustCompile(`(?i)\bmaximum\b|\bmax\b`)
	minRe      = regexp.MustCompile(`(?i)\bminimum\b|\bmin\b`)
	grossRe    = regexp.MustCompile(`(?i)\bgross\b|\bincl(?:uding|\.)?\s*vat\b|\bwith\s+vat\b`)
	measureCue = regexp.MustCompile(`(?i)\bvalue\b|\bamount\b|\bspend(?:ing)?\b|\bworth\b`)
	expireCue  = regexp.MustCompile(`(?i)\bexpir`)

	groupByRe = regexp.MustCompile(`(?i)\b(?:grouped\s+by|group\s+by|for\s+each|by|per)\s+([a-z_ ]+?)(?:\s+(?:last|next|this|in|between|from|for|with|and|or|ytd|expiring|ending|starting|requested)\b|[,;.?]|$)`)

	ftsCueRe = regexp.MustCompile(`(?i)\b(?:about|regarding|mentioning|mentions|containing|related\s+to)\s+(.+)$`)

	projectionRe = regexp.MustCompile(`\(([^)]+)\)`)
)

// NewParser wires the question pipeline: slice cues, aggregation, measure,
// time window, equality filters, grouping, projection and full-text search.
func NewParser(resolver SynonymResolver, equality EqualityExtractor, fts FullTextBuilder, logger *zap.Logger) Parser {
	return &parser{
		resolver: resolver,
		equality: equality,
		fts:      fts,
		logger:   logger.Named("parser"),
	}
}

func (p *parser) Parse(question string, today time.Time) (*models.Intent, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return nil, fmt.Errorf("failed to parse question: %w", apperrors.ErrEmptyQuestion)
	}

	intent := &models.Intent{
		Question:       q,
		Measure:        models.Measure{Kind: models.MeasureNet},
		SortDescending: true,
	}

	p.parseSlice(q, intent)
	p.parseAggregation(q, intent)
	if grossRe.MatchString(q) {
		intent.Measure.Kind = models.MeasureGross
	}
	p.parseWindow(q, today, intent)

	filters, dropped := p.equality.Extract(q)
	intent.EqualityFilters = filters
	for i, note := range dropped {
		intent.Note(fmt.Sprintf("dropped_filter_%d", i+1), note)
	}

	p.parseGroupBy(q, intent)
	p.parseProjection(q, intent)
	p.parseFullText(q, intent)

	return intent, nil
}

// parseSlice handles top/bottom N. A bottom cue always wins the sort
// direction, even when "top" appears in the same question.
func (p *parser) parseSlice(q string, intent *models.Intent) {
	if m := bottomNRe.FindStringSubmatch(q); m != nil {
		if n, ok := parseCount(m[1]); ok {
			intent.TopN = &n
			intent.UserRequestedTopN = true
		}
		intent.SortDescending = false
		return
	}
	if m := topNRe.FindStringSubmatch(q); m != nil {
		if n, ok := parseCount(m[1]); ok {
			intent.TopN = &n
			intent.UserRequestedTopN = true
		}
	}
	if bottomCue.MatchString(q) {
		intent.SortDescending = false
	}
}

func (p *parser) parseAggregation(q string, intent *models.Intent) {
	switch {
	case countRe.MatchString(q):
		intent.Aggregation = models.AggCount
	case avgRe.MatchString(q):
		intent.Aggregation = models.AggAvg
	case sumRe.MatchString(q):
		intent.Aggregation = models.AggSum
	case maxRe.MatchString(q):
		intent.Aggregation = models.AggMax
	case minRe.MatchString(q):
		intent.Aggregation = models.AggMin
	}
}

// parseWindow resolves the time phrase; an expiry question with no horizon
// gets the default 30-day forward window.
func (p *parser) parseWindow(q string, today time.Time, intent *models.Intent) {
	if w, ok := ResolveTimeWindow(q, today); ok {
		intent.Window = &w
		return
	}
	if expireCue.MatchString(q) {
		start := truncateDay(today)
		intent.Window = &models.TimeWindow{
			Start: start,
			End:   start.AddDate(0, 0, 30),
			Basis: models.BasisEnd,
		}
		intent.Note("window_default", "expiry question without horizon, defaulted to 30 days")
	}
}

func (p *parser) parseGroupBy(q string, intent *models.Intent) {
	for _, m := range groupByRe.FindAllStringSubmatch(q, -1) {
		phrase := strings.TrimSpace(m[1])
		if phrase == "" {
			continue
		}
		// "by value", "by spend" rank rows by the measure, they do not group.
		if measureCue.MatchString(phrase) {
			continue
		}
		col, ok := p.resolver.ResolveColumn(phrase)
		if !ok {
			continue
		}
		intent.GroupBy = col
		if intent.Aggregation == models.AggNone {
			if measureCue.MatchString(q) {
				intent.Aggregation = models.AggSum
			} else {
				intent.Aggregation = models.AggCount
			}
		}
		return
	}
}

// parseProjection treats a parenthesized enumeration as an explicit column
// list, but only when every entry resolves. Grouping wins over projection.
func (p *parser) parseProjection(q string, intent *models.Intent) {
	m := projectionRe.FindStringSubmatch(q)
	if m == nil {
		return
	}

	var cols []string
	for _, part := range strings.Split(m[1], ",") {
		col, ok := p.resolver.ResolveColumn(strings.TrimSpace(part))
		if !ok {
			return
		}
		cols = append(cols, col)
	}
	if len(cols) == 0 {
		return
	}
	if intent.Grouped() {
		intent.Note("projection_dropped", "projection list ignored on a grouped plan")
		return
	}
	intent.Projection = cols
}

// parseFullText builds the search from an explicit cue ("about …",
// "mentioning …") or from quoted phrases not already consumed as filter
// values.
func (p *parser) parseFullText(q string, intent *models.Intent) {
	if m := ftsCueRe.FindStringSubmatch(q); m != nil {
		groups, op := p.fts.Tokenize(cutAtStopWord(m[1]), "")
		if len(groups) > 0 {
			intent.FullText = &models.FullTextQuery{Groups: groups, Operator: op}
			return
		}
	}

	used := make(map[string]bool)
	for _, f := range intent.EqualityFilters {
		for _, v := range f.Values {
			used[strings.ToLower(v)] = true
		}
	}
	var groups []models.TokenGroup
	for _, m := range quotedPhraseRe.FindAllString(q, -1) {
		tok := strings.Trim(m, `"'`)
		if tok == "" || used[strings.ToLower(tok)] {
			continue
		}
		groups = append(groups, models.TokenGroup{tok})
	}
	if len(groups) > 0 {
		intent.FullText = &models.FullTextQuery{Groups: groups, Operator: models.OpOr}
	}
}
