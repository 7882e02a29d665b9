package planner

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/contract-nlq/pkg/config"
	"github.com/ekaya-inc/contract-nlq/pkg/models"
)

// EqualityExtractor pulls explicit column filters out of question text.
// Only allow-listed columns survive; anything else is dropped silently and
// reported back as a diagnostic so the caller can surface it.
type EqualityExtractor interface {
	// Extract returns the filters found in text, in question order, plus
	// human-readable notes for every phrase that was recognized but dropped.
	Extract(text string) ([]models.EqualityFilter, []string)
}

type equalityExtractor struct {
	rules    config.PlannerRules
	resolver SynonymResolver
	logger   *zap.Logger
	allowed  map[string]bool

	// pattern matches "<column phrase> <op>" for every known column phrase;
	// the value list is carved out of the text after each match.
	pattern *regexp.Regexp
}

var _ EqualityExtractor = (*equalityExtractor)(nil)

// stopRe marks where a bare value list ends and the rest of the question
// resumes (time phrases, grouping clauses, conjunctions).
var stopRe = regexp.MustCompile(`(?i)\s+\b(and|with|last|next|this|between|from|expiring|ending|starting|requested|grouped|group|ordered|order|sorted|sort|top|bottom|ytd|in)\b`)

var valueSplitRe = regexp.MustCompile(`(?i)\s*(?:,|\||\bor\b)\s*`)

// NewEqualityExtractor compiles the column-phrase pattern from the rule
// tables. Longer phrases win over their prefixes ("owner department" before
// "department").
func NewEqualityExtractor(rules config.PlannerRules, resolver SynonymResolver, logger *zap.Logger) EqualityExtractor {
	allowed := make(map[string]bool, len(rules.ExplicitFilterColumns)+len(rules.AliasColumns))
	for _, col := range rules.ExplicitFilterColumns {
		allowed[col] = true
	}
	for alias := range rules.AliasColumns {
		allowed[alias] = true
	}

	phrases := make(map[string]bool)
	for _, col := range rules.ExplicitFilterColumns {
		phrases[col] = true
		phrases[strings.ReplaceAll(col, "_", " ")] = true
	}
	for alias := range rules.AliasColumns {
		phrases[alias] = true
		phrases[strings.ReplaceAll(alias, "_", " ")] = true
	}
	for phrase := range rules.ColumnSynonyms {
		phrases[phrase] = true
	}

	alternatives := make([]string, 0, len(phrases))
	for p := range phrases {
		alternatives = append(alternatives, regexp.QuoteMeta(p))
	}
	// Longest first so the regexp engine prefers the most specific phrase.
	sort.Slice(alternatives, func(i, j int) bool {
		if len(alternatives[i]) != len(alternatives[j]) {
			return len(alternatives[i]) > len(alternatives[j])
		}
		return alternatives[i] < alternatives[j]
	})

	pattern := regexp.MustCompile(
		`(?i)\b(` + strings.Join(alternatives, "|") + `)\b\s*(?:==|=|\bis\b|\bequals\b)\s*`)

	return &equalityExtractor{
		rules:    rules,
		resolver: resolver,
		logger:   logger.Named("equality"),
		allowed:  allowed,
		pattern:  pattern,
	}
}

func (e *equalityExtractor) Extract(text string) ([]models.EqualityFilter, []string) {
	matches := e.pattern.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return nil, nil
	}

	var filters []models.EqualityFilter
	var dropped []string
	for i, m := range matches {
		phrase := text[m[2]:m[3]]
		chunkEnd := len(text)
		if i+1 < len(matches) {
			chunkEnd = matches[i+1][0]
		}
		values := e.parseValues(text[m[1]:chunkEnd])
		if len(values) == 0 {
			continue
		}

		column, ok := e.canonicalColumn(phrase)
		if !ok || !e.allowed[column] {
			note := "dropped filter on disallowed column " + strings.ToUpper(phrase)
			dropped = append(dropped, note)
			e.logger.Debug("dropped equality filter",
				zap.String("phrase", phrase),
				zap.Strings("values", values))
			continue
		}

		filters = append(filters, models.EqualityFilter{
			Column:          column,
			Values:          values,
			CaseInsensitive: true,
			Trim:            true,
		})
	}
	return filters, dropped
}

// canonicalColumn maps a matched phrase onto the column it filters. Alias
// tokens keep their logical name so the assembler can fan them out.
func (e *equalityExtractor) canonicalColumn(phrase string) (string, bool) {
	underscored := strings.ReplaceAll(normalizePhrase(phrase), " ", "_")
	if _, ok := e.rules.AliasColumns[underscored]; ok {
		return underscored, true
	}
	return e.resolver.ResolveColumn(phrase)
}

// parseValues carves the value list out of the text following an operator:
// cut at a semicolon or the first stop keyword, then split on or/pipe/comma.
// Quoted values keep interior spaces and stop words.
func (e *equalityExtractor) parseValues(chunk string) []string {
	if idx := strings.IndexAny(chunk, ";.?\n"); idx >= 0 {
		chunk = chunk[:idx]
	}
	chunk = cutAtStopWord(chunk)

	var values []string
	for _, part := range valueSplitRe.Split(chunk, -1) {
		v := strings.TrimSpace(part)
		v = strings.Trim(v, `"'`)
		v = strings.TrimSpace(v)
		if v != "" {
			values = append(values, v)
		}
	}
	return values
}

// cutAtStopWord truncates at the first unquoted stop keyword.
func cutAtStopWord(chunk string) string {
	search := chunk
	offset := 0
	for {
		qs := strings.IndexAny(search, `"'`)
		loc := stopRe.FindStringIndex(search)
		if loc != nil && (qs < 0 || loc[0] < qs) {
			return chunk[:offset+loc[0]]
		}
		if qs < 0 {
			return chunk
		}
		quote := search[qs]
		end := strings.IndexByte(search[qs+1:], quote)
		if end < 0 {
			return chunk
		}
		advance := qs + 1 + end + 1
		offset += advance
		search = search[advance:]
	}
}
