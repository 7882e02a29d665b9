package planner

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/contract-nlq/pkg/config"
	"github.com/ekaya-inc/contract-nlq/pkg/models"
)

// FullTextBuilder tokenizes free-text search phrases and renders them into a
// WHERE fragment over the configured search columns. Exactly one bind is
// created per token regardless of how many columns it scans.
type FullTextBuilder interface {
	// Tokenize splits text into single-token groups plus the operator that
	// joins them. forcedOp overrides cue detection when non-empty.
	Tokenize(text string, forcedOp models.Operator) ([]models.TokenGroup, models.Operator)

	// Build renders the groups into a parenthesized SQL fragment and its
	// binds. An empty fragment means full-text search contributes nothing
	// and the plan proceeds without it.
	Build(groups []models.TokenGroup, op models.Operator) (string, map[string]any)
}

type fullTextBuilder struct {
	columns       []string
	engine        string
	shortTokenLen int
	logger        *zap.Logger
}

var _ FullTextBuilder = (*fullTextBuilder)(nil)

var (
	quotedPhraseRe = regexp.MustCompile(`"[^"]+"|'[^']+'`)
	placeholderRe  = regexp.MustCompile("\x00[0-9]+\x00")
	andCueRe       = regexp.MustCompile(`(?i)\band\b|&`)
	orCueRe        = regexp.MustCompile(`(?i)\bor\b`)
	ftsSplitRe     = regexp.MustCompile(`(?i)\s*(?:\band\b|\bor\b|&|\||,)\s*`)
	digitRe        = regexp.MustCompile(`\d`)
)

// NewFullTextBuilder resolves the search columns for the configured table,
// falling back to the wildcard entry. Unknown engine values degrade to "like".
func NewFullTextBuilder(cfg config.PlannerConfig, rules config.PlannerRules, logger *zap.Logger) FullTextBuilder {
	columns := rules.FTSColumns[cfg.Table]
	if len(columns) == 0 {
		columns = rules.FTSColumns["*"]
	}

	engine := strings.ToLower(cfg.FTSEngine)
	if engine != "contains" {
		engine = "like"
	}

	shortLen := cfg.ShortTokenLen
	if shortLen <= 0 {
		shortLen = 2
	}

	return &fullTextBuilder{
		columns:       columns,
		engine:        engine,
		shortTokenLen: shortLen,
		logger:        logger.Named("fts"),
	}
}

func (b *fullTextBuilder) Tokenize(text string, forcedOp models.Operator) ([]models.TokenGroup, models.Operator) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.OpOr
	}

	// Quoted phrases survive splitting as single tokens.
	var phrases []string
	masked := quotedPhraseRe.ReplaceAllStringFunc(text, func(m string) string {
		phrases = append(phrases, strings.Trim(m, `"'`))
		return fmt.Sprintf("\x00%d\x00", len(phrases)-1)
	})

	op := forcedOp
	if op == "" {
		switch {
		case andCueRe.MatchString(masked):
			// AND wins when both cues appear.
			op = models.OpAnd
		default:
			op = models.OpOr
		}
	}

	var groups []models.TokenGroup
	for _, part := range ftsSplitRe.Split(masked, -1) {
		tok := placeholderRe.ReplaceAllStringFunc(part, func(m string) string {
			var idx int
			if _, err := fmt.Sscanf(m, "\x00%d\x00", &idx); err == nil && idx < len(phrases) {
				return phrases[idx]
			}
			return ""
		})
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		groups = append(groups, models.TokenGroup{tok})
	}
	return groups, op
}

func (b *fullTextBuilder) Build(groups []models.TokenGroup, op models.Operator) (string, map[string]any) {
	if len(groups) == 0 || len(b.columns) == 0 {
		if len(b.columns) == 0 && len(groups) > 0 {
			b.logger.Debug("no full-text columns configured, skipping search")
		}
		return "", nil
	}
	if op != models.OpAnd {
		op = models.OpOr
	}

	binds := make(map[string]any)
	var parts []string
	n := 0
	for _, group := range groups {
		for _, tok := range group {
			n++
			name := fmt.Sprintf("fts_%d", n)
			parts = append(parts, b.tokenPredicate(tok, name, binds))
		}
	}

	joined := strings.Join(parts, " "+string(op)+" ")
	return "(" + joined + ")", binds
}

// tokenPredicate renders one token against every search column, registering
// exactly one bind. Short tokens and tokens containing digits use whole-word
// matching so "it" does not hit "hospital".
func (b *fullTextBuilder) tokenPredicate(tok, bindName string, binds map[string]any) string {
	terms := make([]string, 0, len(b.columns))

	if b.engine == "contains" {
		binds[bindName] = tok
		for i, col := range b.columns {
			terms = append(terms, fmt.Sprintf("CONTAINS(%s, :%s, %d) > 0", col, bindName, i+1))
		}
		return "(" + strings.Join(terms, " OR ") + ")"
	}

	if b.wholeWord(tok) {
		binds[bindName] = tok
		for _, col := range b.columns {
			terms = append(terms, fmt.Sprintf(
				"UPPER(' '||NVL(%s,'')||' ') LIKE UPPER('%% '||:%s||' %%')", col, bindName))
		}
	} else {
		binds[bindName] = "%" + tok + "%"
		for _, col := range b.columns {
			terms = append(terms, fmt.Sprintf("UPPER(NVL(%s,'')) LIKE UPPER(:%s)", col, bindName))
		}
	}
	return "(" + strings.Join(terms, " OR ") + ")"
}

func (b *fullTextBuilder) wholeWord(tok string) bool {
	return len(tok) <= b.shortTokenLen || digitRe.MatchString(tok)
}
