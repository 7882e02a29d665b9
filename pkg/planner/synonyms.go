package planner

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/contract-nlq/pkg/config"
	"github.com/ekaya-inc/contract-nlq/pkg/models"
)

// SynonymResolver maps free-text phrases onto canonical column names and raw
// enum values onto their rule categories. Resolution is deterministic and
// idempotent: feeding a resolved value back in returns the same result.
type SynonymResolver interface {
	// ResolveColumn maps a dimension phrase ("owner department", "managers")
	// onto a canonical column name. Returns false when the phrase is unknown.
	ResolveColumn(phrase string) (string, bool)

	// ResolveValue matches a raw enum value against the rule table for
	// table.column. An unmatched value degrades to a literal substring match
	// rather than an error.
	ResolveValue(table, column, value string) models.ValueMatch
}

type cacheEntry struct {
	column  string
	ok      bool
	match   models.ValueMatch
	expires time.Time
}

type synonymResolver struct {
	rules  config.PlannerRules
	logger *zap.Logger

	mu      sync.Mutex
	cache   map[string]cacheEntry
	maxSize int
	ttl     time.Duration
}

var _ SynonymResolver = (*synonymResolver)(nil)

// NewSynonymResolver builds a resolver over the given rule tables. Lookups are
// memoized in a bounded TTL cache owned by the resolver.
func NewSynonymResolver(rules config.PlannerRules, logger *zap.Logger) SynonymResolver {
	return &synonymResolver{
		rules:   rules,
		logger:  logger.Named("synonyms"),
		cache:   make(map[string]cacheEntry),
		maxSize: 1024,
		ttl:     time.Hour,
	}
}

func (r *synonymResolver) ResolveColumn(phrase string) (string, bool) {
	norm := normalizePhrase(phrase)
	if norm == "" {
		return "", false
	}

	key := "col|" + norm
	if e, ok := r.cached(key); ok {
		return e.column, e.ok
	}

	col, ok := r.lookupColumn(norm)
	if !ok {
		// Retry with the singular form so "departments" finds "DEPARTMENT".
		singular := normalizePhrase(inflection.Singular(strings.ToLower(norm)))
		if singular != norm {
			col, ok = r.lookupColumn(singular)
		}
	}

	r.store(key, cacheEntry{column: col, ok: ok})
	return col, ok
}

func (r *synonymResolver) lookupColumn(norm string) (string, bool) {
	if col, ok := r.rules.ColumnSynonyms[norm]; ok {
		return col, true
	}
	// A phrase that already names a physical column resolves to itself.
	underscored := strings.ReplaceAll(norm, " ", "_")
	for _, col := range r.rules.ExplicitFilterColumns {
		if col == underscored {
			return col, true
		}
	}
	if _, ok := r.rules.AliasColumns[underscored]; ok {
		return underscored, true
	}
	return "", false
}

func (r *synonymResolver) ResolveValue(table, column, value string) models.ValueMatch {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return models.ValueMatch{Contains: []string{value}}
	}

	key := "val|" + table + "." + column + "|" + strings.ToLower(raw)
	if e, ok := r.cached(key); ok {
		return e.match
	}

	match := r.matchValue(table+"."+column, raw)
	r.store(key, cacheEntry{match: match})
	return match
}

// matchValue tries Equals variants first, then Prefix, then Contains, across
// all categories of the column. First match wins; category order is sorted so
// resolution never depends on map iteration order.
func (r *synonymResolver) matchValue(tableColumn, raw string) models.ValueMatch {
	categories := r.rules.EnumSynonyms[tableColumn]
	lower := strings.ToLower(raw)

	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rule := categories[name]
		if strings.EqualFold(name, raw) {
			return found(name, rule)
		}
		for _, v := range rule.Equals {
			if strings.EqualFold(v, raw) {
				return found(name, rule)
			}
		}
	}
	for _, name := range names {
		rule := categories[name]
		for _, p := range rule.Prefix {
			if strings.HasPrefix(lower, strings.ToLower(p)) {
				return found(name, rule)
			}
		}
	}
	for _, name := range names {
		rule := categories[name]
		for _, c := range rule.Contains {
			if strings.Contains(lower, strings.ToLower(c)) {
				return found(name, rule)
			}
		}
	}

	r.logger.Debug("enum value unmatched, falling back to substring",
		zap.String("column", tableColumn),
		zap.String("value", raw))
	return models.ValueMatch{Contains: []string{raw}}
}

func found(category string, rule config.EnumRule) models.ValueMatch {
	return models.ValueMatch{
		Category: category,
		Matched:  true,
		Equals:   append([]string(nil), rule.Equals...),
		Prefix:   append([]string(nil), rule.Prefix...),
		Contains: append([]string(nil), rule.Contains...),
	}
}

func (r *synonymResolver) cached(key string) (cacheEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.cache[key]
	if !ok || time.Now().After(e.expires) {
		return cacheEntry{}, false
	}
	return e, true
}

func (r *synonymResolver) store(key string, e cacheEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cache) >= r.maxSize {
		r.evictLocked()
	}
	e.expires = time.Now().Add(r.ttl)
	r.cache[key] = e
}

// evictLocked drops expired entries, then arbitrary ones until a quarter of
// the capacity is free. Callers hold mu.
func (r *synonymResolver) evictLocked() {
	now := time.Now()
	for k, e := range r.cache {
		if now.After(e.expires) {
			delete(r.cache, k)
		}
	}
	target := r.maxSize * 3 / 4
	for k := range r.cache {
		if len(r.cache) <= target {
			break
		}
		delete(r.cache, k)
	}
}

// normalizePhrase uppercases and collapses interior whitespace.
func normalizePhrase(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}
