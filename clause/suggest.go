package clause

import (
	"sort"
	"strings"

	"github.com/orian/signalquery/models"
)

// DefaultMaxSuggestions is used when the caller passes a non-positive limit.
const DefaultMaxSuggestions = 8

// BuildSuggestions lists the candidates for ctx, ranked against ctx.Query
// and truncated to max. values is read but never retained.
func BuildSuggestions(ctx models.ClauseContext, source models.DataSource, values models.AutocompleteValues, max int) []models.Suggestion {
	if max <= 0 {
		max = DefaultMaxSuggestions
	}

	cat := catalogFor(source)
	if cat == nil {
		return []models.Suggestion{}
	}

	var candidates []models.Suggestion
	switch ctx.Context {
	case models.ContextKey:
		for _, k := range cat.keys() {
			candidates = append(candidates, suggestion(models.ContextKey, k.label, k.insertText, k.description))
		}
	case models.ContextOperator:
		candidates = append(candidates, suggestion(models.ContextOperator, Operator, Operator, "equals"))
	case models.ContextValue:
		for _, v := range cat.values(NormalizeKey(ctx.Key), values) {
			candidates = append(candidates, suggestion(models.ContextValue, v, Quote(v), ""))
		}
	case models.ContextConjunction:
		candidates = append(candidates, suggestion(models.ContextConjunction, Conjunction, Conjunction, "add another condition"))
	}

	return rank(candidates, ctx.Query, max)
}

func suggestion(kind models.ContextKind, label, insertText, description string) models.Suggestion {
	return models.Suggestion{
		ID:          string(kind) + ":" + label,
		Kind:        kind,
		Label:       label,
		InsertText:  insertText,
		Description: description,
	}
}

type scored struct {
	s     models.Suggestion
	score int
}

// rank keeps the candidates matching query, prefix matches first, in
// catalog order within each score, and returns at most max of them.
func rank(candidates []models.Suggestion, query string, max int) []models.Suggestion {
	q := strings.ToLower(strings.TrimSpace(query))

	matches := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		label := strings.ToLower(c.Label)
		insert := strings.ToLower(c.InsertText)
		switch {
		case strings.HasPrefix(label, q) || strings.HasPrefix(insert, q):
			matches = append(matches, scored{c, 0})
		case strings.Contains(label, q) || strings.Contains(insert, q):
			matches = append(matches, scored{c, 1})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score < matches[j].score
	})

	if len(matches) > max {
		matches = matches[:max]
	}
	out := make([]models.Suggestion, len(matches))
	for i, m := range matches {
		out[i] = m.s
	}
	return out
}
