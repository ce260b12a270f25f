package clause

import "github.com/orian/signalquery/models"

// Completion is the answer to "what can I type here".
type Completion struct {
	Context     models.ClauseContext `json:"context"`
	Suggestions []models.Suggestion  `json:"suggestions"`
}

// Complete resolves the context at cursor and builds its suggestions.
func Complete(clause string, cursor int, source models.DataSource, values models.AutocompleteValues, max int) Completion {
	ctx := ResolveContext(clause, cursor)
	return Completion{
		Context:     ctx,
		Suggestions: BuildSuggestions(ctx, source, values, max),
	}
}
