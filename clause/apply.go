package clause

import (
	"strings"

	"github.com/orian/signalquery/models"
)

// Edit is a clause after a suggestion was applied, with the cursor placed
// after the inserted text.
type Edit struct {
	Clause string `json:"clause"`
	Cursor int    `json:"cursor"`
}

// ApplySuggestion replaces clause[start:end] with the suggestion's insert
// text. Offsets are clamped so stale ranges never fail.
//
// Operators and conjunctions always end up with exactly one space on each
// side. Keys and values only gain the spaces they are missing; a key that
// ends in '.' (the attribute prefix) gets no trailing space so typing can
// continue. A value replacing the start of a closed literal consumes its
// closing quote.
func ApplySuggestion(clause string, kind models.ContextKind, start, end int, s models.Suggestion) Edit {
	start = clamp(start, 0, len(clause))
	end = clamp(end, start, len(clause))
	before, after := clause[:start], clause[end:]

	switch kind {
	case models.ContextOperator, models.ContextConjunction:
		before = strings.TrimRightFunc(before, isSpaceRune)
		after = strings.TrimLeftFunc(after, isSpaceRune)
		head := before + " " + s.InsertText + " "
		return Edit{Clause: head + after, Cursor: len(head)}
	}

	// A value typed inside an already closed literal also replaces the
	// closing quote.
	if kind == models.ContextValue && start < end && isQuote(clause[start]) &&
		closingQuote(clause, start, len(clause)) == end {
		after = after[1:]
	}

	head := before
	if before != "" && !isSpace(before[len(before)-1]) {
		head += " "
	}
	head += s.InsertText

	openKey := kind == models.ContextKey && strings.HasSuffix(s.InsertText, ".")
	if !openKey && (after == "" || !isSpace(after[0])) {
		head += " "
	}
	return Edit{Clause: head + after, Cursor: len(head)}
}

// Apply is ApplySuggestion using the kind and replace range of ctx.
func Apply(clause string, ctx models.ClauseContext, s models.Suggestion) Edit {
	return ApplySuggestion(clause, ctx.Context, ctx.ReplaceStart, ctx.ReplaceEnd, s)
}

func isSpaceRune(r rune) bool {
	return r < 0x80 && isSpace(byte(r))
}
