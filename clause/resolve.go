package clause

import (
	"strings"

	"github.com/orian/signalquery/models"
)

// ResolveContext determines which part of a condition the cursor is in and
// what has been typed there so far. Only the text before the cursor is
// considered. The cursor is clamped into [0, len(clause)]; any input yields
// a usable context.
func ResolveContext(clause string, cursor int) models.ClauseContext {
	cursor = clamp(cursor, 0, len(clause))

	// One forward pass finds the start of the segment under the cursor and
	// its first unquoted '='.
	var sc scanner
	segStart, eq := 0, -1
	for i := 0; i < cursor; i++ {
		if !sc.step(clause[i], i) {
			continue
		}
		if conjunctionAt(clause, i, cursor, false) {
			segStart, eq = i+3, -1
			i += 2
			continue
		}
		if clause[i] == '=' && eq < 0 {
			eq = i
		}
	}

	base := skipSpace(clause, segStart, cursor)
	if base == cursor {
		return at(models.ContextKey, "", "", cursor, cursor)
	}

	if eq < 0 {
		return resolveKeyOrOperator(clause, base, cursor)
	}
	return resolveValue(clause, base, eq, cursor)
}

// resolveKeyOrOperator handles a segment without '=': either the key is
// still being typed or it is complete and an operator is expected.
func resolveKeyOrOperator(clause string, base, cursor int) models.ClauseContext {
	keyEnd := nextSpace(clause, base, cursor)
	key := clause[base:keyEnd]
	if keyEnd == cursor {
		return at(models.ContextKey, key, "", base, cursor)
	}

	opStart := skipSpace(clause, keyEnd, cursor)
	return at(models.ContextOperator, clause[opStart:cursor], key, opStart, cursor)
}

// resolveValue handles a segment with '=' at eq.
func resolveValue(clause string, base, eq, cursor int) models.ClauseContext {
	key := strings.TrimSpace(clause[base:eq])

	vStart := skipSpace(clause, eq+1, cursor)
	if vStart == cursor {
		return at(models.ContextValue, "", key, cursor, cursor)
	}

	var valueEnd int
	if isQuote(clause[vStart]) {
		closing := closingQuote(clause, vStart, cursor)
		if closing < 0 {
			// Mid-string: the whole literal, opening quote included, is
			// replaced by the quoted suggestion.
			partial := unescape(clause[vStart+1 : cursor])
			return at(models.ContextValue, partial, key, vStart, cursor)
		}
		valueEnd = closing + 1
	} else {
		valueEnd = nextSpace(clause, vStart, cursor)
		if valueEnd == cursor {
			return at(models.ContextValue, clause[vStart:cursor], key, vStart, cursor)
		}
	}

	tail := skipSpace(clause, valueEnd, cursor)
	query := strings.TrimRightFunc(clause[tail:cursor], isSpaceRune)
	return at(models.ContextConjunction, query, key, tail, cursor)
}

func at(kind models.ContextKind, query, key string, start, end int) models.ClauseContext {
	return models.ClauseContext{
		Context:      kind,
		Query:        query,
		Key:          key,
		ReplaceStart: start,
		ReplaceEnd:   end,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
