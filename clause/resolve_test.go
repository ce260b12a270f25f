package clause

import (
	"testing"

	"github.com/orian/signalquery/models"
	"github.com/stretchr/testify/assert"
)

func TestResolveContext(t *testing.T) {
	tests := []struct {
		name   string
		clause string
		cursor int
		want   models.ClauseContext
	}{
		{
			name:   "empty clause",
			clause: "",
			cursor: 0,
			want:   models.ClauseContext{Context: models.ContextKey},
		},
		{
			name:   "new segment after AND",
			clause: `service.name = "checkout" AND sev`,
			cursor: 34,
			want:   models.ClauseContext{Context: models.ContextKey, Query: "sev", ReplaceStart: 30, ReplaceEnd: 33},
		},
		{
			name:   "lowercase and starts a segment",
			clause: `service.name = "a" and span`,
			cursor: 27,
			want:   models.ClauseContext{Context: models.ContextKey, Query: "span", ReplaceStart: 23, ReplaceEnd: 27},
		},
		{
			name:   "partial key",
			clause: "serv",
			cursor: 4,
			want:   models.ClauseContext{Context: models.ContextKey, Query: "serv", ReplaceStart: 0, ReplaceEnd: 4},
		},
		{
			name:   "key followed by whitespace",
			clause: "service.name ",
			cursor: 13,
			want:   models.ClauseContext{Context: models.ContextOperator, Key: "service.name", ReplaceStart: 13, ReplaceEnd: 13},
		},
		{
			name:   "partial operator",
			clause: "service.name !",
			cursor: 14,
			want:   models.ClauseContext{Context: models.ContextOperator, Query: "!", Key: "service.name", ReplaceStart: 13, ReplaceEnd: 14},
		},
		{
			name:   "operator typed",
			clause: "service.name =",
			cursor: 14,
			want:   models.ClauseContext{Context: models.ContextValue, Key: "service.name", ReplaceStart: 14, ReplaceEnd: 14},
		},
		{
			name:   "open double quote",
			clause: `service.name = "chec`,
			cursor: 20,
			want:   models.ClauseContext{Context: models.ContextValue, Query: "chec", Key: "service.name", ReplaceStart: 15, ReplaceEnd: 20},
		},
		{
			name:   "escaped quote does not close the string",
			clause: `service.name = "check\"out`,
			cursor: 26,
			want:   models.ClauseContext{Context: models.ContextValue, Query: `check"out`, Key: "service.name", ReplaceStart: 15, ReplaceEnd: 26},
		},
		{
			name:   "open single quote",
			clause: "severity = 'err",
			cursor: 15,
			want:   models.ClauseContext{Context: models.ContextValue, Query: "err", Key: "severity", ReplaceStart: 11, ReplaceEnd: 15},
		},
		{
			name:   "AND inside a string is not a conjunction",
			clause: `service.name = "a AND b`,
			cursor: 23,
			want:   models.ClauseContext{Context: models.ContextValue, Query: "a AND b", Key: "service.name", ReplaceStart: 15, ReplaceEnd: 23},
		},
		{
			name:   "closed string then whitespace",
			clause: `service.name = "a" `,
			cursor: 19,
			want:   models.ClauseContext{Context: models.ContextConjunction, Key: "service.name", ReplaceStart: 19, ReplaceEnd: 19},
		},
		{
			name:   "closed string at cursor",
			clause: `service.name = "a"`,
			cursor: 18,
			want:   models.ClauseContext{Context: models.ContextConjunction, Key: "service.name", ReplaceStart: 18, ReplaceEnd: 18},
		},
		{
			name:   "partial conjunction",
			clause: `service.name = "a" AN`,
			cursor: 21,
			want:   models.ClauseContext{Context: models.ContextConjunction, Query: "AN", Key: "service.name", ReplaceStart: 19, ReplaceEnd: 21},
		},
		{
			name:   "complete conjunction still being typed",
			clause: `service.name = "a" AND`,
			cursor: 22,
			want:   models.ClauseContext{Context: models.ContextConjunction, Query: "AND", Key: "service.name", ReplaceStart: 19, ReplaceEnd: 22},
		},
		{
			name:   "conjunction glued to a closing quote",
			clause: `a = "x"AND `,
			cursor: 11,
			want:   models.ClauseContext{Context: models.ContextConjunction, Query: "AND", Key: "a", ReplaceStart: 7, ReplaceEnd: 11},
		},
		{
			name:   "unquoted value",
			clause: "severity = error",
			cursor: 16,
			want:   models.ClauseContext{Context: models.ContextValue, Query: "error", Key: "severity", ReplaceStart: 11, ReplaceEnd: 16},
		},
		{
			name:   "unquoted value then text",
			clause: "severity = error A",
			cursor: 18,
			want:   models.ClauseContext{Context: models.ContextConjunction, Query: "A", Key: "severity", ReplaceStart: 17, ReplaceEnd: 18},
		},
		{
			name:   "text after cursor is ignored",
			clause: `service.name = "a" AND span.name = "b"`,
			cursor: 14,
			want:   models.ClauseContext{Context: models.ContextValue, Key: "service.name", ReplaceStart: 14, ReplaceEnd: 14},
		},
		{
			name:   "negative cursor is clamped",
			clause: "abc",
			cursor: -5,
			want:   models.ClauseContext{Context: models.ContextKey},
		},
		{
			name:   "cursor past the end is clamped",
			clause: "abc",
			cursor: 99,
			want:   models.ClauseContext{Context: models.ContextKey, Query: "abc", ReplaceStart: 0, ReplaceEnd: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveContext(tt.clause, tt.cursor)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveContextReplaceRangeInvariant(t *testing.T) {
	clauses := []string{
		"",
		" ",
		"AND",
		"and and and",
		`service.name = "checkout" AND severity = error`,
		`a = "unterminated \" AND b = c`,
		`a = 'x\'y' AND  b =   "z"   AND`,
		"===",
		`"""`,
		`\\\"`,
		"attr.http.route = /api/v1 AND root_only = true",
		"k = v\tAND\nx = y",
	}

	for _, clause := range clauses {
		for cursor := -2; cursor <= len(clause)+2; cursor++ {
			got := ResolveContext(clause, cursor)
			clamped := clamp(cursor, 0, len(clause))

			assert.GreaterOrEqual(t, got.ReplaceStart, 0, "clause %q cursor %d", clause, cursor)
			assert.LessOrEqual(t, got.ReplaceStart, got.ReplaceEnd, "clause %q cursor %d", clause, cursor)
			assert.LessOrEqual(t, got.ReplaceEnd, clamped, "clause %q cursor %d", clause, cursor)
		}
	}
}
