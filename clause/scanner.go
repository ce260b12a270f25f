// Package clause implements the WHERE-clause mini-language of the query
// builder: `key = value` or `key = "value"` conditions joined by AND.
//
// It resolves the grammatical context at a cursor, produces ranked
// suggestions for that context, applies a chosen suggestion back into the
// clause and parses finished clauses into conditions. Every function is
// pure and safe for concurrent use.
package clause

import "strings"

// quoteState is the lexical state of the clause scanner.
type quoteState int

const (
	stateNormal quoteState = iota
	stateInSingleQuote
	stateInDoubleQuote
)

// scanner walks a clause one byte at a time and tracks quoting. A backslash
// inside a quoted string escapes the next byte.
type scanner struct {
	state     quoteState
	escaped   bool
	quoteOpen int
}

// step consumes c at offset i and reports whether c is plain unquoted text,
// i.e. neither inside a string nor a string delimiter.
func (s *scanner) step(c byte, i int) bool {
	switch s.state {
	case stateNormal:
		switch c {
		case '"':
			s.state = stateInDoubleQuote
			s.quoteOpen = i
			return false
		case '\'':
			s.state = stateInSingleQuote
			s.quoteOpen = i
			return false
		}
		return true
	default:
		if s.escaped {
			s.escaped = false
			return false
		}
		if c == '\\' {
			s.escaped = true
			return false
		}
		if (s.state == stateInDoubleQuote && c == '"') ||
			(s.state == stateInSingleQuote && c == '\'') {
			s.state = stateNormal
		}
		return false
	}
}

func (s *scanner) inString() bool {
	return s.state != stateNormal
}

// conjunctionAt reports whether an AND keyword starts at offset i of src.
// The keyword must follow whitespace (or the start of src) and be followed
// by whitespace before limit; when atEnd is set it may also end exactly at
// limit. The caller guarantees src[i] is unquoted.
func conjunctionAt(src string, i, limit int, atEnd bool) bool {
	if i+3 > limit || !strings.EqualFold(src[i:i+3], "and") {
		return false
	}
	if i > 0 && !isSpace(src[i-1]) {
		return false
	}
	if i+3 == limit {
		return atEnd
	}
	return isSpace(src[i+3])
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func isQuote(c byte) bool {
	return c == '"' || c == '\''
}

// skipSpace returns the first offset in [i, limit) that is not whitespace,
// or limit.
func skipSpace(src string, i, limit int) int {
	for i < limit && isSpace(src[i]) {
		i++
	}
	return i
}

// nextSpace returns the first whitespace offset in [i, limit), or limit.
func nextSpace(src string, i, limit int) int {
	for i < limit && !isSpace(src[i]) {
		i++
	}
	return i
}

// closingQuote returns the offset of the unescaped quote closing the string
// opened at src[open], searching before limit. It returns -1 when the
// string is still open at limit.
func closingQuote(src string, open, limit int) int {
	q := src[open]
	for i := open + 1; i < limit; i++ {
		switch src[i] {
		case '\\':
			i++
		case q:
			return i
		}
	}
	return -1
}
