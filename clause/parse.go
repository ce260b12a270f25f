package clause

import (
	"fmt"
	"strings"
)

// Condition is one `key = value` term of a finished clause.
type Condition struct {
	Key string `json:"key"`

	// Value is the literal with quotes removed and escapes resolved.
	Value string `json:"value"`

	Quoted bool `json:"quoted"`

	// Offset is the byte offset of the key in the clause.
	Offset int `json:"offset"`
}

// ParseError reports where and why a clause could not be parsed.
type ParseError struct {
	Offset  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("where clause: %s at offset %d", e.Message, e.Offset)
}

// Parse splits a complete clause into its conditions. A blank clause has
// no conditions.
func Parse(clause string) ([]Condition, error) {
	if strings.TrimSpace(clause) == "" {
		return nil, nil
	}

	var (
		sc       scanner
		segments [][2]int
		start    int
	)
	for i := 0; i < len(clause); i++ {
		if !sc.step(clause[i], i) {
			continue
		}
		if conjunctionAt(clause, i, len(clause), true) {
			segments = append(segments, [2]int{start, i})
			start = i + 3
			i += 2
		}
	}
	if sc.inString() {
		return nil, &ParseError{Offset: sc.quoteOpen, Message: "unterminated string"}
	}
	segments = append(segments, [2]int{start, len(clause)})

	conditions := make([]Condition, 0, len(segments))
	for n, seg := range segments {
		cond, err := parseCondition(clause, seg[0], seg[1])
		if err != nil {
			if n > 0 && err.Message == "expected key" && skipSpace(clause, seg[0], seg[1]) == seg[1] {
				err.Message = "expected condition after AND"
			}
			return nil, err
		}
		conditions = append(conditions, cond)
	}
	return conditions, nil
}

func parseCondition(clause string, start, end int) (Condition, *ParseError) {
	i := skipSpace(clause, start, end)
	keyStart := i
	for i < end && !isSpace(clause[i]) && clause[i] != '=' && !isQuote(clause[i]) {
		i++
	}
	if i == keyStart {
		return Condition{}, &ParseError{Offset: keyStart, Message: "expected key"}
	}
	cond := Condition{Key: clause[keyStart:i], Offset: keyStart}

	i = skipSpace(clause, i, end)
	if i == end || clause[i] != '=' {
		return Condition{}, &ParseError{Offset: i, Message: fmt.Sprintf("expected %q after key %q", Operator, cond.Key)}
	}

	i = skipSpace(clause, i+1, end)
	if i == end {
		return Condition{}, &ParseError{Offset: i, Message: fmt.Sprintf("expected value for key %q", cond.Key)}
	}

	if isQuote(clause[i]) {
		closing := closingQuote(clause, i, end)
		if closing < 0 {
			return Condition{}, &ParseError{Offset: i, Message: "unterminated string"}
		}
		cond.Value = unescape(clause[i+1 : closing])
		cond.Quoted = true
		i = closing + 1
	} else {
		valueEnd := nextSpace(clause, i, end)
		cond.Value = clause[i:valueEnd]
		i = valueEnd
	}

	if rest := skipSpace(clause, i, end); rest != end {
		return Condition{}, &ParseError{Offset: rest, Message: fmt.Sprintf("unexpected %q, expected %s", clause[rest:end], Conjunction)}
	}
	return cond, nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Quote renders v as a double-quoted clause literal.
func Quote(v string) string {
	return `"` + quoteEscaper.Replace(v) + `"`
}

// Unquote reverses Quote. Single-quoted literals are accepted as well;
// anything that is not a complete quoted literal is returned unchanged.
func Unquote(s string) string {
	if len(s) < 2 || !isQuote(s[0]) || closingQuote(s, 0, len(s)) != len(s)-1 {
		return s
	}
	return unescape(s[1 : len(s)-1])
}

// unescape resolves backslash escapes inside a string literal. A trailing
// lone backslash is dropped.
func unescape(s string) string {
	if strings.IndexByte(s, '\\') < 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			if i == len(s) {
				break
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
