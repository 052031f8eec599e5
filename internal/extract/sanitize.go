package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/soyeahso/hotline/internal/domain"
)

var (
	digitRun  = regexp.MustCompile(`\d+`)
	nonAlnum  = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	nullWords = map[string]bool{"": true, "null": true, "none": true, "n/a": true, "na": true, "unknown": true, "not provided": true, "not specified": true}
	stopWords = map[string]bool{
		"the": true, "and": true, "for": true, "with": true, "near": true, "from": true,
		"that": true, "this": true, "was": true, "are": true, "has": true, "have": true,
		"not": true, "but": true, "his": true, "her": true, "its": true, "our": true,
		"their": true, "there": true, "about": true, "into": true, "onto": true, "also": true,
	}
)

// Sanitize keeps only the declared fields of raw, coerces each value to its
// declared type, and nulls every value the user text does not support. The
// result has an entry, possibly nil, for every schema field.
func Sanitize(raw map[string]any, schema *Schema, userText string) domain.CaseDraft {
	ev := newEvidence(userText)
	draft := make(domain.CaseDraft, len(schema.Fields))
	for _, f := range schema.Fields {
		draft[f.Name] = nil
		v, ok := raw[f.Name]
		if !ok {
			continue
		}
		c := coerce(v, f)
		if c == nil {
			continue
		}
		if !f.Derived && !ev.supports(c) {
			continue
		}
		draft[f.Name] = c
	}
	return draft
}

func coerce(v any, f Field) any {
	switch f.Type {
	case Integer:
		return coerceInt(v)
	default:
		s, ok := coerceString(v)
		if !ok {
			return nil
		}
		if len(f.Enum) > 0 {
			return matchEnum(s, f.Enum)
		}
		return s
	}
}

func coerceString(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	if nullWords[strings.ToLower(s)] {
		return "", false
	}
	return s, true
}

func coerceInt(v any) any {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) || math.IsNaN(t) {
			return nil
		}
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return nil
		}
		return n
	}
	return nil
}

func matchEnum(s string, enum []string) any {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '/' {
			return '_'
		}
		return r
	}, key)
	for _, e := range enum {
		if e == key {
			return e
		}
	}
	return nil
}

// evidence indexes the user's words for traceability checks.
type evidence struct {
	normalized string
	tokens     map[string]bool
	digits     string
	numbers    map[string]bool
}

func newEvidence(text string) *evidence {
	ev := &evidence{
		normalized: normalize(text),
		tokens:     map[string]bool{},
		numbers:    map[string]bool{},
	}
	for _, tok := range strings.Fields(ev.normalized) {
		ev.tokens[tok] = true
	}
	for _, n := range digitRun.FindAllString(text, -1) {
		ev.numbers[strings.TrimLeft(n, "0")] = true
	}
	ev.digits = onlyDigits(text)
	return ev
}

func (ev *evidence) supports(v any) bool {
	switch t := v.(type) {
	case int:
		return ev.numbers[strings.TrimLeft(strconv.Itoa(t), "0")]
	case string:
		return ev.supportsString(t)
	}
	return false
}

func (ev *evidence) supportsString(s string) bool {
	norm := normalize(s)
	if norm == "" {
		return false
	}
	if strings.Contains(" "+ev.normalized+" ", " "+norm+" ") {
		return true
	}
	// Phone numbers and similar may be punctuated differently.
	if !hasLetter(s) {
		d := onlyDigits(s)
		return len(d) >= 3 && strings.Contains(ev.digits, d)
	}
	significant := 0
	for _, tok := range strings.Fields(norm) {
		if !isSignificant(tok) {
			continue
		}
		significant++
		if !ev.tokens[tok] {
			return false
		}
	}
	return significant > 0
}

func isSignificant(tok string) bool {
	if stopWords[tok] {
		return false
	}
	if len([]rune(tok)) >= 3 {
		return true
	}
	for _, r := range tok {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.TrimSpace(nonAlnum.ReplaceAllString(strings.ToLower(s), " "))
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
