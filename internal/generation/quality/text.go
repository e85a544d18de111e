package quality

import (
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"about": true, "after": true, "also": true, "been": true, "before": true,
	"being": true, "could": true, "does": true, "each": true, "from": true,
	"have": true, "into": true, "just": true, "like": true, "make": true,
	"more": true, "most": true, "only": true, "other": true, "over": true,
	"please": true, "should": true, "some": true, "such": true, "than": true,
	"that": true, "their": true, "them": true, "then": true, "there": true,
	"these": true, "they": true, "this": true, "those": true, "very": true,
	"want": true, "what": true, "when": true, "where": true, "which": true,
	"while": true, "will": true, "with": true, "would": true, "write": true,
	"your": true,
}

// words splits on anything that is not a letter, digit, apostrophe or hyphen.
func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-')
	})
}

func sentences(s string) []string {
	raw := strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	out := raw[:0]
	for _, r := range raw {
		if t := strings.TrimSpace(r); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// keywords returns the distinct significant words of s, in first-seen order.
func keywords(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range words(strings.ToLower(s)) {
		w = strings.Trim(w, "'-")
		if len(w) < 4 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func countOccurrences(lower string, phrases []string) map[string]int {
	hits := make(map[string]int)
	for _, p := range phrases {
		if p == "" {
			continue
		}
		if n := strings.Count(lower, strings.ToLower(p)); n > 0 {
			hits[p] = n
		}
	}
	return hits
}

func isShouting(w string) bool {
	letters := 0
	for _, r := range w {
		if !unicode.IsLetter(r) {
			continue
		}
		if !unicode.IsUpper(r) {
			return false
		}
		letters++
	}
	return letters >= 4
}
