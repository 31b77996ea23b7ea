// Package textfilter softens strong language in narrator replies for lower
// content ratings.
package textfilter

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Rating is a content rating.
type Rating string

const (
	RatingG    Rating = "G"
	RatingPG   Rating = "PG"
	RatingPG13 Rating = "PG-13"
	RatingR    Rating = "R"
)

// replacements maps strong words to milder ones that keep the sci-fi tone.
var replacements = map[string]string{
	"fuck":         "frak",
	"fucking":      "frakking",
	"motherfucker": "mother-frakker",
	"shit":         "slag",
	"bullshit":     "space junk",
	"damn":         "blast",
	"goddamn":      "void-cursed",
	"hell":         "heck",
	"ass":          "hide",
	"asshole":      "jerk",
	"bitch":        "jerk",
	"bastard":      "scoundrel",
	"crap":         "scrap",
	"piss":         "spill",
	"dick":         "jerk",
	"prick":        "jerk",
	"douchebag":    "jerk",
}

// Filter replaces strong words with milder ones, keeping the original casing.
// It is safe for concurrent use.
type Filter struct {
	pattern *regexp.Regexp
}

// New builds a filter over the built-in replacement table.
func New() *Filter {
	words := make([]string, 0, len(replacements))
	for w := range replacements {
		words = append(words, regexp.QuoteMeta(w))
	}
	// longest first so "bullshit" wins over "shit"
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})

	return &Filter{
		pattern: regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)\b`),
	}
}

// ForRating returns a filter when rating calls for one, nil otherwise.
func ForRating(rating Rating) *Filter {
	if !ShouldFilter(rating) {
		return nil
	}
	return New()
}

// ShouldFilter reports whether replies at this rating are softened.
func ShouldFilter(rating Rating) bool {
	switch Rating(strings.ToUpper(strings.TrimSpace(string(rating)))) {
	case RatingG, RatingPG, RatingPG13, "PG13":
		return true
	default:
		return false
	}
}

// Apply returns text with every listed word replaced. A nil filter returns text unchanged.
func (f *Filter) Apply(text string) string {
	if f == nil || text == "" {
		return text
	}
	return f.pattern.ReplaceAllStringFunc(text, func(match string) string {
		return matchCase(match, replacements[strings.ToLower(match)])
	})
}

// Contains reports whether text has any listed word.
func (f *Filter) Contains(text string) bool {
	if f == nil {
		return false
	}
	return f.pattern.MatchString(text)
}

func matchCase(original, replacement string) string {
	// Casers are stateful, so each call gets its own.
	title := cases.Title(language.English)
	switch {
	case strings.ToUpper(original) == original:
		return strings.ToUpper(replacement)
	case strings.ToLower(original) == original:
		return replacement
	case title.String(strings.ToLower(original)) == original:
		return title.String(replacement)
	}

	orig := []rune(original)
	out := []rune(replacement)
	for i := range out {
		if i < len(orig) && unicode.IsUpper(orig[i]) {
			out[i] = unicode.ToUpper(out[i])
		} else {
			out[i] = unicode.ToLower(out[i])
		}
	}
	return string(out)
}
