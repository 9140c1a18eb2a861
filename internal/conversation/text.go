package conversation

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	bulletRE     = regexp.MustCompile(`(?m)^\s*[-•*]+\s+`)
	markupRE     = regexp.MustCompile(`[•*#]+`)
	whitespaceRE = regexp.MustCompile(`\s+`)
	spanishTitle = cases.Title(language.Spanish)
)

// foldText lowercases s and strips diacritics so rules can match "reunión" and "reunion" alike.
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// CleanReply strips list bullets and markdown emphasis, then collapses whitespace.
func CleanReply(s string) string {
	s = bulletRE.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\n", " ")
	s = markupRE.ReplaceAllString(s, "")
	s = whitespaceRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func titleCase(s string) string {
	return spanishTitle.String(strings.TrimSpace(s))
}
