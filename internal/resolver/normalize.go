package resolver

import (
	"regexp"
	"strings"
)

var (
	punctuation = regexp.MustCompile(`[^\w\s]`)
	fillerWords = regexp.MustCompile(`\b(the|a|an|our|main|primary|secondary)\b`)
)

// Key lower-cases and trims s. It is the form every registry name, part
// number and alias is stored under.
func Key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// simplify removes punctuation and trailing plural s characters from a key:
// "hp-pumps." becomes "hppump".
func simplify(key string) string {
	s := punctuation.ReplaceAllString(key, "")
	s = strings.TrimRight(s, "s")
	return strings.TrimSpace(s)
}

// stripFiller removes articles and qualifiers such as "main" or "primary".
// Interior whitespace left behind is not collapsed.
func stripFiller(key string) string {
	return strings.TrimSpace(fillerWords.ReplaceAllString(key, ""))
}

// candidates returns the lookup keys tried for a mention, in order.
func candidates(mention string) []string {
	key := Key(mention)
	if key == "" {
		return nil
	}
	return []string{key, simplify(key), stripFiller(key)}
}
