package termmap

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Match filters the term map to only terms that appear in the given texts
// as whole words. Matching is case-sensitive, which suits proper nouns.
func Match(tm TermMap, texts []string) MatchResult {
	matched := make(TermMap)

	for source, target := range tm {
		if strings.TrimSpace(source) == "" {
			continue
		}
		for _, text := range texts {
			if containsWord(text, source) {
				matched[source] = target
				break
			}
		}
	}

	return MatchResult{Matched: matched}
}

// ContainsWordFold is the case-insensitive form of the whole-word match.
func ContainsWordFold(text, term string) bool {
	return containsWord(strings.ToLower(text), strings.ToLower(term))
}

func containsWord(text, term string) bool {
	if term == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(term)
	last, _ := utf8.DecodeLastRuneInString(term)

	for offset := 0; offset < len(text); {
		idx := strings.Index(text[offset:], term)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(term)

		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !joins(before, first)) && (end == len(text) || !joins(last, after)) {
			return true
		}
		offset = start + 1
	}
	return false
}

// joins reports whether two adjacent runes belong to the same word.
// Scripts written without spaces never join, so their terms match anywhere.
func joins(a, b rune) bool {
	return isWordRune(a) && isWordRune(b)
}

func isWordRune(r rune) bool {
	if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Thai) {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
