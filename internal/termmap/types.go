package termmap

import (
	"sort"
	"strings"
)

// TermMap maps source language terms to target language terms.
type TermMap map[string]string

// MatchResult holds terms that matched against input texts.
type MatchResult struct {
	Matched TermMap
}

// Prompt renders the terms one per line as "source => target", sorted by
// source term.
func (tm TermMap) Prompt() string {
	sources := make([]string, 0, len(tm))
	for source := range tm {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	var sb strings.Builder
	for i, source := range sources {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("- ")
		sb.WriteString(source)
		sb.WriteString(" => ")
		sb.WriteString(tm[source])
	}
	return sb.String()
}
