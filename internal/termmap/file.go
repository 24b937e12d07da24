package termmap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
)

// Filename names the term map for a language pair. Only the base language
// counts, so pt-BR and pt share term_map.en-pt.json.
func Filename(source, target language.Tag) string {
	return "term_map." + baseCode(source) + "-" + baseCode(target) + ".json"
}

// Find returns the closest term map for the pair in dir or any parent.
func Find(dir string, source, target language.Tag) (string, bool) {
	name := Filename(source, target)
	for current := filepath.Clean(dir); ; {
		candidate := filepath.Join(current, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent
	}
}

// Load reads a JSON object of source to target terms. Keys and values are
// trimmed and pairs with an empty side are dropped.
func Load(path string) (TermMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid term map %s: %w", path, err)
	}

	tm := make(TermMap, len(raw))
	for source, target := range raw {
		source = strings.TrimSpace(source)
		target = strings.TrimSpace(target)
		if source == "" || target == "" {
			continue
		}
		tm[source] = target
	}
	return tm, nil
}

func baseCode(tag language.Tag) string {
	base, _ := tag.Base()
	return base.String()
}
