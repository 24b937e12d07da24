package subtitle

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

const formatSRT = "SRT"

// ErrUnsupportedFormat is returned for files without an .srt extension.
var ErrUnsupportedFormat = errors.New("only SRT format subtitle files are supported")

// DefaultReader is the default subtitle file reader
type DefaultReader struct {
	path string
}

// NewReader creates a new subtitle file reader
func NewReader(path string) Reader {
	return &DefaultReader{
		path: path,
	}
}

// IsSRT reports whether path carries an .srt extension.
func IsSRT(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".srt")
}

// Read loads and parses the subtitle file.
func (r *DefaultReader) Read() (*File, error) {
	if !IsSRT(r.path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, r.path)
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("subtitle file does not exist: %s: %w", r.path, err)
		}
		return nil, fmt.Errorf("failed to read subtitle file: %w", err)
	}

	return ReadBytes(data, r.path), nil
}

// ReadBytes parses subtitle content that is already in memory.
func ReadBytes(data []byte, path string) *File {
	entries := Parse(string(data))
	return &File{
		Path:     path,
		Entries:  entries,
		Language: DetectLanguage(entries),
		Format:   formatSRT,
	}
}

// DetectLanguage returns the language most entries are written in.
func DetectLanguage(entries []Entry) language.Tag {
	if len(entries) == 0 {
		return language.Und
	}

	votes := make(map[string]int)
	for _, e := range entries {
		code := whatlanggo.DetectLang(e.Text).Iso6391()
		if code == "" {
			continue
		}
		votes[code]++
	}

	var topLang string
	var topCount int
	for code, count := range votes {
		// ties resolve alphabetically so the result is stable
		if count > topCount || (count == topCount && code < topLang) {
			topLang = code
			topCount = count
		}
	}
	if topLang == "" {
		return language.Und
	}

	return language.All.Make(topLang)
}
