package subtitle

import "golang.org/x/text/language"

// Reader is the interface for reading subtitle files
type Reader interface {
	Read() (*File, error)
}

// Writer is the interface for writing subtitle files
type Writer interface {
	Write(path string, content string) error
}

// Entry is one subtitle block. All fields are kept verbatim as opaque text;
// a body that spanned several lines is joined with single spaces.
type Entry struct {
	Label  string `json:"label"`  // ordinal line, never parsed as a number
	Timing string `json:"timing"` // timing line, never parsed into durations
	Text   string `json:"text"`
}

// File represents a parsed subtitle file
type File struct {
	Path     string
	Entries  []Entry
	Language language.Tag
	Format   string // always SRT for now
}
