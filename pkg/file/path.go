package file

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
)

// fallbackLangCode names outputs whose target language is undetermined.
const fallbackLangCode = "translated"

func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}

	dir := filepath.Dir(path)
	filename := filepath.Base(path)

	lastDot := strings.LastIndex(filename, ".")

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	if lastDot <= 0 {
		return filepath.Join(dir, filename+ext)
	}

	return filepath.Join(dir, filename[:lastDot]+ext)
}

// LangCode returns the short code used in output names, e.g. "ja" for
// ja-JP. Undetermined tags map to "translated".
func LangCode(tag language.Tag) string {
	base, confidence := tag.Base()
	if tag == language.Und || confidence == language.No {
		return fallbackLangCode
	}
	return base.String()
}

// TranslatedPath names the output for input as <base>.<lang>.srt, placed
// next to the input unless outDir is set.
//
//	TranslatedPath("/m/ep1.srt", language.Japanese, "") == "/m/ep1.ja.srt"
func TranslatedPath(input string, tag language.Tag, outDir string) string {
	name := filepath.Base(input)
	if strings.EqualFold(filepath.Ext(name), ".srt") {
		name = name[:len(name)-len(".srt")]
	}
	name += "." + LangCode(tag) + ".srt"

	dir := filepath.Dir(input)
	if strings.TrimSpace(outDir) != "" {
		dir = outDir
	}
	return filepath.Join(dir, name)
}

// IsTranslatedFor reports whether path already carries the output suffix
// for tag, so scans do not translate their own results.
func IsTranslatedFor(path string, tag language.Tag) bool {
	suffix := "." + LangCode(tag) + ".srt"
	return strings.HasSuffix(strings.ToLower(filepath.Base(path)), suffix)
}
