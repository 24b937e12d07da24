package termmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestFilename(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		target   string
		expected string
	}{
		{"simple codes", "en", "zh", "term_map.en-zh.json"},
		{"regions dropped", "zh-CN", "en-US", "term_map.zh-en.json"},
		{"script dropped", "en", "zh-Hant", "term_map.en-zh.json"},
		{"Brazilian Portuguese", "en", "pt-BR", "term_map.en-pt.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Filename(language.MustParse(tt.source), language.MustParse(tt.target))
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestFind(t *testing.T) {
	// root/
	//   term_map.en-zh.json
	//   season1/
	//     episode1/
	root := t.TempDir()
	season1 := filepath.Join(root, "season1")
	episode1 := filepath.Join(season1, "episode1")
	require.NoError(t, os.MkdirAll(episode1, 0o755))

	tmPath := filepath.Join(root, "term_map.en-zh.json")
	require.NoError(t, os.WriteFile(tmPath, []byte(`{"hello":"world"}`), 0o644))

	for _, dir := range []string{episode1, season1, root} {
		found, ok := Find(dir, language.English, language.Chinese)
		assert.True(t, ok, dir)
		assert.Equal(t, tmPath, found)
	}

	_, ok := Find(episode1, language.English, language.Japanese)
	assert.False(t, ok)
}

func TestFind_ClosestWins(t *testing.T) {
	root := t.TempDir()
	child := filepath.Join(root, "child")
	require.NoError(t, os.MkdirAll(child, 0o755))

	rootTm := filepath.Join(root, "term_map.en-zh.json")
	childTm := filepath.Join(child, "term_map.en-zh.json")
	require.NoError(t, os.WriteFile(rootTm, []byte(`{"a":"b"}`), 0o644))
	require.NoError(t, os.WriteFile(childTm, []byte(`{"c":"d"}`), 0o644))

	found, ok := Find(child, language.English, language.Chinese)
	require.True(t, ok)
	assert.Equal(t, childTm, found)
}

func TestFind_SkipsDirectoryWithMapName(t *testing.T) {
	root := t.TempDir()
	child := filepath.Join(root, "child")
	require.NoError(t, os.MkdirAll(filepath.Join(child, "term_map.en-ja.json"), 0o755))
	rootTm := filepath.Join(root, "term_map.en-ja.json")
	require.NoError(t, os.WriteFile(rootTm, []byte(`{}`), 0o644))

	found, ok := Find(child, language.English, language.Japanese)
	require.True(t, ok)
	assert.Equal(t, rootTm, found)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "term_map.en-zh.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "Momo Ayase": "绫濑桃",
  " Okarun ": " 奥卡轮",
  "Turbo Granny": "  ",
  "": "空"
}`), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, TermMap{"Momo Ayase": "绫濑桃", "Okarun": "奥卡轮"}, loaded)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/term_map.json")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_InvalidJSON(t *testing.T) {
	tests := map[string]string{
		"not json": "not json",
		"array":    `["a","b"]`,
		"nested":   `{"a":{"b":"c"}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid term map")
		})
	}
}
