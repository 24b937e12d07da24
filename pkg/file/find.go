package file

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

func FindRecentAfter(dir string, startTime time.Time) ([]string, error) {
	var recentFiles []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo,
		err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && info.ModTime().After(startTime) {
			recentFiles = append(recentFiles, path)
		}
		return nil
	})

	return recentFiles, err
}

// FindSubtitles returns the .srt files under dir modified after startTime,
// sorted by path.
func FindSubtitles(dir string, startTime time.Time) ([]string, error) {
	recent, err := FindRecentAfter(dir, startTime)
	if err != nil {
		return nil, err
	}

	ret := make([]string, 0, len(recent))
	for _, path := range recent {
		if strings.EqualFold(filepath.Ext(path), ".srt") {
			ret = append(ret, path)
		}
	}
	sort.Strings(ret)
	return ret, nil
}
