// Package walk inspects the content of upload folders.
package walk

import (
	"context"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// Entry is a regular file found in a folder
type Entry struct {
	Path string // prefixed with the folder name
	Info fs.FileInfo
}

// Files recursively walks dir and returns every regular file found, or an
// error if file information retrieval fails. It does not follow symlinks.
func Files(ctx context.Context, dir string) iter.Seq2[Entry, error] {
	root := os.DirFS(dir)
	return func(yield func(Entry, error) bool) {
		fn := func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return fs.SkipAll
			}
			entry := Entry{Path: filepath.Join(dir, path)}
			if err != nil {
				if !yield(entry, err) {
					return fs.SkipAll
				}
				return nil
			}
			info, err := d.Info()
			if err == nil && !info.Mode().IsRegular() {
				return nil
			}
			entry.Info = info
			if !yield(entry, err) {
				return fs.SkipAll
			}
			return nil
		}
		_ = fs.WalkDir(root, ".", fn)
	}
}

var imageExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".bmp":  {},
	".webp": {},
	".tif":  {},
	".tiff": {},
}

// IsImage reports whether path has an image extension
func IsImage(path string) bool {
	_, ok := imageExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Survey summarizes a folder before it is uploaded
type Survey struct {
	Folder string
	Files  int
	Images int
	Bytes  int64 // size of images
	Errors int   // unreadable entries
}

// SurveyFolder counts the files and images under dir. A canceled context
// returns a partial survey and the context error.
func SurveyFolder(ctx context.Context, dir string) (Survey, error) {
	s := Survey{Folder: dir}
	for entry, err := range Files(ctx, dir) {
		if err != nil {
			s.Errors++
			continue
		}
		s.Files++
		if IsImage(entry.Path) {
			s.Images++
			s.Bytes += entry.Info.Size()
		}
	}
	return s, ctx.Err()
}
