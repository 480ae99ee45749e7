// Package zip bundles generated media into a single archive download.
package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Entry is one file in the archive. Open is called lazily so large files are
// streamed rather than buffered.
type Entry struct {
	Filename string
	Modified time.Time
	Open     func() (io.ReadCloser, error)
}

// Write streams entries into w as a zip archive. Duplicate names get a
// numeric suffix.
func Write(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	used := make(map[string]int, len(entries))
	for _, entry := range entries {
		name := uniqueName(used, entry.Filename)
		hdr := &zip.FileHeader{Name: name, Method: zip.Store, Modified: entry.Modified}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("zip: create %s: %w", name, err)
		}
		rc, err := entry.Open()
		if err != nil {
			return fmt.Errorf("zip: open %s: %w", name, err)
		}
		_, err = io.Copy(fw, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("zip: write %s: %w", name, err)
		}
	}
	return zw.Close()
}

func uniqueName(used map[string]int, name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	n := used[name]
	used[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n, ext)
}
