package fetcher

import (
	"archive/zip"
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// MaxZIPEntrySize caps the uncompressed size read from an archive entry.
const MaxZIPEntrySize = 256 << 20

// ReadZIPSingle returns the name and contents of the only file in the archive
// whose extension is in exts (all files when exts is empty).
func ReadZIPSingle(zipPath string, exts ...string) (string, []byte, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", nil, eris.Wrap(err, "fetcher: zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var match *zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !hasExt(f.Name, exts) {
			continue
		}
		if match != nil {
			return "", nil, eris.Errorf("fetcher: zip: more than one candidate (%s, %s)", match.Name, f.Name)
		}
		match = f
	}
	if match == nil {
		return "", nil, eris.Errorf("fetcher: zip: no entry with extension %v", exts)
	}

	rc, err := match.Open()
	if err != nil {
		return "", nil, eris.Wrap(err, "fetcher: zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(rc, MaxZIPEntrySize+1))
	if err != nil {
		return "", nil, eris.Wrap(err, "fetcher: zip: read entry")
	}
	if len(data) > MaxZIPEntrySize {
		return "", nil, eris.Errorf("fetcher: zip: entry %s exceeds %d bytes", match.Name, MaxZIPEntrySize)
	}
	return filepath.Base(match.Name), data, nil
}

func hasExt(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
