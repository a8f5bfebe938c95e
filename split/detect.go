package split

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// isArchiveFile reports whether file content looks like a zip archive.
// Extension alone is not trusted - exports are often mislabeled when pulled
// from ticketing systems.
func isArchiveFile(fname string) (bool, error) {
	f, err := os.Open(fname)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, 262)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return false, err
	}
	return filetype.Is(head[:n], "zip"), nil
}

// isExportFile matches files we consider XML exports by extension.
func isExportFile(fname string) bool {
	return strings.EqualFold(filepath.Ext(fname), ".xml")
}

func isExportInArchive(f *zip.File) bool {
	return strings.EqualFold(path.Ext(f.FileHeader.Name), ".xml")
}
