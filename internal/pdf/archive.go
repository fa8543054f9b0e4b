package pdf

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// zipFiles packs the given files flat into a zip archive at zipPath.
func zipFiles(paths []string, zipPath string) error {
	f, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for _, path := range paths {
		if err := addToZip(w, path); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

func addToZip(w *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	dst, err := w.Create(filepath.Base(path))
	if err != nil {
		return fmt.Errorf("add %s to archive: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("write %s to archive: %w", path, err)
	}
	return nil
}
