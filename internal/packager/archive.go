package packager

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"

	"github.com/NikitaCOEUR/pylambda/internal/errors"
)

// Archive zips the contents of dir into dest. Entry names are relative to dir
// and file modes are preserved.
func Archive(dir, dest string) (err error) {
	zipFile, err := os.Create(dest)
	if err != nil {
		return errors.NewPackagingError(dest, "failed to create archive", err)
	}
	defer func() {
		if closeErr := zipFile.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(dest)
		}
	}()

	zipWriter := zip.NewWriter(zipFile)
	defer func() {
		if closeErr := zipWriter.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	walkErr := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		relPath, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return fmt.Errorf("failed to get relative path: %w", relErr)
		}
		if relPath == "." {
			return nil
		}
		zipPath := filepath.ToSlash(relPath)

		info, infoErr := d.Info()
		if infoErr != nil {
			return fmt.Errorf("failed to get file info: %w", infoErr)
		}

		header, headerErr := zip.FileInfoHeader(info)
		if headerErr != nil {
			return fmt.Errorf("failed to create file header: %w", headerErr)
		}

		if d.IsDir() {
			header.Name = zipPath + "/"
			_, createErr := zipWriter.CreateHeader(header)
			return createErr
		}
		if !d.Type().IsRegular() {
			return nil
		}

		header.Name = zipPath
		header.Method = zip.Deflate

		writer, writerErr := zipWriter.CreateHeader(header)
		if writerErr != nil {
			return fmt.Errorf("failed to create zip entry: %w", writerErr)
		}

		f, openErr := os.Open(path)
		if openErr != nil {
			return fmt.Errorf("failed to open %s: %w", path, openErr)
		}
		defer f.Close()

		if _, copyErr := io.Copy(writer, f); copyErr != nil {
			return fmt.Errorf("failed to write %s: %w", path, copyErr)
		}
		return nil
	})
	if walkErr != nil {
		return errors.NewPackagingError(dir, "failed to archive bundle", walkErr)
	}
	return nil
}
