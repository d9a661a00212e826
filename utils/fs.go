package utils

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

const zstdExt = ".zst"

type Fs struct {
	AppFs afero.Fs

	// Compress writes zstd compressed files with a ".zst" suffix.
	Compress bool
}

func NewFs(appFs afero.Fs, compress bool) Fs {
	return Fs{AppFs: appFs, Compress: compress}
}

// WriteJSON writes data as indented JSON to filePath, creating parent
// directories. It returns the path actually written.
func (fs Fs) WriteJSON(filePath string, data interface{}) (string, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", xerrors.Errorf("failed to marshal JSON: %w", err)
	}

	if fs.Compress {
		filePath += zstdExt
	}
	if err = fs.AppFs.MkdirAll(filepath.Dir(filePath), os.ModePerm); err != nil {
		return "", xerrors.Errorf("unable to create a directory: %w", err)
	}

	f, err := fs.AppFs.Create(filePath)
	if err != nil {
		return "", xerrors.Errorf("unable to open a file: %w", err)
	}
	defer f.Close()

	var w io.WriteCloser = nopCloser{f}
	if fs.Compress {
		if w, err = zstd.NewWriter(f); err != nil {
			return "", xerrors.Errorf("failed to create a zstd writer: %w", err)
		}
	}

	if _, err = w.Write(b); err != nil {
		return "", xerrors.Errorf("failed to save a file: %w", err)
	}
	if err = w.Close(); err != nil {
		return "", xerrors.Errorf("failed to flush a file: %w", err)
	}
	return filePath, nil
}

// ReadJSON reads a file written by WriteJSON into v.
func (fs Fs) ReadJSON(filePath string, v interface{}) error {
	f, err := fs.AppFs.Open(filePath)
	if err != nil {
		return xerrors.Errorf("unable to open a file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if filepath.Ext(filePath) == zstdExt {
		d, err := zstd.NewReader(f)
		if err != nil {
			return xerrors.Errorf("failed to create a zstd reader: %w", err)
		}
		defer d.Close()
		r = d
	}

	if err = json.NewDecoder(r).Decode(v); err != nil {
		return xerrors.Errorf("failed to decode JSON: %w", err)
	}
	return nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
