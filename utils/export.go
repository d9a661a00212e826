package utils

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"

	"github.com/aquasecurity/vuln-search/nvd"
)

const unknownYear = "unknown"

// SaveRecords writes each record to <dir>/<product>/<year>/<id>.json, where
// year comes from the CVE id. It returns the written paths.
func (fs Fs) SaveRecords(dir, product string, records []nvd.Record) ([]string, error) {
	var paths []string
	for _, record := range records {
		path := filepath.Join(dir, SafeName(product), cveYear(record.ID), fmt.Sprintf("%s.json", strings.ReplaceAll(record.ID, "/", "_")))
		written, err := fs.WriteJSON(path, record)
		if err != nil {
			return nil, xerrors.Errorf("failed to save %s: %w", record.ID, err)
		}
		paths = append(paths, written)
	}
	return paths, nil
}

func cveYear(id string) string {
	s := strings.Split(id, "-")
	if len(s) < 3 || len(s[1]) != 4 {
		return unknownYear
	}
	return s[1]
}
