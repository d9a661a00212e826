package nvd

import (
	"encoding/json"
	"time"
)

// CPEPage is a page returned by the CPE dictionary endpoint.
type CPEPage struct {
	ResultsPerPage int
	StartIndex     int
	TotalResults   int
	Products       []Product

	// Skipped counts entries dropped because they were malformed.
	Skipped int
}

type Product struct {
	Name    string
	Created *time.Time

	// Deprecated products have been replaced in the dictionary.
	Deprecated bool
}

// CVEPage is a page returned by the CVE feed endpoint.
type CVEPage struct {
	ResultsPerPage int
	StartIndex     int
	TotalResults   int
	Records        []Record

	Skipped int
}

// Record is a single advisory. Raw holds the "cve" object as sent by the feed.
type Record struct {
	ID        string          `json:"id"`
	Published *time.Time      `json:"published,omitempty"`
	Raw       json.RawMessage `json:"cve"`
}

// wire formats

type cpeEnvelope struct {
	ResultsPerPage int               `json:"resultsPerPage"`
	StartIndex     int               `json:"startIndex"`
	TotalResults   int               `json:"totalResults"`
	Products       []json.RawMessage `json:"products"`
}

type cpeProduct struct {
	CPE struct {
		CPEName    string          `json:"cpeName"`
		CPENameID  string          `json:"cpeNameId"`
		Created    json.RawMessage `json:"created"`
		Deprecated bool            `json:"deprecated"`
	} `json:"cpe"`
}

type cveEnvelope struct {
	ResultsPerPage  int               `json:"resultsPerPage"`
	StartIndex      int               `json:"startIndex"`
	TotalResults    int               `json:"totalResults"`
	Vulnerabilities []json.RawMessage `json:"vulnerabilities"`
}

type cveItem struct {
	CVE json.RawMessage `json:"cve"`
}

type cveHeader struct {
	ID        string          `json:"id"`
	Published json.RawMessage `json:"published"`
}
