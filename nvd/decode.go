package nvd

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/xerrors"
)

var jsonNull = []byte("null")

// DecodeCPEPage decodes a CPE dictionary response body. Malformed products are
// skipped; only a malformed envelope fails the whole page.
func DecodeCPEPage(body []byte) (CPEPage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return CPEPage{}, nil
	}
	if bytes.Equal(body, jsonNull) {
		return CPEPage{}, newError(KindEmptyResponse, "", nil)
	}

	var env cpeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return CPEPage{}, newError(KindDecodeFailure, "", xerrors.Errorf("failed to decode CPE response: %w", err))
	}
	if env.Products == nil && env.TotalResults > 0 {
		return CPEPage{}, newError(KindEmptyResponse, "", xerrors.Errorf("%d products reported but none returned", env.TotalResults))
	}

	page := CPEPage{
		ResultsPerPage: env.ResultsPerPage,
		StartIndex:     env.StartIndex,
		TotalResults:   env.TotalResults,
	}
	for _, raw := range env.Products {
		var p cpeProduct
		if err := json.Unmarshal(raw, &p); err != nil || p.CPE.CPEName == "" {
			page.Skipped++
			continue
		}
		page.Products = append(page.Products, Product{
			Name:       p.CPE.CPEName,
			Created:    parseTime(p.CPE.Created),
			Deprecated: p.CPE.Deprecated,
		})
	}
	return page, nil
}

// DecodeCVEPage decodes a CVE feed response body. Entries without an id are
// skipped. The cve object of every kept entry is preserved as is.
func DecodeCVEPage(body []byte) (CVEPage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return CVEPage{}, nil
	}
	if bytes.Equal(body, jsonNull) {
		return CVEPage{}, newError(KindEmptyResponse, "", nil)
	}

	var env cveEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return CVEPage{}, newError(KindDecodeFailure, "", xerrors.Errorf("failed to decode CVE response: %w", err))
	}
	if env.Vulnerabilities == nil && env.TotalResults > 0 {
		return CVEPage{}, newError(KindEmptyResponse, "", xerrors.Errorf("%d vulnerabilities reported but none returned", env.TotalResults))
	}

	page := CVEPage{
		ResultsPerPage: env.ResultsPerPage,
		StartIndex:     env.StartIndex,
		TotalResults:   env.TotalResults,
	}
	for _, raw := range env.Vulnerabilities {
		record, ok := decodeRecord(raw)
		if !ok {
			page.Skipped++
			continue
		}
		page.Records = append(page.Records, record)
	}
	return page, nil
}

func decodeRecord(raw json.RawMessage) (Record, bool) {
	var item cveItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return Record{}, false
	}
	if len(item.CVE) == 0 || bytes.Equal(item.CVE, jsonNull) {
		return Record{}, false
	}

	var h cveHeader
	if err := json.Unmarshal(item.CVE, &h); err != nil || h.ID == "" {
		return Record{}, false
	}
	return Record{
		ID:        h.ID,
		Published: parseTime(h.Published),
		Raw:       item.CVE,
	}, true
}

// parseTime returns nil when raw is missing, not a JSON string or not a
// recognizable timestamp. NVD sends timestamps without a zone; they are UTC.
func parseTime(raw json.RawMessage) *time.Time {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
