package search

import (
	"strings"

	"golang.org/x/xerrors"

	"github.com/aquasecurity/vuln-search/cpe"
	"github.com/aquasecurity/vuln-search/nvd"
)

const (
	DefaultDaysBack   = 60
	DefaultMaxResults = 5

	ApplicationDaysBack = 90
	RecentDaysBack      = 30
	RecentMaxResults    = 3

	// MaxDaysBack is the widest publication window NVD accepts in one query.
	MaxDaysBack = 120
)

type strategyKind int

const (
	kindApplication strategyKind = iota + 1
	kindOperatingSystem
	kindKeyword
	kindMultiIdentifier
)

// Strategy selects how a product name is turned into feed queries.
type Strategy struct {
	kind    strategyKind
	vendor  string
	product string
}

// ByApplication queries a single application CPE built from vendor and
// product. An empty product falls back to the request's product name.
func ByApplication(vendor, product string) Strategy {
	return Strategy{kind: kindApplication, vendor: vendor, product: product}
}

// ByOperatingSystem queries a single operating system CPE.
func ByOperatingSystem(vendor, os string) Strategy {
	return Strategy{kind: kindOperatingSystem, vendor: vendor, product: os}
}

// ByKeyword runs one keyword search with the product name.
func ByKeyword() Strategy {
	return Strategy{kind: kindKeyword}
}

// ByMultiIdentifier resolves the product name to several CPEs and merges
// their results.
func ByMultiIdentifier() Strategy {
	return Strategy{kind: kindMultiIdentifier}
}

// ParseStrategy maps a strategy name as used on the command line and in
// query strings to a Strategy.
func ParseStrategy(name, vendor, product string) (Strategy, error) {
	switch strings.ToLower(name) {
	case "", "multi":
		return ByMultiIdentifier(), nil
	case "application", "app":
		return ByApplication(vendor, product), nil
	case "os":
		return ByOperatingSystem(vendor, product), nil
	case "keyword":
		return ByKeyword(), nil
	}
	return Strategy{}, nvd.InvalidRequestError(xerrors.Errorf("unknown strategy: %q", name))
}

func (s Strategy) String() string {
	switch s.kind {
	case kindApplication:
		return "application"
	case kindOperatingSystem:
		return "os"
	case kindKeyword:
		return "keyword"
	case kindMultiIdentifier:
		return "multi"
	}
	return "unknown"
}

// Request describes one search. Zero DaysBack and MaxResults mean the
// defaults, so a zero MaxResults returns up to DefaultMaxResults records.
// Surfaces taking user input reject explicit values below 1 before building
// a Request.
type Request struct {
	ProductName string
	Version     string
	Strategy    Strategy
	DaysBack    int
	MaxResults  int
}

type RequestOption func(*Request)

func WithDaysBack(days int) RequestOption {
	return func(r *Request) { r.DaysBack = days }
}

func WithMaxResults(n int) RequestOption {
	return func(r *Request) { r.MaxResults = n }
}

func WithVersion(version string) RequestOption {
	return func(r *Request) { r.Version = version }
}

func (r Request) withDefaults() Request {
	r.ProductName = strings.TrimSpace(r.ProductName)
	r.Version = strings.TrimSpace(r.Version)
	if r.DaysBack == 0 {
		r.DaysBack = DefaultDaysBack
	}
	if r.MaxResults == 0 {
		r.MaxResults = DefaultMaxResults
	}
	return r
}

func (r Request) validate() error {
	switch {
	case r.ProductName == "":
		return nvd.InvalidRequestError(xerrors.New("empty product name"))
	case r.Strategy.kind == 0:
		return nvd.InvalidRequestError(xerrors.New("no search strategy"))
	case r.DaysBack < 0 || r.DaysBack > MaxDaysBack:
		return nvd.InvalidRequestError(xerrors.Errorf("days back must be between 1 and %d: %d", MaxDaysBack, r.DaysBack))
	case r.MaxResults < 0:
		return nvd.InvalidRequestError(xerrors.Errorf("negative max results: %d", r.MaxResults))
	}
	return nil
}

// identifier builds the CPE name of single-identifier strategies.
func (r Request) identifier() string {
	product := r.Strategy.product
	if product == "" {
		product = r.ProductName
	}
	part := cpe.PartApplication
	if r.Strategy.kind == kindOperatingSystem {
		part = cpe.PartOperatingSystem
	}
	return cpe.New(part, r.Strategy.vendor, product, r.Version).String()
}

func (r Request) keyword() string {
	if r.Version == "" {
		return r.ProductName
	}
	return r.ProductName + " " + r.Version
}
