package config

import (
	"strings"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/aquasecurity/vuln-search/search"
)

// ProductList is a batch of searches, typically downloaded with -products.
type ProductList struct {
	Products []Product `yaml:"products"`
}

// Product is one entry of a ProductList. Strategy defaults to multi.
type Product struct {
	Name       string `yaml:"name"`
	Strategy   string `yaml:"strategy"`
	Vendor     string `yaml:"vendor"`
	Product    string `yaml:"product"`
	Version    string `yaml:"version"`
	DaysBack   int    `yaml:"daysBack"`
	MaxResults int    `yaml:"maxResults"`
}

func ParseProductList(b []byte) (ProductList, error) {
	var list ProductList
	if err := yaml.UnmarshalStrict(b, &list); err != nil {
		return ProductList{}, xerrors.Errorf("failed to parse product list: %w", err)
	}
	for i, p := range list.Products {
		if strings.TrimSpace(p.Name) == "" {
			return ProductList{}, xerrors.Errorf("product #%d has no name", i)
		}
	}
	return list, nil
}

// Request turns p into a search request.
func (p Product) Request() (search.Request, error) {
	strategy, err := search.ParseStrategy(p.Strategy, p.Vendor, p.Product)
	if err != nil {
		return search.Request{}, xerrors.Errorf("product %s: %w", p.Name, err)
	}
	return search.Request{
		ProductName: p.Name,
		Version:     p.Version,
		Strategy:    strategy,
		DaysBack:    p.DaysBack,
		MaxResults:  p.MaxResults,
	}, nil
}
