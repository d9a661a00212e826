package cpe

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/vuln-search/nvd"
)

const concreteLimit = 2

// Fetcher searches the CPE dictionary by keyword.
type Fetcher interface {
	FetchCPEs(ctx context.Context, keyword string) ([]nvd.Product, error)
}

type options struct {
	limit  int
	logger *zap.Logger
}

type option func(*options)

// WithLimit sets how many concrete CPE names are kept besides the wildcard.
func WithLimit(limit int) option {
	return func(opts *options) { opts.limit = limit }
}

func WithLogger(logger *zap.Logger) option {
	return func(opts *options) { opts.logger = logger }
}

type Resolver struct {
	fetcher Fetcher
	*options
}

func NewResolver(fetcher Fetcher, opts ...option) Resolver {
	o := &options{
		limit:  concreteLimit,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.limit < 1 {
		o.limit = concreteLimit
	}
	return Resolver{
		fetcher: fetcher,
		options: o,
	}
}

type candidate struct {
	id      Identifier
	name    string
	created time.Time
}

// Resolve returns the CPE names to query for an application name: a version
// wildcard built from the most recently created match, followed by the most
// recent concrete matches. It returns an empty slice when nothing matches.
func (r Resolver) Resolve(ctx context.Context, name string) ([]string, error) {
	products, err := r.fetcher.FetchCPEs(ctx, name)
	if err != nil {
		return nil, nvd.ResolutionError(xerrors.Errorf("CPE dictionary search for %q failed: %w", name, err))
	}

	candidates := matchProducts(products, name)
	if len(candidates) == 0 {
		r.logger.Info("No CPE matched", zap.String("name", name), zap.Int("products", len(products)))
		return []string{}, nil
	}

	// undated products have a zero created time and end up last
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return b.created.Compare(a.created)
	})
	if len(candidates) > r.limit {
		candidates = candidates[:r.limit]
	}

	names := make([]string, 0, len(candidates)+1)
	names = append(names, candidates[0].id.Wildcard().String())
	names = append(names, lo.Map(candidates, func(c candidate, _ int) string {
		return c.name
	})...)

	r.logger.Info("Resolved CPEs", zap.String("name", name), zap.Strings("cpes", names))
	return names, nil
}

func matchProducts(products []nvd.Product, name string) []candidate {
	var candidates []candidate
	for _, p := range products {
		id, err := Parse(p.Name)
		if err != nil {
			continue
		}
		if p.Deprecated || !id.IsApplication() || !id.ProductMatches(name) || !id.IsConcrete() {
			continue
		}
		c := candidate{id: id, name: p.Name}
		if p.Created != nil {
			c.created = *p.Created
		}
		candidates = append(candidates, c)
	}
	return lo.UniqBy(candidates, func(c candidate) string {
		return c.name
	})
}
