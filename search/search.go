// Package search turns a product name into a ranked list of recent NVD
// vulnerabilities.
package search

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/vuln-search/cpe"
	"github.com/aquasecurity/vuln-search/nvd"
)

// Client is satisfied by nvd.Client.
type Client interface {
	cpe.Fetcher
	Fetcher
}

type options struct {
	stagger  time.Duration
	pageSize int
	logger   *zap.Logger
	metrics  *Metrics
	clock    func() time.Time
}

type option func(*options)

// WithStagger sets the delay between consecutive concurrent feed queries.
func WithStagger(d time.Duration) option {
	return func(opts *options) { opts.stagger = d }
}

// WithPageSize sets resultsPerPage of feed queries. It is clamped to the NVD
// maximum.
func WithPageSize(n int) option {
	return func(opts *options) { opts.pageSize = n }
}

func WithLogger(logger *zap.Logger) option {
	return func(opts *options) { opts.logger = logger }
}

func WithMetrics(m *Metrics) option {
	return func(opts *options) { opts.metrics = m }
}

func WithClock(clock func() time.Time) option {
	return func(opts *options) { opts.clock = clock }
}

// Searcher is the entry point used by schedulers, result stores and
// notifiers. It keeps no state between calls.
type Searcher struct {
	resolver   cpe.Resolver
	dispatcher Dispatcher
	*options
}

func NewSearcher(client Client, opts ...option) *Searcher {
	o := &options{
		stagger:  DefaultStagger,
		pageSize: nvd.MaxResultsPerPage,
		logger:   zap.NewNop(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Searcher{
		resolver:   cpe.NewResolver(client, cpe.WithLogger(o.logger)),
		dispatcher: NewDispatcher(client, o.stagger, o.logger, o.metrics),
		options:    o,
	}
}

// Search runs req and returns at most req.MaxResults vulnerabilities, newest
// first. Errors are *nvd.Error values.
func (s *Searcher) Search(ctx context.Context, req Request) ([]nvd.Record, error) {
	started := time.Now()
	req = req.withDefaults()
	records, err := s.search(ctx, req)
	s.metrics.observeSearch(req.Strategy.String(), len(records), err, time.Since(started))
	if err != nil {
		return nil, err
	}

	s.logger.Info("Search finished",
		zap.String("name", req.ProductName),
		zap.Stringer("strategy", req.Strategy),
		zap.Int("results", len(records)),
	)
	return records, nil
}

func (s *Searcher) search(ctx context.Context, req Request) ([]nvd.Record, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	pubEnd := s.clock().UTC()
	pubStart := pubEnd.AddDate(0, 0, -req.DaysBack)
	query := nvd.CVEQuery{
		PubStart:       pubStart,
		PubEnd:         pubEnd,
		ResultsPerPage: nvd.ClampResultsPerPage(s.pageSize),
	}

	var (
		records []nvd.Record
		err     error
	)
	switch req.Strategy.kind {
	case kindMultiIdentifier:
		var names []string
		names, err = s.resolver.Resolve(ctx, req.ProductName)
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return nil, nvd.ResolutionError(xerrors.Errorf("no application CPE matches %q", req.ProductName))
		}
		queries := lo.Map(names, func(name string, _ int) nvd.CVEQuery {
			q := query
			q.CPEName = name
			return q
		})
		records, err = s.dispatcher.Dispatch(ctx, queries)
	case kindKeyword:
		query.Keyword = req.keyword()
		records, err = s.dispatcher.Single(ctx, query)
	default:
		query.CPEName = req.identifier()
		records, err = s.dispatcher.Single(ctx, query)
	}
	if err != nil {
		return nil, err
	}

	return Aggregate(records, req.MaxResults), nil
}

// SearchByApplication resolves name to CPEs and merges their results. It looks
// back ApplicationDaysBack days and returns DefaultMaxResults records unless
// overridden.
func (s *Searcher) SearchByApplication(ctx context.Context, name string, opts ...RequestOption) ([]nvd.Record, error) {
	return s.Search(ctx, newRequest(name, ByMultiIdentifier(), ApplicationDaysBack, DefaultMaxResults, opts))
}

// SearchSimple runs a single keyword query without CPE resolution.
func (s *Searcher) SearchSimple(ctx context.Context, name string, opts ...RequestOption) ([]nvd.Record, error) {
	return s.Search(ctx, newRequest(name, ByKeyword(), DefaultDaysBack, DefaultMaxResults, opts))
}

// CheckRecent returns up to RecentMaxResults vulnerabilities published in the
// last RecentDaysBack days.
func (s *Searcher) CheckRecent(ctx context.Context, name string) ([]nvd.Record, error) {
	return s.Search(ctx, newRequest(name, ByMultiIdentifier(), RecentDaysBack, RecentMaxResults, nil))
}

func newRequest(name string, strategy Strategy, daysBack, maxResults int, opts []RequestOption) Request {
	req := Request{
		ProductName: name,
		Strategy:    strategy,
		DaysBack:    daysBack,
		MaxResults:  maxResults,
	}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}
