package search

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aquasecurity/vuln-search/nvd"
)

// DefaultStagger spaces out concurrent feed queries to stay under the
// unauthenticated NVD rate limit.
const DefaultStagger = 500 * time.Millisecond

// Fetcher runs a single vulnerability feed query.
type Fetcher interface {
	FetchCVEs(ctx context.Context, q nvd.CVEQuery) ([]nvd.Record, error)
}

// Dispatcher fans feed queries out and collects their results.
type Dispatcher struct {
	fetcher Fetcher
	stagger time.Duration
	logger  *zap.Logger
	metrics *Metrics
}

func NewDispatcher(fetcher Fetcher, stagger time.Duration, logger *zap.Logger, metrics *Metrics) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stagger < 0 {
		stagger = 0
	}
	return Dispatcher{
		fetcher: fetcher,
		stagger: stagger,
		logger:  logger,
		metrics: metrics,
	}
}

// accumulator is the only state shared between dispatched queries.
type accumulator struct {
	mu        sync.Mutex
	records   []nvd.Record
	errs      []error
	succeeded int
}

func (a *accumulator) add(records []nvd.Record, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.errs = append(a.errs, err)
		return
	}
	a.succeeded++
	a.records = append(a.records, records...)
}

// result returns the union of successful results, or the first recorded
// error when no query succeeded.
func (a *accumulator) result() ([]nvd.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.succeeded == 0 && len(a.errs) > 0 {
		return nil, a.errs[0]
	}
	return a.records, nil
}

// Dispatch runs all queries concurrently. Query i is sent i*stagger after
// Dispatch was called. It returns once every query has finished.
func (d Dispatcher) Dispatch(ctx context.Context, queries []nvd.CVEQuery) ([]nvd.Record, error) {
	start := time.Now()
	acc := &accumulator{}

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q nvd.CVEQuery) {
			defer wg.Done()

			if err := sleep(ctx, time.Until(start.Add(time.Duration(i)*d.stagger))); err != nil {
				qerr := &nvd.Error{Kind: nvd.KindNetworkFailure, Err: err}
				d.metrics.observeQuery(qerr)
				acc.add(nil, qerr)
				return
			}

			records, err := d.fetch(ctx, q)
			if err != nil {
				d.logger.Warn("Feed query failed", zap.String("cpe", q.CPEName), zap.Error(err))
			}
			acc.add(records, err)
		}(i, q)
	}
	wg.Wait()

	acc.mu.Lock()
	if n := len(acc.errs); n > 0 && acc.succeeded > 0 {
		d.logger.Info("Some feed queries failed", zap.Int("failed", n), zap.Int("succeeded", acc.succeeded))
	}
	acc.mu.Unlock()

	return acc.result()
}

// Single runs one query on the calling goroutine.
func (d Dispatcher) Single(ctx context.Context, q nvd.CVEQuery) ([]nvd.Record, error) {
	return d.fetch(ctx, q)
}

func (d Dispatcher) fetch(ctx context.Context, q nvd.CVEQuery) ([]nvd.Record, error) {
	records, err := d.fetcher.FetchCVEs(ctx, q)
	d.metrics.observeQuery(err)
	return records, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
