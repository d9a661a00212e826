package search

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquasecurity/vuln-search/nvd"
)

type response struct {
	records []nvd.Record
	err     error
	delay   time.Duration
}

type fakeFeed struct {
	responses map[string]response

	mu     sync.Mutex
	starts map[string]time.Time
}

func (f *fakeFeed) FetchCVEs(ctx context.Context, q nvd.CVEQuery) ([]nvd.Record, error) {
	key := q.CPEName
	if key == "" {
		key = q.Keyword
	}

	f.mu.Lock()
	if f.starts == nil {
		f.starts = map[string]time.Time{}
	}
	f.starts[key] = time.Now()
	f.mu.Unlock()

	resp, ok := f.responses[key]
	if !ok {
		return nil, &nvd.Error{Kind: nvd.KindHTTPFailure, StatusCode: http.StatusNotFound}
	}
	if resp.delay > 0 {
		time.Sleep(resp.delay)
	}
	return resp.records, resp.err
}

func TestDispatcher_Dispatch(t *testing.T) {
	firstErr := &nvd.Error{Kind: nvd.KindHTTPFailure, StatusCode: http.StatusServiceUnavailable}
	secondErr := &nvd.Error{Kind: nvd.KindNetworkFailure}

	tests := []struct {
		name      string
		responses map[string]response
		queries   []string
		wantIDs   []string
		wantErr   error
	}{
		{
			name: "all succeed",
			responses: map[string]response{
				"cpe-1": {records: []nvd.Record{record("CVE-1", "", `{}`)}},
				"cpe-2": {records: []nvd.Record{record("CVE-2", "", `{}`), record("CVE-3", "", `{}`)}},
			},
			queries: []string{"cpe-1", "cpe-2"},
			wantIDs: []string{"CVE-1", "CVE-2", "CVE-3"},
		},
		{
			name: "partial failure returns the union of successes",
			responses: map[string]response{
				"cpe-1": {err: firstErr},
				"cpe-2": {records: []nvd.Record{record("CVE-2", "", `{}`)}},
				"cpe-3": {err: secondErr},
			},
			queries: []string{"cpe-1", "cpe-2", "cpe-3"},
			wantIDs: []string{"CVE-2"},
		},
		{
			name: "one empty success is still a success",
			responses: map[string]response{
				"cpe-1": {err: firstErr},
				"cpe-2": {},
			},
			queries: []string{"cpe-1", "cpe-2"},
		},
		{
			name: "total failure surfaces the first failure",
			responses: map[string]response{
				"cpe-1": {err: firstErr},
				"cpe-2": {err: secondErr, delay: 50 * time.Millisecond},
			},
			queries: []string{"cpe-1", "cpe-2"},
			wantErr: firstErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := &fakeFeed{responses: tt.responses}
			metrics := NewMetrics(prometheus.NewRegistry())
			d := NewDispatcher(feed, 0, nil, metrics)

			var queries []nvd.CVEQuery
			for _, q := range tt.queries {
				queries = append(queries, nvd.CVEQuery{CPEName: q})
			}

			got, err := d.Dispatch(context.Background(), queries)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Same(t, tt.wantErr, err)
				assert.Nil(t, got)
				assert.Equal(t, float64(len(tt.queries)), testutil.ToFloat64(metrics.QueriesTotal.WithLabelValues(outcomeFailure)))
				return
			}
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.wantIDs, ids(got))
		})
	}
}

func TestDispatcher_Stagger(t *testing.T) {
	const stagger = 40 * time.Millisecond
	feed := &fakeFeed{responses: map[string]response{
		"cpe-0": {},
		"cpe-1": {},
		"cpe-2": {},
	}}
	d := NewDispatcher(feed, stagger, nil, nil)

	start := time.Now()
	_, err := d.Dispatch(context.Background(), []nvd.CVEQuery{
		{CPEName: "cpe-0"},
		{CPEName: "cpe-1"},
		{CPEName: "cpe-2"},
	})
	require.NoError(t, err)

	feed.mu.Lock()
	defer feed.mu.Unlock()
	assert.Less(t, feed.starts["cpe-0"].Sub(start), stagger)
	assert.GreaterOrEqual(t, feed.starts["cpe-1"].Sub(start), stagger)
	assert.GreaterOrEqual(t, feed.starts["cpe-2"].Sub(start), 2*stagger)
}

func TestDispatcher_Canceled(t *testing.T) {
	feed := &fakeFeed{responses: map[string]response{
		"cpe-0": {err: &nvd.Error{Kind: nvd.KindHTTPFailure, StatusCode: http.StatusForbidden}},
		"cpe-1": {},
	}}
	metrics := NewMetrics(prometheus.NewRegistry())
	d := NewDispatcher(feed, time.Hour, nil, metrics)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := d.Dispatch(ctx, []nvd.CVEQuery{{CPEName: "cpe-0"}, {CPEName: "cpe-1"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, nvd.ErrHTTPFailure)

	// the query aborted while waiting its turn counts as a failed query too
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.QueriesTotal.WithLabelValues(outcomeFailure)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.QueriesTotal.WithLabelValues(outcomeSuccess)))

	feed.mu.Lock()
	defer feed.mu.Unlock()
	assert.NotContains(t, feed.starts, "cpe-1")
}

func TestDispatcher_Single(t *testing.T) {
	feed := &fakeFeed{responses: map[string]response{
		"firefox": {records: []nvd.Record{record("CVE-1", "", `{}`)}},
	}}
	d := NewDispatcher(feed, time.Hour, nil, nil)

	got, err := d.Single(context.Background(), nvd.CVEQuery{Keyword: "firefox"})
	require.NoError(t, err)
	assert.Equal(t, []string{"CVE-1"}, ids(got))
}
