package cpe_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquasecurity/vuln-search/cpe"
	"github.com/aquasecurity/vuln-search/nvd"
)

type fakeFetcher struct {
	products []nvd.Product
	err      error
}

func (f fakeFetcher) FetchCPEs(_ context.Context, _ string) ([]nvd.Product, error) {
	return f.products, f.err
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		app      string
		products []nvd.Product
		limit    int
		want     []string
	}{
		{
			name: "wildcard first, newest concrete next",
			app:  "Firefox",
			products: []nvd.Product{
				{Name: "cpe:2.3:a:mozilla:firefox:118.0:*:*:*:*:*:*:*", Created: date(2023, 9, 26)},
				{Name: "cpe:2.3:a:mozilla:firefox:119.0:*:*:*:*:*:*:*", Created: date(2023, 11, 1)},
				{Name: "cpe:2.3:a:mozilla:firefox:120.0:*:*:*:*:*:*:*", Created: date(2024, 1, 1)},
			},
			want: []string{
				"cpe:2.3:a:mozilla:firefox:*:*:*:*:*:*:*:*",
				"cpe:2.3:a:mozilla:firefox:120.0:*:*:*:*:*:*:*",
				"cpe:2.3:a:mozilla:firefox:119.0:*:*:*:*:*:*:*",
			},
		},
		{
			name: "exact product match only",
			app:  "firefox",
			products: []nvd.Product{
				{Name: "cpe:2.3:a:mozilla:firefox-esr:115.6.0:*:*:*:*:*:*:*", Created: date(2024, 1, 20)},
				{Name: "cpe:2.3:a:mozilla:firefox_esr:115.5.0:*:*:*:*:*:*:*", Created: date(2024, 1, 15)},
				{Name: "cpe:2.3:a:mozilla:firefox:119.0:*:*:*:*:*:*:*", Created: date(2023, 11, 1)},
			},
			want: []string{
				"cpe:2.3:a:mozilla:firefox:*:*:*:*:*:*:*:*",
				"cpe:2.3:a:mozilla:firefox:119.0:*:*:*:*:*:*:*",
			},
		},
		{
			name: "undated candidates are the oldest",
			app:  "curl",
			products: []nvd.Product{
				{Name: "cpe:2.3:a:haxx:curl:8.6.0:*:*:*:*:*:*:*"},
				{Name: "cpe:2.3:a:haxx:curl:8.4.0:*:*:*:*:*:*:*", Created: date(2023, 10, 11)},
				{Name: "cpe:2.3:a:haxx:curl:8.5.0:*:*:*:*:*:*:*", Created: date(2023, 12, 6)},
			},
			want: []string{
				"cpe:2.3:a:haxx:curl:*:*:*:*:*:*:*:*",
				"cpe:2.3:a:haxx:curl:8.5.0:*:*:*:*:*:*:*",
				"cpe:2.3:a:haxx:curl:8.4.0:*:*:*:*:*:*:*",
			},
		},
		{
			name: "non applications, wildcards, duplicates and garbage are ignored",
			app:  "firefox",
			products: []nvd.Product{
				{Name: "cpe:2.3:o:mozilla:firefox:2.0:*:*:*:*:*:*:*", Created: date(2024, 1, 25)},
				{Name: "cpe:2.3:a:mozilla:firefox:*:*:*:*:*:*:*:*", Created: date(2024, 1, 24)},
				{Name: "cpe:2.3:a:mozilla:firefox:-:*:*:*:*:*:*:*", Created: date(2024, 1, 23)},
				{Name: "cpe:2.3:a:mozilla", Created: date(2024, 1, 22)},
				{Name: "cpe:2.3:a:mozilla:firefox:121.0:*:*:*:*:*:*:*", Created: date(2024, 1, 21)},
				{Name: "cpe:2.3:a:mozilla:firefox:121.0:*:*:*:*:*:*:*", Created: date(2024, 1, 21)},
			},
			want: []string{
				"cpe:2.3:a:mozilla:firefox:*:*:*:*:*:*:*:*",
				"cpe:2.3:a:mozilla:firefox:121.0:*:*:*:*:*:*:*",
			},
		},
		{
			name: "deprecated products are ignored",
			app:  "firefox",
			products: []nvd.Product{
				{Name: "cpe:2.3:a:mozilla:firefox:121.0:*:*:*:*:*:*:*", Created: date(2024, 1, 21), Deprecated: true},
				{Name: "cpe:2.3:a:mozilla:firefox:120.0:*:*:*:*:*:*:*", Created: date(2024, 1, 1)},
			},
			want: []string{
				"cpe:2.3:a:mozilla:firefox:*:*:*:*:*:*:*:*",
				"cpe:2.3:a:mozilla:firefox:120.0:*:*:*:*:*:*:*",
			},
		},
		{
			name: "custom limit",
			app:  "firefox",
			products: []nvd.Product{
				{Name: "cpe:2.3:a:mozilla:firefox:119.0:*:*:*:*:*:*:*", Created: date(2023, 11, 1)},
				{Name: "cpe:2.3:a:mozilla:firefox:120.0:*:*:*:*:*:*:*", Created: date(2024, 1, 1)},
			},
			limit: 1,
			want: []string{
				"cpe:2.3:a:mozilla:firefox:*:*:*:*:*:*:*:*",
				"cpe:2.3:a:mozilla:firefox:120.0:*:*:*:*:*:*:*",
			},
		},
		{
			name: "no match",
			app:  "firefox",
			products: []nvd.Product{
				{Name: "cpe:2.3:a:mozilla:thunderbird:115.0:*:*:*:*:*:*:*", Created: date(2023, 7, 4)},
			},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := cpe.NewResolver(fakeFetcher{products: tt.products}, cpe.WithLimit(tt.limit))
			got, err := r.Resolve(context.Background(), tt.app)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_ResolveError(t *testing.T) {
	cause := &nvd.Error{Kind: nvd.KindHTTPFailure, StatusCode: http.StatusServiceUnavailable}
	r := cpe.NewResolver(fakeFetcher{
		products: []nvd.Product{{Name: "cpe:2.3:a:mozilla:firefox:120.0:*:*:*:*:*:*:*"}},
		err:      cause,
	})

	got, err := r.Resolve(context.Background(), "firefox")
	require.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, nvd.ErrResolutionFailure)
	assert.ErrorIs(t, err, nvd.ErrHTTPFailure)
}

func TestResolver_NVD(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Firefox", r.URL.Query().Get("keywordSearch"))
		http.ServeFile(w, r, "../nvd/testdata/fixtures/cpes_firefox.json")
	}))
	defer ts.Close()

	r := cpe.NewResolver(nvd.NewClient(nvd.WithCPEURL(ts.URL)))
	got, err := r.Resolve(context.Background(), "Firefox")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"cpe:2.3:a:mozilla:firefox:*:*:*:*:*:*:*:*",
		"cpe:2.3:a:mozilla:firefox:120.0:*:*:*:*:*:*:*",
		"cpe:2.3:a:mozilla:firefox:119.0:*:*:*:*:*:*:*",
	}, got)
}
