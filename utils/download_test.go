package utils_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquasecurity/vuln-search/utils"
)

func TestDownload(t *testing.T) {
	tests := []struct {
		name     string
		filePath string
		want     string
		wantErr  string
	}{
		{
			name:     "happy path",
			filePath: "/testdata/products.yaml",
			want:     "products:\n  - name: firefox\n",
		},
		{
			name:     "sad path",
			filePath: "/testdata/unknown.yaml",
			wantErr:  "bad response code: 404",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/testdata/products.yaml" {
					http.NotFound(w, r)
					return
				}
				_, _ = w.Write([]byte("products:\n  - name: firefox\n"))
			}))
			defer ts.Close()

			got, err := utils.Download(context.Background(), ts.URL+tt.filePath)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestDownload_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.yaml")
	require.NoError(t, os.WriteFile(path, []byte("products: []\n"), 0600))

	got, err := utils.Download(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "products: []\n", string(got))
}
