// Package config loads vuln-search settings from a YAML file and the
// environment.
package config

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/aquasecurity/vuln-search/nvd"
	"github.com/aquasecurity/vuln-search/search"
	"github.com/aquasecurity/vuln-search/utils"
)

const (
	apiKeyEnvName = "NVD_API_KEY"
	defaultAddr   = ":8080"
)

type Config struct {
	Debug  bool   `yaml:"debug"`
	NVD    NVD    `yaml:"nvd"`
	Search Search `yaml:"search"`
	Server Server `yaml:"server"`
}

// NVD holds the feed endpoints. Empty URLs mean the public NVD API.
type NVD struct {
	CVEURL  string        `yaml:"cveURL"`
	CPEURL  string        `yaml:"cpeURL"`
	APIKey  string        `yaml:"apiKey"`
	Timeout time.Duration `yaml:"timeout"`
}

type Search struct {
	Stagger  time.Duration `yaml:"stagger"`
	PageSize int           `yaml:"pageSize"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

func Default() Config {
	return Config{
		NVD: NVD{
			Timeout: 30 * time.Second,
		},
		Search: Search{
			Stagger:  search.DefaultStagger,
			PageSize: nvd.MaxResultsPerPage,
		},
		Server: Server{
			Addr: defaultAddr,
		},
	}
}

// Load reads path over the defaults. An empty path skips the file. The
// NVD_API_KEY environment variable wins over the file.
func Load(fs afero.Fs, path string) (Config, error) {
	c := Default()
	if path != "" {
		b, err := afero.ReadFile(fs, path)
		if err != nil {
			return Config{}, xerrors.Errorf("failed to read config %s: %w", path, err)
		}
		if err = yaml.UnmarshalStrict(b, &c); err != nil {
			return Config{}, xerrors.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	c.NVD.APIKey = utils.LookupEnv(apiKeyEnvName, c.NVD.APIKey)

	if err := c.validate(); err != nil {
		return Config{}, xerrors.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func (c Config) validate() error {
	switch {
	case c.NVD.Timeout < 0:
		return xerrors.Errorf("negative nvd.timeout: %s", c.NVD.Timeout)
	case c.Search.Stagger < 0:
		return xerrors.Errorf("negative search.stagger: %s", c.Search.Stagger)
	case c.Search.PageSize < 1 || c.Search.PageSize > nvd.MaxResultsPerPage:
		return xerrors.Errorf("search.pageSize must be between 1 and %d: %d", nvd.MaxResultsPerPage, c.Search.PageSize)
	}
	return nil
}

// NewClient builds the NVD client described by c.
func (c Config) NewClient(logger *zap.Logger) nvd.Client {
	return nvd.NewClient(
		nvd.WithCVEURL(c.NVD.CVEURL),
		nvd.WithCPEURL(c.NVD.CPEURL),
		nvd.WithAPIKey(c.NVD.APIKey),
		nvd.WithTimeout(c.NVD.Timeout),
		nvd.WithLogger(logger),
	)
}

// NewSearcher builds a Searcher on top of client. Metrics are registered
// with reg when it is not nil.
func (c Config) NewSearcher(client search.Client, logger *zap.Logger, reg prometheus.Registerer) *search.Searcher {
	return search.NewSearcher(client,
		search.WithStagger(c.Search.Stagger),
		search.WithPageSize(c.Search.PageSize),
		search.WithLogger(logger),
		search.WithMetrics(search.NewMetrics(reg)),
	)
}
