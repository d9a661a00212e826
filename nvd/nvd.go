package nvd

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/parnurzeal/gorequest"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

const (
	cveURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"
	cpeURL = "https://services.nvd.nist.gov/rest/json/cpes/2.0"

	apiKeyEnvName = "NVD_API_KEY"
	timeout       = 30 * time.Second

	// MaxResultsPerPage is the largest page the NVD API serves.
	MaxResultsPerPage = 100

	pubDateFormat = "2006-01-02T15:04:05.000Z07:00"
)

type options struct {
	cveURL  string
	cpeURL  string
	apiKey  string
	timeout time.Duration
	logger  *zap.Logger
}

type option func(*options)

// WithCVEURL overrides the CVE endpoint. An empty URL keeps the default.
func WithCVEURL(u string) option {
	return func(opts *options) {
		if u != "" {
			opts.cveURL = u
		}
	}
}

// WithCPEURL overrides the CPE dictionary endpoint. An empty URL keeps the
// default.
func WithCPEURL(u string) option {
	return func(opts *options) {
		if u != "" {
			opts.cpeURL = u
		}
	}
}

func WithAPIKey(apiKey string) option {
	return func(opts *options) { opts.apiKey = apiKey }
}

func WithTimeout(d time.Duration) option {
	return func(opts *options) {
		if d > 0 {
			opts.timeout = d
		}
	}
}

func WithLogger(logger *zap.Logger) option {
	return func(opts *options) {
		if logger != nil {
			opts.logger = logger
		}
	}
}

// Client talks to the NVD CPE dictionary and CVE endpoints. It is safe for
// concurrent use; requests share one keep-alive transport.
type Client struct {
	*options
	transport *http.Transport
}

func NewClient(opts ...option) Client {
	o := &options{
		cveURL:  cveURL,
		cpeURL:  cpeURL,
		apiKey:  os.Getenv(apiKeyEnvName),
		timeout: timeout,
		logger:  zap.NewNop(),
	}

	for _, opt := range opts {
		opt(o)
	}
	return Client{
		options:   o,
		transport: newTransport(),
	}
}

func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConnsPerHost = 16
	return t
}

// CVEQuery selects advisories published inside [PubStart, PubEnd] either by
// CPE name or by keyword. Exactly one of CPEName and Keyword must be set.
type CVEQuery struct {
	CPEName        string
	Keyword        string
	PubStart       time.Time
	PubEnd         time.Time
	ResultsPerPage int
}

// FetchCPEs runs a keyword search against the CPE dictionary.
func (c Client) FetchCPEs(ctx context.Context, keyword string) ([]Product, error) {
	if keyword == "" {
		return nil, InvalidRequestError(xerrors.New("empty keyword"))
	}
	params := url.Values{}
	params.Set("keywordSearch", keyword)
	params.Set("resultsPerPage", strconv.Itoa(MaxResultsPerPage))

	u, err := urlWithParams(c.cpeURL, params)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	page, err := DecodeCPEPage(body)
	if err != nil {
		return nil, withURL(err, u)
	}
	if page.Skipped > 0 {
		c.logger.Debug("Skipped malformed CPE products", zap.String("keyword", keyword), zap.Int("skipped", page.Skipped))
	}
	return page.Products, nil
}

// FetchCVEs runs a single CVE feed query.
func (c Client) FetchCVEs(ctx context.Context, q CVEQuery) ([]Record, error) {
	params, err := q.params()
	if err != nil {
		return nil, err
	}

	u, err := urlWithParams(c.cveURL, params)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	page, err := DecodeCVEPage(body)
	if err != nil {
		return nil, withURL(err, u)
	}
	if page.Skipped > 0 {
		c.logger.Debug("Skipped malformed vulnerabilities", zap.String("url", u), zap.Int("skipped", page.Skipped))
	}
	return page.Records, nil
}

func (q CVEQuery) params() (url.Values, error) {
	if (q.CPEName == "") == (q.Keyword == "") {
		return nil, InvalidRequestError(xerrors.New("exactly one of cpeName and keywordSearch is required"))
	}
	if q.PubEnd.Before(q.PubStart) {
		return nil, InvalidRequestError(xerrors.Errorf("publication window ends before it starts: %s > %s",
			q.PubStart.Format(pubDateFormat), q.PubEnd.Format(pubDateFormat)))
	}

	params := url.Values{}
	if q.CPEName != "" {
		params.Set("cpeName", q.CPEName)
	} else {
		params.Set("keywordSearch", q.Keyword)
	}
	params.Set("pubStartDate", q.PubStart.UTC().Format(pubDateFormat))
	params.Set("pubEndDate", q.PubEnd.UTC().Format(pubDateFormat))
	params.Set("resultsPerPage", strconv.Itoa(ClampResultsPerPage(q.ResultsPerPage)))
	return params, nil
}

// ClampResultsPerPage bounds n to [1, MaxResultsPerPage].
func ClampResultsPerPage(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxResultsPerPage {
		return MaxResultsPerPage
	}
	return n
}

func (c Client) get(ctx context.Context, u string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError(KindNetworkFailure, u, err)
	}

	d := c.timeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < d {
		d = time.Until(deadline)
	}

	c.logger.Debug("Fetching", zap.String("url", u))
	agent := gorequest.New()
	agent.Transport = c.transport
	req := agent.Timeout(d).Get(u)
	if c.apiKey != "" {
		req.Set("apiKey", c.apiKey)
	}
	resp, body, errs := req.EndBytes()
	if len(errs) > 0 {
		return nil, newError(KindNetworkFailure, u, errs[0])
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: KindHTTPFailure, StatusCode: resp.StatusCode, URL: u}
	}
	return body, nil
}

func urlWithParams(baseURL string, params url.Values) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", InvalidRequestError(xerrors.Errorf("unable to parse %q base url: %w", baseURL, err))
	}
	if u.Scheme == "" || u.Host == "" {
		return "", InvalidRequestError(xerrors.Errorf("base url %q is not absolute", baseURL))
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func withURL(err error, u string) error {
	var e *Error
	if xerrors.As(err, &e) && e.URL == "" {
		e.URL = u
	}
	return err
}
