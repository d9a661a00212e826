// Package server exposes the Searcher over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/vuln-search/nvd"
	"github.com/aquasecurity/vuln-search/search"
)

const requestTimeout = 2 * time.Minute

// Searcher is satisfied by *search.Searcher.
type Searcher interface {
	Search(ctx context.Context, req search.Request) ([]nvd.Record, error)
	SearchByApplication(ctx context.Context, name string, opts ...search.RequestOption) ([]nvd.Record, error)
	SearchSimple(ctx context.Context, name string, opts ...search.RequestOption) ([]nvd.Record, error)
	CheckRecent(ctx context.Context, name string) ([]nvd.Record, error)
}

type options struct {
	logger   *zap.Logger
	gatherer prometheus.Gatherer
}

type option func(*options)

func WithLogger(logger *zap.Logger) option {
	return func(opts *options) { opts.logger = logger }
}

// WithGatherer serves g on /metrics. Without it the route is not registered.
func WithGatherer(g prometheus.Gatherer) option {
	return func(opts *options) { opts.gatherer = g }
}

// Response is the body of every successful search.
type Response struct {
	Name            string       `json:"name"`
	Strategy        string       `json:"strategy"`
	Count           int          `json:"count"`
	Vulnerabilities []nvd.Record `json:"vulnerabilities"`
}

type handler struct {
	searcher Searcher
	logger   *zap.Logger
}

// NewApp creates the fiber app with the search routes.
func NewApp(searcher Searcher, opts ...option) *fiber.App {
	o := &options{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	app := fiber.New(fiber.Config{
		AppName:               "vuln-search",
		ReadTimeout:           60 * time.Second,
		UnescapePath:          true,
		Immutable:             true,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(o.logger),
	})

	app.Use(fiberrecover.New())
	app.Use(requestLogger(o.logger))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	if o.gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{})))
	}

	h := handler{searcher: searcher, logger: o.logger}
	app.Get("/search", h.search)
	app.Get("/applications/:name", h.application)
	app.Get("/simple/:name", h.simple)
	app.Get("/recent/:name", h.recent)

	return app
}

func (h handler) search(c *fiber.Ctx) error {
	strategy, err := search.ParseStrategy(c.Query("strategy"), c.Query("vendor"), c.Query("product"))
	if err != nil {
		return err
	}
	opts, err := requestOptions(c)
	if err != nil {
		return err
	}
	req := search.Request{
		ProductName: c.Query("name"),
		Strategy:    strategy,
	}
	for _, opt := range opts {
		opt(&req)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()
	records, err := h.searcher.Search(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(newResponse(req.ProductName, strategy.String(), records))
}

func (h handler) application(c *fiber.Ctx) error {
	opts, err := requestOptions(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()
	records, err := h.searcher.SearchByApplication(ctx, c.Params("name"), opts...)
	if err != nil {
		return err
	}
	return c.JSON(newResponse(c.Params("name"), search.ByMultiIdentifier().String(), records))
}

func (h handler) simple(c *fiber.Ctx) error {
	opts, err := requestOptions(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()
	records, err := h.searcher.SearchSimple(ctx, c.Params("name"), opts...)
	if err != nil {
		return err
	}
	return c.JSON(newResponse(c.Params("name"), search.ByKeyword().String(), records))
}

func (h handler) recent(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()
	records, err := h.searcher.CheckRecent(ctx, c.Params("name"))
	if err != nil {
		return err
	}
	return c.JSON(newResponse(c.Params("name"), search.ByMultiIdentifier().String(), records))
}

// requestOptions reads the optional days, max and version query parameters.
// days and max must be positive when present.
func requestOptions(c *fiber.Ctx) ([]search.RequestOption, error) {
	days, err := positiveQuery(c, "days")
	if err != nil {
		return nil, err
	}
	maxResults, err := positiveQuery(c, "max")
	if err != nil {
		return nil, err
	}

	var opts []search.RequestOption
	if days != 0 {
		opts = append(opts, search.WithDaysBack(days))
	}
	if maxResults != 0 {
		opts = append(opts, search.WithMaxResults(maxResults))
	}
	if version := c.Query("version"); version != "" {
		opts = append(opts, search.WithVersion(version))
	}
	return opts, nil
}

// positiveQuery returns 0 when key is absent.
func positiveQuery(c *fiber.Ctx, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, nvd.InvalidRequestError(xerrors.Errorf("%s must be a positive integer: %q", key, v))
	}
	return n, nil
}

func newResponse(name, strategy string, records []nvd.Record) Response {
	if records == nil {
		records = []nvd.Record{}
	}
	return Response{
		Name:            name,
		Strategy:        strategy,
		Count:           len(records),
		Vulnerabilities: records,
	}
}

// StatusCode maps a search error to the HTTP status returned to callers.
func StatusCode(err error) int {
	var e *nvd.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case nvd.KindInvalidRequest:
		return http.StatusBadRequest
	case nvd.KindResolutionFailure:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		status := StatusCode(err)
		body := fiber.Map{"error": err.Error()}
		var e *nvd.Error
		if errors.As(err, &e) {
			body["kind"] = e.Kind.String()
		}
		if status >= http.StatusInternalServerError {
			logger.Warn("Search failed", zap.String("path", c.Path()), zap.Error(err))
		}
		return c.Status(status).JSON(body)
	}
}

func requestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		started := time.Now()
		if err := c.Next(); err != nil {
			if err = c.App().ErrorHandler(c, err); err != nil {
				return err
			}
		}
		logger.Debug("Request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("elapsed", time.Since(started)),
		)
		return nil
	}
}
