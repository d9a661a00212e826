package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cheggaaa/pb/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/vuln-search/config"
	"github.com/aquasecurity/vuln-search/nvd"
	"github.com/aquasecurity/vuln-search/search"
	"github.com/aquasecurity/vuln-search/server"
	"github.com/aquasecurity/vuln-search/utils"
)

var (
	name       = flag.String("name", "", "product name to search for (e.g. Firefox)")
	strategy   = flag.String("strategy", "multi", "search strategy (multi, application, os, keyword)")
	vendor     = flag.String("vendor", "", "CPE vendor (application and os strategies)")
	product    = flag.String("product", "", "CPE product, defaults to -name (application and os strategies)")
	version    = flag.String("version", "", "product version")
	days       = flag.Int("days", search.DefaultDaysBack, "publication window in days")
	maxResults = flag.Int("max", search.DefaultMaxResults, "maximum number of vulnerabilities")
	recent     = flag.Bool("recent", false, "check vulnerabilities published in the last 30 days")
	configPath = flag.String("config", "", "YAML config file")
	products   = flag.String("products", "", "product list to search in batch (any go-getter source)")
	output     = flag.String("output", "", "directory to save vulnerabilities to instead of printing them")
	compress   = flag.Bool("compress", false, "save zstd compressed files (with -output)")
	serve      = flag.Bool("serve", false, "serve the HTTP API instead of searching")
	addr       = flag.String("addr", "", "listen address of the HTTP API (overrides server.addr)")
	debug      = flag.Bool("debug", false, "debug logging")
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	flag.Parse()

	conf, err := config.Load(afero.NewOsFs(), *configPath)
	if err != nil {
		return err
	}

	logger, err := utils.NewLogger(conf.Debug || *debug)
	if err != nil {
		return xerrors.Errorf("failed to build a logger: %w", err)
	}
	defer logger.Sync() // nolint: errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	client := conf.NewClient(logger)
	searcher := conf.NewSearcher(client, logger, reg)

	if *addr != "" {
		conf.Server.Addr = *addr
	}

	switch {
	case *serve:
		return listen(ctx, searcher, reg, logger, conf.Server.Addr)
	case *products != "":
		return batch(ctx, searcher, logger, *products)
	case *name != "":
		req, err := singleRequest()
		if err != nil {
			return err
		}
		records, err := searcher.Search(ctx, req)
		if err != nil {
			return xerrors.Errorf("search error: %w", err)
		}
		return emit(logger, req, records)
	}
	flag.Usage()
	return xerrors.New("one of -name, -products or -serve must be specified")
}

func singleRequest() (search.Request, error) {
	if *recent {
		return search.Request{
			ProductName: *name,
			Strategy:    search.ByMultiIdentifier(),
			DaysBack:    search.RecentDaysBack,
			MaxResults:  search.RecentMaxResults,
		}, nil
	}
	if *days < 1 || *maxResults < 1 {
		return search.Request{}, xerrors.Errorf("-days and -max must be positive: %d, %d", *days, *maxResults)
	}
	s, err := search.ParseStrategy(*strategy, *vendor, *product)
	if err != nil {
		return search.Request{}, err
	}
	return search.Request{
		ProductName: *name,
		Version:     *version,
		Strategy:    s,
		DaysBack:    *days,
		MaxResults:  *maxResults,
	}, nil
}

func batch(ctx context.Context, searcher *search.Searcher, logger *zap.Logger, src string) error {
	b, err := utils.Download(ctx, src)
	if err != nil {
		return xerrors.Errorf("failed to download the product list: %w", err)
	}
	list, err := config.ParseProductList(b)
	if err != nil {
		return err
	}

	logger.Info("Searching products", zap.Int("products", len(list.Products)))
	bar := pb.StartNew(len(list.Products))
	defer bar.Finish()

	var failed int
	for _, p := range list.Products {
		bar.Increment()
		req, err := p.Request()
		if err != nil {
			return err
		}
		records, err := searcher.Search(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return xerrors.Errorf("search interrupted: %w", ctx.Err())
			}
			failed++
			logger.Warn("Search failed", zap.String("name", p.Name), zap.Error(err))
			continue
		}
		if err = emit(logger, req, records); err != nil {
			return err
		}
	}
	if failed == len(list.Products) && failed > 0 {
		return xerrors.Errorf("all %d searches failed", failed)
	}
	return nil
}

// emit saves records under -output, or prints them as JSON.
func emit(logger *zap.Logger, req search.Request, records []nvd.Record) error {
	if *output == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(server.Response{
			Name:            req.ProductName,
			Strategy:        req.Strategy.String(),
			Count:           len(records),
			Vulnerabilities: records,
		}); err != nil {
			return xerrors.Errorf("failed to print results: %w", err)
		}
		return nil
	}

	fs := utils.NewFs(afero.NewOsFs(), *compress)
	paths, err := fs.SaveRecords(*output, req.ProductName, records)
	if err != nil {
		return err
	}
	logger.Info("Saved vulnerabilities", zap.String("name", req.ProductName), zap.Int("files", len(paths)))
	return nil
}

func listen(ctx context.Context, searcher *search.Searcher, reg *prometheus.Registry, logger *zap.Logger, addr string) error {
	app := server.NewApp(searcher, server.WithLogger(logger), server.WithGatherer(reg))

	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			logger.Warn("Shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Listening", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		return xerrors.Errorf("server error: %w", err)
	}
	return nil
}
