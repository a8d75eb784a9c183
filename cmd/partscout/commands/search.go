package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FranksOps/partscout/internal/config"
	"github.com/FranksOps/partscout/internal/fingerprint"
	"github.com/FranksOps/partscout/internal/metrics"
	"github.com/FranksOps/partscout/internal/pipeline"
	"github.com/FranksOps/partscout/internal/query"
	"github.com/FranksOps/partscout/internal/report"
	"github.com/FranksOps/partscout/internal/scraper"
	"github.com/FranksOps/partscout/internal/sentiment"
	"github.com/FranksOps/partscout/internal/site"
	"github.com/FranksOps/partscout/internal/storage/jsonbackend"
	"github.com/FranksOps/partscout/pkg/proxy"
	"github.com/FranksOps/partscout/pkg/ratelimit"
	"github.com/FranksOps/partscout/pkg/useragent"
)

const (
	queryPrompt    = "Enter the FS part you're searching for: "
	msgNoQuery     = "No query entered."
	msgNoResults   = "No results found across all suppliers."
	msgResultsPath = "Results saved to %s\n"
)

func (a *app) runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	// The lexicon is checked before anything touches the network.
	lexicon, err := sentiment.NewLexicon()
	if err != nil {
		return &exitError{code: 2, err: fmt.Errorf("%w\n%s", err, sentiment.ProvisionHint)}
	}

	q := strings.Join(args, " ")
	if len(args) == 0 {
		if q, err = prompt(cmd.InOrStdin(), out); err != nil {
			return err
		}
	}
	if strings.TrimSpace(q) == "" {
		fmt.Fprintln(out, msgNoQuery)
		return nil
	}

	p, cleanup, err := a.newPipeline(ctx, lexicon)
	if err != nil {
		return err
	}
	defer cleanup()

	if a.cfg.Metrics.Port > 0 {
		srv := metrics.Start(a.cfg.Metrics.Port, a.logger)
		defer func() { _ = srv.Stop(context.Background()) }()
	}

	session, err := p.Run(ctx, q)
	switch {
	case errors.Is(err, query.ErrEmptyQuery):
		fmt.Fprintln(out, msgNoQuery)
		return nil
	case errors.Is(err, pipeline.ErrNoResults):
		fmt.Fprintln(out, msgNoResults)
		return report.WriteText(out, report.Summarize(session))
	case err != nil:
		return err
	}

	if err := report.WriteListings(out, session.Listings); err != nil {
		return err
	}
	if err := report.WriteText(out, report.Summarize(session)); err != nil {
		return err
	}
	if slices.Contains(a.cfg.Output.Backends, config.BackendJSON) {
		fmt.Fprintf(out, msgResultsPath, jsonbackend.Path(a.cfg.Output.Dir, session.Query))
	}
	return nil
}

func prompt(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, queryPrompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read query: %w", err)
	}
	return line, nil
}

// newPipeline wires the session components from configuration. The
// returned cleanup closes the output backends.
func (a *app) newPipeline(ctx context.Context, scorer sentiment.Scorer) (*pipeline.Pipeline, func(), error) {
	cfg := a.cfg

	registry, err := site.NewRegistry(scorer, a.logger, cfg.Descriptors()...)
	if err != nil {
		return nil, nil, err
	}

	profile, err := fingerprint.ParseProfile(cfg.Fetch.Fingerprint)
	if err != nil {
		return nil, nil, err
	}
	uas := useragent.NewPool(cfg.Fetch.UserAgents)

	proxies, err := newProxyPool(cfg.Fetch)
	if err != nil {
		return nil, nil, err
	}
	if n := proxies.Len(); n > 0 {
		a.logger.Info("rotating egress proxies", "count", n)
	}

	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      cfg.Fetch.Timeout,
		MaxRedirects: cfg.Fetch.MaxRedirects,
		UAPool:       uas,
		Referer:      cfg.Fetch.Referer,
		Fingerprint:  profile,
		Limiter:      ratelimit.NewLimiter(cfg.Fetch.Delay, cfg.Fetch.Jitter),
		ProxyPool:    proxies,
	})
	if err != nil {
		return nil, nil, err
	}

	backend, err := openBackends(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	p := &pipeline.Pipeline{
		Expander:  query.NewExpander(),
		Registry:  registry,
		Fetcher:   fetcher,
		UserAgent: uas.All()[0],
		Backend:   backend,
		Logger:    a.logger,
	}
	if cfg.Fetch.RespectRobots {
		p.Robots = scraper.NewRobotsTxtAuditor(fetcher, a.logger)
	}

	cleanup := func() {
		if err := backend.Close(); err != nil {
			a.logger.Warn("failed to close output backends", "err", err)
		}
	}
	return p, cleanup, nil
}

func newProxyPool(cfg config.FetchConfig) (*proxy.Pool, error) {
	pool := proxy.NewPool(proxy.Config{
		MaxFailures: cfg.ProxyMaxFailures,
		Cooldown:    cfg.ProxyCooldown,
	})
	if err := pool.Add(cfg.Proxies...); err != nil {
		return nil, err
	}
	if cfg.ProxyFile != "" {
		if err := pool.LoadFile(cfg.ProxyFile); err != nil {
			return nil, err
		}
	}
	return pool, nil
}
