package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/grounder/internal/config"
	"github.com/FranksOps/grounder/internal/metrics"
	"github.com/FranksOps/grounder/internal/report"
)

// errNotGrounded is returned when a run finishes without any valid source.
var errNotGrounded = errors.New("no grounded sources found")

type runFlags struct {
	configPath  string
	urls        []string
	feeds       []string
	sitemaps    []string
	serp        string
	cache       string
	json        bool
	htmlPath    string
	metricsPort int
	logLevel    string
	logFormat   string
	timeout     time.Duration
	maxResults  int
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run QUERY",
		Short: "Discover, validate and rank sources for QUERY",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, &cfg, f)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runQuery(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), strings.Join(args, " "), cfg, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "config file (yaml, toml or json)")
	fl.StringSliceVar(&f.urls, "url", nil, "candidate URL to validate (repeatable)")
	fl.StringSliceVar(&f.feeds, "feed", nil, "RSS/Atom feed to search (repeatable)")
	fl.StringSliceVar(&f.sitemaps, "sitemap", nil, "sitemap to search (repeatable)")
	fl.StringVar(&f.serp, "serp", "", "HTML search endpoint with %s for the query")
	fl.StringVar(&f.cache, "cache", "", "cache backend: none, memory, badger, sqlite or postgres")
	fl.BoolVar(&f.json, "json", false, "print the full result as JSON")
	fl.StringVar(&f.htmlPath, "html", "", "also write an HTML report to this file")
	fl.IntVar(&f.metricsPort, "metrics-port", 0, "expose Prometheus metrics on this port")
	fl.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn or error")
	fl.StringVar(&f.logFormat, "log-format", "", "log format: text or json")
	fl.DurationVar(&f.timeout, "timeout", 0, "overall run deadline")
	fl.IntVar(&f.maxResults, "max-results", 0, "maximum number of sources returned")
	return cmd
}

// applyFlags lets explicitly set flags override the loaded configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config, f runFlags) {
	changed := cmd.Flags().Changed
	if changed("url") {
		cfg.Search.URLs = f.urls
	}
	if changed("feed") {
		cfg.Search.Feeds = f.feeds
	}
	if changed("sitemap") {
		cfg.Search.Sitemaps = f.sitemaps
	}
	if changed("serp") {
		cfg.Search.SERPEndpoint = f.serp
	}
	if changed("cache") {
		cfg.Cache.Backend = f.cache
	}
	if changed("metrics-port") {
		cfg.Metrics.Port = f.metricsPort
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if changed("timeout") {
		cfg.Pipeline.Timeout = f.timeout
	}
	if changed("max-results") {
		cfg.Pipeline.MaxResults = f.maxResults
	}
}

func runQuery(ctx context.Context, stdout, stderr io.Writer, query string, cfg config.Config, f runFlags) error {
	logger, err := config.NewLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}

	if cfg.Metrics.Port > 0 {
		srv := metrics.Start(cfg.Metrics.Port, logger)
		defer func() {
			if err := srv.Stop(context.Background()); err != nil {
				logger.Warn("metrics server shutdown failed", "err", err)
			}
		}()
		logger.Info("metrics server listening", "port", cfg.Metrics.Port)
	}

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close cache", "err", err)
		}
	}()

	res := a.orchestrator.RunPipeline(ctx, query, cfg.Pipeline)

	summary := report.GenerateSummary(res)
	if f.json {
		err = report.WriteJSON(stdout, res)
	} else {
		err = report.WriteText(stdout, summary)
	}
	if err != nil {
		return err
	}

	if f.htmlPath != "" {
		if err := writeHTML(f.htmlPath, summary); err != nil {
			return err
		}
	}

	if !res.IsValid {
		return errNotGrounded
	}
	return nil
}

func writeHTML(path string, summary report.Summary) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create html report: %w", err)
	}
	if err := report.WriteHTML(out, summary); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
