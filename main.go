package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"autoria-scraper/config"
	"autoria-scraper/scraper/autoria"
	"autoria-scraper/services"
	"autoria-scraper/storage"
	"autoria-scraper/utils"
)

type options struct {
	envFile     string
	concurrency int
	headless    bool
	dumpFormat  string
	logLevel    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		utils.Error("%v", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "autoria-scraper",
		Short:         "Crawl auto.ria.com used car listings into PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "env file to load before reading the environment")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&opts.dumpFormat, "dump-format", "", "sql or csv (overrides DUMP_FORMAT)")

	crawl := &cobra.Command{
		Use:   "crawl",
		Short: "Run one full crawl and dump the cars table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, opts)
		},
	}
	for _, cmd := range []*cobra.Command{root, crawl} {
		cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 0, "listing pages rendered at once (overrides MAX_CONCURRENCY)")
		cmd.Flags().BoolVar(&opts.headless, "headless", true, "run Chrome headless (overrides HEADLESS)")
	}

	root.AddCommand(crawl)
	root.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Write a data-only dump of the cars table without crawling",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd, opts)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Create the cars table if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd, opts)
		},
	})

	return root
}

// loadConfig reads env configuration, applies explicitly set flags on top and
// configures logging.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		cfg.MaxConcurrency = opts.concurrency
	}
	if flags.Changed("headless") {
		cfg.Headless = opts.headless
	}
	if flags.Changed("dump-format") {
		cfg.DumpFormat = opts.dumpFormat
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	utils.Configure(utils.ParseLevel(cfg.LogLevel), cfg.LogColor)
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*storage.PostgresStore, error) {
	store, err := storage.NewPostgresStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect PostgreSQL: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to ensure PostgreSQL schema: %w", err)
	}
	return store, nil
}

func newDumper(ctx context.Context, cfg *config.Config, store *storage.PostgresStore) *storage.Dumper {
	var archiver storage.Archiver
	if cfg.Archive.Enabled() {
		s3, err := storage.NewS3Archiver(cfg.Archive)
		if err == nil {
			err = s3.EnsureBucket(ctx)
		}
		if err != nil {
			utils.Warn("Dump archiving disabled: %v", err)
		} else {
			archiver = s3
		}
	}
	return storage.NewDumper(store, cfg.DumpsPath, cfg.DumpFormat, archiver)
}

func runCrawl(cmd *cobra.Command, opts *options) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	utils.Info("Crawler starting | per_page=%d workers=%d page_workers=%d headless=%v dump=%s",
		cfg.ResultsPerPage, cfg.MaxConcurrency, cfg.PageConcurrency, cfg.Headless, cfg.DumpFormat)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	fetcher, err := autoria.NewFetcher(cfg)
	if err != nil {
		return fmt.Errorf("could not create fetcher: %w", err)
	}
	defer fetcher.Close()

	browser, err := autoria.NewBrowser(cfg)
	if err != nil {
		return fmt.Errorf("could not start browser: %w", err)
	}
	defer browser.Close()

	scanner := autoria.NewScanner(browser, fetcher, cfg.ResultsPerPage, cfg.PageConcurrency, cfg.RenderTimeout)
	phones := autoria.NewPhoneResolver(fetcher, cfg.PhoneAPIURL, cfg.PhoneRetries, cfg.PhoneRetryDelay)
	crawler := autoria.NewCrawler(cfg, scanner, browser, phones, store, newDumper(ctx, cfg, store))

	stats, runErr := crawler.Run(ctx)
	services.PrintReport(os.Stdout, services.GenerateReport(stats))
	return runErr
}

func runDump(cmd *cobra.Command, opts *options) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	path, err := newDumper(ctx, cfg, store).Dump(ctx)
	if err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	utils.Success("Database dump saved to %s", path)
	return nil
}

func runSchema(cmd *cobra.Command, opts *options) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	utils.Success("Schema ready")
	return nil
}
