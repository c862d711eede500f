// Package main provides the krooster-stats CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/PeterYR/krooster-stats/internal/adapters/catalogsrc"
	"github.com/PeterYR/krooster-stats/internal/adapters/forms"
	"github.com/PeterYR/krooster-stats/internal/adapters/http/api"
	"github.com/PeterYR/krooster-stats/internal/adapters/http/swagger"
	"github.com/PeterYR/krooster-stats/internal/adapters/krooster"
	"github.com/PeterYR/krooster-stats/internal/adapters/report"
	"github.com/PeterYR/krooster-stats/internal/adapters/repository"
	service "github.com/PeterYR/krooster-stats/internal/app"
	"github.com/PeterYR/krooster-stats/internal/config"
	"github.com/PeterYR/krooster-stats/internal/domain/catalog"
	"github.com/PeterYR/krooster-stats/internal/domain/cohort"
	"github.com/PeterYR/krooster-stats/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand needs once the config is loaded.
type app struct {
	configFile string
	logLevel   string
	outputDir  string
	batchSize  int

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "krooster-stats",
		Short:         "Aggregate Arknights roster milestones across Krooster accounts",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "YAML config file (default: $"+config.EnvConfigFile+")")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.outputDir, "output-dir", "", "directory CSV reports are written to")
	pf.IntVar(&a.batchSize, "batch-size", 0, "concurrent lookups and fetch workers")

	rootCmd.AddCommand(newSurveyCmd(a))
	rootCmd.AddCommand(newCountCmd(a))
	rootCmd.AddCommand(newFlagsCmd(a))
	rootCmd.AddCommand(newServeCmd(a))
	return rootCmd
}

// setup loads the config, lets flags override it and initializes logging
// on stderr so stdout stays clean for tables and CSV.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Context(), config.WithFile(a.configFile))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.OutputDir = a.outputDir
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.BatchSize = a.batchSize
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(logger.WithWriter(cmd.ErrOrStderr()), logger.WithJSON(cfg.LogJSON)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	a.cfg = cfg
	return nil
}

// catalogSource builds the catalog source, backed by Redis when configured.
// An unreachable Redis only disables the cache.
func (a *app) catalogSource(ctx context.Context) (*catalogsrc.Source, func()) {
	log := logger.Get()
	var opts []catalogsrc.Option
	cleanup := func() {}
	if a.cfg.RedisAddr != "" {
		rc := catalogsrc.NewRedisCache(a.cfg.RedisAddr)
		if err := rc.Ping(ctx); err != nil {
			log.Warn(ctx, "redis unavailable; catalog cache disabled",
				logger.String("redis_addr", a.cfg.RedisAddr), logger.Error(err))
			_ = rc.Close()
		} else {
			opts = append(opts, catalogsrc.WithCache(rc, a.cfg.CatalogCacheTTL()))
			cleanup = func() { _ = rc.Close() }
		}
	}
	return catalogsrc.New(a.cfg.CatalogURL, opts...), cleanup
}

// newService wires the run service. The returned func releases its resources.
func (a *app) newService(ctx context.Context, summary io.Writer) (*service.Service, func(), error) {
	fields, err := a.cfg.Fields()
	if err != nil {
		return nil, nil, err
	}

	src, closeCache := a.catalogSource(ctx)
	client := krooster.New(
		krooster.WithBaseURL(a.cfg.RemoteBaseURL),
		krooster.WithTimeout(a.cfg.RequestTimeout()),
	)

	opts := []service.Option{
		service.WithLogger(logger.Get().Named("service")),
		service.WithBatchSize(a.cfg.BatchSize),
		service.WithQueueSize(a.cfg.QueueSize),
		service.WithIncludeCN(a.cfg.IncludeCN),
		service.WithFields(fields),
		service.WithOutputDir(a.cfg.OutputDir),
		service.WithSummary(summary),
	}

	cleanup := closeCache
	if a.cfg.StorePath != "" {
		store, err := repository.Open(a.cfg.StorePath)
		if err != nil {
			closeCache()
			return nil, nil, fmt.Errorf("failed to open store: %w", err)
		}
		opts = append(opts, service.WithStore(store))
		cleanup = func() {
			_ = store.Close()
			closeCache()
		}
	}

	return service.New(src, client, opts...), cleanup, nil
}

func newSurveyCmd(a *app) *cobra.Command {
	var byCommunity bool
	cmd := &cobra.Command{
		Use:   "survey <responses.csv>",
		Short: "Report every rarity cohort of a survey responses export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("by-community") {
				a.cfg.ByCommunity = byCommunity
			}
			subs, err := forms.ReadResponsesFile(args[0])
			if err != nil {
				return err
			}
			logger.Get().Info(cmd.Context(), "loaded responses",
				logger.String("path", args[0]), logger.Int("responses", len(subs)))

			cohorts := cohort.Partition(subs, cohort.Options{
				ByCommunity: a.cfg.ByCommunity,
				Communities: a.cfg.Communities,
			})
			return a.run(cmd, service.Request{Source: args[0], Cohorts: cohorts})
		},
	}
	cmd.Flags().BoolVar(&byCommunity, "by-community", false, "also report per rarity and community")
	return cmd
}

func newCountCmd(a *app) *cobra.Command {
	var rarity int
	cmd := &cobra.Command{
		Use:   "count <handles.txt>",
		Short: "Report one cohort from a list of handles, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rarity < 0 || rarity > catalog.MaxRarity {
				return fmt.Errorf("%w: rarity must be 0 (all) or 1-6, got %d", config.ErrInvalidConfig, rarity)
			}
			handles, err := forms.ReadHandlesFile(args[0])
			if err != nil {
				return err
			}
			return a.run(cmd, service.Request{
				Source:    args[0],
				Cohorts:   []cohort.Cohort{{Rarity: rarity, Handles: handles}},
				KeepEmpty: true,
			})
		},
	}
	cmd.Flags().IntVar(&rarity, "rarity", 0, "only count operators of this rarity (0 = all)")
	return cmd
}

func (a *app) run(cmd *cobra.Command, req service.Request) error {
	svc, cleanup, err := a.newService(cmd.Context(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer cleanup()

	run, err := svc.Run(cmd.Context(), req)
	if err != nil {
		return err
	}
	for _, c := range run.Cohorts {
		fmt.Fprintf(cmd.OutOrStdout(), "Saved results for %d users to %s\n", c.Accounts, c.Path)
	}
	return nil
}

func newFlagsCmd(a *app) *cobra.Command {
	var (
		rarities  []int
		includeCN bool
		out       string
	)
	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Write which operators and module branches are countable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("include-cn") {
				a.cfg.IncludeCN = includeCN
			}
			src, cleanup := a.catalogSource(cmd.Context())
			defer cleanup()

			raw, err := src.Raw(cmd.Context())
			if err != nil {
				return err
			}
			flags, err := catalog.AvailabilityFlags(raw, rarities, a.cfg.IncludeCN)
			if err != nil {
				return err
			}

			if out == "" {
				return report.WriteAvailability(cmd.OutOrStdout(), flags)
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			if err := report.WriteAvailability(f, flags); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			logger.Get().Info(cmd.Context(), "wrote availability flags",
				logger.String("path", out), logger.Int("operators", len(flags)))
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&rarities, "rarity", nil, "rarities to include (default all)")
	cmd.Flags().BoolVar(&includeCN, "include-cn", false, "treat CN-only operators and modules as available")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve saved runs and reports over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.StorePath == "" {
				return fmt.Errorf("%w: serve needs store_path", config.ErrInvalidConfig)
			}
			svc, cleanup, err := a.newService(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer cleanup()
			return serve(cmd.Context(), a.cfg.Addr, svc)
		},
	}
}

// serve runs the HTTP server until ctx is cancelled.
func serve(ctx context.Context, addr string, deps api.Dependencies) error {
	log := logger.Get()

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(deps).Register(ctx, mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
		return err
	}
	log.Info(ctx, "server stopped")
	return nil
}
