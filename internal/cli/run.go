package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/config"
	"github.com/wesleyorama2/stampede/internal/materializer"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/report"
	"github.com/wesleyorama2/stampede/internal/runner"
	"github.com/wesleyorama2/stampede/internal/scenario"
	"github.com/wesleyorama2/stampede/internal/transport"
	"github.com/wesleyorama2/stampede/internal/users"
)

func newRunCmd(registry *scenario.Registry) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test from a configuration file",
		Long: `Authenticate the configured users, then admit scenario cycles at the
ramped rate for the configured duration and print the final report.

  stampede run --config load.yaml
  stampede run -c load.yaml --scenario browse --duration 2m --quiet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, registry)
		},
	}

	cmd.Flags().StringP("config", "c", "", "Configuration file")
	cmd.Flags().StringArrayP("scenario", "s", nil, "Scenario to run (repeatable; default: all)")
	cmd.Flags().String("duration", "", "Override the run duration (e.g., 5m, 30s)")
	cmd.Flags().BoolP("quiet", "q", false, "Disable periodic reports, show only the final summary")
	cmd.Flags().String("log-output", "", "Override the measurement log file")
	cmd.Flags().String("html", "", "Write an HTML report to this file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runLoad(cmd *cobra.Command, registry *scenario.Registry) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := scenario.RegisterConfig(registry, cfg); err != nil {
		return err
	}
	names, _ := cmd.Flags().GetStringArray("scenario")
	if len(names) == 0 {
		names = cfg.Run
	}
	scenarios, err := registry.Build(names...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	logger = logger.With(zap.String("run", cfg.Name))

	source, err := loadUsers(cfg.Users)
	if err != nil {
		return err
	}
	auth, err := authenticator(cfg.Users)
	if err != nil {
		return err
	}
	pool := users.NewRepository(source, auth, users.RepositoryConfig{Parallelism: cfg.Users.Parallelism}, logger.Named("users"))
	pool.Start(ctx)

	client := transport.NewHTTPClient(httpClientConfig(cfg.HTTP), logger.Named("http"))
	defer client.CloseIdleConnections()

	sinks, closeSinks, err := buildSinks(cmd, cfg, runID, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	aggCfg := metrics.DefaultAggregatorConfig()
	aggCfg.Interval = cfg.Reporting.Interval.GetDuration()
	aggregator := metrics.NewAggregator(aggCfg, logger.Named("metrics"), sinks...)
	defer aggregator.Stop()

	r, err := runner.New(runner.Config{
		RunID:          runID,
		Duration:       cfg.Duration.GetDuration(),
		MaxConcurrency: cfg.MaxConcurrency,
		GracefulStop:   cfg.GracefulStop.GetDuration(),
		StartRPS:       cfg.RampUp.StartRPS,
		TargetRPS:      cfg.RampUp.TargetRPS,
		RampDuration:   cfg.RampUp.Duration.GetDuration(),
		UserCount:      cfg.Users.Count,
		Region:         cfg.Users.Region,
	}, pool, scenarios, materializer.New(client, materializer.WithLogger(logger.Named("materializer"))), aggregator, logger.Named("runner"))
	if err != nil {
		return err
	}

	result, err := r.Start(ctx)
	if err != nil {
		return fmt.Errorf("run %s aborted: %w", runID, err)
	}
	if result.Snapshot != nil && result.Snapshot.FailedMeasurements > 0 {
		logger.Warn("run finished with failures",
			zap.Int64("failed", result.Snapshot.FailedMeasurements),
			zap.Float64("errorRate", result.Snapshot.ErrorRate()))
	}
	return nil
}

// loadConfig reads --config, applies flag overrides and defaults, and
// validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil, errors.New("--config is required")
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Lookup("duration") != nil {
		if override, _ := cmd.Flags().GetString("duration"); override != "" {
			d, err := config.ParseDurationString(override)
			if err != nil {
				return nil, fmt.Errorf("invalid --duration: %w", err)
			}
			cfg.Duration = config.Duration(d)
		}
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		cfg.Reporting.Quiet = true
	}
	if logOutput, _ := cmd.Flags().GetString("log-output"); logOutput != "" {
		cfg.Reporting.LogFile = logOutput
	}
	if html, _ := cmd.Flags().GetString("html"); html != "" {
		cfg.Reporting.HTMLFile = html
	}

	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadUsers collects the source users from the CSV file and inline list.
// With neither configured, Count anonymous users are generated.
func loadUsers(cfg config.UsersConfig) ([]users.User, error) {
	var out []users.User
	if cfg.File != "" {
		fromFile, err := users.LoadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		out = append(out, fromFile...)
	}
	for _, u := range cfg.Inline {
		id := u.ID
		if id == "" {
			id = uuid.NewString()
		}
		out = append(out, users.User{Username: u.Username, Password: u.Password, ID: id, Region: u.Region})
	}
	if cfg.File == "" && len(cfg.Inline) == 0 {
		for i := range cfg.Count {
			out = append(out, users.User{Username: fmt.Sprintf("user-%d", i+1), ID: fmt.Sprintf("%d", i+1)})
		}
	}
	return out, nil
}

func authenticator(cfg config.UsersConfig) (users.Authenticator, error) {
	if cfg.OAuth == nil {
		return users.NoopAuthenticator{}, nil
	}
	return users.NewOAuthAuthenticator(users.OAuthConfig{
		TokenURL:     cfg.OAuth.TokenURL,
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		Scopes:       cfg.OAuth.Scopes,
	})
}

func httpClientConfig(cfg config.HTTPConfig) transport.HTTPClientConfig {
	out := transport.DefaultHTTPClientConfig()
	out.Timeout = cfg.Timeout.GetDuration()
	out.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	out.MaxConnsPerHost = cfg.MaxConnsPerHost
	out.InsecureSkipVerify = cfg.InsecureSkipVerify
	out.UserAgent = cfg.UserAgent
	return out
}

// buildSinks creates the console table plus whichever optional sinks the
// reporting section enables. The returned func releases them.
func buildSinks(cmd *cobra.Command, cfg *config.Config, runID string, logger *zap.Logger) ([]metrics.Sink, func(), error) {
	sinks := []metrics.Sink{report.NewConsole(report.ConsoleConfig{
		RunName: cfg.Name,
		RunID:   runID,
		Writer:  cmd.OutOrStdout(),
		Quiet:   cfg.Reporting.Quiet,
	})}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Reporting.LogFile != "" {
		f, err := os.Create(cfg.Reporting.LogFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create measurement log: %w", err)
		}
		lw, err := report.NewLogWriter(f, report.LogWriterConfig{
			Format:  cfg.Reporting.Format,
			RunName: cfg.Name,
			RunID:   runID,
			Start:   time.Now(),
		})
		if err != nil {
			_ = f.Close()
			return nil, nil, err
		}
		sinks = append(sinks, lw)
		closers = append(closers, func() {
			if err := lw.Close(); err != nil {
				logger.Error("failed to close measurement log", zap.Error(err))
			}
		})
	}

	if cfg.Reporting.HTMLFile != "" {
		page := report.NewHTML(report.HTMLConfig{RunName: cfg.Name, RunID: runID, Path: cfg.Reporting.HTMLFile})
		sinks = append(sinks, page)
		closers = append(closers, func() {
			if err := page.Err(); err != nil {
				logger.Error("failed to write HTML report", zap.Error(err))
			}
		})
	}

	if cfg.Reporting.MetricsAddr != "" {
		prom := report.NewPrometheus(cfg.Name)
		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		srv := &http.Server{Addr: cfg.Reporting.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", cfg.Reporting.MetricsAddr))
		sinks = append(sinks, prom)
		closers = append(closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		})
	}

	return sinks, closeAll, nil
}
