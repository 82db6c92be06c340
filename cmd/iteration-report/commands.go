package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cam3ron2/iteration-report/internal/app"
	"github.com/cam3ron2/iteration-report/internal/config"
	"github.com/cam3ron2/iteration-report/internal/logging"
	"github.com/cam3ron2/iteration-report/internal/pipeline"
	"github.com/cam3ron2/iteration-report/internal/schedule"
	"github.com/cam3ron2/iteration-report/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultConfigPath = "config/local.yaml"

type options struct {
	configPath string
	envFile    string
}

// session holds what every subcommand needs after startup.
type session struct {
	cfg        *config.Config
	logger     *zap.Logger
	components *app.Components
	closers    []func() error
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "iteration-report",
		Short:         "Publish per-member GitHub organization activity reports per iteration",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "path to YAML config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(
		newServeCommand(opts),
		newPublishCommand(opts),
		newPreviewCommand(opts),
		newScheduleCommand(opts),
	)
	return root
}

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			s, err := startSession(ctx, opts, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			defer s.close()
			return serve(ctx, s)
		},
	}
}

func newPublishCommand(opts *options) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish the report of the current iteration unless it already exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			s, err := startSession(ctx, opts, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			defer s.close()

			result, err := s.components.Runner.Run(ctx, force)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "write a new report even if one exists for the iteration")
	return cmd
}

func newPreviewCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Print the report of the current iteration without publishing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := startSession(cmd.Context(), opts, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			defer s.close()

			body, err := s.components.Runner.Preview(cmd.Context())
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), body)
			return err
		},
	}
}

func newScheduleCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect or rewrite the iteration schedule file",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the stored iteration schedule",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := startSession(cmd.Context(), opts, cmd.Flags().Changed("config"))
				if err != nil {
					return err
				}
				defer s.close()

				state, err := s.components.Runner.Schedule()
				if err != nil {
					return err
				}
				if err := printSchedule(cmd.OutOrStdout(), state); err != nil {
					return err
				}
				due, err := state.Due(time.Now(), s.components.Location)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "due: %t\n", due)
				return err
			},
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Rewrite the iteration schedule from the current iteration window",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := startSession(cmd.Context(), opts, cmd.Flags().Changed("config"))
				if err != nil {
					return err
				}
				defer s.close()

				state, err := s.components.Runner.SyncSchedule(cmd.Context())
				if err != nil {
					return err
				}
				return printSchedule(cmd.OutOrStdout(), state)
			},
		},
	)
	return cmd
}

func startSession(ctx context.Context, opts *options, configExplicit bool) (*session, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, err
	}
	cfg, err := loadConfig(opts.configPath, configExplicit)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg}
	logger, closeLogger := logging.New(logging.Config{
		Level:      cfg.Server.LogLevel,
		Format:     cfg.Server.LogFormat,
		File:       cfg.Server.LogFile,
		MaxSizeMB:  cfg.Server.LogMaxSizeMB,
		MaxBackups: cfg.Server.LogMaxBackups,
		MaxAgeDays: cfg.Server.LogMaxAgeDays,
	})
	s.logger = logger
	s.closers = append(s.closers, closeLogger)

	telemetryRuntime, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      "iteration-report",
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
	})
	if err != nil {
		s.close()
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	s.closers = append(s.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return telemetryRuntime.Shutdown(shutdownCtx)
	})

	components, err := app.Build(ctx, cfg, logger)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	s.components = components
	s.closers = append(s.closers, components.Close)
	return s, nil
}

// loadConfig reads path. A missing default config file falls back to
// environment-only configuration; a missing explicit one is an error.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		cfg, loadErr := config.Load(strings.NewReader(""))
		if loadErr != nil {
			return nil, fmt.Errorf("load config from environment: %w", loadErr)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	cfg, err := config.Load(file)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, s *session) error {
	runtime := app.NewRuntime(s.cfg, s.components.Runner, s.components.Store, s.logger)
	server := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           runtime.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.cfg.Schedule.Enabled {
		runtime.StartScheduler(ctx)
	} else {
		s.logger.Info("scheduler disabled; reports publish on request only")
	}

	serverErrCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", zap.String("addr", s.cfg.Server.ListenAddr))
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serverErrCh <- serveErr
		}
		close(serverErrCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case serveErr := <-serverErrCh:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}
	}

	runtime.StopScheduler()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

func printResult(w io.Writer, result pipeline.Result) error {
	lines := []string{
		fmt.Sprintf("status: %s", result.Status),
		fmt.Sprintf("iteration: %s", result.Iteration),
	}
	if result.ReportPath != "" {
		lines = append(lines, fmt.Sprintf("report: %s", result.ReportPath))
	}
	if result.HTMLPath != "" {
		lines = append(lines, fmt.Sprintf("html: %s", result.HTMLPath))
	}
	if result.Reason != "" {
		lines = append(lines, fmt.Sprintf("reason: %s", result.Reason))
	}
	if result.RepositoriesTotal > 0 {
		lines = append(lines, fmt.Sprintf("repositories: %d of %d processed", result.RepositoriesProcessed, result.RepositoriesTotal))
	}
	if result.GitError != "" {
		lines = append(lines, fmt.Sprintf("git: %s", result.GitError))
	}
	lines = append(lines, fmt.Sprintf("run: %s", result.RunID))
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

func printSchedule(w io.Writer, state schedule.State) error {
	_, err := fmt.Fprintf(w,
		"next_iteration_name: %s\nnext_iteration_end_date: %s\nlast_updated: %s\nversion: %d\n",
		state.NextIterationName, state.NextIterationEndDate, state.LastUpdated, state.Version,
	)
	return err
}
