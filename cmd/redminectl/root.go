package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/Sternrassler/redmine-connector/pkg/config"
	"github.com/Sternrassler/redmine-connector/pkg/logging"
	"github.com/Sternrassler/redmine-connector/pkg/metrics"
	"github.com/Sternrassler/redmine-connector/pkg/redmine"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app carries the state shared by all subcommands of one invocation.
type app struct {
	configPath  string
	server      string
	apiKey      string
	logLevel    string
	pretty      bool
	metricsAddr string

	connector *redmine.Connector
	logger    zerolog.Logger
	metrics   *http.Server
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "redminectl",
		Short: "Command line access to a Redmine server",
		Long: "redminectl lists projects, issues and users of a Redmine server page by page.\n" +
			"Settings come from redmine-connector.properties, .env and the environment;\n" +
			"flags override them.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "properties file (default: ./"+config.DefaultFileName+" when present)")
	flags.StringVar(&a.server, "server", "", "Redmine server URL (overrides redmine.server)")
	flags.StringVar(&a.apiKey, "api-key", "", "REST API key (overrides security.key)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.BoolVar(&a.pretty, "pretty", false, "human-readable log output")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address while running")

	root.AddCommand(
		newProjectsCmd(a),
		newIssuesCmd(a),
		newUsersCmd(a),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Read(a.configPath)
	if err != nil {
		return err
	}
	if a.server != "" {
		cfg.Server = a.server
	}
	if a.apiKey != "" {
		cfg.APIKey = a.apiKey
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.pretty {
		cfg.LogPretty = true
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: cmd.ErrOrStderr(),
	})
	a.logger = logging.NewLogger("redminectl")

	if err := cfg.Validate(); err != nil {
		return err
	}

	if a.metricsAddr != "" {
		if err := a.serveMetrics(); err != nil {
			return err
		}
	}

	a.connector, err = redmine.NewFromConfig(cfg)
	return err
}

// execute runs the command tree and releases what setup acquired, whether the
// command succeeded or not.
func execute(ctx context.Context, a *app, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.teardown())
}

func (a *app) teardown() error {
	var errs []error
	if a.connector != nil {
		errs = append(errs, a.connector.Close())
		a.connector = nil
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.metrics.Shutdown(ctx))
		a.metrics = nil
	}
	return errors.Join(errs...)
}

// serveMetrics starts the metrics listener. It stops in teardown.
func (a *app) serveMetrics() error {
	ln, err := net.Listen("tcp", a.metricsAddr)
	if err != nil {
		return err
	}
	a.metricsAddr = ln.Addr().String()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", healthHandler)

	a.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	a.logger.Info().Str("addr", a.metricsAddr).Msg("Serving metrics")
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
