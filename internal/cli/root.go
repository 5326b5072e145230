package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"retailqa/internal/app"
	"retailqa/internal/config"
	"retailqa/internal/duck"
	"retailqa/internal/logging"
	"retailqa/internal/metrics"
	"retailqa/internal/nlq"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type rootOptions struct {
	verbose     bool
	dbPath      string
	data        []string
	metricsAddr string
}

func Run(info BuildInfo) ExitCode {
	_ = godotenv.Load()

	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "retailqa",
		Short:         "Ask questions about retail sales data in plain language.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, info.Date).Set(1)
			if opts.metricsAddr != "" {
				go serveMetrics(opts.metricsAddr, logging.New(opts.verbose))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "set debug logging level")
	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "DuckDB database file (empty for in-memory)")
	rootCmd.PersistentFlags().StringArrayVar(&opts.data, "data", nil, "register a CSV/Parquet/JSON file as a table, as name=path or path")
	rootCmd.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(
		newAskCmd(opts),
		newSummaryCmd(opts),
		newSchemaCmd(opts),
		newExportCmd(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitCodeError
	}
	return exitCodeSuccess
}

func serveMetrics(addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server failed", "error", err)
	}
}

// session is the local stack: DuckDB with the --data files registered.
type session struct {
	cfg   *config.Config
	log   *slog.Logger
	store *duck.Store
}

func (o *rootOptions) open(ctx context.Context) (*session, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	log := logging.New(o.verbose)

	store, err := duck.Open(ctx, log, o.dbPath, 0)
	if err != nil {
		return nil, err
	}
	for _, spec := range o.data {
		table, path := duck.ParseDataSpec(spec)
		if err := store.RegisterFile(ctx, table, path); err != nil {
			_ = store.Close()
			return nil, err
		}
		log.Debug("registered data file", "table", table, "path", path)
	}
	return &session{cfg: cfg, log: log, store: store}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

func (s *session) pipeline(ctx context.Context) (*app.Pipeline, error) {
	if s.cfg.OracleProvider == config.ProviderAnthropic && s.cfg.AnthropicAPIKey == "" && s.cfg.AnthropicAPIKeyParam != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		if err := s.cfg.ResolveSecrets(ctx, ssm.NewFromConfig(awsCfg)); err != nil {
			return nil, err
		}
	}
	oracle, err := app.NewOracle(ctx, s.cfg, s.log)
	if err != nil {
		return nil, err
	}
	return app.NewPipeline(s.cfg, oracle, s.store, app.DialectDuckDB, s.log), nil
}

func (s *session) catalog() nlq.SchemaCatalog {
	return nlq.NewCachedCatalog(s.store, s.cfg.SchemaCacheTTL)
}
