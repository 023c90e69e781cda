package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/rakurai-io/rakurai/client/pkg/client"
	"github.com/rakurai-io/rakurai/distributor/pkg/clickhouse"
	"github.com/rakurai-io/rakurai/distributor/pkg/metrics"
	"github.com/rakurai-io/rakurai/distributor/pkg/server"
	"github.com/rakurai-io/rakurai/distributor/pkg/store"
	"github.com/rakurai-io/rakurai/distributor/pkg/tree"
	"github.com/rakurai-io/rakurai/distributor/pkg/watcher"
	"github.com/rakurai-io/rakurai/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr  = "0.0.0.0:8080"
	defaultMetricsAddr = "0.0.0.0:0"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	envFileFlag := flag.String("env-file", ".env", "file of environment variables to load if present")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "address to serve the HTTP API on")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "address to serve prometheus metrics on (empty to disable)")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 10*time.Second, "maximum time to wait for the HTTP server to shut down")
	allowedOriginsFlag := flag.StringSlice("allowed-origins", nil, "CORS origins allowed to call the API (default any)")

	// Solana configuration
	rpcURLFlag := flag.String("rpc-url", "m", "Solana RPC URL or moniker m|t|d|l (or set SOLANA_RPC_URL env var)")
	rpcRPSFlag := flag.Float64("rpc-rps", 10, "maximum RPC requests per second (0 for unlimited)")
	programIDFlag := flag.String("distribution-program-id", "", "distribution program id (or set DISTRIBUTION_PROGRAM_ID env var)")
	refreshIntervalFlag := flag.Duration("refresh-interval", time.Minute, "interval between collection account refreshes")
	treeFilesFlag := flag.StringSlice("tree-file", nil, "tree file to serve proofs from, repeatable (or set TREE_FILE env var)")

	// ClickHouse configuration
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port), snapshots disabled when empty (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")
	clickhouseMigrateStatusFlag := flag.Bool("clickhouse-migrate-status", false, "show ClickHouse migration status and exit")

	// Sentry configuration
	sentryDSNFlag := flag.String("sentry-dsn", "", "Sentry DSN for error reporting (or set SENTRY_DSN env var)")
	sentryEnvFlag := flag.String("sentry-environment", "", "Sentry environment (or set SENTRY_ENVIRONMENT env var)")

	flag.Parse()

	log := logger.New(*verboseFlag)

	if err := godotenv.Load(*envFileFlag); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load env file %s: %w", *envFileFlag, err)
	}

	overrideString(rpcURLFlag, "SOLANA_RPC_URL")
	overrideString(programIDFlag, "DISTRIBUTION_PROGRAM_ID")
	overrideString(clickhouseAddrFlag, "CLICKHOUSE_ADDR_TCP")
	overrideString(clickhouseDatabaseFlag, "CLICKHOUSE_DATABASE")
	overrideString(clickhouseUsernameFlag, "CLICKHOUSE_USERNAME")
	overrideString(clickhousePasswordFlag, "CLICKHOUSE_PASSWORD")
	overrideString(sentryDSNFlag, "SENTRY_DSN")
	overrideString(sentryEnvFlag, "SENTRY_ENVIRONMENT")
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}
	if v := os.Getenv("TREE_FILE"); v != "" {
		*treeFilesFlag = append(*treeFilesFlag, v)
	}

	chCfg := clickhouse.Config{
		Addr:     *clickhouseAddrFlag,
		Database: *clickhouseDatabaseFlag,
		Username: *clickhouseUsernameFlag,
		Password: *clickhousePasswordFlag,
		Secure:   *clickhouseSecureFlag,
	}
	if *clickhouseMigrateStatusFlag {
		if chCfg.Addr == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate-status")
		}
		return clickhouse.Status(context.Background(), log, chCfg)
	}

	if *sentryDSNFlag != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         *sentryDSNFlag,
			Environment: *sentryEnvFlag,
			Release:     fmt.Sprintf("rakurai-distributor@%s", version),
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		log.Info("sentry initialized", "environment", *sentryEnvFlag)
	}

	var programID solana.PublicKey
	if *programIDFlag != "" {
		pk, err := solana.PublicKeyFromBase58(*programIDFlag)
		if err != nil {
			return fmt.Errorf("invalid distribution program id: %w", err)
		}
		programID = pk
	}

	trees := make([]*tree.Tree, 0, len(*treeFilesFlag))
	for _, path := range *treeFilesFlag {
		t, err := tree.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load tree file %s: %w", path, err)
		}
		log.Info("tree loaded", "path", path, "vote_account", t.VoteAccount, "epoch", t.Epoch, "nodes", len(t.Nodes))
		trees = append(trees, t)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rpcURL := client.NormalizeURL(*rpcURLFlag)
	rpc, err := client.New(client.Config{
		Logger:                log,
		RPC:                   solanarpc.New(rpcURL),
		DistributionProgramID: programID,
		RequestsPerSecond:     *rpcRPSFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create rpc client: %w", err)
	}
	log.Info("rpc client initialized", "url", rpcURL, "program", rpc.DistributionProgramID())

	watcherCfg := watcher.Config{
		Logger:          log,
		Accounts:        rpc,
		RefreshInterval: *refreshIntervalFlag,
	}
	if chCfg.Addr != "" {
		if err := clickhouse.Up(ctx, log, chCfg); err != nil {
			return fmt.Errorf("failed to run clickhouse migrations: %w", err)
		}
		ch, err := clickhouse.NewClient(ctx, log, chCfg)
		if err != nil {
			return err
		}
		defer ch.Close()
		st, err := store.New(store.Config{Logger: log, ClickHouse: ch})
		if err != nil {
			return fmt.Errorf("failed to create store: %w", err)
		}
		watcherCfg.Store = st
	} else {
		log.Info("clickhouse not configured, snapshots are kept in memory only")
	}

	w, err := watcher.New(watcherCfg)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	srv, err := server.New(log, server.Config{
		ListenAddr:            *listenAddrFlag,
		ShutdownTimeout:       *shutdownTimeoutFlag,
		VersionInfo:           server.VersionInfo{Version: version, Commit: commit, Date: date},
		View:                  w,
		Trees:                 trees,
		DistributionProgramID: rpc.DistributionProgramID(),
		AllowedOrigins:        *allowedOriginsFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	g, gctx := errgroup.WithContext(ctx)
	if *metricsAddrFlag != "" {
		g.Go(func() error {
			return serveMetrics(gctx, log, *metricsAddrFlag)
		})
	}
	w.Start(gctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})

	err = g.Wait()
	if err != nil {
		sentry.CaptureException(err)
	}
	log.Info("distributor shutting down", "reason", ctx.Err())
	return err
}

func overrideString(flagValue *string, env string) {
	if v := os.Getenv(env); v != "" {
		*flagValue = v
	}
}

func serveMetrics(ctx context.Context, log *slog.Logger, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start prometheus metrics server listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	log.Info("prometheus metrics server listening", "address", listener.Addr().String())
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve metrics: %w", err)
	}
	return nil
}
