// Command vigil runs the MCP interception gateway: risk scoring, policy
// gating, execution tokens and the propose/commit lane for irreversible
// tools.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/Mindburn-Labs/vigil/pkg/config"
	"github.com/Mindburn-Labs/vigil/pkg/exporters"
	"github.com/Mindburn-Labs/vigil/pkg/fallback"
	"github.com/Mindburn-Labs/vigil/pkg/intercept"
	"github.com/Mindburn-Labs/vigil/pkg/mcp"
	"github.com/Mindburn-Labs/vigil/pkg/observability"
	"github.com/Mindburn-Labs/vigil/pkg/policy"
	"github.com/Mindburn-Labs/vigil/pkg/proposal"
	"github.com/Mindburn-Labs/vigil/pkg/registry"
	"github.com/Mindburn-Labs/vigil/pkg/risk"
	"github.com/Mindburn-Labs/vigil/pkg/token"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run dispatches subcommands. It is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServer(stderr)
	}
	switch args[1] {
	case "server", "serve":
		return runServer(stderr)
	case "health":
		return runHealthCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if strings.HasPrefix(args[1], "-") {
			return runServer(stderr)
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "vigil - MCP interception gateway")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  vigil <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  server   Run the gateway server (default)")
	fmt.Fprintln(w, "  health   Check server health (HTTP)")
	fmt.Fprintln(w, "  help     Show this help")
}

//nolint:gocognit // startup wiring is linear but long
func runServer(stderr io.Writer) int {
	ctx := context.Background()

	cfg, err := config.LoadWithFile(os.Getenv("VIGIL_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	logger = logger.With("component", "main")

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceName = cfg.Service
	obsCfg.ServiceVersion = cfg.Policy.PolicyVersion
	if cfg.OTLPEndpoint != "" {
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	} else {
		obsCfg.Enabled = false
	}
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		logger.Error("observability init failed", "error", err)
		return 1
	}
	defer func() { _ = obs.Shutdown(context.Background()) }()

	// Storage backend selection: Postgres when DATABASE_URL is set, SQLite
	// when a path is given, in-memory otherwise.
	var (
		store    proposal.Store
		exporter exporters.Exporter
		db       *sql.DB
	)
	switch {
	case cfg.DatabaseURL != "":
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres open failed", "error", err)
			return 1
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Error("postgres ping failed", "error", err)
			return 1
		}
		pgStore := proposal.NewPostgresStore(db)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Error("proposal schema init failed", "error", err)
			return 1
		}
		pgExporter := exporters.NewPostgres(db)
		if err := pgExporter.EnsureSchema(ctx); err != nil {
			logger.Error("trace schema init failed", "error", err)
			return 1
		}
		store, exporter = pgStore, pgExporter
		logger.Info("postgres backend ready")
	case cfg.SQLitePath != "":
		sqliteStore, err := proposal.OpenSQLiteStore(cfg.SQLitePath)
		if err != nil {
			logger.Error("sqlite open failed", "path", cfg.SQLitePath, "error", err)
			return 1
		}
		defer sqliteStore.Close()
		store, exporter = sqliteStore, exporters.NewJSONL()
		logger.Info("sqlite backend ready", "path", cfg.SQLitePath)
	default:
		store, exporter = proposal.NewMemoryStore(), exporters.NewJSONL()
		logger.Info("in-memory backend ready")
	}

	var replay token.ReplayStore = token.NewMemoryReplayStore()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("redis ping failed", "addr", cfg.RedisAddr, "error", err)
			return 1
		}
		replay = token.NewRedisReplayStore(client)
		logger.Info("redis replay store ready", "addr", cfg.RedisAddr)
	}

	engine, err := policy.NewEngine(policy.Config{
		PolicyID:              cfg.Policy.PolicyID,
		PolicyVersion:         cfg.Policy.PolicyVersion,
		HighBlockThreshold:    cfg.Policy.HighBlockThreshold,
		HighReviewThreshold:   cfg.Policy.HighReviewThreshold,
		MediumReviewThreshold: cfg.Policy.MediumReviewThreshold,
		OverrideExpr:          cfg.Policy.OverrideExpr,
	})
	if err != nil {
		logger.Error("policy engine init failed", "error", err)
		return 1
	}

	issuer := token.NewIssuer(cfg.Tokens.ExecSecret, token.WithTTLMillis(cfg.Tokens.ExecTTLMillis))
	verifier := token.NewVerifier(cfg.Tokens.ExecSecret, token.WithReplayStore(replay))

	reg := registry.New()
	router := fallback.NewRouter()

	icCfg := intercept.Config{
		ShadowForHighRisk:   cfg.Risk.ShadowForHighRisk,
		SelfConsistencyMode: cfg.Risk.SelfConsistencyMode,
		Signals: risk.Enabled{
			Grounding:          cfg.Risk.GroundingEnabled,
			SelfConsistency:    cfg.Risk.SelfConsistencyEnabled,
			NumericInstability: cfg.Risk.NumericInstabilityEnabled,
			ToolMismatch:       cfg.Risk.ToolMismatchEnabled,
			Drift:              cfg.Risk.DriftEnabled,
			Verifier:           cfg.Risk.VerifierEnabled,
		},
	}
	interceptor, err := intercept.New(cfg.Service,
		intercept.WithRegistry(reg),
		intercept.WithEngine(engine),
		intercept.WithTokens(issuer, verifier),
		intercept.WithFallbackRouter(router),
		intercept.WithExporter(exporter),
		intercept.WithConfig(icCfg),
	)
	if err != nil {
		logger.Error("interceptor init failed", "error", err)
		return 1
	}

	commitTokens := proposal.NewCommitTokenManager(cfg.Tokens.CommitSecret,
		proposal.WithCommitTTLSeconds(cfg.Tokens.CommitTTLSeconds))
	proposer := proposal.NewProposer(store, commitTokens,
		proposal.WithProposerConfig(proposal.ProposerConfig{BlockThreshold: cfg.Proposals.BlockThreshold}))
	commitVerifier := proposal.NewCommitVerifier(store, commitTokens)

	gateway := mcp.NewGateway(mcp.GatewayConfig{
		ServerName:    cfg.Service,
		Version:       cfg.Policy.PolicyVersion,
		RatePerSecond: 50,
		Burst:         100,
	}, reg, interceptor, proposer, commitVerifier, mcp.WithObservability(obs))

	if err := registerDemoTools(gateway, router); err != nil {
		logger.Error("tool registration failed", "error", err)
		return 1
	}

	server := mcp.NewServer(":"+cfg.Port, gateway)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	logger.Info("vigil ready",
		"port", cfg.Port,
		"policy_id", cfg.Policy.PolicyID,
		"policy_version", cfg.Policy.PolicyVersion,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			return 1
		}
		return 0
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		return 1
	}
	if err := exporter.Close(shutdownCtx); err != nil {
		logger.Warn("exporter close failed", "error", err)
	}
	return 0
}

func runHealthCmd(stdout, stderr io.Writer) int {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	resp, err := http.Get("http://localhost:" + port + "/healthz")
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(stdout, "OK")
	return 0
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
