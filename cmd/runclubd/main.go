package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"runclub/cmd/internal/passphrase"
	"runclub/config"
	"runclub/core"
	"runclub/core/genesis"
	"runclub/crypto"
	"runclub/gateway/auth"
	"runclub/gateway/middleware"
	"runclub/gateway/routes"
	"runclub/indexer"
	"runclub/native/token"
	"runclub/observability"
	"runclub/observability/logging"
	telemetry "runclub/observability/otel"
	"runclub/services/periodwatch"
	"runclub/storage"
)

const (
	operatorPassEnv = "RUNCLUB_OPERATOR_PASS"
	genesisPathEnv  = "RUNCLUB_GENESIS"
	envVar          = "RUNCLUB_ENV"

	nonceCapacity = 65536
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides RUNCLUB_GENESIS and config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv(envVar))
	if env == "" {
		env = cfg.Logging.Env
	}
	logger := logging.Setup("runclubd", env, logging.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, env, *genesisFlag, logger); err != nil {
		logger.Error("runclubd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, env, genesisFlag string, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "runclubd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	operator, err := loadOperatorKey(cfg.OperatorKeystorePath, passphrase.NewSource(operatorPassEnv, "operator"))
	if err != nil {
		return err
	}
	operatorAddr := operator.PubKey().Address()
	logger.Info("operator key loaded", slog.String("signer", operatorAddr.String()))

	db, err := storage.Open(cfg.StorageBackend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()

	var index *indexer.Indexer
	if cfg.Indexer.Driver != indexer.DriverNone {
		index, err = indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN, logger)
		if err != nil {
			return err
		}
		defer func() { _ = index.Close() }()
	}

	opts := []core.Option{
		core.WithPauses(cfg),
		core.WithLogger(logger),
		core.WithMetrics(observability.RunClub()),
	}
	if index != nil {
		opts = append(opts, core.WithEmitter(index))
	}
	rt, err := core.NewRuntime(db, cfg.Token.Symbol, opts...)
	if err != nil {
		return err
	}

	meta := token.Metadata{
		Name:     cfg.Token.Name,
		Decimals: cfg.Token.Decimals,
		Admin:    operatorAddr.Bytes(),
	}
	if err := bootstrap(ctx, rt, meta, resolveGenesisPath(genesisFlag, cfg.GenesisFile, os.LookupEnv), logger); err != nil {
		return err
	}

	nonces, closeNonces, err := openNonceStore(cfg.StorageBackend, cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() { _ = closeNonces() }()
	skew := time.Duration(cfg.Auth.SignatureSkewSeconds) * time.Second
	verifier := auth.NewVerifier(skew, nonceCapacity, time.Now, nonces)
	if err := verifier.HydrateNonces(ctx, time.Now().Add(-2*skew)); err != nil {
		logger.Warn("nonce hydration failed", slog.Any("error", err))
	}

	var authn *middleware.Authenticator
	if secret := strings.TrimSpace(cfg.Auth.OracleHMACSecret); secret != "" {
		authn = middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: secret,
			Issuer:     cfg.Auth.OracleIssuer,
			Audience:   cfg.Auth.OracleAudience,
		}, logger)
	} else {
		logger.Warn("oracle secret not configured; km accrual disabled")
	}

	limit := middleware.RateLimit{
		RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
		Burst:             cfg.RateLimit.Burst,
	}
	var events routes.EventIndex
	if index != nil {
		events = index
	}
	router, err := routes.New(routes.Config{
		Runtime:       rt,
		Events:        events,
		Verifier:      verifier,
		Authenticator: authn,
		RateLimiter: middleware.NewRateLimiter(map[string]middleware.RateLimit{
			routes.RateLimitRead:  limit,
			routes.RateLimitWrite: limit,
			routes.RateLimitKm:    limit,
		}),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			Module:      "runclubd",
			LogRequests: true,
		}, logger),
		CORS: middleware.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("configure routes: %w", err)
	}
	handler := http.Handler(router)
	if cfg.Telemetry.Traces {
		handler = otelhttp.NewHandler(router, "runclubd")
	}

	if cfg.Watcher.Enabled {
		var ledger periodwatch.EventLedger
		if index != nil {
			ledger = index
		}
		watcher, err := periodwatch.New(rt, ledger, cfg.Watcher.Schedule, logger)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("address", cfg.ListenAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen and serve: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("error", err))
	}
	return nil
}

// bootstrap applies the genesis file when one is configured, otherwise it
// registers the stable asset with the operator as admin.
func bootstrap(ctx context.Context, rt *core.Runtime, meta token.Metadata, genesisPath string, logger *slog.Logger) error {
	if genesisPath == "" {
		if err := rt.Bootstrap(ctx, meta); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		return nil
	}
	spec, err := genesis.LoadSpec(genesisPath)
	if err != nil {
		return err
	}
	applied, err := genesis.Apply(ctx, rt, spec, meta)
	if err != nil {
		return fmt.Errorf("apply genesis %s: %w", genesisPath, err)
	}
	if applied {
		logger.Info("genesis applied", slog.String("path", genesisPath), slog.Int("clubs", len(spec.Clubs)))
	}
	return nil
}

// openNonceStore persists accepted signatures next to the state database.
// The memory backend keeps them in the verifier's cache only.
func openNonceStore(backend, dataDir string) (auth.NoncePersistence, func() error, error) {
	if strings.EqualFold(strings.TrimSpace(backend), storage.BackendMemory) {
		return nil, func() error { return nil }, nil
	}
	store, err := auth.NewLevelDBNoncePersistence(filepath.Join(dataDir, "nonces"))
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func resolveGenesisPath(flagValue, configValue string, lookupEnv func(string) (string, bool)) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if lookupEnv != nil {
		if value, ok := lookupEnv(genesisPathEnv); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(configValue)
}

type passphraseSource interface {
	Get() (string, error)
}

// loadOperatorKey opens the operator keystore. Keystores written by
// config.Load carry an empty passphrase; anything else is resolved through
// source.
func loadOperatorKey(path string, source passphraseSource) (*crypto.PrivateKey, error) {
	if key, err := crypto.LoadFromKeystore(path, ""); err == nil {
		return key, nil
	}
	pass, err := source.Get()
	if err != nil {
		return nil, fmt.Errorf("operator passphrase: %w", err)
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("load operator keystore: %w", err)
	}
	return key, nil
}
