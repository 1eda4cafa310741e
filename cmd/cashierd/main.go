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

	"pixcashier/audit"
	"pixcashier/config"
	"pixcashier/core/events"
	"pixcashier/crypto"
	"pixcashier/native/cashback"
	"pixcashier/native/cashier"
	"pixcashier/observability/logging"
	"pixcashier/observability/metrics"
	"pixcashier/observability/otel"
	"pixcashier/rpc"
	"pixcashier/state"
	"pixcashier/storage"
)

const (
	jwtSecretEnv = "PIX_RPC_JWT_SECRET"
	envNameEnv   = "PIX_ENV"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	seedsFlag := flag.String("seeds", "", "Path to a YAML seed file (overrides config SeedsFile)")
	memoryFlag := flag.Bool("memory", false, "DEV ONLY: keep all state in memory instead of the data directory")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envNameEnv))
	logger := logging.Setup("cashierd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if env == "" {
		env = cfg.Environment
	}

	var db storage.Database
	if *memoryFlag {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
		if err != nil {
			logger.Error("failed to open database", slog.Any("error", err))
			os.Exit(1)
		}
		defer ldb.Close()
		db = ldb
	}

	manager := state.NewManager(db)
	firstRun := true
	if err := manager.Initialize(cfg.TokenSymbol); err != nil {
		if !errors.Is(err, state.ErrAlreadyInitialized) {
			logger.Error("failed to initialise ledger", slog.Any("error", err))
			os.Exit(1)
		}
		firstRun = false
	}

	vault := crypto.DeriveModuleAddress("cashier/vault")
	reserve := crypto.DeriveModuleAddress("cashback/reserve")
	custody := state.NewTokenCustody(manager, vault)

	emitters := events.Multi{metrics.Cashier()}
	var archive *audit.Store
	if !*memoryFlag {
		archive, err = audit.Open(filepath.Join(cfg.DataDir, "audit.db"))
		if err != nil {
			logger.Error("failed to open audit archive", slog.Any("error", err))
			os.Exit(1)
		}
		defer archive.Close()
		emitters = append(emitters, archive)
	}

	cashierEngine := cashier.NewEngine()
	cashierEngine.SetState(manager)
	cashierEngine.SetCustody(custody)
	cashierEngine.SetEmitter(emitters)
	cashierEngine.SetPauses(manager)

	cashbackEngine := cashback.NewEngine()
	cashbackEngine.SetState(manager)
	cashbackEngine.SetCustody(custody, reserve)
	cashbackEngine.SetEmitter(emitters)
	cashbackEngine.SetPauses(manager)

	if firstRun {
		seedsPath := strings.TrimSpace(*seedsFlag)
		if seedsPath == "" {
			seedsPath = cfg.SeedsFile
		}
		if err := applySeeds(manager, custody, cashbackEngine, seedsPath); err != nil {
			logger.Error("failed to apply seeds", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("ledger initialised", slog.String("token", cfg.TokenSymbol))
	}

	var telemetryShutdown func(context.Context) error
	if cfg.Telemetry.Enabled {
		shutdown, err := otel.Init(context.Background(), otel.Config{
			ServiceName: cfg.ServiceName,
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		telemetryShutdown = shutdown
	}

	secret := strings.TrimSpace(os.Getenv(jwtSecretEnv))
	if secret == "" {
		secret = cfg.RPCJWTSecret
	}
	auth := rpc.NewAuthenticator(secret)
	limits := rpc.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)

	server := rpc.NewServer(cashierEngine, cashbackEngine, archive, auth, limits, logger)
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("JSON-RPC server listening", slog.String("address", cfg.RPCAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server terminated", slog.Any("error", err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shut down RPC server", slog.Any("error", err))
	}
	if telemetryShutdown != nil {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("failed to shut down telemetry", slog.Any("error", err))
		}
	}
}

// applySeeds provisions roles, blacklist entries, balances and the cashback
// rate on a freshly initialised ledger.
func applySeeds(manager *state.Manager, custody *state.TokenCustody, rewards *cashback.Engine, path string) error {
	seeds, err := config.LoadSeeds(path)
	if err != nil {
		return err
	}

	for _, role := range seeds.Roles {
		addr, err := crypto.DecodeAddress(role.Address)
		if err != nil {
			return fmt.Errorf("seed role %s: %w", role.Role, err)
		}
		decoded := addr.Bytes()
		if err := manager.GrantRole(role.Role, decoded[:]); err != nil {
			return fmt.Errorf("seed role %s: %w", role.Role, err)
		}
	}

	for _, raw := range seeds.Blacklist {
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			return fmt.Errorf("seed blacklist entry %s: %w", raw, err)
		}
		decoded := addr.Bytes()
		if err := manager.SetBlacklisted(decoded[:], true); err != nil {
			return fmt.Errorf("seed blacklist entry %s: %w", raw, err)
		}
	}

	for _, balance := range seeds.Balances {
		addr, err := crypto.DecodeAddress(balance.Address)
		if err != nil {
			return fmt.Errorf("seed balance for %s: %w", balance.Address, err)
		}
		amount, err := balance.ParseAmount()
		if err != nil {
			return err
		}
		if amount.Sign() == 0 {
			continue
		}
		if err := custody.Mint(addr.Bytes(), amount); err != nil {
			return fmt.Errorf("seed balance for %s: %w", balance.Address, err)
		}
	}

	if seeds.CashbackBps > 0 {
		if err := rewards.SeedRate(seeds.CashbackBps); err != nil {
			return fmt.Errorf("seed cashback rate: %w", err)
		}
	}

	return nil
}
