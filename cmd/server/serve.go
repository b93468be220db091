package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	grpcadapter "github.com/piyushhsainii/rugs.fun/internal/adapter/grpc"
	"github.com/piyushhsainii/rugs.fun/internal/adapter/httpapi"
	"github.com/piyushhsainii/rugs.fun/internal/adapter/ledger/memory"
	"github.com/piyushhsainii/rugs.fun/internal/adapter/metrics"
	"github.com/piyushhsainii/rugs.fun/internal/adapter/repository/postgres"
	"github.com/piyushhsainii/rugs.fun/internal/config"
	"github.com/piyushhsainii/rugs.fun/internal/domain"
	"github.com/piyushhsainii/rugs.fun/internal/logging"
	"github.com/piyushhsainii/rugs.fun/internal/usecase/authority"
	"github.com/piyushhsainii/rugs.fun/internal/usecase/initializer"
	"github.com/piyushhsainii/rugs.fun/internal/usecase/overview"
	"github.com/piyushhsainii/rugs.fun/internal/usecase/seeder"
	"github.com/piyushhsainii/rugs.fun/internal/usecase/transfer"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gRPC vault API and the ops HTTP endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, err := logging.New(logging.Environment(cfg.Env), cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	// 1. Setup ledger
	store, checks, closeStore, err := openLedger(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	deriver := authority.NewDeriver(cfg.Program())
	vault, err := deriver.Vault()
	if err != nil {
		return fmt.Errorf("failed to derive vault authority: %w", err)
	}
	log.Info("vault authority derived",
		zap.String("program_id", cfg.ProgramID),
		zap.String("authority", vault.Address.String()),
		zap.Uint8("bump", vault.Bump),
	)

	// Development fixtures
	var faucet *seeder.SystemSeeder
	if cfg.SeedFixtures {
		faucet = seeder.NewSystemSeeder(store, cfg.Program())
		if err := faucet.Seed(ctx, nil, 0); err != nil {
			return fmt.Errorf("failed to seed fixtures: %w", err)
		}
		log.Info("fixture mints seeded; airdrop enabled")
	}

	// 2. Initialize Services (Use Cases)
	initializerService := initializer.NewInitializerService(store, deriver, log.Named("initializer"))
	transferService := transfer.NewTransferService(store, deriver, log.Named("transfer"))
	overviewService := overview.NewOverviewService(store, store, deriver)

	// 3. Start gRPC Server
	m := metrics.New()
	grpcServer := grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(
			grpcadapter.LoggingInterceptor(log.Named("grpc")),
			grpcadapter.MetricsInterceptor(m),
			grpcadapter.AuthInterceptor(cfg.APIToken),
			grpcadapter.RateLimitInterceptor(grpcadapter.NewRateLimiter(cfg.PeerRateLimitRPS, cfg.PeerRateLimitBurst), m),
		),
	)

	grpcAdapter := grpcadapter.NewServer(
		initializerService,
		transferService,
		overviewService,
		deriver,
		grpcadapter.NewSignatureVerifier(cfg.SignatureMaxAge),
		m,
	).WithSignerLimit(grpcadapter.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))
	if faucet != nil {
		grpcAdapter.WithFaucet(faucet)
	}
	grpcadapter.RegisterVaultServiceServer(grpcServer, grpcAdapter)

	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
	}

	// 4. Start ops HTTP server
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(m.Registry, checks),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()
	go func() {
		log.Info("ops HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("ops HTTP server: %w", err)
		}
	}()

	// Graceful shutdown
	return waitForShutdown(log, errCh, grpcServer, httpServer)
}

// ledgerStore is what the server needs from a ledger backend
type ledgerStore interface {
	seeder.Store
	domain.TransferJournal
}

// openLedger selects the ledger backend named by cfg
func openLedger(cfg *config.Config, log *zap.Logger) (ledgerStore, map[string]httpapi.HealthCheck, func(), error) {
	if cfg.Ledger == config.LedgerMemory {
		log.Warn("using in-memory ledger; state is lost on exit")
		return memory.NewLedger(), nil, func() {}, nil
	}

	db, err := postgres.NewDB(cfg.DBConnStr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	checks := map[string]httpapi.HealthCheck{"ledger": db.PingContext}
	closeFn := func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database", zap.Error(err))
		}
	}
	return postgres.NewLedger(db), checks, closeFn, nil
}

// waitForShutdown waits for SIGTERM, SIGINT or a server failure and
// gracefully shuts both servers down
func waitForShutdown(log *zap.Logger, errCh <-chan error, grpcServer *grpclib.Server, httpServer *http.Server) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	var serveErr error
	select {
	case sig := <-sigChan:
		log.Info("shutting down gracefully", zap.String("signal", sig.String()))
	case serveErr = <-errCh:
		log.Error("server failed, shutting down", zap.Error(serveErr))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("ops HTTP server shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	log.Info("servers stopped")

	return serveErr
}
