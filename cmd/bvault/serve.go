package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banana-dao/banana-vaults/internal/config"
	"github.com/banana-dao/banana-vaults/internal/metrics"
	"github.com/banana-dao/banana-vaults/internal/snapshot"
	"github.com/banana-dao/banana-vaults/internal/state"
	"github.com/banana-dao/banana-vaults/internal/types"
	"github.com/banana-dao/banana-vaults/internal/web"
)

const (
	staticPriceRefresh = 10 * time.Second
	healthInterval     = 15 * time.Second
	shutdownTimeout    = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	var vaultFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the vault API, snapshot loop and health service",
		RunE: func(cmd *cobra.Command, args []string) error {
			var pending *types.VaultConfig
			if vaultFile != "" {
				cfg, err := config.LoadVaultFile(vaultFile)
				if err != nil {
					return err
				}
				pending = &cfg
			}
			return serve(pending)
		},
	}
	cmd.Flags().StringVar(&vaultFile, "instantiate", "", "instantiate from this vault file if the store holds no vault")
	return cmd
}

func serve(pending *types.VaultConfig) error {
	log.Info().Msg("Vault node starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(pending)
	if err != nil {
		return err
	}
	defer a.close()
	go a.refreshStaticPrices(ctx, staticPriceRefresh)

	if pending != nil {
		if _, err := a.service.VaultInfo(); errors.Is(err, types.ErrNotInstantiated) {
			if _, err := a.service.Instantiate(pending.Owner, *pending); err != nil {
				return fmt.Errorf("failed to instantiate vault: %w", err)
			}
			log.Info().Str("owner", pending.Owner).Msg("Vault instantiated")
		}
	}

	m := metrics.New("bvault")
	a.controller.AddObserver(m)

	snapCfg := snapshot.Config{Vault: a.service, Sink: m, Height: a.node.Height}
	webCfg := web.Config{Port: config.WebPort, Vault: a.service, Metrics: m.Handler(), Tokens: config.APITokens}

	// Audit database is optional
	if config.AuditEnabled {
		db, err := state.Open(state.DBConfig{
			Host: config.DBHost, Port: config.DBPort,
			User: config.DBUser, Password: config.DBPassword,
			DBName: config.DBName, SSLMode: config.DBSSLMode,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to ensure database schema: %w", err)
		}

		recorder := state.NewRecorder(db, 0)
		a.controller.AddObserver(recorder)
		recorderDone := make(chan struct{})
		go func() {
			defer close(recorderDone)
			recorder.Run(ctx)
		}()
		defer func() {
			stop()
			<-recorderDone
		}()

		snapCfg.Store = db
		webCfg.Audit = db
	}

	snapshotter, err := snapshot.New(snapCfg)
	if err != nil {
		return err
	}
	webCfg.Snapshots = snapshotter
	go snapshotter.RunLoop(ctx, config.SnapshotInterval)

	webServer, err := web.NewWebServer(webCfg)
	if err != nil {
		return err
	}
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting vault API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed")
			stop()
		}
	}()

	grpcServer, err := startHealthServer(ctx, a)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	grpcServer.GracefulStop()
	return nil
}

// startHealthServer serves the standard gRPC health protocol on GRPCPort. The "bvault" service is
// SERVING while the vault is instantiated, open and not halted.
func startHealthServer(ctx context.Context, a *app) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", ":"+config.GRPCPort)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on gRPC port %s: %w", config.GRPCPort, err)
	}

	server := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)

	update := func() {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if info, err := a.service.VaultInfo(); err == nil && info.Status.Lifecycle == types.StatusOpen && !info.Status.Halted {
			status = healthpb.HealthCheckResponse_SERVING
		}
		healthServer.SetServingStatus(types.ModuleName, status)
	}
	update()

	go func() {
		ticker := time.NewTicker(healthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				healthServer.Shutdown()
				return
			case <-ticker.C:
				update()
			}
		}
	}()

	go func() {
		log.Info().Str("port", config.GRPCPort).Msg("Starting gRPC health service")
		if err := server.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()
	return server, nil
}
