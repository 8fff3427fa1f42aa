package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iotfleet-server/iotfleet-server/internal/admission"
	"github.com/iotfleet-server/iotfleet-server/internal/api"
	"github.com/iotfleet-server/iotfleet-server/internal/auth"
	"github.com/iotfleet-server/iotfleet-server/internal/binding"
	"github.com/iotfleet-server/iotfleet-server/internal/config"
	"github.com/iotfleet-server/iotfleet-server/internal/identity"
	"github.com/iotfleet-server/iotfleet-server/internal/registry"
	"github.com/iotfleet-server/iotfleet-server/internal/server"
	"github.com/iotfleet-server/iotfleet-server/internal/storage"
	"github.com/iotfleet-server/iotfleet-server/internal/tenant"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/tenant-server.yml", "Configuration file path")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	store, err := storage.NewPostgresStore(cfg.Database.DSN,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	log.Info().Msg("Connected to database")

	// External collaborators
	directory, err := identity.NewCognitoDirectory(ctx,
		cfg.Identity.Region, cfg.Identity.UserPoolID, cfg.Identity.IdentityPoolID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to identity directory")
	}

	reg, err := registry.NewIoTRegistry(ctx, cfg.Registry.Region)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to device registry")
	}

	verifier := auth.NewJWKSVerifier(cfg.Identity.Issuer, cfg.Identity.JWKSURL, cfg.Identity.TenantClaim)
	claims := auth.NewClaimIssuer(cfg.Claims.Secret, cfg.Claims.TTL)

	// Lifecycle components
	provisioner := tenant.NewProvisioner(store, directory, cfg.Identity.TenantAttribute)
	teardown := tenant.NewTeardownCoordinator(store, directory, reg)
	gate := admission.NewGate(verifier, reg, cfg.Registry.AccountID, cfg.Registry.Region)
	binder := binding.NewBinder(verifier, directory, reg, cfg.Registry.AccountID, cfg.Registry.Region)

	// Start REST API server
	apiServer := api.NewRESTServer(cfg, store, verifier, gate, binder, reg, claims)

	// WaitGroup for services
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		if err := apiServer.ListenAndServe(addr); err != nil {
			log.Error().Err(err).Msg("REST API server stopped")
		}
	}()

	// Optional: Start NATS subscriber
	if cfg.NATS.URL != "" {
		log.Info().Str("url", cfg.NATS.URL).Msg("Connecting to NATS...")

		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name(cfg.Server.Name),
			nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password),
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				log.Warn().Err(err).Msg("Disconnected from NATS")
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Info().Msg("Reconnected to NATS")
			}),
			nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
				log.Error().
					Err(err).
					Str("subject", sub.Subject).
					Msg("NATS error")
			}),
		)

		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without NATS support")
		} else {
			defer nc.Close()
			log.Info().Msg("Connected to NATS")

			subscriber := server.NewNATSSubscriber(nc, provisioner, teardown, gate)

			wg.Add(1)
			go func() {
				defer wg.Done()
				log.Info().Msg("Starting NATS subscriber")
				if err := subscriber.Start(ctx); err != nil {
					log.Error().Err(err).Msg("NATS subscriber stopped")
				}
			}()
		}
	} else {
		log.Info().Msg("NATS not configured, running in standalone mode")
	}

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	// Cancel context
	cancel()

	// Shutdown API server
	if err := apiServer.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
	}

	// Wait for all services
	wg.Wait()

	log.Info().Msg("Tenant server stopped")
}
