// Command uaserver runs the OPC UA server core: address space,
// channel/session managers, discovery registry, and scheduler, exposed
// behind a small HTTP surface for health checks and read-only admin
// introspection. It does not bind the OPC UA TCP listener itself --
// wiring a real transport/codec pair onto internal/server.Server is
// left to an embedder, per the core/transport split this module draws.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sebastiankruger/opcua-core/internal/addrspace"
	"github.com/sebastiankruger/opcua-core/internal/admin"
	"github.com/sebastiankruger/opcua-core/internal/config"
	"github.com/sebastiankruger/opcua-core/internal/health"
	"github.com/sebastiankruger/opcua-core/internal/server"
	"github.com/sebastiankruger/opcua-core/internal/session"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
		}
	}()

	log.Info().Msg("Starting OPC UA server core")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().
		Str("applicationUri", cfg.ApplicationURI).
		Str("endpoint", cfg.EndpointURL()).
		Int("healthPort", cfg.HealthPort).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srvCfg := server.Config{
		ApplicationURI:  cfg.ApplicationURI,
		ProductURI:      cfg.ProductURI,
		ApplicationName: cfg.ApplicationName,
		EndpointURL:     cfg.EndpointURL(),

		CleanupInterval:         cfg.CleanupInterval,
		DiscoveryCleanupTimeout: cfg.DiscoveryCleanupTimeout,

		Auth: session.AuthConfig{
			AllowAnonymous:        cfg.AllowAnonymous,
			AllowUsernamePassword: cfg.AllowUsernamePassword,
			UsernamePasswordTable: config.ParseUsernamePasswords(cfg.UsernamePasswords),
		},

		DispatchPoolSize: cfg.DispatchPoolSize,
	}

	srv, err := server.New(srvCfg, addrspace.BuildInfo{
		ProductName:    cfg.ApplicationName,
		ManufacturerName: "opcua-core",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build server core")
	}

	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server core")
	}

	healthHandler := health.NewHandler(srv)
	adminHandler := admin.NewHandler(srv)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler.HandleHealth)
	mux.HandleFunc("/health/live", healthHandler.HandleLive)
	mux.HandleFunc("/health/ready", healthHandler.HandleReady)
	mux.HandleFunc("/api/status", adminHandler.HandleStatus)
	mux.HandleFunc("/api/channels", adminHandler.HandleChannels)
	mux.HandleFunc("/api/sessions", adminHandler.HandleSessions)
	mux.HandleFunc("/api/applications", adminHandler.HandleApplications)
	mux.HandleFunc("/api/discovery", adminHandler.HandleDiscovery)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HealthPort),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HealthPort).Msg("Starting HTTP server (health + admin)")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().Msg("Server core running; awaiting shutdown signal")
	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server core shutdown error")
	}

	log.Info().Msg("Server core stopped")
}
