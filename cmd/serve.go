package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/openpseudonym/idbroker/internal/auth"
	"github.com/openpseudonym/idbroker/internal/db/bunx"
	"github.com/openpseudonym/idbroker/internal/server"
	"github.com/openpseudonym/idbroker/internal/services/claims"
	"github.com/openpseudonym/idbroker/internal/services/consent"
	"github.com/openpseudonym/idbroker/internal/services/identity"
	"github.com/openpseudonym/idbroker/internal/services/notify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the identity broker API server",
	Long:  `Starts the HTTP server exposing the identity, claim, request and notification endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := bunx.NewDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		log.Printf("Connected to database")

		identityService := identity.NewService(db)
		claimService := claims.NewService(db)
		consentService := consent.NewService(db)
		notifyService := notify.NewService(db)

		verifier, err := auth.NewVerifier(cfg)
		if err != nil {
			return fmt.Errorf("configure authentication: %w", err)
		}

		r := server.NewRouter(server.RouterOptions{
			Identity:   identityService,
			Claims:     claimService,
			Consent:    consentService,
			Notify:     notifyService,
			Middleware: []func(http.Handler) http.Handler{verifier},
		})

		// h2c lets HTTP/2 clients connect without TLS termination in front.
		h2cHandler := h2c.NewHandler(r, &http2.Server{})

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      h2cHandler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.Printf("Starting server on %s", cfg.ServerAddr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
		case sig := <-shutdown:
			log.Printf("Shutdown signal received: %v", sig)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				log.Printf("Graceful shutdown failed: %v", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("force close failed: %w", err)
				}
			}
		}

		log.Printf("Server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
