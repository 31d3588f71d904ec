/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/pkgindex/backend-go/api"
	"github.com/pkgindex/backend-go/api/middleware/auth"
	"github.com/pkgindex/backend-go/internal/db"
	"github.com/pkgindex/backend-go/internal/policy"
	"github.com/spf13/cobra"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the upload gateway",
	Run:   start,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func start(cmd *cobra.Command, args []string) {
	// Lets make sure we can establish a new db client
	dbClient, err := db.NewClient(os.Getenv("DB_URL"))
	if err != nil {
		slog.Error("could not establish database connection", err)
		os.Exit(1)
	}
	if err := dbClient.RunMigrations(); err != nil {
		slog.Error("could not apply migrations", err)
		os.Exit(1)
	}

	// An operator-supplied rego module overrides the built-in admission
	// rules.
	var module string
	if path := os.Getenv("UPLOAD_POLICY_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			slog.Error("could not read upload policy", err)
			os.Exit(1)
		}
		module = string(raw)
	}
	gate, err := policy.NewEngine(cmd.Context(), module)
	if err != nil {
		slog.Error("could not prepare upload policy", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	if wellknown := os.Getenv("OIDC_JWKS_URL"); wellknown != "" {
		r.Use(auth.OidcAuth(wellknown))
	}
	r.Route("/api", func(r chi.Router) {
		r.Mount("/", api.LoadUploadRoutes(dbClient, gate))
	})

	for _, route := range r.Routes() {
		slog.Info("Loaded Root route: " + route.Pattern)

		if route.SubRoutes != nil {
			for _, subRoute := range route.SubRoutes.Routes() {
				slog.Info("Loaded Subroute route: " + subRoute.Pattern)
			}
		}
	}

	server := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	stopChan := make(chan os.Signal, 1)

	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)

	// Start the HTTP server in a goroutine
	go func() {
		// If ListenAndServe returns an error and it's not a server closed error,
		// then log it as a fatal error.
		slog.Info("Starting server on port 8080")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ListenAndServe(): ", err)
		}
	}()

	<-stopChan
	slog.Info("Shutting down server...")

	// Create a context with a 15-second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	// Make sure to cancel the context when done
	defer cancel()

	// Initiate graceful shutdown
	// If it doesn't complete in 15 seconds, it will be forcefully stopped
	if err := server.Shutdown(ctx); err != nil {
		// Log if the shutdown failed
		slog.Error("Server Shutdown Failed: ", err)
		os.Exit(1)
	} else {
		// Log that the server has stopped gracefully
		slog.Info("Server stopped gracefully")
	}

}
