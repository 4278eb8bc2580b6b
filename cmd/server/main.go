// cmd/server/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/meditech/meditech-backend/api"
	"github.com/meditech/meditech-backend/config"
	"github.com/meditech/meditech-backend/internal/logger"
	"github.com/meditech/meditech-backend/internal/storage"
)

const shutdownTimeout = 10 * time.Second

var (
	customLog = logger.NewLogger()
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		customLog.Errorf("meditech: %v", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "meditech",
		Short:         "MediTech healthcare administration API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
	root.AddCommand(serveCmd(), routesCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func routesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the route table as JSON and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(api.RouteTable(app.Engine))
		},
	}
}

// bootstrap resolves configuration, opens the database and assembles the app.
func bootstrap(ctx context.Context) (*api.App, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	db, err := storage.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		customLog.Println("Closing database connection...")
		if err := db.Close(); err != nil {
			customLog.Printf("Error closing database: %v", err)
		}
	}

	app, err := api.Assemble(cfg, db)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return app, cleanup, nil
}

func runServer(ctx context.Context) error {
	customLog.Println("Starting MediTech backend server...")
	if ctx == nil {
		ctx = context.Background()
	}

	app, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              app.Context.Config.Addr(),
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		customLog.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		customLog.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	customLog.Println("Server stopped")
	return nil
}
