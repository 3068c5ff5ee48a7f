package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"membership-api/internal/api"
	"membership-api/internal/config"
	"membership-api/internal/database"
	"membership-api/pkg/logging"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "membership-api",
		Short:         "Subscription lifecycle and payment reconciliation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize configuration
			if err := config.InitConfig(); err != nil {
				return err
			}
			// Initialize logging
			logging.InitLogging(config.AppConfig.Mode)
			return nil
		},
	}
	root.AddCommand(serveCmd(), migrateCmd(), sweepCmd(), grantCmd())

	// Running the binary bare starts the server.
	root.RunE = serveCmd().RunE

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the expiry sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := config.AppConfig.Validate(); err != nil {
				return err
			}

			// Initialize database
			if err := database.InitDatabase(ctx); err != nil {
				return err
			}
			defer database.CloseDatabase()

			app, err := newApp(ctx, config.AppConfig)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Sweeper.Start(ctx, config.AppConfig.SweepSchedule, config.AppConfig.SweepStartupDelay); err != nil {
				return err
			}

			// Set Gin mode
			gin.SetMode(config.AppConfig.Mode)

			// Create Gin engine
			r := gin.Default()

			// Setup routes
			if config.AppConfig.APIKey == "" {
				logging.Warnf("API_KEY not set, user routes answer 503")
			}
			api.SetupRoutes(r, app.Handler(config.AppConfig.ServiceName), config.AppConfig.APIKey, config.AppConfig.AdminAPIKey)

			srv := &http.Server{
				Addr:              ":" + config.AppConfig.Port,
				Handler:           r,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logging.Infof("Starting server on port %s", config.AppConfig.Port)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
				logging.Infof("Shutting down server")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Open(config.AppConfig.DatabaseURL, config.AppConfig.SQLitePath, config.AppConfig.Mode)
			if err != nil {
				return err
			}
			if err := database.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			logging.Infof("Migrations applied")
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiry sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.AppConfig.Validate(); err != nil {
				return err
			}
			if err := database.InitDatabase(cmd.Context()); err != nil {
				return err
			}
			defer database.CloseDatabase()

			app, err := newApp(cmd.Context(), config.AppConfig)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Sweeper.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			logging.Infof("Sweep finished - scanned: %d, reminded (3d/1d): %d/%d, expired: %d, failed: %d",
				report.Scanned, report.Reminded3Day, report.Reminded1Day, report.Expired, report.Failed)
			return nil
		},
	}
}

func grantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant <user-id> <plan-id>",
		Short: "Grant or extend a plan as the configured operator",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.AppConfig.Validate(); err != nil {
				return err
			}
			if err := database.InitDatabase(cmd.Context()); err != nil {
				return err
			}
			defer database.CloseDatabase()

			app, err := newApp(cmd.Context(), config.AppConfig)
			if err != nil {
				return err
			}
			defer app.Close()

			out, err := app.Admin.ManualGrant(cmd.Context(), config.AppConfig.OperatorID, args[0], args[1])
			if err != nil {
				return err
			}
			expiry := "never"
			if out.Subscription.ExpiryDate != nil {
				expiry = out.Subscription.ExpiryDate.Format(time.RFC3339)
			}
			logging.Infof("Granted %s to %s - reference: %s, expires: %s", args[1], args[0], out.Payment.Reference, expiry)
			return nil
		},
	}
}
