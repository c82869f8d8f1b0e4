package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoCodeAlone/modhooks/admin"
	"github.com/GoCodeAlone/modhooks/boot"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *globalOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Boot enabled modules and serve their routes with the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, logger, err := opts.openRuntime(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			cfg := rt.Config()
			if addr == "" {
				addr = cfg.HTTP.Addr
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           NewHandler(rt),
				ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout.Std(),
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Serving", "addr", addr, "admin", cfg.HTTP.AdminPrefix)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to http.addr)")
	return cmd
}

// NewHandler mounts the admin API under the configured prefix and every
// enabled module's routes at the root.
func NewHandler(rt *boot.Runtime) http.Handler {
	cfg := rt.Config()
	api := admin.New(rt.Lifecycle(), rt.Hooks(), rt,
		admin.WithLogger(rt.Logger()),
		admin.WithMetrics(rt.Metrics()),
		admin.WithHealth(rt.Health()),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.HTTP.AdminPrefix != "" {
		r.Route(cfg.HTTP.AdminPrefix, api.Routes)
	}
	r.Mount("/", rt.Routes())
	return r
}
