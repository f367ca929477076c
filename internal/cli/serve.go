package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"simplic/internal/realtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr      string
		staticDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket back end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts, true)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.ListenAddr
			}

			ctx, stopSignals := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stopSignals()

			stop := a.start(ctx)
			defer stop()

			rt := realtime.New(a.ws, realtime.Options{
				StaticDir: staticDir,
				Metrics:   a.cfg.MetricsEnabled(),
				Logger:    a.log.Named("realtime"),
			})
			defer rt.Close()

			httpServer := &http.Server{
				Addr:    addr,
				Handler: rt.Handler(),
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- httpServer.ListenAndServe()
			}()

			a.log.Info("server running",
				zap.String("addr", addr),
				zap.String("projects", a.registry.Root()),
				zap.Bool("metrics", a.cfg.MetricsEnabled()))
			a.print.info("simplic listening on http://%s", addr)

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			a.log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default listen_addr from the config)")
	cmd.Flags().StringVar(&staticDir, "static", "", "Serve a front end from this directory")
	return cmd
}
