package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/server"
	"github.com/sells-group/enrich-cli/internal/source"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control API for batch runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		open := func(ctx context.Context, desc source.Descriptor) (*source.Source, error) {
			return source.Open(ctx, desc, env.Tables)
		}
		mgr := server.NewManager(ctx, env.Orchestrator, open, env.Store, env.Tables)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           server.NewRouter(mgr, server.WithAllowedOrigins(cfg.Server.AllowedOrigins)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			grace := time.Duration(cfg.Batch.CancelGraceSecs)*time.Second + 5*time.Second
			shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			if err := mgr.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("runs still active at shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		// Wait for active runs to be written before the store closes.
		<-ctx.Done()
		mgr.Wait()

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
