package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/moyoez/productshot/api"
	"github.com/moyoez/productshot/tool"
)

const shutdownTimeout = 10 * time.Second

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the submission server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			srv, err := api.Open(ctx, a.cfg.Server)
			if err != nil {
				return err
			}
			defer func() {
				if err := srv.Close(); err != nil {
					tool.DefaultLogger.Errorf("Failed to close server resources: %v", err)
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			tool.DefaultLogger.Infof("Shutting down API server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return <-errCh
		},
	}
}
