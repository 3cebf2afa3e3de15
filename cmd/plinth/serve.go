package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taigrr/plinth/internal/config"
	"github.com/taigrr/plinth/internal/server"
)

func newServeCmd(e *env) *cobra.Command {
	var (
		addr    string
		catalog string
		fps     int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve viewers over HTTP with a websocket event stream",
		Long: "serve hosts any number of viewers, each created by POST /mounts and\n" +
			"addressed by its mount id. Events stream on /mounts/{id}/events.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.load(true); err != nil {
				return err
			}
			defer e.log.Sync()
			if cmd.Flags().Changed("addr") {
				e.cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), e, catalog, fps)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, 127.0.0.1:8080)")
	cmd.Flags().StringVar(&catalog, "catalog", "", "directory or base URL that layout ids resolve against")
	cmd.Flags().IntVar(&fps, "fps", 0, "drive every mount's frame loop at this rate (0 renders on demand)")
	return cmd
}

func runServe(ctx context.Context, e *env, catalog string, fps int) error {
	client, err := e.fetcher()
	if err != nil {
		return err
	}
	srv := server.New(
		server.WithLogger(e.log),
		server.WithBaseConfig(e.cfg.Viewer),
		server.WithFetcher(client),
		server.WithCatalog(catalog),
		server.WithFrameRate(fps),
	)

	if e.path != "" {
		err := config.Watch(ctx, e.path, e.log, func(c config.Config, err error) {
			if err == nil {
				srv.SetBaseConfig(c.Viewer)
			}
		})
		if err != nil {
			e.log.Warn("config watch disabled", zap.Error(err))
		}
	}
	return srv.ListenAndServe(ctx, e.cfg.Server.Addr)
}
