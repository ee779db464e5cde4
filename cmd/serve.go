package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"formatconv/httpserver"
	"formatconv/logger"
	"formatconv/prefs"
	"formatconv/session"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		defer shutdownNative()

		results, closeResults, err := newResultStore(ctx, cfg.Publish)
		if err != nil {
			return err
		}
		defer closeResults()

		store, err := prefs.Open(cfg.Prefs.Driver, cfg.Prefs.DSN)
		if err != nil {
			return fmt.Errorf("opening preference store: %w", err)
		}
		defer store.Close()

		sessions := session.NewManager(session.ManagerConfig{
			Dispatcher:  newRegistry(cfg),
			Store:       results,
			MaxFileSize: cfg.Upload.MaxFileSize,
			TTL:         cfg.Server.SessionTTL,
		})
		if err := sessions.Start(cfg.Server.SweepSchedule); err != nil {
			return err
		}
		defer sessions.Stop(context.Background())

		srv, err := httpserver.New(httpserver.Config{
			AllowOrigin:  cfg.Server.AllowOrigin,
			JWTSecret:    cfg.Server.JWTSecret,
			TokenTTL:     cfg.Server.SessionTTL,
			MaxFiles:     cfg.Upload.MaxFiles,
			AutoDownload: cfg.Publish.AutoDownload,
		}, sessions, results, store)
		if err != nil {
			return err
		}

		logger.Info(ctx, "starting formatconv", logger.Fields{
			"version":  version,
			"render":   cfg.Render.Backend,
			"codecs":   cfg.Codecs.Order,
			"publish":  cfg.Publish.Backend,
			"prefs":    cfg.Prefs.Driver,
			"max_file": cfg.Upload.MaxFileSize,
		})
		return httpserver.Run(ctx, cfg.Server.Addr, srv.Handler(), cfg.Server.ReadTimeout, cfg.Server.ShutdownTimeout)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	v.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(serveCmd)
}
