package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/multirec/internal/server"
	"github.com/audiolibrelab/multirec/internal/service"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the multirec web server to control recording over HTTP.
Progress of the take in progress is logged every --report interval.
A take in progress is finalized when the server is interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")
		report, _ := cmd.Flags().GetDuration("report")

		svc, err := service.New(cfg, cfgFile)
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		srv := server.New(svc, cfgFile, port)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Either task failing stops the other
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Start(ctx)
		})
		g.Go(func() error {
			return svc.Monitor(ctx, report)
		})

		slog.Info("multirec web server starting", "port", port, "config", cfgFile)
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().String("port", "8080", "port for the web server")
	serveCmd.Flags().Duration("report", 10*time.Second, "interval between take progress log lines")
}
