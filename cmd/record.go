package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/multirec/internal/service"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record [take-name]",
	Short: "Record the configured channels into a take",
	Long: `Record every configured channel into one multichannel WAV file named
after the take. Recording runs until Ctrl+C, or for --duration if given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		takeName := args[0]
		duration, _ := cmd.Flags().GetDuration("duration")
		if output, _ := cmd.Flags().GetString("output"); output != "" {
			cfg.Output.Directory = output
		}

		svc, err := service.New(cfg, cfgFile)
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, duration)
			defer cancel()
		}

		if err := recordTake(ctx, svc, takeName); err != nil {
			return err
		}

		return executePipeline(svc, takeName, 'r')
	},
}

// recordTake records until ctx is done, or until the take aborts on its own
func recordTake(ctx context.Context, svc *service.MultirecService, takeName string) error {
	if err := svc.StartRecording(takeName); err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}

	status, session := svc.GetRecordingStatus()
	if session != nil {
		fmt.Printf("Recording %d channel(s) at %d Hz to %s\n", session.ChannelCount, session.SampleRate, session.OutputFile)
	}
	fmt.Println("Press Ctrl+C to stop")
	slog.Debug("Recording", "status", status)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Stopping recording...")
			return stopTake(svc)
		case <-ticker.C:
			if status, _ := svc.GetRecordingStatus(); status == service.StatusError {
				return fmt.Errorf("recording aborted: %s", svc.GetLastError())
			}
		}
	}
}

func stopTake(svc *service.MultirecService) error {
	if err := svc.StopRecording(); err != nil {
		return fmt.Errorf("failed to stop recording: %w", err)
	}
	fmt.Printf("Recording stopped (%d frames dropped on overflow)\n", svc.Overflows())
	return nil
}

func init() {
	recordCmd.Flags().StringP("output", "o", "", "output directory (overrides config)")
	recordCmd.Flags().DurationP("duration", "d", 0, "stop automatically after this long (e.g. 30s)")
}
