package cmd

import (
	"fmt"

	"github.com/audiolibrelab/multirec/internal/service"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [take-name]",
	Short: "Play a recorded take",
	Long: `Play a recorded take with the first available external player
(vlc, mpv, ffplay or aplay).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg, cfgFile)
		if err != nil {
			return err
		}

		if err := svc.Play(args[0]); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		return nil
	},
}
