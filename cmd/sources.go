package cmd

import (
	"fmt"

	"github.com/audiolibrelab/multirec/internal/audio"
	"github.com/audiolibrelab/multirec/internal/config"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List signal kinds and configured channels",
	Long:  `List the signal kinds the generators support and the channels the active profile records.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Signal kinds\n")
		fmt.Printf("════════════\n")
		for _, kind := range audio.SourceKinds() {
			marker := ""
			if kind.Periodic {
				marker = " (needs frequency)"
			}
			fmt.Printf("  %-9s %s%s\n", kind.Name, kind.Description, marker)
		}

		fmt.Printf("\nConfigured channels (%d)\n", len(cfg.Channels))
		fmt.Printf("════════════\n")
		for i, ch := range cfg.Channels {
			fmt.Printf("  %d. %s\n", i+1, describeChannel(ch))
		}
		return nil
	},
}

func describeChannel(ch config.Channel) string {
	if config.IsPeriodic(ch.Signal) {
		return fmt.Sprintf("%s: %s %.1f Hz, amplitude %.2f", ch.Name, ch.Signal, ch.Frequency, ch.Amplitude)
	}
	return fmt.Sprintf("%s: %s, amplitude %.2f", ch.Name, ch.Signal, ch.Amplitude)
}
