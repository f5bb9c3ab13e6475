package cmd

import (
	"fmt"

	"github.com/audiolibrelab/multirec/internal/audio"
	"github.com/audiolibrelab/multirec/internal/config"
	"github.com/audiolibrelab/multirec/internal/service"
	"github.com/audiolibrelab/multirec/internal/waveform"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [take-name]",
	Short: "Show resolved configuration and file details for a take",
	Long: `Display the take's file path and, once recorded, its WAV header. Then
show the resolved configuration with inheritance indicators: which values
come from the default profile and which are profile-specific.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg, cfgFile)
		if err != nil {
			return err
		}

		take, err := svc.GetTakeInfo(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("=== TAKE ===\n")
		fmt.Printf("clean_name: %s\n", take.CleanName)
		fmt.Printf("output_file: %s\n", take.OutputFile)
		fmt.Printf("exists: %t\n", take.Exists)

		if take.File != nil {
			f := take.File
			fmt.Printf("sample_rate: %d\n", f.SampleRate)
			fmt.Printf("channels: %d\n", f.Channels)
			fmt.Printf("bit_depth: %d\n", f.BitDepth)
			fmt.Printf("frames: %d\n", f.Frames)
			fmt.Printf("duration: %s\n", f.Duration)
			fmt.Printf("size: %d bytes\n", f.Size)

			if showPeak, _ := cmd.Flags().GetBool("peak"); showPeak {
				if err := printPeaks(take.OutputFile); err != nil {
					return err
				}
			}
		}

		printResolvedConfig(cfg)
		return nil
	},
}

func printPeaks(path string) error {
	samples, info, err := waveform.ReadSamples(path)
	if err != nil {
		return fmt.Errorf("failed to read samples: %w", err)
	}

	fmt.Printf("\n[Peaks]\n")
	for i, peak := range waveform.Peak(samples, info.Channels) {
		fmt.Printf("  channel %d: %d (%.1f%% of full scale)\n", i, peak, float64(peak)*100/32767)
	}
	return nil
}

func printResolvedConfig(cfg *config.Config) {
	inh := cfg.Inheritance
	if inh == nil {
		inh = &config.InheritanceInfo{}
	}

	fmt.Printf("\n=== RESOLVED CONFIGURATION ===\n")

	fmt.Printf("\n[Audio]\n")
	fmt.Printf("sample_rate: %d %s\n", cfg.Audio.SampleRate, getInheritanceIndicator(inh.Audio.SampleRate))
	fmt.Printf("line_level: %.2f %s\n", cfg.Audio.LineLevel, getInheritanceIndicator(inh.Audio.LineLevel))

	fmt.Printf("\n[Buffer]\n")
	fmt.Printf("capacity_frames: %d %s\n", cfg.Buffer.CapacityFrames, getInheritanceIndicator(inh.Buffer.Capacity))
	fmt.Printf("drain_period: %s %s\n",
		audio.DrainPeriod(cfg.Buffer.CapacityFrames, cfg.Audio.SampleRate, cfg.DrainPeriod()),
		getInheritanceIndicator(inh.Buffer.DrainPeriod))

	fmt.Printf("\n[Channels]\n")
	for i, channel := range cfg.Channels {
		chInh := inh.Channels[channel.Name]
		fmt.Printf("%d. name: %s\n", i, channel.Name)
		fmt.Printf("   signal: %s %s\n", channel.Signal, getInheritanceIndicator(chInh.Signal))
		if config.IsPeriodic(channel.Signal) {
			fmt.Printf("   frequency: %.1f Hz %s\n", channel.Frequency, getInheritanceIndicator(chInh.Frequency))
		}
		fmt.Printf("   amplitude: %.2f %s\n", channel.Amplitude, getInheritanceIndicator(chInh.Amplitude))
	}

	fmt.Printf("\n[Output]\n")
	fmt.Printf("directory: %s %s\n", cfg.Output.Directory, getInheritanceIndicator(inh.Output.Directory))
	fmt.Printf("software_tag: %s %s\n", cfg.Output.SoftwareTag, getInheritanceIndicator(inh.Output.SoftwareTag))
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	default:
		return ""
	}
}

func init() {
	infoCmd.Flags().Bool("peak", false, "read the take and print per-channel peak levels")
}
