package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/audiolibrelab/multirec/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	cfg          *config.Config
	cfgFile      string
	pipeline     string
	profile      string
	logFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "multirec [take-name]",
	Short: "Multichannel signal recorder",
	Long: `multirec records one or more generated signal channels into a
multichannel 16-bit WAV take, paced in real time.

Channels, sample rate and buffering come from a YAML configuration with
named profiles. Without a configuration file a stereo sine pair is used.

When a take name is provided, it acts as 'multirec run [take-name]'.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel, logFile, config.LoggingConfig{})

		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}

		if logFile == "" && cfg.Logging.File != "" {
			setupLogging(verboseLevel, cfg.Logging.File, cfg.Logging)
		}

		return validatePipeline()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// If a take name is provided, delegate to run command
		if len(args) == 1 {
			return runCmd.RunE(cmd, args)
		}
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/multirec.yaml)")
	rootCmd.PersistentFlags().StringVarP(&pipeline, "pipeline", "p", "", "pipeline steps: r=record, p=play (e.g., 'rp')")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write JSON logs to this file, rotated")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(infoCmd)
}

func defaultConfigPath() string {
	return os.ExpandEnv("$HOME/.config/multirec.yaml")
}

// loadConfig reads the selected profile. A missing default config file falls
// back to the built-in configuration; a missing explicit one is an error.
func loadConfig() (*config.Config, error) {
	explicit := cfgFile != ""
	if !explicit {
		cfgFile = defaultConfigPath()
	}

	if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) && !explicit {
		if profile != "" {
			return nil, fmt.Errorf("profile '%s' requested but %s does not exist", profile, cfgFile)
		}
		slog.Debug("No config file, using built-in defaults", "path", cfgFile)
		cfgFile = ""
		return config.Default(), nil
	}

	loaded, err := config.LoadWithProfile(cfgFile, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return loaded, nil
}

// setupLogging configures slog: text on stderr, or rotated JSON when a log
// file is set
func setupLogging(level int, file string, rotation config.LoggingConfig) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: slogLevel}

	var handler slog.Handler
	if file != "" {
		handler = slog.NewJSONHandler(rotatingWriter(file, rotation), opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func rotatingWriter(file string, rotation config.LoggingConfig) io.Writer {
	maxSize := rotation.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	return &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSize,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
		Compress:   true,
	}
}
