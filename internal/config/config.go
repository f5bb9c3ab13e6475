package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Signal kinds a channel definition can use
const (
	SignalSine     = "sine"
	SignalSquare   = "square"
	SignalSaw      = "saw"
	SignalNoise    = "noise"
	SignalSilence  = "silence"
	SignalConstant = "constant"
)

const (
	MinSampleRate   = 8000
	MaxSampleRate   = 192000
	MaxChannels     = 32
	MinCapacity     = 64
	DefaultLevel    = 5.0
	DefaultCapacity = 32 * 1024
)

// SignalKinds lists every supported signal kind in display order
func SignalKinds() []string {
	return []string{SignalSine, SignalSquare, SignalSaw, SignalNoise, SignalSilence, SignalConstant}
}

// IsPeriodic reports whether kind needs a frequency
func IsPeriodic(kind string) bool {
	return kind == SignalSine || kind == SignalSquare || kind == SignalSaw
}

type DefinitionsConfig struct {
	Channels []ChannelDefinition `mapstructure:"channels" yaml:"channels"`
}

type ChannelDefinition struct {
	ID        string  `mapstructure:"id" yaml:"id"`
	Name      string  `mapstructure:"name" yaml:"name"`
	Signal    string  `mapstructure:"signal" yaml:"signal"`
	Frequency float64 `mapstructure:"frequency" yaml:"frequency"`
	Amplitude float64 `mapstructure:"amplitude" yaml:"amplitude"`
}

type ChannelReference struct {
	Ref       string   `mapstructure:"ref" yaml:"ref"`
	Amplitude *float64 `mapstructure:"amplitude,omitempty" yaml:"amplitude,omitempty"`
	Frequency *float64 `mapstructure:"frequency,omitempty" yaml:"frequency,omitempty"`
}

type GlobalsConfig struct {
	Output GlobalOutputConfig `mapstructure:"output" yaml:"output"`
}

type GlobalOutputConfig struct {
	RecordingsDirectory string `mapstructure:"recordings_directory" yaml:"recordings_directory"`
}

type LoggingConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

type RootConfig struct {
	ActiveConfig string                    `mapstructure:"active_config" yaml:"active_config"`
	Globals      *GlobalsConfig            `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Audio        *AudioConfig              `mapstructure:"audio,omitempty" yaml:"audio,omitempty"`
	Logging      *LoggingConfig            `mapstructure:"logging,omitempty" yaml:"logging,omitempty"`
	Definitions  *DefinitionsConfig        `mapstructure:"definitions,omitempty" yaml:"definitions,omitempty"`
	Configs      map[string]*ConfigProfile `mapstructure:"configs" yaml:"configs"`
}

type Config struct {
	Audio    AudioConfig   `mapstructure:"audio" yaml:"audio"`
	Buffer   BufferConfig  `mapstructure:"buffer" yaml:"buffer"`
	Channels []Channel     `mapstructure:"channels" yaml:"channels"`
	Output   OutputConfig  `mapstructure:"output" yaml:"output"`
	Logging  LoggingConfig `mapstructure:"logging" yaml:"logging,omitempty"`

	// Internal field to track inheritance information for info command
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

type ConfigProfile struct {
	Audio    AudioConfig        `mapstructure:"audio" yaml:"audio"`
	Buffer   BufferConfig       `mapstructure:"buffer" yaml:"buffer"`
	Channels []ChannelReference `mapstructure:"channels" yaml:"channels"`
	Output   OutputConfig       `mapstructure:"output" yaml:"output"`
}

// ChannelInheritance records where each overridable channel field came from
type ChannelInheritance struct {
	Signal    string
	Frequency string
	Amplitude string
}

type InheritanceInfo struct {
	Audio struct {
		SampleRate string // "inherited" or "profile-specific"
		LineLevel  string
	}
	Buffer struct {
		Capacity    string
		DrainPeriod string
	}
	Channels map[string]ChannelInheritance
	Output   struct {
		Directory   string
		SoftwareTag string
	}
}

type AudioConfig struct {
	SampleRate int     `mapstructure:"sample_rate" yaml:"sample_rate"`
	LineLevel  float64 `mapstructure:"line_level" yaml:"line_level"` // host level mapped to full scale
}

type BufferConfig struct {
	CapacityFrames int `mapstructure:"capacity_frames" yaml:"capacity_frames"`
	DrainPeriodMs  int `mapstructure:"drain_period_ms" yaml:"drain_period_ms"` // 0 derives it from capacity
}

type Channel struct {
	Name      string  `mapstructure:"name" yaml:"name"`
	Signal    string  `mapstructure:"signal" yaml:"signal"`
	Frequency float64 `mapstructure:"frequency" yaml:"frequency"`
	Amplitude float64 `mapstructure:"amplitude" yaml:"amplitude"`
}

type OutputConfig struct {
	Directory   string `mapstructure:"directory" yaml:"directory"`
	SoftwareTag string `mapstructure:"software_tag" yaml:"software_tag"`
}

var defaultConfig = Config{
	Audio: AudioConfig{
		SampleRate: 44100,
		LineLevel:  DefaultLevel,
	},
	Buffer: BufferConfig{
		CapacityFrames: DefaultCapacity,
	},
	Channels: []Channel{
		{Name: "left", Signal: SignalSine, Frequency: 440, Amplitude: DefaultLevel},
		{Name: "right", Signal: SignalSine, Frequency: 660, Amplitude: DefaultLevel},
	},
	Output: OutputConfig{
		Directory:   filepath.Join(os.Getenv("HOME"), "Audio", "multirec"),
		SoftwareTag: "multirec",
	},
}

// Default returns the built-in configuration used when no file is given
func Default() *Config {
	cfg := defaultConfig
	cfg.Channels = slices.Clone(defaultConfig.Channels)
	return &cfg
}

func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	// Validate configuration format first
	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Determine which config to use
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selectedProfile, exists := rootConfig.Configs[configName]
	if !exists {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	selectedConfig, err := convertProfileToConfig(selectedProfile, rootConfig.Definitions)
	if err != nil {
		return nil, fmt.Errorf("error resolving configuration profile '%s': %w", configName, err)
	}

	// Merge with default config if it exists and we're not already using default
	if configName != "default" {
		if defaultProfile, exists := rootConfig.Configs["default"]; exists {
			base, err := convertProfileToConfig(defaultProfile, rootConfig.Definitions)
			if err != nil {
				return nil, fmt.Errorf("error resolving default configuration: %w", err)
			}
			selectedConfig = mergeConfigs(base, selectedConfig)
		}
	}

	// Top-level audio settings fill whatever the profiles left unset
	if rootConfig.Audio != nil {
		if selectedConfig.Audio.SampleRate == 0 {
			selectedConfig.Audio.SampleRate = rootConfig.Audio.SampleRate
		}
		if selectedConfig.Audio.LineLevel == 0 {
			selectedConfig.Audio.LineLevel = rootConfig.Audio.LineLevel
		}
	}

	// Global recordings directory takes priority over profile-specific directory
	if rootConfig.Globals != nil && rootConfig.Globals.Output.RecordingsDirectory != "" {
		selectedConfig.Output.Directory = rootConfig.Globals.Output.RecordingsDirectory
	}

	if rootConfig.Logging != nil {
		selectedConfig.Logging = *rootConfig.Logging
		selectedConfig.Logging.File = expandPath(selectedConfig.Logging.File)
	}

	applyDefaults(selectedConfig)
	selectedConfig.Output.Directory = expandPath(selectedConfig.Output.Directory)

	if err := Validate(selectedConfig); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return selectedConfig, nil
}

// applyDefaults fills zero values from the built-in configuration
func applyDefaults(cfg *Config) {
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = defaultConfig.Audio.SampleRate
	}
	if cfg.Audio.LineLevel == 0 {
		cfg.Audio.LineLevel = defaultConfig.Audio.LineLevel
	}
	if cfg.Buffer.CapacityFrames == 0 {
		cfg.Buffer.CapacityFrames = defaultConfig.Buffer.CapacityFrames
	}
	if cfg.Output.Directory == "" {
		cfg.Output.Directory = defaultConfig.Output.Directory
	}
	if cfg.Output.SoftwareTag == "" {
		cfg.Output.SoftwareTag = defaultConfig.Output.SoftwareTag
	}
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	// viper keys are case-insensitive
	if configs := v.GetStringMap("configs"); len(configs) > 0 {
		if _, ok := configs[strings.ToLower(newActiveConfig)]; !ok {
			return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
		}
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// ProfileNames returns the profile names of a config file, sorted
func ProfileNames(configFile string) ([]string, error) {
	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(rootConfig.Configs))
	for name := range rootConfig.Configs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// convertProfileToConfig converts a ConfigProfile to Config by resolving channel references
func convertProfileToConfig(profile *ConfigProfile, definitions *DefinitionsConfig) (*Config, error) {
	if profile == nil {
		return nil, fmt.Errorf("profile cannot be nil")
	}

	config := &Config{
		Audio:  profile.Audio,
		Buffer: profile.Buffer,
		Output: profile.Output,
	}

	for i, chRef := range profile.Channels {
		if chRef.Ref == "" {
			return nil, fmt.Errorf("channel[%d]: 'ref' is required", i)
		}

		definition := findDefinition(definitions, chRef.Ref)
		if definition == nil {
			return nil, fmt.Errorf("channel[%d]: reference '%s' not found in definitions", i, chRef.Ref)
		}

		channel := Channel{
			Name:      definition.Name,
			Signal:    definition.Signal,
			Frequency: definition.Frequency,
			Amplitude: definition.Amplitude,
		}

		// Apply overrides
		if chRef.Amplitude != nil {
			channel.Amplitude = *chRef.Amplitude
		}
		if chRef.Frequency != nil {
			channel.Frequency = *chRef.Frequency
		}

		config.Channels = append(config.Channels, channel)
	}

	return config, nil
}

func findDefinition(definitions *DefinitionsConfig, id string) *ChannelDefinition {
	if definitions == nil {
		return nil
	}
	for i := range definitions.Channels {
		if definitions.Channels[i].ID == id {
			return &definitions.Channels[i]
		}
	}
	return nil
}

// mergeConfigs implements the "Selection & Fallback" inheritance model:
// - Channels: only the channels listed in the profile are recorded
// - Listed channels missing a signal inherit it from the base channel with the same name
// - Audio, buffer and output settings use the profile value or fall back to base
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{}

	result.Inheritance = &InheritanceInfo{
		Channels: make(map[string]ChannelInheritance),
	}

	if base != nil {
		result.Audio = base.Audio
		result.Buffer = base.Buffer
		result.Output = base.Output

		result.Inheritance.Audio.SampleRate = "inherited"
		result.Inheritance.Audio.LineLevel = "inherited"
		result.Inheritance.Buffer.Capacity = "inherited"
		result.Inheritance.Buffer.DrainPeriod = "inherited"
		result.Inheritance.Output.Directory = "inherited"
		result.Inheritance.Output.SoftwareTag = "inherited"
	}

	if profile == nil {
		return result
	}

	if profile.Audio.SampleRate != 0 {
		result.Audio.SampleRate = profile.Audio.SampleRate
		result.Inheritance.Audio.SampleRate = "profile-specific"
	}
	if profile.Audio.LineLevel != 0 {
		result.Audio.LineLevel = profile.Audio.LineLevel
		result.Inheritance.Audio.LineLevel = "profile-specific"
	}

	if profile.Buffer.CapacityFrames != 0 {
		result.Buffer.CapacityFrames = profile.Buffer.CapacityFrames
		result.Inheritance.Buffer.Capacity = "profile-specific"
	}
	if profile.Buffer.DrainPeriodMs != 0 {
		result.Buffer.DrainPeriodMs = profile.Buffer.DrainPeriodMs
		result.Inheritance.Buffer.DrainPeriod = "profile-specific"
	}

	if profile.Output.Directory != "" {
		result.Output.Directory = profile.Output.Directory
		result.Inheritance.Output.Directory = "profile-specific"
	}
	if profile.Output.SoftwareTag != "" {
		result.Output.SoftwareTag = profile.Output.SoftwareTag
		result.Inheritance.Output.SoftwareTag = "profile-specific"
	}

	result.Channels = make([]Channel, 0, len(profile.Channels))

	for _, profileChannel := range profile.Channels {
		resolved := profileChannel
		inheritance := ChannelInheritance{
			Signal:    "profile-specific",
			Frequency: "profile-specific",
			Amplitude: "profile-specific",
		}

		if base != nil {
			for _, baseChannel := range base.Channels {
				if baseChannel.Name != profileChannel.Name {
					continue
				}
				if resolved.Signal == "" {
					resolved.Signal = baseChannel.Signal
					inheritance.Signal = "inherited"
				}
				// A zero frequency never makes sense for a periodic signal
				if resolved.Frequency == 0 {
					resolved.Frequency = baseChannel.Frequency
					inheritance.Frequency = "inherited"
				}
				// Amplitude 0 is a legitimate mute, so it stays profile-specific
				break
			}
		}

		result.Inheritance.Channels[resolved.Name] = inheritance
		result.Channels = append(result.Channels, resolved)
	}

	return result
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// DrainPeriod returns the configured drain period, zero meaning derived
func (c *Config) DrainPeriod() time.Duration {
	return time.Duration(c.Buffer.DrainPeriodMs) * time.Millisecond
}

// ChannelNames returns the channel names in recording order
func (c *Config) ChannelNames() []string {
	names := make([]string, len(c.Channels))
	for i, ch := range c.Channels {
		names[i] = ch.Name
	}
	return names
}

// Validate checks a resolved configuration before it is used to record
func Validate(cfg *Config) error {
	if cfg.Audio.SampleRate < MinSampleRate || cfg.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate must be between %d and %d, got %d",
			MinSampleRate, MaxSampleRate, cfg.Audio.SampleRate)
	}
	if cfg.Audio.LineLevel < 0 {
		return fmt.Errorf("audio.line_level must be >= 0, got %.2f", cfg.Audio.LineLevel)
	}
	if cfg.Buffer.CapacityFrames < MinCapacity {
		return fmt.Errorf("buffer.capacity_frames must be >= %d, got %d", MinCapacity, cfg.Buffer.CapacityFrames)
	}
	if cfg.Buffer.DrainPeriodMs < 0 {
		return fmt.Errorf("buffer.drain_period_ms must be >= 0, got %d", cfg.Buffer.DrainPeriodMs)
	}

	if len(cfg.Channels) == 0 || len(cfg.Channels) > MaxChannels {
		return fmt.Errorf("between 1 and %d channels are required, got %d", MaxChannels, len(cfg.Channels))
	}

	seen := make(map[string]bool)
	for i, channel := range cfg.Channels {
		if channel.Name == "" {
			return fmt.Errorf("channel[%d] must have a name", i)
		}
		if seen[channel.Name] {
			return fmt.Errorf("channel[%d]: duplicate name '%s'", i, channel.Name)
		}
		seen[channel.Name] = true

		if err := validateSignal(channel.Signal, channel.Frequency, channel.Amplitude,
			fmt.Sprintf("channel[%d] '%s'", i, channel.Name)); err != nil {
			return err
		}
	}

	return nil
}

func validateSignal(signal string, frequency, amplitude float64, prefix string) error {
	if signal == "" {
		return fmt.Errorf("%s: 'signal' is required", prefix)
	}
	if !slices.Contains(SignalKinds(), strings.ToLower(signal)) {
		return fmt.Errorf("%s: unknown signal '%s' (expected one of %s)",
			prefix, signal, strings.Join(SignalKinds(), ", "))
	}
	if IsPeriodic(strings.ToLower(signal)) && frequency <= 0 {
		return fmt.Errorf("%s: 'frequency' must be > 0 for %s, got: %.2f", prefix, signal, frequency)
	}
	if amplitude < 0 {
		return fmt.Errorf("%s: 'amplitude' must be >= 0, got: %.2f", prefix, amplitude)
	}
	return nil
}

// ValidateConfigurationFormat validates the configuration file format and returns parsed config
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	viper.SetConfigFile(configFile)

	viper.SetEnvPrefix("MULTIREC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := viper.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateDefinitions(rootConfig.Definitions); err != nil {
		return nil, fmt.Errorf("invalid definitions: %w", err)
	}

	for configName, configProfile := range rootConfig.Configs {
		if configProfile == nil {
			return nil, fmt.Errorf("invalid config '%s': profile is empty", configName)
		}
		if err := validateChannelReferences(configProfile.Channels, rootConfig.Definitions); err != nil {
			return nil, fmt.Errorf("invalid config '%s': %w", configName, err)
		}
	}

	return &rootConfig, nil
}

// validateDefinitions validates the definitions section
func validateDefinitions(definitions *DefinitionsConfig) error {
	if definitions == nil {
		return fmt.Errorf("definitions section is required")
	}

	if len(definitions.Channels) == 0 {
		return fmt.Errorf("definitions.channels cannot be empty")
	}

	seenIDs := make(map[string]bool)

	for i, def := range definitions.Channels {
		if def.ID == "" {
			return fmt.Errorf("definitions.channels[%d]: 'id' is required", i)
		}
		if seenIDs[def.ID] {
			return fmt.Errorf("definitions.channels[%d]: duplicate ID '%s'", i, def.ID)
		}
		seenIDs[def.ID] = true

		if err := validateChannelDefinition(def, fmt.Sprintf("definitions.channels[%d]", i)); err != nil {
			return err
		}
	}

	return nil
}

// validateChannelDefinition validates a single channel definition
func validateChannelDefinition(def ChannelDefinition, prefix string) error {
	if def.Name == "" {
		return fmt.Errorf("%s: 'name' is required", prefix)
	}
	return validateSignal(def.Signal, def.Frequency, def.Amplitude, prefix)
}

// validateChannelReferences validates channel references in a config profile
func validateChannelReferences(channels []ChannelReference, definitions *DefinitionsConfig) error {
	if len(channels) > MaxChannels {
		return fmt.Errorf("at most %d channels are supported, got %d", MaxChannels, len(channels))
	}

	for i, chRef := range channels {
		prefix := fmt.Sprintf("channels[%d]", i)

		if chRef.Ref == "" {
			return fmt.Errorf("%s: 'ref' is required", prefix)
		}

		if findDefinition(definitions, chRef.Ref) == nil {
			return fmt.Errorf("%s: references undefined channel definition '%s'", prefix, chRef.Ref)
		}

		if chRef.Amplitude != nil && *chRef.Amplitude < 0 {
			return fmt.Errorf("%s: amplitude override must be >= 0, got %.2f", prefix, *chRef.Amplitude)
		}

		if chRef.Frequency != nil && *chRef.Frequency <= 0 {
			return fmt.Errorf("%s: frequency override must be > 0, got %.2f", prefix, *chRef.Frequency)
		}
	}

	return nil
}
