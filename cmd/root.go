package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tphakala/oscil-go/cmd/benchmark"
	"github.com/tphakala/oscil-go/cmd/devices"
	"github.com/tphakala/oscil-go/cmd/realtime"
	"github.com/tphakala/oscil-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "oscil",
		Short: "Oscil-Go multi-track audio capture",
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	// Add sub-commands to the root command.
	subcommands := []*cobra.Command{
		realtime.Command(settings),
		devices.Command(settings),
		benchmark.Command(settings),
	}

	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Re-validate after command line flags have been applied on top
		// of the configuration file.
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.SampleRate, "samplerate", viper.GetInt("audio.samplerate"), "Capture sample rate in Hz")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.BlockSize, "blocksize", viper.GetInt("audio.blocksize"), "Samples per processing block")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.Channels, "channels", viper.GetInt("audio.channels"), "Number of input channels to capture")
	rootCmd.PersistentFlags().Float64Var(&settings.Audio.Gain, "gain", viper.GetFloat64("audio.gain"), "Linear gain applied at capture")
	rootCmd.PersistentFlags().StringVar(&settings.Timing.Mode, "mode", viper.GetString("timing.mode"), "Capture timing mode (free_running, host_sync, time_based, musical, trigger)")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
