package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tphakala/oscil-go/cmd"
	"github.com/tphakala/oscil-go/internal/conf"
	"github.com/tphakala/oscil-go/internal/logging"
)

func main() {
	// Load the configuration; command line flags are layered on top by
	// the root command.
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	initLogging(settings)

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
		os.Exit(1)
	}
}

func initLogging(settings *conf.Settings) {
	level := logging.ParseLevel(settings.Main.Log.Level)
	if settings.Debug {
		level = slog.LevelDebug
	}

	if settings.Main.Log.Enabled && settings.Main.Log.Path != "" {
		logging.InitWithFile(settings.Main.Log.Path, level)
	} else {
		logging.Init(level)
	}
}
