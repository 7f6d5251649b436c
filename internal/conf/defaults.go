// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "oscil-go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "oscil.log")
	viper.SetDefault("main.log.level", "info")

	viper.SetDefault("audio.source", "")
	viper.SetDefault("audio.samplerate", 44100)
	viper.SetDefault("audio.blocksize", 512)
	viper.SetDefault("audio.channels", 2)
	viper.SetDefault("audio.trackbuffersize", 8192)
	viper.SetDefault("audio.gain", 1.0)

	viper.SetDefault("timing.mode", "free_running")

	viper.SetDefault("timing.trigger.type", "level")
	viper.SetDefault("timing.trigger.edge", "rising")
	viper.SetDefault("timing.trigger.threshold", 0.5)
	viper.SetDefault("timing.trigger.hysteresis", 0.1)
	viper.SetDefault("timing.trigger.holdoffsamples", 512)
	viper.SetDefault("timing.trigger.slopewindowsize", 8)
	viper.SetDefault("timing.trigger.enabled", true)

	viper.SetDefault("timing.musical.beatdivision", 4)
	viper.SetDefault("timing.musical.barlength", 4)
	viper.SetDefault("timing.musical.snaptobeats", true)
	viper.SetDefault("timing.musical.followtempochanges", true)
	viper.SetDefault("timing.musical.custombpm", 120.0)

	viper.SetDefault("timing.timebased.intervalms", 100.0)
	viper.SetDefault("timing.timebased.driftcompensation", true)
	viper.SetDefault("timing.timebased.adapttosamplerate", true)

	viper.SetDefault("realtime.refreshrate", 30)
	viper.SetDefault("realtime.telemetry.enabled", false)
	viper.SetDefault("realtime.telemetry.listen", "0.0.0.0:8090")
}
