// config.go: This file contains the configuration for the oscil-go capture
// core. It defines the settings struct and functions to load the settings.
package conf

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

// MainSettings contains application level settings.
type MainSettings struct {
	Name string // application instance name
	Log  struct {
		Enabled bool   // true to write structured logs to a file
		Path    string // path to log file
		Level   string // trace, debug, info, warn, error
	}
}

// AudioSettings contains settings for the audio capture device and the
// per-track buffers.
type AudioSettings struct {
	Source          string  // capture device name, empty for system default
	SampleRate      int     // capture sample rate in Hz
	BlockSize       int     // samples per processing block
	Channels        int     // number of input channels to capture
	TrackBufferSize int     // per-track ring buffer capacity in samples at 44.1kHz
	Gain            float64 // linear gain applied at capture
}

// TriggerSettings mirrors timing.TriggerConfig for configuration files.
type TriggerSettings struct {
	Type            string  // "level", "edge" or "slope"
	Edge            string  // "rising", "falling" or "both"
	Threshold       float64 // trigger threshold level (-1.0 to 1.0)
	Hysteresis      float64 // hysteresis amount to prevent false triggers
	HoldOffSamples  int     // minimum samples between triggers
	SlopeWindowSize int     // window size for slope analysis
	Enabled         bool
}

// MusicalSettings mirrors timing.MusicalConfig.
type MusicalSettings struct {
	BeatDivision       int
	BarLength          int
	SnapToBeats        bool
	FollowTempoChanges bool
	CustomBPM          float64
}

// TimeBasedSettings mirrors timing.TimeBasedConfig.
type TimeBasedSettings struct {
	IntervalMs        float64
	DriftCompensation bool
	AdaptToSampleRate bool
}

// TimingSettings selects the capture timing mode and its parameters.
type TimingSettings struct {
	Mode      string // "free_running", "host_sync", "time_based", "musical", "trigger"
	Trigger   TriggerSettings
	Musical   MusicalSettings
	TimeBased TimeBasedSettings
}

// TelemetrySettings controls the Prometheus endpoint.
type TelemetrySettings struct {
	Enabled bool   // true to enable Prometheus telemetry endpoint
	Listen  string // listen address and port of telemetry endpoint
}

// RealtimeSettings contains settings for realtime capture operation.
type RealtimeSettings struct {
	RefreshRate int // consumer poll rate in Hz
	Telemetry   TelemetrySettings
}

// Settings is the root configuration struct.
type Settings struct {
	Debug    bool
	Main     MainSettings
	Audio    AudioSettings
	Timing   TimingSettings
	Realtime RealtimeSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.Mutex
)

// Load reads the configuration into the settings struct and validates it.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// Setting returns the loaded settings instance, or nil before Load.
func Setting() *Settings {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	return settingsInstance
}

// initViper initializes viper with default values and reads the
// configuration file. A missing config file is not an error; defaults apply.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/oscil-go")
	viper.AddConfigPath("/etc/oscil-go")

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}
