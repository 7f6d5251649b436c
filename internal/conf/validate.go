// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

var validTimingModes = []string{"free_running", "host_sync", "time_based", "musical", "trigger"}
var validTriggerTypes = []string{"level", "edge", "slope"}
var validTriggerEdges = []string{"rising", "falling", "both"}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateAudioSettings(&settings.Audio); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateTimingSettings(&settings.Timing); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateRealtimeSettings(&settings.Realtime); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAudioSettings(audio *AudioSettings) error {
	switch audio.SampleRate {
	case 8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000, 176400, 192000:
	default:
		return fmt.Errorf("unsupported sample rate: %d", audio.SampleRate)
	}

	if audio.BlockSize < 16 || audio.BlockSize > 8192 {
		return fmt.Errorf("block size must be between 16 and 8192, got %d", audio.BlockSize)
	}

	if audio.Channels < 1 || audio.Channels > 64 {
		return fmt.Errorf("channel count must be between 1 and 64, got %d", audio.Channels)
	}

	if audio.TrackBufferSize < audio.BlockSize {
		return fmt.Errorf("track buffer size %d is smaller than block size %d",
			audio.TrackBufferSize, audio.BlockSize)
	}

	if audio.Gain < 0 {
		return fmt.Errorf("gain must not be negative, got %f", audio.Gain)
	}

	return nil
}

func validateTimingSettings(timing *TimingSettings) error {
	mode := strings.ToLower(timing.Mode)
	if !slices.Contains(validTimingModes, mode) {
		return fmt.Errorf("invalid timing mode: %s", timing.Mode)
	}

	if !slices.Contains(validTriggerTypes, strings.ToLower(timing.Trigger.Type)) {
		return fmt.Errorf("invalid trigger type: %s", timing.Trigger.Type)
	}

	if !slices.Contains(validTriggerEdges, strings.ToLower(timing.Trigger.Edge)) {
		return fmt.Errorf("invalid trigger edge: %s", timing.Trigger.Edge)
	}

	return nil
}

func validateRealtimeSettings(realtime *RealtimeSettings) error {
	if realtime.RefreshRate < 1 || realtime.RefreshRate > 240 {
		return fmt.Errorf("refresh rate must be between 1 and 240 Hz, got %d", realtime.RefreshRate)
	}

	if realtime.Telemetry.Enabled {
		if _, _, err := net.SplitHostPort(realtime.Telemetry.Listen); err != nil {
			return fmt.Errorf("invalid telemetry listen address %q: %w", realtime.Telemetry.Listen, err)
		}
	}

	return nil
}
