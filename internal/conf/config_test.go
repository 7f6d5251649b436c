package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultTestSettings() *Settings {
	s := &Settings{}
	s.Audio.SampleRate = 44100
	s.Audio.BlockSize = 512
	s.Audio.Channels = 2
	s.Audio.TrackBufferSize = 8192
	s.Audio.Gain = 1.0
	s.Timing.Mode = "free_running"
	s.Timing.Trigger.Type = "level"
	s.Timing.Trigger.Edge = "rising"
	s.Realtime.RefreshRate = 30
	s.Realtime.Telemetry.Listen = "0.0.0.0:8090"
	return s
}

func TestValidateSettingsDefaults(t *testing.T) {
	require.NoError(t, ValidateSettings(defaultTestSettings()))
}

func TestValidateSettingsRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"bad sample rate", func(s *Settings) { s.Audio.SampleRate = 12345 }},
		{"block size too small", func(s *Settings) { s.Audio.BlockSize = 4 }},
		{"too many channels", func(s *Settings) { s.Audio.Channels = 128 }},
		{"buffer smaller than block", func(s *Settings) { s.Audio.TrackBufferSize = 100 }},
		{"negative gain", func(s *Settings) { s.Audio.Gain = -1 }},
		{"unknown timing mode", func(s *Settings) { s.Timing.Mode = "warp" }},
		{"unknown trigger type", func(s *Settings) { s.Timing.Trigger.Type = "psychic" }},
		{"unknown trigger edge", func(s *Settings) { s.Timing.Trigger.Edge = "sideways" }},
		{"zero refresh rate", func(s *Settings) { s.Realtime.RefreshRate = 0 }},
		{"bad telemetry listen", func(s *Settings) {
			s.Realtime.Telemetry.Enabled = true
			s.Realtime.Telemetry.Listen = "not-an-address"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := defaultTestSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			assert.Error(t, err)
		})
	}
}

func TestValidationErrorAggregatesMessages(t *testing.T) {
	s := defaultTestSettings()
	s.Audio.SampleRate = 1
	s.Timing.Mode = "warp"

	err := ValidateSettings(s)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
}
