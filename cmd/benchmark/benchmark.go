package benchmark

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"
	"github.com/tphakala/oscil-go/internal/audio"
	"github.com/tphakala/oscil-go/internal/conf"
	"github.com/tphakala/oscil-go/internal/timing"
)

// duration holds the benchmark duration flag value
var durationSeconds int

func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Run offline capture pipeline benchmark",
		RunE: func(cmd *cobra.Command, args []string) error {
			if durationSeconds < 1 || durationSeconds > 60 {
				return fmt.Errorf("duration must be between 1 and 60 seconds, got %d", durationSeconds)
			}
			return runBenchmark(settings, time.Duration(durationSeconds)*time.Second)
		},
	}

	cmd.Flags().IntVarP(&durationSeconds, "duration", "t", 5, "benchmark duration per mode in seconds (1-60)")

	return cmd
}

type benchmarkResults struct {
	mode          timing.TimingMode
	blocks        uint64
	samples       uint64
	captureEvents uint64
	elapsed       time.Duration
}

// audioSeconds is how much signal time the processed samples represent.
func (r *benchmarkResults) audioSeconds(sampleRate float64) float64 {
	return float64(r.samples) / sampleRate
}

// runBenchmark pushes synthetic audio through the full engine and timing
// path, without a capture device, and reports throughput per timing mode.
func runBenchmark(settings *conf.Settings, duration time.Duration) error {
	modes := []timing.TimingMode{
		timing.FreeRunning,
		timing.TimeBased,
		timing.Musical,
		timing.Trigger,
	}

	sampleRate := float64(settings.Audio.SampleRate)
	fmt.Printf("Benchmarking capture pipeline: %d Hz, %d channels, %d sample blocks, %v per mode\n\n",
		settings.Audio.SampleRate, settings.Audio.Channels, settings.Audio.BlockSize, duration)

	for _, mode := range modes {
		results, err := benchmarkMode(settings, mode, duration)
		if err != nil {
			return fmt.Errorf("benchmark failed in %s mode: %w", mode, err)
		}
		printResults(results, sampleRate)
	}

	return nil
}

func benchmarkMode(settings *conf.Settings, mode timing.TimingMode, duration time.Duration) (*benchmarkResults, error) {
	engine := audio.NewMultiTrackEngine(settings.Audio.TrackBufferSize)
	timingEngine := timing.NewTimingEngine()
	if !timingEngine.SetMode(mode) {
		return nil, fmt.Errorf("mode %s rejected", mode)
	}

	sampleRate := float64(settings.Audio.SampleRate)
	blockSize := settings.Audio.BlockSize
	channels := settings.Audio.Channels

	engine.PrepareToPlay(sampleRate, blockSize, channels)
	timingEngine.PrepareToPlay(sampleRate, blockSize)
	defer engine.ReleaseResources()
	defer timingEngine.ReleaseResources()

	for ch := range channels {
		if id := engine.AddTrack(fmt.Sprintf("Bench %d", ch+1), ch); !id.IsValid() {
			return nil, fmt.Errorf("failed to add track for channel %d", ch)
		}
	}

	block := sineBlock(channels, blockSize, sampleRate)

	results := &benchmarkResults{mode: mode}
	start := time.Now()
	for time.Since(start) < duration {
		timingEngine.ProcessTimingBlock(nil, blockSize)
		if timingEngine.ShouldCapture(nil, block, blockSize) {
			results.captureEvents++
		}
		engine.ProcessAudioBlock(block, blockSize)
		results.blocks++
		results.samples += uint64(blockSize)
	}
	results.elapsed = time.Since(start)

	return results, nil
}

// sineBlock builds one block of 440 Hz test signal with a per-channel phase
// offset, so stereo measurements have something to chew on.
func sineBlock(channels, blockSize int, sampleRate float64) [][]float32 {
	block := make([][]float32, channels)
	for ch := range block {
		block[ch] = make([]float32, blockSize)
		phase := float64(ch) * math.Pi / 4
		for i := range block[ch] {
			block[ch][i] = float32(0.8 * math.Sin(2*math.Pi*440*float64(i)/sampleRate+phase))
		}
	}
	return block
}

func printResults(r *benchmarkResults, sampleRate float64) {
	blocksPerSec := float64(r.blocks) / r.elapsed.Seconds()
	realtimeMultiple := r.audioSeconds(sampleRate) / r.elapsed.Seconds()

	fmt.Printf("Mode %-12s %10d blocks  %8.0f blocks/s  %7.1fx realtime  %d capture events\n",
		r.mode.String(), r.blocks, blocksPerSec, realtimeMultiple, r.captureEvents)
}
