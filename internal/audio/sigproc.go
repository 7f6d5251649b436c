package audio

import (
	"math"
	"sync"
)

// MaxBlockSize is the largest audio block the processing path accepts per
// call; longer input is truncated.
const MaxBlockSize = 8192

// ProcessingMode selects how a stereo pair is transformed for analysis.
type ProcessingMode int

const (
	// FullStereo passes left and right through unchanged (2 outputs).
	FullStereo ProcessingMode = iota
	// MonoSum outputs (L+R)/2 (1 output).
	MonoSum
	// MidSide outputs M=(L+R)/2 and S=(L-R)/2 (2 outputs).
	MidSide
	// LeftOnly outputs the left channel (1 output).
	LeftOnly
	// RightOnly outputs the right channel (1 output).
	RightOnly
	// Difference outputs L-R for phase analysis (1 output).
	Difference
)

// OutputChannelCount returns the number of output channels for a mode.
func (m ProcessingMode) OutputChannelCount() int {
	switch m {
	case FullStereo, MidSide:
		return 2
	default:
		return 1
	}
}

// String returns the human-readable mode name.
func (m ProcessingMode) String() string {
	switch m {
	case FullStereo:
		return "Full Stereo"
	case MonoSum:
		return "Mono Sum"
	case MidSide:
		return "Mid/Side"
	case LeftOnly:
		return "Left Only"
	case RightOnly:
		return "Right Only"
	case Difference:
		return "Difference"
	default:
		return "Unknown"
	}
}

// ProcessorConfig configures a SignalProcessor.
type ProcessorConfig struct {
	Mode                  ProcessingMode
	EnableCorrelation     bool
	CorrelationWindowSize int // samples per correlation window
}

// DefaultProcessorConfig returns the configuration used for new tracks.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Mode:                  FullStereo,
		EnableCorrelation:     true,
		CorrelationWindowSize: 1024,
	}
}

// CorrelationMetrics accumulates stereo correlation incrementally over a
// window and finalizes into Pearson correlation and stereo width.
type CorrelationMetrics struct {
	Correlation float32 // Pearson correlation coefficient [-1, 1]
	StereoWidth float32 // stereo width metric [0, 2]

	sumL, sumR, sumLL, sumRR, sumLR float64
	sampleCount                     int
}

// Reset clears the accumulation window.
func (c *CorrelationMetrics) Reset() {
	*c = CorrelationMetrics{}
}

// Accumulate adds one stereo sample pair to the window.
func (c *CorrelationMetrics) Accumulate(l, r float32) {
	lf, rf := float64(l), float64(r)
	c.sumL += lf
	c.sumR += rf
	c.sumLL += lf * lf
	c.sumRR += rf * rf
	c.sumLR += lf * rf
	c.sampleCount++
}

// SampleCount returns the number of accumulated sample pairs.
func (c CorrelationMetrics) SampleCount() int { return c.sampleCount }

// Finalize computes correlation and stereo width from the accumulated sums.
func (c *CorrelationMetrics) Finalize() {
	if c.sampleCount < 2 {
		c.Correlation = 0
		return
	}

	n := float64(c.sampleCount)
	meanL := c.sumL / n
	meanR := c.sumR / n

	numerator := c.sumLR - n*meanL*meanR
	denomL := c.sumLL - n*meanL*meanL
	denomR := c.sumRR - n*meanR*meanR
	denominator := math.Sqrt(denomL * denomR)

	if denominator > 1e-10 {
		corr := numerator / denominator
		// Clamp to handle numerical precision issues.
		c.Correlation = float32(math.Max(-1, math.Min(1, corr)))
	} else {
		c.Correlation = 0
	}

	// Width = 2 * sqrt(1 - |correlation|)
	c.StereoWidth = float32(2 * math.Sqrt(1-math.Abs(float64(c.Correlation))))
}

// SignalProcessor transforms a stereo pair according to the configured mode
// and maintains rolling correlation metrics. The processing path is called
// from the audio goroutine only; configuration may change from any
// goroutine.
type SignalProcessor struct {
	configMu sync.Mutex
	config   ProcessorConfig

	out [2][MaxBlockSize]float32

	correlation CorrelationMetrics
	lastMetrics CorrelationMetrics // finalized copy of the previous window
	metricsMu   sync.Mutex
}

// NewSignalProcessor creates a processor with the given configuration.
func NewSignalProcessor(config ProcessorConfig) *SignalProcessor {
	return &SignalProcessor{config: config}
}

// SetConfig replaces the processor configuration.
func (p *SignalProcessor) SetConfig(config ProcessorConfig) {
	p.configMu.Lock()
	defer p.configMu.Unlock()
	p.config = config
}

// Config returns the current processor configuration.
func (p *SignalProcessor) Config() ProcessorConfig {
	p.configMu.Lock()
	defer p.configMu.Unlock()
	return p.config
}

// SetMode changes only the processing mode.
func (p *SignalProcessor) SetMode(mode ProcessingMode) {
	p.configMu.Lock()
	defer p.configMu.Unlock()
	p.config.Mode = mode
}

// ProcessBlock transforms up to MaxBlockSize samples of the stereo pair into
// the processor's output buffers and returns the output channel views. A nil
// right channel is substituted with the left so mono sources degrade
// gracefully. Audio goroutine only; never allocates.
func (p *SignalProcessor) ProcessBlock(left, right []float32, numSamples int) [][]float32 {
	p.configMu.Lock()
	config := p.config
	p.configMu.Unlock()

	if numSamples > MaxBlockSize {
		numSamples = MaxBlockSize
	}
	if numSamples > len(left) {
		numSamples = len(left)
	}
	if right == nil {
		right = left
	}
	if numSamples > len(right) {
		numSamples = len(right)
	}
	if numSamples <= 0 {
		return nil
	}

	l := left[:numSamples]
	r := right[:numSamples]
	out0 := p.out[0][:numSamples]
	out1 := p.out[1][:numSamples]

	switch config.Mode {
	case FullStereo:
		copy(out0, l)
		copy(out1, r)
	case MonoSum:
		for i := range l {
			out0[i] = (l[i] + r[i]) * 0.5
		}
	case MidSide:
		for i := range l {
			out0[i] = (l[i] + r[i]) * 0.5
			out1[i] = (l[i] - r[i]) * 0.5
		}
	case LeftOnly:
		copy(out0, l)
	case RightOnly:
		copy(out0, r)
	case Difference:
		for i := range l {
			out0[i] = l[i] - r[i]
		}
	}

	if config.EnableCorrelation {
		p.updateCorrelation(l, r, config.CorrelationWindowSize)
	}

	if config.Mode.OutputChannelCount() == 2 {
		return [][]float32{out0, out1}
	}
	return [][]float32{out0}
}

func (p *SignalProcessor) updateCorrelation(l, r []float32, windowSize int) {
	if windowSize <= 0 {
		windowSize = 1024
	}
	for i := range l {
		p.correlation.Accumulate(l[i], r[i])
		if p.correlation.SampleCount() >= windowSize {
			p.correlation.Finalize()
			p.metricsMu.Lock()
			p.lastMetrics = p.correlation
			p.metricsMu.Unlock()
			p.correlation.Reset()
		}
	}
}

// Metrics returns the correlation metrics from the last completed window.
func (p *SignalProcessor) Metrics() CorrelationMetrics {
	p.metricsMu.Lock()
	defer p.metricsMu.Unlock()
	return p.lastMetrics
}
