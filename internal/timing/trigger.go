package timing

// decideTrigger scans the block's first channel with the configured
// detector. Trigger positions are tracked at absolute sample indices so
// hold-off is enforced sample-accurately across block boundaries. Detection
// always uses channel 0; multi-channel trigger logic is deliberately not
// implemented.
func (e *TimingEngine) decideTrigger(channels [][]float32, numSamples int) bool {
	if len(channels) == 0 || channels[0] == nil || numSamples <= 0 {
		return false
	}

	e.configMu.Lock()
	cfg := e.triggerConfig
	e.configMu.Unlock()

	if !cfg.Enabled {
		return false
	}

	data := channels[0]
	if numSamples > len(data) {
		numSamples = len(data)
	}
	blockStart := uint64(0)
	if sp := e.samplesProcessed.Load(); sp >= uint64(numSamples) {
		blockStart = sp - uint64(numSamples)
	}

	fired := false
	for i := range numSamples {
		sample := data[i]
		prev := e.lastSampleValue
		e.pushHistory(sample)

		var qualifies bool
		switch cfg.Type {
		case Level:
			qualifies = detectLevel(prev, sample, cfg)
		case Edge:
			qualifies = detectEdge(prev, sample, cfg)
		case Slope:
			qualifies = e.detectSlope(cfg)
		}
		e.lastSampleValue = sample

		if !qualifies {
			continue
		}

		position := blockStart + uint64(i)
		if e.hasTriggered && position-e.lastTriggerSample < uint64(cfg.HoldOffSamples) {
			e.missedTriggers.Add(1)
			continue
		}

		e.lastTriggerSample = position
		e.hasTriggered = true
		e.perf.triggerDetections.Add(1)
		fired = true

		// Keep scanning so lastSampleValue and the history stay
		// contiguous for the next block.
	}

	return fired
}

// pushHistory appends one sample to the fixed-size history ring used by the
// slope detector.
func (e *TimingEngine) pushHistory(sample float32) {
	e.history[e.historyIndex] = sample
	e.historyIndex = (e.historyIndex + 1) % triggerHistorySize
	if e.historyCount < triggerHistorySize {
		e.historyCount++
	}
}

// detectLevel is a Schmitt-trigger threshold crossing: the signal must
// leave the hysteresis band on one side and cross the threshold on the
// other, so a signal hovering inside the band never fires.
func detectLevel(prev, cur float32, cfg TriggerConfig) bool {
	rising := prev <= cfg.Threshold-cfg.Hysteresis && cur >= cfg.Threshold
	falling := prev >= cfg.Threshold+cfg.Hysteresis && cur <= cfg.Threshold

	switch cfg.Edge {
	case Rising:
		return rising
	case Falling:
		return falling
	case Both:
		return rising || falling
	default:
		return false
	}
}

// detectEdge compares the sample-to-sample derivative against the
// threshold.
func detectEdge(prev, cur float32, cfg TriggerConfig) bool {
	derivative := cur - prev

	switch cfg.Edge {
	case Rising:
		return derivative > cfg.Threshold
	case Falling:
		return derivative < -cfg.Threshold
	case Both:
		return derivative > cfg.Threshold || derivative < -cfg.Threshold
	default:
		return false
	}
}

// detectSlope fits a least-squares line through the most recent
// slopeWindowSamples history samples and compares the per-sample slope
// against the threshold. More robust than the edge detector on noisy or
// non-monotonic signals.
func (e *TimingEngine) detectSlope(cfg TriggerConfig) bool {
	window := cfg.SlopeWindowSamples
	if e.historyCount < window {
		return false
	}

	var sumX, sumY, sumXY, sumX2 float32
	start := e.historyIndex - window
	if start < 0 {
		start += triggerHistorySize
	}
	for i := range window {
		x := float32(i)
		y := e.history[(start+i)%triggerHistorySize]
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	n := float32(window)
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return false
	}
	slope := (n*sumXY - sumX*sumY) / denom

	switch cfg.Edge {
	case Rising:
		return slope > cfg.Threshold
	case Falling:
		return slope < -cfg.Threshold
	case Both:
		return slope > cfg.Threshold || slope < -cfg.Threshold
	default:
		return false
	}
}
