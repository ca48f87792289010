package pipeline

import (
	"math"
	"sync"

	"github.com/blackboxlabs/blackbox/internal/domain"
)

const (
	latencyWindow = 100
	emaAlpha      = 0.2
)

// stats tracks the coordinator's rolling request metrics: counters, a
// mean latency over the last latencyWindow requests, and per-stage
// exponential moving averages.
type stats struct {
	mu         sync.Mutex
	total      int64
	successful int64
	failed     int64
	latencies  []float64
	asrEMA     float64
	llmEMA     float64
	ttsEMA     float64
}

func newStats() *stats {
	return &stats{}
}

func (s *stats) recordSuccess(timing map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.successful++

	s.latencies = append(s.latencies, timing["total"])
	if len(s.latencies) > latencyWindow {
		s.latencies = s.latencies[len(s.latencies)-latencyWindow:]
	}

	s.asrEMA = ema(s.asrEMA, timing, domain.StageASR)
	s.llmEMA = ema(s.llmEMA, timing, domain.StageLLM)
	s.ttsEMA = ema(s.ttsEMA, timing, domain.StageTTS)
}

func (s *stats) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.failed++
}

func ema(prev float64, timing map[string]float64, stage string) float64 {
	v, ok := timing[stage]
	if !ok {
		return prev
	}
	if prev == 0 {
		return v
	}
	return round3(emaAlpha*v + (1-emaAlpha)*prev)
}

func (s *stats) snapshot() domain.PipelineStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mean float64
	if len(s.latencies) > 0 {
		var sum float64
		for _, l := range s.latencies {
			sum += l
		}
		mean = round3(sum / float64(len(s.latencies)))
	}

	return domain.PipelineStats{
		TotalRequests:      s.total,
		SuccessfulRequests: s.successful,
		FailedRequests:     s.failed,
		AverageLatency:     mean,
		ASRAverage:         s.asrEMA,
		LLMAverage:         s.llmEMA,
		TTSAverage:         s.ttsEMA,
	}
}

// round3 rounds to milliseconds, the precision of the timing maps.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
