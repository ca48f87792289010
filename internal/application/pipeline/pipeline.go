// Package pipeline coordinates one voice interaction across the three
// inference workers: audio in, ASR, context, LLM, side effects, TTS,
// audio out. Stages run strictly sequentially per request under per-stage
// budgets and a total deadline.
package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/blackboxlabs/blackbox/internal/adapters/id"
	"github.com/blackboxlabs/blackbox/internal/adapters/ipc"
	"github.com/blackboxlabs/blackbox/internal/adapters/metrics"
	"github.com/blackboxlabs/blackbox/internal/config"
	"github.com/blackboxlabs/blackbox/internal/domain"
	"github.com/blackboxlabs/blackbox/internal/ports"
)

const (
	serviceWaitTimeout = 60 * time.Second
	serviceWaitRetry   = 1 * time.Second
	promptContextTurns = 5
)

// TranscribeResult is the outcome of the ASR-only path.
type TranscribeResult struct {
	Transcription string             `json:"transcription"`
	Confidence    float64            `json:"confidence"`
	Timing        map[string]float64 `json:"timing"`
}

// Pipeline is the coordinator. It owns the transport and thermal handles
// for the life of the process and shares the store under its writer
// discipline.
type Pipeline struct {
	transport ports.Transport
	store     ports.ContextStore
	thermal   ports.ThermalMonitor
	cfg       *config.Config
	ids       *id.Generator
	functions *Registry
	stats     *stats
	tracer    trace.Tracer
	log       *slog.Logger
	ready     atomic.Bool
}

// New wires the coordinator. Call Initialize before serving requests.
func New(cfg *config.Config, transport ports.Transport, store ports.ContextStore, thermal ports.ThermalMonitor) *Pipeline {
	p := &Pipeline{
		transport: transport,
		store:     store,
		thermal:   thermal,
		cfg:       cfg,
		ids:       id.New(),
		functions: NewRegistry(store),
		stats:     newStats(),
		tracer:    otel.Tracer("blackbox/pipeline"),
		log:       slog.With("component", "pipeline"),
	}

	thermal.RegisterCallback(domain.ThermalCritical, p.onThermalCritical)

	return p
}

// Functions exposes the side-effect registry for additional intents.
func (p *Pipeline) Functions() *Registry {
	return p.functions
}

// Initialize blocks until every worker answers its health method, or
// fails after a bounded wait.
func (p *Pipeline) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, serviceWaitTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, svc := range ipc.Services {
		svc := svc
		g.Go(func() error {
			for {
				if p.transport.HealthCheck(ctx, svc) {
					p.log.Info("service ready", "service", svc)
					return nil
				}
				select {
				case <-ctx.Done():
					return fmt.Errorf("service %s not ready: %w", svc, ctx.Err())
				case <-time.After(serviceWaitRetry):
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	p.ready.Store(true)
	p.log.Info("pipeline ready")
	return nil
}

// Ready reports whether Initialize has completed.
func (p *Pipeline) Ready() bool {
	return p.ready.Load()
}

// Stats returns a snapshot of the rolling request metrics.
func (p *Pipeline) Stats() domain.PipelineStats {
	return p.stats.snapshot()
}

func (p *Pipeline) onThermalCritical(_ domain.ThermalState, temps map[string]float64) {
	var max float64
	for _, t := range temps {
		if t > max {
			max = t
		}
	}
	p.log.Error("critical thermal state, pipeline may throttle", "max_celsius", max)
}

// ProcessVoice runs the full seven-step pipeline on raw audio.
func (p *Pipeline) ProcessVoice(ctx context.Context, audio []byte, userID, sessionID string) (*domain.PipelineResult, error) {
	if !p.ready.Load() {
		return nil, domain.ErrNotReady
	}

	userID, sessionID = p.identities(userID, sessionID)
	ctx, span := p.tracer.Start(ctx, "pipeline.process_voice")
	defer span.End()

	log := p.log.With("session_id", sessionID)
	timing := map[string]float64{}
	start := time.Now()
	throttled := p.checkThrottle(log)

	// Step 1: ASR.
	log.Info("starting ASR")
	asrStart := time.Now()
	asrResult, err := p.callStage(ctx, "asr", "transcribe",
		map[string]any{"audio_data": base64.StdEncoding.EncodeToString(audio)},
		p.cfg.ASRDeadline())
	elapsed := time.Since(asrStart)
	timing[domain.StageASR] = round3(elapsed.Seconds())
	metrics.PipelineStageDuration.WithLabelValues(domain.StageASR).Observe(elapsed.Seconds())
	if err != nil {
		return p.fail(log, "voice", domain.StageASR, err, timing, start, nil)
	}

	transcription, _ := asrResult["text"].(string)
	log.Info("ASR complete", "elapsed", timing[domain.StageASR], "text", transcription)
	if elapsed > p.cfg.ASRDeadline() {
		log.Warn("ASR exceeded target", "elapsed", timing[domain.StageASR], "target", p.cfg.Pipeline.ASRDeadline)
	}

	return p.respond(ctx, log, "voice", transcription, userID, sessionID, timing, start, throttled)
}

// ProcessText runs the pipeline on pre-transcribed text, skipping ASR.
// The returned transcription equals the input verbatim.
func (p *Pipeline) ProcessText(ctx context.Context, text, userID, sessionID string) (*domain.PipelineResult, error) {
	if !p.ready.Load() {
		return nil, domain.ErrNotReady
	}

	userID, sessionID = p.identities(userID, sessionID)
	ctx, span := p.tracer.Start(ctx, "pipeline.process_text")
	defer span.End()

	log := p.log.With("session_id", sessionID)
	timing := map[string]float64{}
	start := time.Now()
	throttled := p.checkThrottle(log)

	return p.respond(ctx, log, "text", text, userID, sessionID, timing, start, throttled)
}

// respond runs steps 2-7, shared by the voice and text paths.
func (p *Pipeline) respond(ctx context.Context, log *slog.Logger, mode, transcription, userID, sessionID string, timing map[string]float64, start time.Time, throttled bool) (*domain.PipelineResult, error) {
	// Step 2: context retrieval.
	fetchStart := time.Now()
	turns, err := p.store.GetContext(ctx, userID, p.cfg.Pipeline.ContextLimit)
	timing[domain.StageContextRetrieval] = round3(time.Since(fetchStart).Seconds())
	if err != nil {
		return p.fail(log, mode, domain.StageContextRetrieval, err, timing, start, nil)
	}

	// Step 3: LLM.
	log.Info("starting LLM inference")
	llmStart := time.Now()
	llmRaw, err := p.callStage(ctx, "llm", "generate", map[string]any{
		"prompt":     assemblePrompt(turns, transcription),
		"context":    turnPayload(turns),
		"max_tokens": p.cfg.Pipeline.LLMMaxTokens,
		"user_id":    userID,
	}, p.cfg.LLMDeadline())
	llmElapsed := time.Since(llmStart)
	timing[domain.StageLLM] = round3(llmElapsed.Seconds())
	metrics.PipelineStageDuration.WithLabelValues(domain.StageLLM).Observe(llmElapsed.Seconds())
	if err != nil {
		return p.fail(log, mode, domain.StageLLM, err, timing, start, nil)
	}

	responseText, _ := llmRaw["text"].(string)
	tokens := intField(llmRaw, "tokens")
	functionCalls := decodeFunctionCalls(llmRaw["function_calls"])

	if llmElapsed > 0 && tokens > 0 {
		tps := float64(tokens) / llmElapsed.Seconds()
		timing["llm_tokens_per_second"] = round3(tps)
		metrics.LLMTokensPerSecond.Set(tps)
		log.Info("LLM complete", "elapsed", timing[domain.StageLLM], "tokens_per_second", timing["llm_tokens_per_second"])
	}

	// Step 4: side effects. Failures are logged inside Dispatch and
	// never abort the request.
	if len(functionCalls) > 0 {
		funcStart := time.Now()
		log.Info("executing function calls", "count", len(functionCalls))
		p.functions.Dispatch(ctx, userID, functionCalls)
		timing[domain.StageFunctionExecution] = round3(time.Since(funcStart).Seconds())
	}

	// Step 5: context append. A failed append loses memory but must not
	// cost the user the spoken answer.
	updateStart := time.Now()
	if err := p.store.AppendTurn(ctx, userID, domain.RoleUser, transcription, sessionID); err != nil {
		log.Warn("failed to append user turn", "error", err)
	} else if err := p.store.AppendTurn(ctx, userID, domain.RoleAssistant, responseText, sessionID); err != nil {
		log.Warn("failed to append assistant turn", "error", err)
	}
	timing[domain.StageContextUpdate] = round3(time.Since(updateStart).Seconds())

	// Step 6: TTS.
	log.Info("starting TTS")
	ttsStart := time.Now()
	ttsRaw, err := p.callStage(ctx, "tts", "synthesize",
		map[string]any{"text": responseText}, p.cfg.TTSDeadline())
	ttsElapsed := time.Since(ttsStart)
	timing[domain.StageTTS] = round3(ttsElapsed.Seconds())
	metrics.PipelineStageDuration.WithLabelValues(domain.StageTTS).Observe(ttsElapsed.Seconds())
	if err != nil {
		// Partial: the response text survives even though synthesis failed.
		partial := &domain.PipelineResult{
			Transcription: transcription,
			ResponseText:  responseText,
			FunctionCalls: functionCalls,
			SessionID:     sessionID,
			Throttled:     throttled,
		}
		return p.fail(log, mode, domain.StageTTS, err, timing, start, partial)
	}
	audioData, _ := ttsRaw["audio_data"].(string)
	if ttsElapsed > p.cfg.TTSDeadline() {
		log.Warn("TTS exceeded target", "elapsed", timing[domain.StageTTS], "target", p.cfg.Pipeline.TTSDeadline)
	}

	// Step 7: totals.
	total := time.Since(start)
	timing["total"] = round3(total.Seconds())
	timing["orchestration_overhead"] = round3(total.Seconds() - (timing[domain.StageASR] + timing[domain.StageLLM] + timing[domain.StageTTS]))

	if total > p.cfg.TotalDeadline() {
		log.Warn("total deadline exceeded", "total", timing["total"], "deadline", p.cfg.Pipeline.TotalDeadline)
	}

	p.stats.recordSuccess(timing)
	metrics.PipelineRequestsTotal.WithLabelValues(mode, "success").Inc()
	p.logMetric(ctx, timing["total"], sessionID)

	log.Info("pipeline complete",
		"total", timing["total"],
		"asr", timing[domain.StageASR],
		"llm", timing[domain.StageLLM],
		"tts", timing[domain.StageTTS])

	return &domain.PipelineResult{
		Success:       true,
		Transcription: transcription,
		ResponseText:  responseText,
		AudioData:     audioData,
		FunctionCalls: functionCalls,
		Timing:        timing,
		SessionID:     sessionID,
		Throttled:     throttled,
	}, nil
}

// TranscribeOnly runs the ASR stage with no context side effects.
func (p *Pipeline) TranscribeOnly(ctx context.Context, audio []byte) (*TranscribeResult, error) {
	if !p.ready.Load() {
		return nil, domain.ErrNotReady
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.transcribe_only")
	defer span.End()

	start := time.Now()
	result, err := p.callStage(ctx, "asr", "transcribe",
		map[string]any{"audio_data": base64.StdEncoding.EncodeToString(audio)},
		p.cfg.ASRDeadline())
	elapsed := time.Since(start)
	metrics.PipelineStageDuration.WithLabelValues(domain.StageASR).Observe(elapsed.Seconds())
	if err != nil {
		return nil, domain.NewStageError(domain.StageASR, err)
	}

	text, _ := result["text"].(string)
	confidence := floatField(result, "confidence")
	return &TranscribeResult{
		Transcription: text,
		Confidence:    confidence,
		Timing:        map[string]float64{domain.StageASR: round3(elapsed.Seconds())},
	}, nil
}

func (p *Pipeline) callStage(ctx context.Context, service, method string, data map[string]any, timeout time.Duration) (map[string]any, error) {
	ctx, span := p.tracer.Start(ctx, "ipc."+service+"."+method)
	defer span.End()
	return p.transport.Call(ctx, service, method, data, timeout)
}

// fail finalizes the timing map and classifies the request as failed at
// the given stage. partial carries any fields still valid for the caller.
func (p *Pipeline) fail(log *slog.Logger, mode, stage string, err error, timing map[string]float64, start time.Time, partial *domain.PipelineResult) (*domain.PipelineResult, error) {
	timing["total"] = round3(time.Since(start).Seconds())
	p.stats.recordFailure()
	metrics.PipelineRequestsTotal.WithLabelValues(mode, "failure").Inc()
	log.Error("pipeline failed", "stage", stage, "error", err)

	result := partial
	if result == nil {
		result = &domain.PipelineResult{}
	}
	result.Success = false
	result.Timing = timing
	return result, domain.NewStageError(stage, err)
}

func (p *Pipeline) identities(userID, sessionID string) (string, string) {
	if userID == "" {
		userID = p.cfg.Pipeline.DefaultUser
	}
	if sessionID == "" {
		sessionID = p.ids.GenerateSessionID()
	}
	return userID, sessionID
}

func (p *Pipeline) checkThrottle(log *slog.Logger) bool {
	if !p.thermal.ShouldThrottle() {
		return false
	}
	log.Warn("system in thermal throttle mode")
	metrics.PipelineThrottledTotal.Inc()
	return true
}

func (p *Pipeline) logMetric(ctx context.Context, total float64, sessionID string) {
	if err := p.store.LogMetric(ctx, "pipeline_total_seconds", total, map[string]any{"session_id": sessionID}); err != nil {
		p.log.Warn("failed to log latency metric", "error", err)
	}
}

// assemblePrompt concatenates the last five context turns, a newline, and
// the current prompt with the trailing assistant marker.
func assemblePrompt(turns []domain.ConversationTurn, prompt string) string {
	if len(turns) > promptContextTurns {
		turns = turns[len(turns)-promptContextTurns:]
	}

	var b strings.Builder
	for _, t := range turns {
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	b.WriteString("user: ")
	b.WriteString(prompt)
	b.WriteString("\nassistant: ")
	return b.String()
}

// turnPayload shapes context turns for the generate method's wire format.
func turnPayload(turns []domain.ConversationTurn) []map[string]any {
	out := make([]map[string]any, 0, len(turns))
	for _, t := range turns {
		out = append(out, map[string]any{
			"role":    t.Role,
			"content": t.Content,
		})
	}
	return out
}

// decodeFunctionCalls converts the worker's loosely typed function_calls
// field into domain values. Anything malformed is dropped.
func decodeFunctionCalls(raw any) []domain.FunctionCall {
	if raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var calls []domain.FunctionCall
	if err := json.Unmarshal(data, &calls); err != nil {
		return nil
	}
	return calls
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
