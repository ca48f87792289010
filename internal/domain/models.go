package domain

import "time"

// Turn roles stored in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ConversationTurn is one (role, content) pair in a user's history.
type ConversationTurn struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptionResult is the ASR worker's output.
type TranscriptionResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
	Elapsed    float64 `json:"elapsed_seconds"`
}

// FunctionCall is a structured side-effect request emitted by the LLM worker.
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// LLMResult is the LLM worker's output.
type LLMResult struct {
	Text          string         `json:"text"`
	Tokens        int            `json:"tokens"`
	Elapsed       float64        `json:"elapsed_seconds"`
	FunctionCalls []FunctionCall `json:"function_calls"`
}

// SynthesisResult is the TTS worker's output. AudioData is base64 WAV.
type SynthesisResult struct {
	AudioData      string  `json:"audio_data"`
	DurationSecs   float64 `json:"duration_seconds"`
	Elapsed        float64 `json:"elapsed_seconds"`
	SampleRate     int     `json:"sample_rate"`
	RealtimeFactor float64 `json:"realtime_factor"`
}

// PipelineResult is the outcome of one voice or text interaction.
// On failure Timing holds the stages completed so far plus "total".
type PipelineResult struct {
	Success       bool               `json:"success"`
	Transcription string             `json:"transcription"`
	ResponseText  string             `json:"response_text"`
	AudioData     string             `json:"audio_data,omitempty"`
	FunctionCalls []FunctionCall     `json:"function_calls,omitempty"`
	Timing        map[string]float64 `json:"timing"`
	SessionID     string             `json:"session_id"`
	Throttled     bool               `json:"throttled,omitempty"`
}

// Reminder is a user reminder created via the set_reminder function call.
// CompletedAt is non-nil iff Completed is true.
type Reminder struct {
	ID          int64      `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     time.Time  `json:"due_date"`
	Recurring   string     `json:"recurring,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Vault item categories.
const (
	VaultCategoryNote       = "note"
	VaultCategoryCredential = "credential"
)

// VaultItem is an opaque blob in the secure vault. Content is stored and
// returned verbatim; the store never inspects it.
type VaultItem struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	Content    []byte    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// MediaItem is an entry in the local media library.
type MediaItem struct {
	ID           int64   `json:"id"`
	UserID       string  `json:"user_id"`
	Title        string  `json:"title"`
	Type         string  `json:"type"`
	FilePath     string  `json:"file_path"`
	DurationSecs float64 `json:"duration_seconds,omitempty"`
	Artist       string  `json:"artist,omitempty"`
	Album        string  `json:"album,omitempty"`
}

// ThermalState is the hysteretic state of the thermal monitor.
type ThermalState string

const (
	ThermalNormal   ThermalState = "normal"
	ThermalWarning  ThermalState = "warning"
	ThermalCritical ThermalState = "critical"
	ThermalCooldown ThermalState = "cooldown"
)

// ThermalReading is one sampled temperature.
type ThermalReading struct {
	Zone      string    `json:"zone"`
	Celsius   float64   `json:"celsius"`
	Timestamp time.Time `json:"timestamp"`
}

// ThermalThresholds are the state-machine boundaries in Celsius.
type ThermalThresholds struct {
	Warning  float64 `json:"warning"`
	Critical float64 `json:"critical"`
	Cooldown float64 `json:"cooldown"`
}

// ThermalStatus is a consistent snapshot of the monitor.
type ThermalStatus struct {
	State        ThermalState       `json:"state"`
	Temperatures map[string]float64 `json:"temperatures"`
	MaxTemp      *float64           `json:"max_temperature"`
	Thresholds   ThermalThresholds  `json:"thresholds"`
	Throttling   bool               `json:"is_throttling"`
	Running      bool               `json:"running"`
}

// PipelineStats is a snapshot of the coordinator's rolling metrics.
type PipelineStats struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	FailedRequests     int64   `json:"failed_requests"`
	AverageLatency     float64 `json:"average_latency"`
	ASRAverage         float64 `json:"asr_average"`
	LLMAverage         float64 `json:"llm_average"`
	TTSAverage         float64 `json:"tts_average"`
}
