package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the orchestrator.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Transport TransportConfig `json:"transport"`
	Thermal   ThermalConfig   `json:"thermal"`
	Vault     VaultConfig     `json:"vault"`
}

// ServerConfig holds the HTTP front-end configuration.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DatabaseConfig holds the embedded database configuration.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// PipelineConfig holds stage budgets and context settings.
// Deadlines are seconds, matching the timing maps the pipeline emits.
type PipelineConfig struct {
	TotalDeadline float64 `json:"total_deadline"`
	ASRDeadline   float64 `json:"asr_deadline"`
	LLMDeadline   float64 `json:"llm_deadline"`
	TTSDeadline   float64 `json:"tts_deadline"`
	LLMMaxTokens  int     `json:"llm_max_tokens"`
	ContextLimit  int     `json:"context_limit"`
	DefaultUser   string  `json:"default_user"`
}

// TransportConfig holds the shared-memory channel layout.
type TransportConfig struct {
	Dir          string `json:"dir"`
	PollInterval string `json:"poll_interval"`
}

// ThermalConfig holds the thermal state-machine thresholds in Celsius.
type ThermalConfig struct {
	WarningTemp  float64 `json:"warning_temp"`
	CriticalTemp float64 `json:"critical_temp"`
	CooldownTemp float64 `json:"cooldown_temp"`
	PollInterval string  `json:"poll_interval"`
	BasePath     string  `json:"base_path"`
}

// VaultConfig holds the Argon2id verifier parameters.
type VaultConfig struct {
	Argon2Time      int `json:"argon2_time"`
	Argon2MemoryKiB int `json:"argon2_memory_kib"`
	Argon2Parallel  int `json:"argon2_parallelism"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".blackbox")

	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(dataDir, "blackbox.db"),
		},
		Pipeline: PipelineConfig{
			TotalDeadline: 13.0,
			ASRDeadline:   2.5,
			LLMDeadline:   7.5,
			TTSDeadline:   1.5,
			LLMMaxTokens:  150,
			ContextLimit:  10,
			DefaultUser:   "default_user",
		},
		Transport: TransportConfig{
			Dir:          "/dev/shm",
			PollInterval: "10ms",
		},
		Thermal: ThermalConfig{
			WarningTemp:  75.0,
			CriticalTemp: 85.0,
			CooldownTemp: 70.0,
			PollInterval: "2s",
			BasePath:     "/sys/class/thermal",
		},
		Vault: VaultConfig{
			Argon2Time:      3,
			Argon2MemoryKiB: 65536,
			Argon2Parallel:  4,
		},
	}
}

// envString loads a string environment variable into the target pointer if set
func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

// envInt loads an integer environment variable into the target pointer if set and valid
func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

// envFloat loads a float64 environment variable into the target pointer if set and valid
func envFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

// Load loads configuration from the config file and environment variables.
// Unknown config-file fields are rejected at startup rather than ignored.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPath()
	if data, err := os.ReadFile(configPath); err == nil {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}

	envString("BLACKBOX_SERVER_HOST", &cfg.Server.Host)
	envInt("BLACKBOX_SERVER_PORT", &cfg.Server.Port)

	envString("BLACKBOX_DB_PATH", &cfg.Database.Path)

	envFloat("BLACKBOX_TOTAL_DEADLINE", &cfg.Pipeline.TotalDeadline)
	envFloat("BLACKBOX_ASR_DEADLINE", &cfg.Pipeline.ASRDeadline)
	envFloat("BLACKBOX_LLM_DEADLINE", &cfg.Pipeline.LLMDeadline)
	envFloat("BLACKBOX_TTS_DEADLINE", &cfg.Pipeline.TTSDeadline)
	envInt("BLACKBOX_LLM_MAX_TOKENS", &cfg.Pipeline.LLMMaxTokens)
	envInt("BLACKBOX_CONTEXT_LIMIT", &cfg.Pipeline.ContextLimit)
	envString("BLACKBOX_DEFAULT_USER", &cfg.Pipeline.DefaultUser)

	envString("BLACKBOX_SHM_DIR", &cfg.Transport.Dir)
	envString("BLACKBOX_TRANSPORT_POLL", &cfg.Transport.PollInterval)

	envFloat("BLACKBOX_THERMAL_WARN", &cfg.Thermal.WarningTemp)
	envFloat("BLACKBOX_THERMAL_CRITICAL", &cfg.Thermal.CriticalTemp)
	envFloat("BLACKBOX_THERMAL_COOLDOWN", &cfg.Thermal.CooldownTemp)
	envString("BLACKBOX_THERMAL_POLL", &cfg.Thermal.PollInterval)
	envString("BLACKBOX_THERMAL_PATH", &cfg.Thermal.BasePath)

	envInt("BLACKBOX_ARGON2_TIME", &cfg.Vault.Argon2Time)
	envInt("BLACKBOX_ARGON2_MEM_KIB", &cfg.Vault.Argon2MemoryKiB)
	envInt("BLACKBOX_ARGON2_PARALLEL", &cfg.Vault.Argon2Parallel)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ServicePaths returns the in/out channel paths for a worker service.
func (c *Config) ServicePaths(service string) (in, out string) {
	in = filepath.Join(c.Transport.Dir, "blackbox_"+service+"_in")
	out = filepath.Join(c.Transport.Dir, "blackbox_"+service+"_out")
	return in, out
}

// TransportPoll returns the response poll interval as a duration.
func (c *Config) TransportPoll() time.Duration {
	d, err := time.ParseDuration(c.Transport.PollInterval)
	if err != nil || d <= 0 {
		return 10 * time.Millisecond
	}
	return d
}

// ThermalPoll returns the thermal sampling interval as a duration.
func (c *Config) ThermalPoll() time.Duration {
	d, err := time.ParseDuration(c.Thermal.PollInterval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (c *Config) ASRDeadline() time.Duration   { return secondsDuration(c.Pipeline.ASRDeadline) }
func (c *Config) LLMDeadline() time.Duration   { return secondsDuration(c.Pipeline.LLMDeadline) }
func (c *Config) TTSDeadline() time.Duration   { return secondsDuration(c.Pipeline.TTSDeadline) }
func (c *Config) TotalDeadline() time.Duration { return secondsDuration(c.Pipeline.TotalDeadline) }

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server port must be between 1 and 65535")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database path is required")
	}

	if c.Pipeline.ASRDeadline <= 0 || c.Pipeline.LLMDeadline <= 0 || c.Pipeline.TTSDeadline <= 0 {
		errs = append(errs, "stage deadlines must be positive")
	}
	if c.Pipeline.TotalDeadline <= 0 {
		errs = append(errs, "total deadline must be positive")
	}
	if c.Pipeline.ContextLimit < 1 {
		errs = append(errs, "context limit must be at least 1")
	}
	if c.Pipeline.LLMMaxTokens < 1 {
		errs = append(errs, "LLM max_tokens must be positive")
	}
	if c.Pipeline.DefaultUser == "" {
		errs = append(errs, "default user is required")
	}

	if c.Transport.Dir == "" {
		errs = append(errs, "transport dir is required")
	}
	if _, err := time.ParseDuration(c.Transport.PollInterval); err != nil {
		errs = append(errs, "transport poll_interval must be a valid duration")
	}

	// Hysteresis requires cooldown < warning < critical.
	if !(c.Thermal.CooldownTemp < c.Thermal.WarningTemp && c.Thermal.WarningTemp < c.Thermal.CriticalTemp) {
		errs = append(errs, "thermal thresholds must satisfy cooldown < warning < critical")
	}
	if _, err := time.ParseDuration(c.Thermal.PollInterval); err != nil {
		errs = append(errs, "thermal poll_interval must be a valid duration")
	}

	if c.Vault.Argon2Time < 1 || c.Vault.Argon2MemoryKiB < 8 || c.Vault.Argon2Parallel < 1 {
		errs = append(errs, "argon2 parameters out of range")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// getConfigPath returns the path to the config file
func getConfigPath() string {
	if path := os.Getenv("BLACKBOX_CONFIG"); path != "" {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}

	configDir := filepath.Join(homeDir, ".config", "blackbox")
	configPath := filepath.Join(configDir, "config.json")
	if _, err := os.Stat(configPath); err == nil {
		return configPath
	}

	altPath := filepath.Join(homeDir, ".blackbox", "config.json")
	if _, err := os.Stat(altPath); err == nil {
		return altPath
	}

	return configPath
}
