package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a row does not exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrTimeout indicates a stage budget expired before the worker replied.
	ErrTimeout = errors.New("timeout")

	// ErrNotReady indicates the pipeline has not finished initialization.
	ErrNotReady = errors.New("pipeline not ready")
)

// WorkerError is a structured error returned by an inference worker.
type WorkerError struct {
	Service string
	Message string
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Service, e.Message)
}

// Pipeline stage names used in timing maps and stage errors.
const (
	StageASR               = "asr"
	StageContextRetrieval  = "context_retrieval"
	StageLLM               = "llm"
	StageFunctionExecution = "function_execution"
	StageContextUpdate     = "context_update"
	StageTTS               = "tts"
)

// StageError records which pipeline stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with the failing stage name.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
