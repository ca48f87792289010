// Package ipc implements the request/response channel between the
// orchestrator and the inference workers over a shared-memory filesystem.
// Each worker owns two files: <service>_in (orchestrator writes) and
// <service>_out (worker writes). Each file holds at most one JSON document;
// responses are correlated by a monotone request id.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blackboxlabs/blackbox/internal/adapters/metrics"
	"github.com/blackboxlabs/blackbox/internal/domain"
)

// Services the orchestrator talks to.
var Services = []string{"asr", "llm", "tts"}

const healthTimeout = 2 * time.Second

type request struct {
	ID     uint64         `json:"id"`
	Method string         `json:"method"`
	Data   map[string]any `json:"data"`
}

type response struct {
	ID     uint64         `json:"id"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

type channel struct {
	// mu covers the whole write -> poll -> clear window, so at most one
	// request per service is ever outstanding.
	mu      sync.Mutex
	inPath  string
	outPath string
}

// PathProvider resolves the in/out file pair for a service.
type PathProvider interface {
	ServicePaths(service string) (in, out string)
}

// Manager owns the six channel files and the request-id counter.
type Manager struct {
	channels map[string]*channel
	poll     time.Duration
	nextID   atomic.Uint64
	log      *slog.Logger
}

// NewManager builds a manager for the standard three services.
func NewManager(paths PathProvider, poll time.Duration) *Manager {
	channels := make(map[string]*channel, len(Services))
	for _, svc := range Services {
		in, out := paths.ServicePaths(svc)
		channels[svc] = &channel{inPath: in, outPath: out}
	}
	return &Manager{
		channels: channels,
		poll:     poll,
		log:      slog.With("component", "ipc"),
	}
}

// Initialize creates (or truncates) every channel file. Safe to call more
// than once; request ids keep counting across calls.
func (m *Manager) Initialize() error {
	for svc, ch := range m.channels {
		for _, path := range []string{ch.inPath, ch.outPath} {
			f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
			if err != nil {
				return fmt.Errorf("initialize %s channel %s: %w", svc, path, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("initialize %s channel %s: %w", svc, path, err)
			}
		}
	}
	m.log.Info("IPC channels initialized", "services", len(m.channels))
	return nil
}

// Call sends method+data to service and blocks until the correlated
// response arrives or the timeout expires. A timeout leaves the input file
// untouched; the worker's late response is cleared by the next call.
func (m *Manager) Call(ctx context.Context, service, method string, data map[string]any, timeout time.Duration) (map[string]any, error) {
	ch, ok := m.channels[service]
	if !ok {
		return nil, fmt.Errorf("unknown service %q", service)
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	id := m.nextID.Add(1)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := writeRequest(ch.inPath, request{ID: id, Method: method, Data: data}); err != nil {
		metrics.IPCCallsTotal.WithLabelValues(service, method, "error").Inc()
		return nil, fmt.Errorf("write request to %s: %w", service, err)
	}

	resp, err := m.awaitResponse(ctx, ch, id)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			metrics.IPCCallsTotal.WithLabelValues(service, method, "timeout").Inc()
			m.log.Error("IPC call timed out", "service", service, "method", method, "timeout", timeout)
			return nil, fmt.Errorf("%s.%s after %s: %w", service, method, timeout, domain.ErrTimeout)
		}
		metrics.IPCCallsTotal.WithLabelValues(service, method, "error").Inc()
		return nil, err
	}

	if resp.Error != "" {
		metrics.IPCCallsTotal.WithLabelValues(service, method, "worker_error").Inc()
		return nil, &domain.WorkerError{Service: service, Message: resp.Error}
	}

	metrics.IPCCallsTotal.WithLabelValues(service, method, "ok").Inc()
	metrics.IPCCallDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
	return resp.Result, nil
}

// awaitResponse polls the out file until a document with the matching id
// appears. Unparseable content is a partial write and is retried; a
// mismatched id is someone else's stale response and is ignored.
func (m *Manager) awaitResponse(ctx context.Context, ch *channel, id uint64) (*response, error) {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		raw, err := os.ReadFile(ch.outPath)
		if err != nil || len(raw) == 0 {
			continue
		}

		var resp response
		if err := json.Unmarshal(raw, &resp); err != nil {
			continue
		}
		if resp.ID != id {
			continue
		}

		if err := os.Truncate(ch.outPath, 0); err != nil {
			m.log.Warn("failed to clear response channel", "path", ch.outPath, "error", err)
		}
		return &resp, nil
	}
}

func writeRequest(path string, req request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return err
	}
	// The worker may poll the file at any point; sync so it never observes
	// a cached empty file after we return.
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// HealthCheck reports whether the service answers its health method.
func (m *Manager) HealthCheck(ctx context.Context, service string) bool {
	result, err := m.Call(ctx, service, "health", map[string]any{}, healthTimeout)
	if err != nil {
		m.log.Debug("health check failed", "service", service, "error", err)
		return false
	}
	status, _ := result["status"].(string)
	return status == "ok"
}

// Shutdown removes the channel files best effort.
func (m *Manager) Shutdown() {
	for svc, ch := range m.channels {
		for _, path := range []string{ch.inPath, ch.outPath} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				m.log.Warn("failed to remove channel file", "service", svc, "path", path, "error", err)
			}
		}
	}
	m.log.Info("IPC shutdown complete")
}
