package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackboxlabs/blackbox/internal/domain"
)

type dirPaths struct {
	dir string
}

func (d dirPaths) ServicePaths(service string) (string, string) {
	return filepath.Join(d.dir, "blackbox_"+service+"_in"),
		filepath.Join(d.dir, "blackbox_"+service+"_out")
}

func newTestManager(t *testing.T) (*Manager, dirPaths) {
	t.Helper()
	paths := dirPaths{dir: t.TempDir()}
	m := NewManager(paths, 2*time.Millisecond)
	require.NoError(t, m.Initialize())
	return m, paths
}

// worker simulates an inference process: it polls the in file, consumes
// each request once, and writes a response produced by handle.
type worker struct {
	in, out string
	handle  func(req request) response
	stop    chan struct{}
	done    chan struct{}

	mu   sync.Mutex
	seen []uint64
}

func startWorker(t *testing.T, paths dirPaths, service string, handle func(req request) response) *worker {
	t.Helper()
	in, out := paths.ServicePaths(service)
	w := &worker{
		in:     in,
		out:    out,
		handle: handle,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.loop()
	t.Cleanup(func() {
		close(w.stop)
		<-w.done
	})
	return w
}

func (w *worker) loop() {
	defer close(w.done)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
		}

		raw, err := os.ReadFile(w.in)
		if err != nil || len(raw) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		os.Truncate(w.in, 0)

		w.mu.Lock()
		w.seen = append(w.seen, req.ID)
		w.mu.Unlock()

		resp := w.handle(req)
		payload, _ := json.Marshal(resp)
		os.WriteFile(w.out, payload, 0o644)
	}
}

func (w *worker) seenIDs() []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]uint64, len(w.seen))
	copy(out, w.seen)
	return out
}

func echoWorker(req request) response {
	return response{ID: req.ID, Result: map[string]any{"echo": req.Method}}
}

func TestInitializeCreatesEmptyChannels(t *testing.T) {
	_, paths := newTestManager(t)

	for _, svc := range Services {
		in, out := paths.ServicePaths(svc)
		for _, path := range []string{in, out} {
			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Zero(t, info.Size())
		}
	}
}

func TestCallRoundTrip(t *testing.T) {
	m, paths := newTestManager(t)
	startWorker(t, paths, "asr", func(req request) response {
		assert.Equal(t, "transcribe", req.Method)
		assert.Equal(t, "abc", req.Data["audio_data"])
		return response{ID: req.ID, Result: map[string]any{"text": "hello"}}
	})

	result, err := m.Call(context.Background(), "asr", "transcribe",
		map[string]any{"audio_data": "abc"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", result["text"])

	// the consumed response must not satisfy a later call
	out := filepath.Join(paths.dir, "blackbox_asr_out")
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestRequestIDsMonotonicAcrossInitialize(t *testing.T) {
	m, paths := newTestManager(t)
	w := startWorker(t, paths, "llm", echoWorker)

	for i := 0; i < 3; i++ {
		_, err := m.Call(context.Background(), "llm", "generate", nil, time.Second)
		require.NoError(t, err)
	}

	// re-initialization truncates channels but never resets the counter
	require.NoError(t, m.Initialize())

	_, err := m.Call(context.Background(), "llm", "generate", nil, time.Second)
	require.NoError(t, err)

	ids := w.seenIDs()
	require.Len(t, ids, 4)
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
}

func TestCallTimeout(t *testing.T) {
	m, paths := newTestManager(t)

	start := time.Now()
	_, err := m.Call(context.Background(), "tts", "synthesize", nil, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)

	// the request stays in the input file; the worker may still pick it up
	in := filepath.Join(paths.dir, "blackbox_tts_in")
	raw, err := os.ReadFile(in)
	require.NoError(t, err)
	var req request
	require.NoError(t, json.Unmarshal(raw, &req))
	assert.Equal(t, "synthesize", req.Method)
}

func TestWorkerErrorSurfaced(t *testing.T) {
	m, paths := newTestManager(t)
	startWorker(t, paths, "llm", func(req request) response {
		return response{ID: req.ID, Error: "model not loaded"}
	})

	_, err := m.Call(context.Background(), "llm", "generate", nil, time.Second)
	require.Error(t, err)

	var workerErr *domain.WorkerError
	require.True(t, errors.As(err, &workerErr))
	assert.Equal(t, "llm", workerErr.Service)
	assert.Equal(t, "model not loaded", workerErr.Message)
}

func TestStaleResponseIgnored(t *testing.T) {
	m, paths := newTestManager(t)
	out := filepath.Join(paths.dir, "blackbox_asr_out")

	// leftover response from an abandoned request
	stale, _ := json.Marshal(response{ID: 999, Result: map[string]any{"text": "stale"}})
	require.NoError(t, os.WriteFile(out, stale, 0o644))

	startWorker(t, paths, "asr", func(req request) response {
		return response{ID: req.ID, Result: map[string]any{"text": "fresh"}}
	})

	result, err := m.Call(context.Background(), "asr", "transcribe", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "fresh", result["text"])
}

func TestPartialWriteAbsorbed(t *testing.T) {
	m, paths := newTestManager(t)
	out := filepath.Join(paths.dir, "blackbox_tts_out")

	go func() {
		time.Sleep(10 * time.Millisecond)
		os.WriteFile(out, []byte(`{"id":`), 0o644) // torn write
		time.Sleep(20 * time.Millisecond)
		payload, _ := json.Marshal(response{ID: 1, Result: map[string]any{"audio_data": "d2F2"}})
		os.WriteFile(out, payload, 0o644)
	}()

	result, err := m.Call(context.Background(), "tts", "synthesize", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "d2F2", result["audio_data"])
}

func TestCallsSerializePerService(t *testing.T) {
	m, paths := newTestManager(t)

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	startWorker(t, paths, "llm", func(req request) response {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return response{ID: req.ID, Result: map[string]any{}}
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Call(context.Background(), "llm", "generate", nil, 2*time.Second)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight)
}

func TestUnknownService(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Call(context.Background(), "vision", "detect", nil, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown service")
}

func TestHealthCheck(t *testing.T) {
	m, paths := newTestManager(t)
	startWorker(t, paths, "asr", func(req request) response {
		assert.Equal(t, "health", req.Method)
		return response{ID: req.ID, Result: map[string]any{"status": "ok"}}
	})

	assert.True(t, m.HealthCheck(context.Background(), "asr"))
	assert.False(t, m.HealthCheck(context.Background(), "vision"))
}

func TestShutdownRemovesChannels(t *testing.T) {
	m, paths := newTestManager(t)
	m.Shutdown()

	for _, svc := range Services {
		in, out := paths.ServicePaths(svc)
		for _, path := range []string{in, out} {
			_, err := os.Stat(path)
			assert.True(t, os.IsNotExist(err))
		}
	}
}
