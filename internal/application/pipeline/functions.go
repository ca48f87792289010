package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blackboxlabs/blackbox/internal/domain"
	"github.com/blackboxlabs/blackbox/internal/ports"
)

// FunctionHandler executes one side-effect request from the LLM.
type FunctionHandler func(ctx context.Context, userID string, args map[string]any) error

// Registry maps function-call names to handlers so new intents can be
// added without touching the coordinator.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]FunctionHandler
	log      *slog.Logger
}

// NewRegistry builds a registry with the built-in handlers bound to store.
func NewRegistry(store ports.ContextStore) *Registry {
	r := &Registry{
		handlers: make(map[string]FunctionHandler),
		log:      slog.With("component", "functions"),
	}
	r.Register("set_reminder", setReminderHandler(store))
	r.Register("access_vault", r.accessVaultHandler)
	r.Register("play_media", r.playMediaHandler)
	return r
}

// Register binds a handler to a function-call name, replacing any
// existing binding.
func (r *Registry) Register(name string, fn FunctionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
}

// Dispatch executes each call in order. Unknown names and handler errors
// are logged and never fail the pipeline.
func (r *Registry) Dispatch(ctx context.Context, userID string, calls []domain.FunctionCall) {
	for _, call := range calls {
		r.mu.RLock()
		handler, ok := r.handlers[call.Name]
		r.mu.RUnlock()

		if !ok {
			r.log.Warn("unknown function call", "name", call.Name, "user_id", userID)
			continue
		}

		r.log.Info("executing function", "name", call.Name, "user_id", userID)
		if err := handler(ctx, userID, call.Arguments); err != nil {
			r.log.Error("function execution failed", "name", call.Name, "user_id", userID, "error", err)
		}
	}
}

func setReminderHandler(store ports.ContextStore) FunctionHandler {
	return func(ctx context.Context, userID string, args map[string]any) error {
		title, _ := args["title"].(string)
		if title == "" {
			return fmt.Errorf("set_reminder: title is required")
		}

		rawDue, _ := args["due_date"].(string)
		if rawDue == "" {
			return fmt.Errorf("set_reminder: due_date is required")
		}
		dueDate, err := parseDueDate(rawDue)
		if err != nil {
			return fmt.Errorf("set_reminder: %w", err)
		}

		description, _ := args["description"].(string)
		recurring, _ := args["recurring"].(string)

		_, err = store.CreateReminder(ctx, userID, title, dueDate, description, recurring)
		return err
	}
}

func parseDueDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable due_date %q", raw)
}

// accessVaultHandler only acknowledges the request; vault reads go through
// the authenticated HTTP surface, not the voice path.
func (r *Registry) accessVaultHandler(_ context.Context, userID string, _ map[string]any) error {
	r.log.Info("vault access requested", "user_id", userID)
	return nil
}

func (r *Registry) playMediaHandler(_ context.Context, userID string, args map[string]any) error {
	r.log.Info("media playback requested", "user_id", userID, "arguments", args)
	return nil
}
