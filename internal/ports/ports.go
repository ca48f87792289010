// Package ports defines the interfaces the pipeline coordinator composes.
// Adapters implement them; tests substitute fakes.
package ports

import (
	"context"
	"time"

	"github.com/blackboxlabs/blackbox/internal/domain"
)

// Transport is the request/response channel to the inference workers.
type Transport interface {
	// Call sends method+data to the named service and blocks until the
	// correlated response arrives or the deadline expires. At most one
	// call per service is in flight at a time.
	Call(ctx context.Context, service, method string, data map[string]any, timeout time.Duration) (map[string]any, error)

	// HealthCheck reports whether the service answers its health method.
	HealthCheck(ctx context.Context, service string) bool
}

// ThermalMonitor exposes the thermal state machine to the coordinator.
type ThermalMonitor interface {
	ShouldThrottle() bool
	Status() domain.ThermalStatus
	RegisterCallback(state domain.ThermalState, fn func(domain.ThermalState, map[string]float64))

	// TriggerCooldown forces the Cooldown state. It is the only exit
	// from Critical.
	TriggerCooldown()
}

// ContextStore is the synchronous persistence surface used by the core.
type ContextStore interface {
	GetContext(ctx context.Context, userID string, limit int) ([]domain.ConversationTurn, error)
	AppendTurn(ctx context.Context, userID, role, content, sessionID string) error
	ClearContext(ctx context.Context, userID string) error

	CreateReminder(ctx context.Context, userID, title string, dueDate time.Time, description, recurring string) (int64, error)
	ListActiveReminders(ctx context.Context, userID string) ([]domain.Reminder, error)
	CompleteReminder(ctx context.Context, id int64) error

	StoreVaultItem(ctx context.Context, userID, title string, content []byte, category string) (int64, error)
	ListVaultItems(ctx context.Context, userID, category string) ([]domain.VaultItem, error)

	LogMetric(ctx context.Context, kind string, value float64, metadata map[string]any) error
}
