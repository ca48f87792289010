package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// LogMetric appends one metric sample. Metadata may be nil.
func (s *Store) LogMetric(ctx context.Context, kind string, value float64, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var meta any
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metric metadata: %w", err)
		}
		meta = string(raw)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metrics (metric_type, metric_value, metadata, recorded_at)
		VALUES (?, ?, ?, ?)`,
		kind, value, meta, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("log metric: %w", err)
	}
	return nil
}
