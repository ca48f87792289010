package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/blackboxlabs/blackbox/internal/domain"
)

// GetContext returns the newest limit turns for a user in chronological
// order. Timestamp ties are broken by insertion order.
func (s *Store) GetContext(ctx context.Context, userID string, limit int) ([]domain.ConversationTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, session_id, role, content, timestamp
		FROM messages
		WHERE user_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("get context: %w", err)
	}
	defer rows.Close()

	var turns []domain.ConversationTurn
	for rows.Next() {
		var t domain.ConversationTurn
		var ts int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.SessionID, &t.Role, &t.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Timestamp = time.Unix(0, ts).UTC()
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first from the query; reverse to chronological.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// AppendTurn appends one turn to a user's history.
func (s *Store) AppendTurn(ctx context.Context, userID, role, content, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().UnixNano()
	if err := s.ensureUser(ctx, userID, now); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (user_id, session_id, role, content, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		userID, sessionID, role, content, now)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// ClearContext deletes a user's conversation history.
func (s *Store) ClearContext(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("clear context: %w", err)
	}
	s.log.Info("cleared context", "user_id", userID)
	return nil
}

// PruneOldTurns deletes turns older than the given number of days and
// returns how many rows were removed.
func (s *Store) PruneOldTurns(ctx context.Context, days int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -days).UnixNano()
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune old turns: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.Info("pruned old turns", "deleted", deleted, "days", days)
	}
	return deleted, nil
}
