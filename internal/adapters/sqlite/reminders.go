package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blackboxlabs/blackbox/internal/domain"
)

// CreateReminder inserts a reminder and returns its id.
func (s *Store) CreateReminder(ctx context.Context, userID, title string, dueDate time.Time, description, recurring string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().UnixNano()
	if err := s.ensureUser(ctx, userID, now); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (user_id, title, description, due_date, recurring, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, title, description, dueDate.UTC().UnixNano(), recurring, now)
	if err != nil {
		return 0, fmt.Errorf("create reminder: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create reminder: %w", err)
	}
	s.log.Info("created reminder", "id", id, "user_id", userID, "title", title)
	return id, nil
}

// ListActiveReminders returns a user's incomplete reminders ordered by due
// date ascending.
func (s *Store) ListActiveReminders(ctx context.Context, userID string) ([]domain.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, description, due_date, recurring, completed, completed_at, created_at
		FROM reminders
		WHERE user_id = ? AND completed = 0
		ORDER BY due_date ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list active reminders: %w", err)
	}
	defer rows.Close()

	return scanReminders(rows)
}

// GetReminder retrieves one reminder by id.
func (s *Store) GetReminder(ctx context.Context, id int64) (*domain.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, description, due_date, recurring, completed, completed_at, created_at
		FROM reminders WHERE id = ?`, id)

	r, err := scanReminder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return r, nil
}

// CompleteReminder marks a reminder done and stamps completed_at, keeping
// the completed/completed_at invariant in one statement.
func (s *Store) CompleteReminder(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET completed = 1, completed_at = ?
		WHERE id = ? AND completed = 0`,
		time.Now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("complete reminder: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	s.log.Info("completed reminder", "id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*domain.Reminder, error) {
	var r domain.Reminder
	var due, created int64
	var completed int
	var completedAt *int64
	if err := row.Scan(&r.ID, &r.UserID, &r.Title, &r.Description, &due, &r.Recurring, &completed, &completedAt, &created); err != nil {
		return nil, err
	}
	r.DueDate = time.Unix(0, due).UTC()
	r.CreatedAt = time.Unix(0, created).UTC()
	r.Completed = completed != 0
	if completedAt != nil {
		t := time.Unix(0, *completedAt).UTC()
		r.CompletedAt = &t
	}
	return &r, nil
}

func scanReminders(rows *sql.Rows) ([]domain.Reminder, error) {
	var reminders []domain.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		reminders = append(reminders, *r)
	}
	return reminders, rows.Err()
}
