package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/blackboxlabs/blackbox/internal/domain"
)

// AddMediaItem registers a media file in the library and returns its id.
func (s *Store) AddMediaItem(ctx context.Context, item *domain.MediaItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().UnixNano()
	if err := s.ensureUser(ctx, item.UserID, now); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO media_items (user_id, title, type, file_path, duration_seconds, artist, album)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.UserID, item.Title, item.Type, item.FilePath, item.DurationSecs, item.Artist, item.Album)
	if err != nil {
		return 0, fmt.Errorf("add media item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add media item: %w", err)
	}
	return id, nil
}

// ListMediaItems returns a user's media library ordered by title. An empty
// mediaType means no filter.
func (s *Store) ListMediaItems(ctx context.Context, userID, mediaType string) ([]domain.MediaItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		SELECT id, user_id, title, type, file_path, COALESCE(duration_seconds, 0), artist, album
		FROM media_items
		WHERE user_id = ?`
	args := []any{userID}
	if mediaType != "" {
		query += ` AND type = ?`
		args = append(args, mediaType)
	}
	query += ` ORDER BY title`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list media items: %w", err)
	}
	defer rows.Close()

	var items []domain.MediaItem
	for rows.Next() {
		var item domain.MediaItem
		if err := rows.Scan(&item.ID, &item.UserID, &item.Title, &item.Type, &item.FilePath, &item.DurationSecs, &item.Artist, &item.Album); err != nil {
			return nil, fmt.Errorf("scan media item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
