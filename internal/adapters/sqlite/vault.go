package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/blackboxlabs/blackbox/internal/domain"
)

// StoreVaultItem stores an opaque blob in the vault and returns its id.
// Content is written verbatim; the store never inspects it.
func (s *Store) StoreVaultItem(ctx context.Context, userID, title string, content []byte, category string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category == "" {
		category = domain.VaultCategoryNote
	}

	now := time.Now().UTC().UnixNano()
	if err := s.ensureUser(ctx, userID, now); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO vault_items (user_id, title, category, content, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, title, category, content, now, now)
	if err != nil {
		return 0, fmt.Errorf("store vault item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store vault item: %w", err)
	}
	s.log.Info("stored vault item", "id", id, "user_id", userID, "category", category)
	return id, nil
}

// ListVaultItems returns a user's vault items ordered by modified_at
// descending. An empty category means no filter.
func (s *Store) ListVaultItems(ctx context.Context, userID, category string) ([]domain.VaultItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		SELECT id, user_id, title, category, content, created_at, modified_at
		FROM vault_items
		WHERE user_id = ?`
	args := []any{userID}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY modified_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list vault items: %w", err)
	}
	defer rows.Close()

	var items []domain.VaultItem
	for rows.Next() {
		var item domain.VaultItem
		var created, modified int64
		if err := rows.Scan(&item.ID, &item.UserID, &item.Title, &item.Category, &item.Content, &created, &modified); err != nil {
			return nil, fmt.Errorf("scan vault item: %w", err)
		}
		item.CreatedAt = time.Unix(0, created).UTC()
		item.ModifiedAt = time.Unix(0, modified).UTC()
		items = append(items, item)
	}
	return items, rows.Err()
}

// HashPassword derives an Argon2id verifier from a plaintext password.
// The plaintext itself is never stored.
func (s *Store) HashPassword(plain string) (string, error) {
	return s.hasher.Hash(plain)
}

// VerifyPassword checks a plaintext against a stored verifier.
func (s *Store) VerifyPassword(verifier, plain string) bool {
	ok, err := s.hasher.Verify(verifier, plain)
	if err != nil {
		s.log.Warn("malformed password verifier", "error", err)
		return false
	}
	return ok
}
