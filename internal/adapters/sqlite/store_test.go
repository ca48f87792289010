package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackboxlabs/blackbox/internal/domain"
)

// fastArgon keeps test costs low; production parameters come from config.
var fastArgon = Argon2Params{Time: 1, MemoryKiB: 8, Parallel: 1}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{
		Path:   filepath.Join(t.TempDir(), "test.db"),
		Argon2: fastArgon,
	})
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndGetContext(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendTurn(ctx, "u1", domain.RoleUser, "hello", "sess_1"))
	require.NoError(t, s.AppendTurn(ctx, "u1", domain.RoleAssistant, "hi there", "sess_1"))
	require.NoError(t, s.AppendTurn(ctx, "u2", domain.RoleUser, "other user", "sess_2"))

	turns, err := s.GetContext(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)

	// chronological order, oldest first
	assert.Equal(t, domain.RoleUser, turns[0].Role)
	assert.Equal(t, "hello", turns[0].Content)
	assert.Equal(t, domain.RoleAssistant, turns[1].Role)
	assert.Equal(t, "sess_1", turns[1].SessionID)
}

func TestGetContextLimitKeepsNewest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendTurn(ctx, "u1", domain.RoleUser, strings.Repeat("x", i+1), "s"))
	}

	turns, err := s.GetContext(ctx, "u1", 3)
	require.NoError(t, err)
	require.Len(t, turns, 3)

	// the three newest, still in chronological order with insertion-order
	// tie-breaks when timestamps collide
	assert.Equal(t, "xxx", turns[0].Content)
	assert.Equal(t, "xxxx", turns[1].Content)
	assert.Equal(t, "xxxxx", turns[2].Content)
}

func TestGetContextEmpty(t *testing.T) {
	s := newTestStore(t)

	turns, err := s.GetContext(context.Background(), "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestClearContext(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendTurn(ctx, "u1", domain.RoleUser, "a", "s"))
	require.NoError(t, s.AppendTurn(ctx, "u2", domain.RoleUser, "b", "s"))
	require.NoError(t, s.ClearContext(ctx, "u1"))

	turns, err := s.GetContext(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, turns)

	turns, err = s.GetContext(ctx, "u2", 10)
	require.NoError(t, err)
	assert.Len(t, turns, 1, "other users keep their history")
}

func TestPruneOldTurns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendTurn(ctx, "u1", domain.RoleUser, "recent", "s"))

	// backdate one row past the cutoff
	old := time.Now().UTC().AddDate(0, 0, -31).UnixNano()
	_, err := s.db.Exec(`INSERT INTO messages (user_id, session_id, role, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		"u1", "s", domain.RoleUser, "ancient", old)
	require.NoError(t, err)

	deleted, err := s.PruneOldTurns(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	turns, err := s.GetContext(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "recent", turns[0].Content)
}

func TestReminderLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	later := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	sooner := time.Now().UTC().Add(1 * time.Hour).Truncate(time.Second)

	id1, err := s.CreateReminder(ctx, "u1", "water plants", later, "the ficus too", "")
	require.NoError(t, err)
	id2, err := s.CreateReminder(ctx, "u1", "take medication", sooner, "", "daily")
	require.NoError(t, err)

	active, err := s.ListActiveReminders(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, active, 2)

	// soonest due date first
	assert.Equal(t, id2, active[0].ID)
	assert.Equal(t, "take medication", active[0].Title)
	assert.Equal(t, "daily", active[0].Recurring)
	assert.False(t, active[0].Completed)
	assert.Nil(t, active[0].CompletedAt)
	assert.Equal(t, id1, active[1].ID)

	require.NoError(t, s.CompleteReminder(ctx, id2))

	active, err = s.ListActiveReminders(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, id1, active[0].ID)

	done, err := s.GetReminder(ctx, id2)
	require.NoError(t, err)
	assert.True(t, done.Completed)
	require.NotNil(t, done.CompletedAt, "completed reminders must carry a completion time")
}

func TestCompleteReminderNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.CompleteReminder(context.Background(), 12345)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCompleteReminderTwice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateReminder(ctx, "u1", "once", time.Now().UTC(), "", "")
	require.NoError(t, err)

	require.NoError(t, s.CompleteReminder(ctx, id))
	assert.ErrorIs(t, s.CompleteReminder(ctx, id), domain.ErrNotFound)
}

func TestVaultOpaqueContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	blob := []byte{0x00, 0xff, 0x42, 0x00, 0x7f} // not valid UTF-8, not JSON
	id, err := s.StoreVaultItem(ctx, "u1", "binary secret", blob, "")
	require.NoError(t, err)
	assert.Positive(t, id)

	items, err := s.ListVaultItems(ctx, "u1", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, blob, items[0].Content, "content must round-trip byte for byte")
	assert.Equal(t, domain.VaultCategoryNote, items[0].Category, "empty category defaults to note")
}

func TestVaultCategoryFilterAndOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.StoreVaultItem(ctx, "u1", "first note", []byte("a"), domain.VaultCategoryNote)
	require.NoError(t, err)
	_, err = s.StoreVaultItem(ctx, "u1", "a credential", []byte("b"), domain.VaultCategoryCredential)
	require.NoError(t, err)
	_, err = s.StoreVaultItem(ctx, "u1", "second note", []byte("c"), domain.VaultCategoryNote)
	require.NoError(t, err)

	notes, err := s.ListVaultItems(ctx, "u1", domain.VaultCategoryNote)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	// most recently modified first
	assert.Equal(t, "second note", notes[0].Title)
	assert.Equal(t, "first note", notes[1].Title)

	all, err := s.ListVaultItems(ctx, "u1", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPasswordRoundTrip(t *testing.T) {
	s := newTestStore(t)

	verifier, err := s.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(verifier, "$argon2id$"))
	assert.NotContains(t, verifier, "correct horse")

	assert.True(t, s.VerifyPassword(verifier, "correct horse battery staple"))
	assert.False(t, s.VerifyPassword(verifier, "incorrect horse"))
	assert.False(t, s.VerifyPassword("not-a-verifier", "anything"))
}

func TestPasswordHashesAreSalted(t *testing.T) {
	s := newTestStore(t)

	v1, err := s.HashPassword("same password")
	require.NoError(t, err)
	v2, err := s.HashPassword("same password")
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
	assert.True(t, s.VerifyPassword(v1, "same password"))
	assert.True(t, s.VerifyPassword(v2, "same password"))
}

func TestMediaLibrary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddMediaItem(ctx, &domain.MediaItem{
		UserID: "u1", Title: "Zebra Song", Type: "music", FilePath: "/media/z.opus", Artist: "Band",
	})
	require.NoError(t, err)
	_, err = s.AddMediaItem(ctx, &domain.MediaItem{
		UserID: "u1", Title: "Alpha Film", Type: "video", FilePath: "/media/a.mkv",
	})
	require.NoError(t, err)

	music, err := s.ListMediaItems(ctx, "u1", "music")
	require.NoError(t, err)
	require.Len(t, music, 1)
	assert.Equal(t, "Zebra Song", music[0].Title)

	all, err := s.ListMediaItems(ctx, "u1", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	// alphabetical by title
	assert.Equal(t, "Alpha Film", all[0].Title)
}

func TestLogMetric(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.LogMetric(ctx, "pipeline_total_seconds", 1.234, map[string]any{"session_id": "sess_x"}))
	require.NoError(t, s.LogMetric(ctx, "pipeline_total_seconds", 2.345, nil))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM metrics WHERE metric_type = 'pipeline_total_seconds'`).Scan(&count))
	assert.Equal(t, 2, count)
}
