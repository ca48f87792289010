package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/blackboxlabs/blackbox/internal/domain"
	"github.com/blackboxlabs/blackbox/internal/ports"
)

// StoreHandler serves the context, reminder and vault endpoints.
type StoreHandler struct {
	store       ports.ContextStore
	defaultUser string
}

func NewStoreHandler(store ports.ContextStore, defaultUser string) *StoreHandler {
	return &StoreHandler{store: store, defaultUser: defaultUser}
}

const defaultContextLimit = 50

func (h *StoreHandler) userID(r *http.Request) string {
	if u := r.URL.Query().Get("user_id"); u != "" {
		return u
	}
	return h.defaultUser
}

// GetContext returns a user's recent conversation turns, oldest first.
func (h *StoreHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	limit := defaultContextLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	turns, err := h.store.GetContext(r.Context(), h.userID(r), limit)
	if err != nil {
		respondError(w, "failed to get context", http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []domain.ConversationTurn{}
	}
	respondJSON(w, map[string]any{"context": turns}, http.StatusOK)
}

// ClearContext deletes a user's conversation history.
func (h *StoreHandler) ClearContext(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearContext(r.Context(), h.userID(r)); err != nil {
		respondError(w, "failed to clear context", http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]string{"status": "cleared"}, http.StatusOK)
}

// ListReminders returns the user's pending reminders, soonest first.
func (h *StoreHandler) ListReminders(w http.ResponseWriter, r *http.Request) {
	reminders, err := h.store.ListActiveReminders(r.Context(), h.userID(r))
	if err != nil {
		respondError(w, "failed to list reminders", http.StatusInternalServerError)
		return
	}
	if reminders == nil {
		reminders = []domain.Reminder{}
	}
	respondJSON(w, map[string]any{"reminders": reminders}, http.StatusOK)
}

type createReminderRequest struct {
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
	Recurring   string `json:"recurring"`
}

// CreateReminder creates a reminder directly, bypassing the voice path.
func (h *StoreHandler) CreateReminder(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[createReminderRequest](r, w)
	if !ok {
		return
	}
	if req.Title == "" {
		respondError(w, "title is required", http.StatusBadRequest)
		return
	}
	dueDate, err := time.Parse(time.RFC3339, req.DueDate)
	if err != nil {
		respondError(w, "due_date must be RFC 3339", http.StatusBadRequest)
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = h.defaultUser
	}

	id, err := h.store.CreateReminder(r.Context(), userID, req.Title, dueDate, req.Description, req.Recurring)
	if err != nil {
		respondError(w, "failed to create reminder", http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]int64{"id": id}, http.StatusCreated)
}

// CompleteReminder marks a reminder done.
func (h *StoreHandler) CompleteReminder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, "invalid reminder id", http.StatusBadRequest)
		return
	}

	if err := h.store.CompleteReminder(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, "reminder not found", http.StatusNotFound)
			return
		}
		respondError(w, "failed to complete reminder", http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]string{"status": "completed"}, http.StatusOK)
}

// ListVaultItems returns vault items, optionally filtered by category.
// Contents are returned verbatim; the server never interprets them.
func (h *StoreHandler) ListVaultItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListVaultItems(r.Context(), h.userID(r), r.URL.Query().Get("category"))
	if err != nil {
		respondError(w, "failed to list vault items", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []domain.VaultItem{}
	}
	respondJSON(w, map[string]any{"items": items}, http.StatusOK)
}

type storeVaultItemRequest struct {
	UserID   string `json:"user_id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Content  []byte `json:"content"` // base64 in JSON
}

// StoreVaultItem stores one opaque vault blob.
func (h *StoreHandler) StoreVaultItem(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[storeVaultItemRequest](r, w)
	if !ok {
		return
	}
	if req.Title == "" {
		respondError(w, "title is required", http.StatusBadRequest)
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = h.defaultUser
	}

	id, err := h.store.StoreVaultItem(r.Context(), userID, req.Title, req.Content, req.Category)
	if err != nil {
		respondError(w, "failed to store vault item", http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]int64{"id": id}, http.StatusCreated)
}
