package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-identity/harrier/internal/domain"
	"github.com/opensource-identity/harrier/internal/repository"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	store   domain.ObjectStore
	cache   domain.Cache
	bus     domain.EventBus
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, store domain.ObjectStore, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		repo:    repo,
		store:   store,
		cache:   cache,
		bus:     bus,
		version: version,
	}
}

// UploadResponse is the response for POST /uploads.
type UploadResponse struct {
	Key         string `json:"key"`
	IDPEntityID string `json:"idpEntityId"`
	RequestID   string `json:"requestId,omitempty"`
}

// Upload handles POST /uploads requests. The request body is the raw CSV
// file; processing options arrive as query parameters and become object
// tags, so async processing sees exactly what a direct drop into the store
// would carry.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idpEntityID := r.URL.Query().Get(domain.TagIDPEntityID)
	if idpEntityID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "idp query parameter is required",
		})
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = uuid.New().String() + ".csv"
	}
	filename = path.Base(filename)
	if !strings.HasSuffix(strings.ToLower(filename), ".csv") {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "filename must have a .csv extension",
		})
		return
	}

	tags := map[string]string{
		domain.TagIDPEntityID: idpEntityID,
	}
	for _, tag := range []string{domain.TagUsername, domain.TagTimezone, domain.TagDialect, domain.TagHasHeader} {
		if v := r.URL.Query().Get(tag); v != "" {
			tags[tag] = v
		}
	}

	key := "incoming/" + filename

	if err := h.store.Put(ctx, key, r.Body, tags); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": fmt.Sprintf("failed to store upload: %v", err),
		})
		return
	}

	payload, _ := json.Marshal(domain.UploadNotification{Key: key})
	if err := h.bus.Publish(ctx, domain.TopicUploadReceived, payload); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": fmt.Sprintf("failed to queue upload: %v", err),
		})
		return
	}

	writeJSON(w, http.StatusAccepted, UploadResponse{
		Key:         key,
		IDPEntityID: idpEntityID,
		RequestID:   GetTraceID(ctx),
	})
}

// GetSession retrieves an upload session by ID.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "session id must be an integer",
		})
		return
	}

	sess, err := h.repo.GetUploadSession(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "session not found",
		})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load session",
		})
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// ListSessionFailures retrieves the row-failure log for a session.
func (h *Handler) ListSessionFailures(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "session id must be an integer",
		})
		return
	}

	failures, err := h.repo.ListRowFailures(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load failures",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": id,
		"failures":  failures,
		"count":     len(failures),
	})
}

// FraudEventRequest is the request body for POST /fraud-events, seeding the
// audit trail the correlation lookup reads from.
type FraudEventRequest struct {
	EntityID      string `json:"entityId"`
	FraudEventID  string `json:"fraudEventId"`
	SessionID     string `json:"sessionId"`
	HashedPID     string `json:"hashedPid"`
	RequestID     string `json:"requestId"`
	GPG45Status   string `json:"gpg45Status"`
	TransactionID string `json:"transactionId"`
}

// CreateFraudEvent handles POST /fraud-events requests.
func (h *Handler) CreateFraudEvent(w http.ResponseWriter, r *http.Request) {
	var req FraudEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.EntityID == "" || req.FraudEventID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "entityId and fraudEventId are required",
		})
		return
	}

	event := &domain.FraudEvent{
		EventID:       uuid.New().String(),
		Timestamp:     time.Now().UTC(),
		SessionID:     req.SessionID,
		EntityID:      req.EntityID,
		FraudEventID:  req.FraudEventID,
		HashedPID:     req.HashedPID,
		RequestID:     req.RequestID,
		GPG45Status:   req.GPG45Status,
		TransactionID: req.TransactionID,
	}

	if err := h.repo.SaveFraudEvent(r.Context(), event); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to record fraud event",
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"eventId": event.EventID,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
