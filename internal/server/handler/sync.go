package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	s3blob "github.com/alanyoungcy/stx20sync/internal/blob/s3"
	"github.com/alanyoungcy/stx20sync/internal/domain"
	"github.com/alanyoungcy/stx20sync/internal/pipeline"
)

// SyncController is the live orchestrator, present only when this process
// runs the sync loop.
type SyncController interface {
	Status() pipeline.Status
	Trigger() bool
}

// CycleHistory reads recent cycle reports from the signal stream.
type CycleHistory interface {
	StreamRecent(ctx context.Context, stream string, count int) ([]domain.StreamMessage, error)
}

// ArchiveBrowser reads archived cycles from object storage.
type ArchiveBrowser interface {
	ListDay(ctx context.Context, day time.Time) ([]domain.BlobInfo, error)
	Load(ctx context.Context, path string) (s3blob.CycleArchive, error)
}

// SyncHandler serves sync status, manual triggers and cycle history. Any of
// its dependencies may be nil; the matching endpoints then answer 503.
type SyncHandler struct {
	ctrl    SyncController
	history CycleHistory
	archive ArchiveBrowser
	logger  *slog.Logger
}

func NewSyncHandler(ctrl SyncController, history CycleHistory, archive ArchiveBrowser, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{ctrl: ctrl, history: history, archive: archive, logger: logger}
}

// GetStatus returns the orchestrator status.
// GET /api/sync/status
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.ctrl == nil {
		writeError(w, http.StatusServiceUnavailable, "sync is not running in this process")
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Status())
}

// TriggerSync enqueues one cycle. A trigger arriving while one is already
// pending is folded into it.
// POST /api/sync/trigger
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.ctrl == nil {
		writeError(w, http.StatusServiceUnavailable, "sync is not running in this process")
		return
	}
	queued := h.ctrl.Trigger()
	h.logger.InfoContext(r.Context(), "handler: sync trigger requested", slog.Bool("queued", queued))

	msg := "sync cycle enqueued"
	if !queued {
		msg = "a sync cycle is already pending"
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"queued":       queued,
		"message":      msg,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// ListHistory returns the latest cycle reports, newest first.
// GET /api/sync/history?limit=20
func (h *SyncHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "cycle history is not enabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxLimit {
			limit = n
		}
	}

	msgs, err := h.history.StreamRecent(r.Context(), pipeline.CycleStream, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read cycle history failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read cycle history")
		return
	}

	reports := make([]domain.CycleReport, 0, len(msgs))
	for _, m := range msgs {
		var rep domain.CycleReport
		if err := json.Unmarshal(m.Payload, &rep); err != nil {
			continue
		}
		reports = append(reports, rep)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": reports})
}

// ListArchive lists archived cycles of one UTC day (default today), or
// returns one archive when path is given.
// GET /api/sync/archive?date=2026-03-01
// GET /api/sync/archive?path=snapshots/2026/03/01/<id>.json
func (h *SyncHandler) ListArchive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot archive is not enabled")
		return
	}
	q := r.URL.Query()

	if path := q.Get("path"); path != "" {
		doc, err := h.archive.Load(r.Context(), path)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "archive not found")
				return
			}
			h.logger.ErrorContext(r.Context(), "handler: load archive failed",
				slog.String("archive", path),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to load archive")
			return
		}
		writeJSON(w, http.StatusOK, doc)
		return
	}

	day := time.Now().UTC()
	if v := q.Get("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = d
	}

	infos, err := h.archive.ListDay(r.Context(), day)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archive failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list archive")
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": day.Format(time.DateOnly), "data": infos})
}
