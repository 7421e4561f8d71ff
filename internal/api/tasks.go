package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/localrag/localrag/internal/task"
)

// TaskRunner is the slice of the task executor the tasks API needs.
type TaskRunner interface {
	Execute(ctx context.Context, req task.Request) (*task.Task, *task.EventQueue, error)
	Cancel(ctx context.Context, id uuid.UUID) (*task.Task, error)
	Get(ctx context.Context, id uuid.UUID) (*task.Task, error)
}

type tasksHandler struct {
	executor TaskRunner
	logger   *slog.Logger
}

// TaskRequest is the JSON body for submitting a task.
type TaskRequest struct {
	TaskID         string `json:"taskId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Query          string `json:"query"`
}

// TaskView is the JSON shape of a task.
type TaskView struct {
	ID             uuid.UUID `json:"id"`
	ConversationID string    `json:"conversationId"`
	State          string    `json:"state"`
	FailureReason  string    `json:"failureReason,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func viewTask(t *task.Task) TaskView {
	return TaskView{
		ID:             t.ID,
		ConversationID: t.ConversationID,
		State:          string(t.State),
		FailureReason:  t.FailureReason,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

// SSE event names on the task stream.
const (
	eventStatus   = "status"
	eventArtifact = "artifact"
)

// StatusPayload is the data of a "status" SSE event.
type StatusPayload struct {
	TaskID  uuid.UUID `json:"taskId"`
	State   string    `json:"state"`
	Message string    `json:"message,omitempty"`
	Final   bool      `json:"final"`
}

// ArtifactPayload is the data of an "artifact" SSE event.
type ArtifactPayload struct {
	TaskID uuid.UUID `json:"taskId"`
	Text   string    `json:"text"`
}

// submit handles POST /api/v1/tasks. The response is an SSE stream carrying
// status and artifact events until the task reaches a terminal state. The
// task keeps running if the client disconnects; its final state lands in the
// store either way.
func (h *tasksHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", h.logger)
		return
	}

	var taskID uuid.UUID
	if req.TaskID != "" {
		var err error
		if taskID, err = uuid.Parse(req.TaskID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid task id", h.logger)
			return
		}
	}

	t, queue, err := h.executor.Execute(r.Context(), task.Request{
		TaskID:         taskID,
		ConversationID: req.ConversationID,
		Query:          req.Query,
	})
	if err != nil {
		status, code := taskErrorStatus(err)
		writeError(w, status, code, err.Error(), h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		queue.Abandon()
		h.logger.Error("streaming unsupported by response writer")
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming not supported", h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Info("task stream started", "task_id", t.ID, "conversation_id", t.ConversationID)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			// Client left; the executor keeps working to a terminal state.
			queue.Abandon()
			h.logger.Info("task stream client disconnected", "task_id", t.ID)
			return
		case ev, ok := <-queue.Events():
			if !ok {
				return
			}
			if err := h.writeTaskEvent(w, flusher, ev); err != nil {
				queue.Abandon()
				h.logger.Debug("task stream write failed", "task_id", t.ID, "error", err)
				return
			}
		}
	}
}

func (h *tasksHandler) writeTaskEvent(w io.Writer, flusher http.Flusher, ev task.Event) error {
	switch ev.Kind {
	case task.KindArtifact:
		return writeEvent(w, flusher, eventArtifact, ArtifactPayload{
			TaskID: ev.TaskID,
			Text:   ev.Text,
		})
	default:
		return writeEvent(w, flusher, eventStatus, StatusPayload{
			TaskID:  ev.TaskID,
			State:   string(ev.State),
			Message: ev.Message,
			Final:   ev.Final,
		})
	}
}

// get handles GET /api/v1/tasks/{id}.
func (h *tasksHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid task id", h.logger)
		return
	}

	t, err := h.executor.Get(r.Context(), id)
	if err != nil {
		status, code := taskErrorStatus(err)
		writeError(w, status, code, err.Error(), h.logger)
		return
	}
	writeJSON(w, http.StatusOK, viewTask(t), h.logger)
}

// cancel handles POST /api/v1/tasks/{id}/cancel. Canceling a task that
// already finished returns its current state unchanged.
func (h *tasksHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid task id", h.logger)
		return
	}

	t, err := h.executor.Cancel(r.Context(), id)
	if err != nil {
		status, code := taskErrorStatus(err)
		writeError(w, status, code, err.Error(), h.logger)
		return
	}
	writeJSON(w, http.StatusOK, viewTask(t), h.logger)
}

func taskErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, task.ErrInvalidParams):
		return http.StatusBadRequest, "invalid_params"
	case errors.Is(err, task.ErrTaskNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeEvent writes a single SSE event with JSON-encoded data.
// SSE format: "event: <type>\ndata: <json>\n\n"
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	flusher.Flush()
	return nil
}
