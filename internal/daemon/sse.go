package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"docforge/internal/logging"
	"docforge/internal/progress"
	"docforge/internal/services"
)

// handleJobEvents streams a job's progress as server-sent events. A
// snapshot of current state arrives first; the stream ends after a
// terminal event. Subscribing to a finished job delivers the terminal
// snapshot and ends immediately. Clients that reconnect simply
// subscribe again.
func (s *apiServer) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	status, err := s.daemon.gateway.GetStatus(r.Context(), requestUser(r), jobID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, services.Classified{
			Code: services.CodeInternal, Message: "streaming unsupported",
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(event progress.Event) {
		payload, err := json.Marshal(event)
		if err != nil {
			s.logger.Warn("progress event encode failed",
				logging.String(logging.FieldJobID, jobID),
				logging.Error(err))
			return
		}
		fmt.Fprintf(w, "event: progress\ndata: %s\n\n", payload)
		flusher.Flush()
	}
	end := func() {
		fmt.Fprint(w, "event: end\ndata: {}\n\n")
		flusher.Flush()
	}

	snapshot := progress.Event{
		JobID:           jobID,
		Status:          status.Status,
		Stage:           status.CurrentStage,
		StageProgress:   status.StageProgress,
		OverallProgress: status.OverallProgress,
		Message:         status.Message,
		Timestamp:       time.Now().UTC(),
	}
	if status.Error != nil {
		snapshot.ErrorCode = status.Error.Code
	}

	// A job that already reached a terminal state never publishes
	// again; deliver the snapshot and finish without subscribing.
	if status.Status.IsTerminal() {
		emit(snapshot)
		end()
		return
	}

	sub := s.daemon.hub.Subscribe(jobID)
	defer sub.Unsubscribe()

	// The hub's own snapshot, when it has one, is at least as fresh as
	// the status read; only fall back to the read when the hub has not
	// seen the job yet.
	select {
	case event, open := <-sub.Events():
		if !open {
			end()
			return
		}
		emit(event)
	default:
		emit(snapshot)
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-sub.Events():
			if !open {
				end()
				return
			}
			emit(event)
		}
	}
}
