// Package collector is a local ingestion server for the PagePulse SDK:
// it implements the SDK's wire surface, persists telemetry to SQLite,
// and mirrors everything onto a live WebSocket feed for debugging.
package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pagepulse/pagepulse-go/pkg/models"
)

// maxUploadSize bounds one interaction-batch upload
const maxUploadSize = 32 << 20 // 32MB

// Handler holds dependencies for the HTTP handlers
type Handler struct {
	storage       *Storage
	feed          *Feed
	screenshotDir string
}

// NewHandler creates the collector handler set
func NewHandler(storage *Storage, feed *Feed, screenshotDir string) *Handler {
	return &Handler{
		storage:       storage,
		feed:          feed,
		screenshotDir: screenshotDir,
	}
}

// HandleHealthz handles GET /healthz
func (h *Handler) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

// HandleSessionStart handles POST /v1/session/start
func (h *Handler) HandleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req models.SessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}

	now := time.Now()
	if err := h.storage.StartSession(projectID(r), req, now.UnixMilli()); err != nil {
		log.Printf("collector: failed to store session start: %v", err)
		http.Error(w, "Failed to store session", http.StatusInternalServerError)
		return
	}

	h.feed.Broadcast(FeedMessage{
		Kind:      "session_start",
		ProjectID: projectID(r),
		SessionID: req.SessionID,
		Summary:   fmt.Sprintf("session started from %s", req.Context.URL),
		At:        now.UnixMilli(),
	})

	writeJSON(w, http.StatusOK, models.SessionStartResponse{
		Success:   true,
		SessionID: req.SessionID,
		ExpiresAt: now.Add(30 * time.Minute).UnixMilli(),
	})
}

// HandleSessionEnd handles POST /v1/session/end
func (h *Handler) HandleSessionEnd(w http.ResponseWriter, r *http.Request) {
	var req models.SessionEndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now()
	if err := h.storage.EndSession(req, now.UnixMilli()); err != nil {
		log.Printf("collector: failed to store session end: %v", err)
		http.Error(w, "Failed to store session end", http.StatusInternalServerError)
		return
	}

	h.feed.Broadcast(FeedMessage{
		Kind:      "session_end",
		SessionID: req.SessionID,
		Summary: fmt.Sprintf("session ended after %dms, %d page views, %d interactions",
			req.Duration, req.PageViews, req.Interactions),
		At: now.UnixMilli(),
	})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleTrack handles POST /v1/track (single event)
func (h *Handler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	var event models.DiscreteEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.storage.ValidateEvent(event); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.storage.InsertEvents(projectID(r), []models.DiscreteEvent{event}); err != nil {
		log.Printf("collector: failed to store event: %v", err)
		http.Error(w, "Failed to store event", http.StatusInternalServerError)
		return
	}

	h.broadcastEvent(projectID(r), event)
	writeJSON(w, http.StatusOK, models.TrackResponse{
		Success: true,
		EventID: uuid.New().String(),
	})
}

// HandleBatch handles POST /v1/batch (array of events)
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	var events []models.DiscreteEvent
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(events) == 0 {
		writeJSON(w, http.StatusOK, models.BatchResponse{Success: true})
		return
	}

	valid := make([]models.DiscreteEvent, 0, len(events))
	var errs []string
	for i, event := range events {
		if err := h.storage.ValidateEvent(event); err != nil {
			errs = append(errs, fmt.Sprintf("event %d: %v", i, err))
			continue
		}
		valid = append(valid, event)
	}

	if len(valid) > 0 {
		if err := h.storage.InsertEvents(projectID(r), valid); err != nil {
			log.Printf("collector: failed to store event batch: %v", err)
			http.Error(w, "Failed to store events", http.StatusInternalServerError)
			return
		}
		for _, event := range valid {
			h.broadcastEvent(projectID(r), event)
		}
	}

	writeJSON(w, http.StatusOK, models.BatchResponse{
		Success:   len(errs) == 0,
		Processed: len(valid),
		Failed:    len(errs),
		Errors:    errs,
	})
}

// HandleInteractionBatch handles POST /v1/interaction-batch (multipart)
func (h *Handler) HandleInteractionBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "Invalid multipart body: "+err.Error(), http.StatusBadRequest)
		return
	}

	batch := models.Batch{
		SessionID:   r.FormValue("sessionId"),
		URL:         r.FormValue("url"),
		Site:        r.FormValue("site"),
		Hostname:    r.FormValue("hostname"),
		Environment: r.FormValue("environment"),
	}
	if batch.SessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}
	batch.WindowStart, _ = strconv.ParseInt(r.FormValue("batchStartTime"), 10, 64)
	batch.WindowEnd, _ = strconv.ParseInt(r.FormValue("batchEndTime"), 10, 64)
	if batch.WindowStart > batch.WindowEnd {
		http.Error(w, "batch window is inverted", http.StatusBadRequest)
		return
	}

	if raw := r.FormValue("pointerData"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &batch.Coordinates); err != nil {
			http.Error(w, "Invalid pointerData: "+err.Error(), http.StatusBadRequest)
			return
		}
		if countRaw := r.FormValue("coordinateCount"); countRaw != "" {
			count, err := strconv.Atoi(countRaw)
			if err != nil || count != len(batch.Coordinates) {
				http.Error(w, "coordinateCount does not match pointerData", http.StatusBadRequest)
				return
			}
		}
	}

	screenshotFilename, err := h.saveScreenshot(r)
	if err != nil {
		log.Printf("collector: failed to save screenshot: %v", err)
		http.Error(w, "Failed to save screenshot", http.StatusInternalServerError)
		return
	}

	if err := h.storage.InsertBatch(projectID(r), &batch, screenshotFilename); err != nil {
		log.Printf("collector: failed to store batch: %v", err)
		http.Error(w, "Failed to store batch", http.StatusInternalServerError)
		return
	}

	h.feed.Broadcast(FeedMessage{
		Kind:      "batch",
		ProjectID: projectID(r),
		SessionID: batch.SessionID,
		Summary: fmt.Sprintf("interaction batch: %d coordinates, screenshot=%t",
			len(batch.Coordinates), screenshotFilename != ""),
		At: time.Now().UnixMilli(),
	})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// saveScreenshot writes the uploaded screenshot, if any, to the data dir.
// The stored name is server-generated; the client filename is untrusted.
func (h *Handler) saveScreenshot(r *http.Request) (string, error) {
	file, _, err := r.FormFile("screenshot")
	if err != nil {
		if err == http.ErrMissingFile {
			return "", nil
		}
		return "", err
	}
	defer file.Close()

	if err := os.MkdirAll(h.screenshotDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s.png", uuid.New().String())
	out, err := os.Create(filepath.Join(h.screenshotDir, name))
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		return "", err
	}
	return name, nil
}

func (h *Handler) broadcastEvent(project string, event models.DiscreteEvent) {
	summary := string(event.Type)
	if event.Name != "" {
		summary += " " + event.Name
	}
	h.feed.Broadcast(FeedMessage{
		Kind:      "event",
		ProjectID: project,
		SessionID: event.SessionID,
		Summary:   summary,
		At:        event.Timestamp,
	})
}

// projectID extracts the tenant key from the request
func projectID(r *http.Request) string {
	if id := r.URL.Query().Get("projectId"); id != "" {
		return id
	}
	return r.Header.Get("X-Project-ID")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
