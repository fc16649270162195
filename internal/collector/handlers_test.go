package collector

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/pagepulse/pagepulse-go/internal/ratelimit"
	"github.com/pagepulse/pagepulse-go/pkg/models"
)

func setupTest(t *testing.T) (*mux.Router, *Storage, string) {
	t.Helper()

	dir := t.TempDir()
	storage, err := NewStorage(filepath.Join(dir, "collector.db"))
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	handler := NewHandler(storage, NewFeed(), filepath.Join(dir, "screenshots"))
	router := handler.SetupRoutes(ratelimit.NewLimiter(600, 60))
	return router, storage, dir
}

func postJSON(t *testing.T, router *mux.Router, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Project-ID", "proj_test")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func validEvent() models.DiscreteEvent {
	return models.DiscreteEvent{
		Type:      models.EventClick,
		Timestamp: time.Now().UnixMilli(),
		URL:       "https://example.com",
		SessionID: "sess_test",
	}
}

func TestHealthz(t *testing.T) {
	router, _, _ := setupTest(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestTrackStoresEvent(t *testing.T) {
	router, storage, _ := setupTest(t)

	w := postJSON(t, router, "/v1/track", validEvent())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp models.TrackResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response: %v", err)
	}
	if !resp.Success || resp.EventID == "" {
		t.Errorf("Unexpected response: %+v", resp)
	}

	n, err := storage.CountEvents("sess_test")
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 stored event, got %d", n)
	}
}

func TestTrackRejectsUnknownType(t *testing.T) {
	router, _, _ := setupTest(t)

	event := validEvent()
	event.Type = "hover"
	if w := postJSON(t, router, "/v1/track", event); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown type, got %d", w.Code)
	}
}

func TestBatchSplitsValidAndInvalid(t *testing.T) {
	router, storage, _ := setupTest(t)

	bad := validEvent()
	bad.Timestamp = 0
	w := postJSON(t, router, "/v1/batch", []models.DiscreteEvent{validEvent(), bad, validEvent()})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp models.BatchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response: %v", err)
	}
	if resp.Success || resp.Processed != 2 || resp.Failed != 1 || len(resp.Errors) != 1 {
		t.Errorf("Unexpected response: %+v", resp)
	}

	n, _ := storage.CountEvents("")
	if n != 2 {
		t.Errorf("Expected 2 stored events, got %d", n)
	}
}

func TestSessionLifecycle(t *testing.T) {
	router, _, _ := setupTest(t)

	w := postJSON(t, router, "/v1/session/start", models.SessionStartRequest{
		SessionID: "sess_life",
		User:      models.UserInfo{AnonymousID: "anon_1"},
		Context:   models.SessionContext{URL: "https://example.com"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Session start: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp models.SessionStartResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response: %v", err)
	}
	if !resp.Success || resp.SessionID != "sess_life" || resp.ExpiresAt == 0 {
		t.Errorf("Unexpected response: %+v", resp)
	}

	// Duplicate starts are tolerated
	if w := postJSON(t, router, "/v1/session/start", models.SessionStartRequest{SessionID: "sess_life"}); w.Code != http.StatusOK {
		t.Errorf("Duplicate session start: expected 200, got %d", w.Code)
	}

	if w := postJSON(t, router, "/v1/session/end", models.SessionEndRequest{
		SessionID: "sess_life", Duration: 60000, PageViews: 3, Interactions: 7,
	}); w.Code != http.StatusOK {
		t.Errorf("Session end: expected 200, got %d", w.Code)
	}
}

func TestSessionStartRequiresID(t *testing.T) {
	router, _, _ := setupTest(t)

	if w := postJSON(t, router, "/v1/session/start", models.SessionStartRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing session id, got %d", w.Code)
	}
}

func multipartBatch(t *testing.T, fields map[string]string, screenshot []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			t.Fatalf("WriteField failed: %v", err)
		}
	}
	if screenshot != nil {
		part, err := w.CreateFormFile("screenshot", "client-name.png")
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		part.Write(screenshot)
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestInteractionBatchStored(t *testing.T) {
	router, storage, dir := setupTest(t)

	coords, _ := json.Marshal([]models.Coordinate{
		{Timestamp: 1100, ClientX: 1, ClientY: 2},
		{Timestamp: 1200, ClientX: 3, ClientY: 4},
	})
	body, contentType := multipartBatch(t, map[string]string{
		"sessionId":       "sess_batch",
		"url":             "https://example.com",
		"batchStartTime":  "1000",
		"batchEndTime":    "2000",
		"pointerData":     string(coords),
		"coordinateCount": "2",
	}, []byte{0x89, 0x50, 0x4e, 0x47})

	req := httptest.NewRequest("POST", "/v1/interaction-batch", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	n, err := storage.CountBatches("sess_batch")
	if err != nil {
		t.Fatalf("CountBatches failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 stored batch, got %d", n)
	}

	// The screenshot lands on disk under a server-generated name
	entries, err := os.ReadDir(filepath.Join(dir, "screenshots"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("Expected 1 saved screenshot, got %v (%v)", entries, err)
	}
	if entries[0].Name() == "client-name.png" {
		t.Error("Screenshot stored under the client-supplied name")
	}
	if !strings.HasSuffix(entries[0].Name(), ".png") {
		t.Errorf("Unexpected screenshot name %q", entries[0].Name())
	}
}

func TestInteractionBatchRejectsBadWindows(t *testing.T) {
	router, _, _ := setupTest(t)

	body, contentType := multipartBatch(t, map[string]string{
		"sessionId":      "sess_bad",
		"batchStartTime": "2000",
		"batchEndTime":   "1000",
	}, nil)
	req := httptest.NewRequest("POST", "/v1/interaction-batch", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an inverted window, got %d", w.Code)
	}
}

func TestInteractionBatchRejectsCountMismatch(t *testing.T) {
	router, _, _ := setupTest(t)

	coords, _ := json.Marshal([]models.Coordinate{{Timestamp: 1}})
	body, contentType := multipartBatch(t, map[string]string{
		"sessionId":       "sess_bad",
		"batchStartTime":  "1000",
		"batchEndTime":    "2000",
		"pointerData":     string(coords),
		"coordinateCount": "5",
	}, nil)
	req := httptest.NewRequest("POST", "/v1/interaction-batch", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a count mismatch, got %d", w.Code)
	}
}

func TestRateLimitRejectsOverBudget(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewStorage(filepath.Join(dir, "collector.db"))
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	handler := NewHandler(storage, NewFeed(), dir)
	router := handler.SetupRoutes(ratelimit.NewLimiter(60, 2))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = postJSON(t, router, "/v1/track", validEvent())
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 beyond the burst, got %d", last.Code)
	}
	if got := last.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("Expected X-RateLimit-Remaining 0, got %q", got)
	}

	// Session bookkeeping is not limited
	for i := 0; i < 5; i++ {
		if w := postJSON(t, router, "/v1/session/end", models.SessionEndRequest{SessionID: "s"}); w.Code != http.StatusOK {
			t.Fatalf("Session end throttled: %d", w.Code)
		}
	}
}

func TestCORSHeaders(t *testing.T) {
	router, _, _ := setupTest(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Missing CORS header, got %q", got)
	}
}
