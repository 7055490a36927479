package httputil

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/colour.registry/internal/monitoring"
)

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		msg    string
	}{
		{"custom", func(w http.ResponseWriter) { WriteJSONError(w, http.StatusTeapot, "short and stout") }, http.StatusTeapot, "short and stout"},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "bad sample") }, http.StatusBadRequest, "bad sample"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "unknown anchor 7") }, http.StatusNotFound, "unknown anchor 7"},
		{"conflict", func(w http.ResponseWriter) { Conflict(w, "anchor is locked") }, http.StatusConflict, "anchor is locked"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "save failed") }, http.StatusInternalServerError, "save failed"},
		{"method", MethodNotAllowed, http.StatusMethodNotAllowed, "method not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content-type = %s, want application/json", ct)
			}
			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["error"] != tt.msg {
				t.Errorf("error = %q, want %q", resp["error"], tt.msg)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"color_id": 5})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	var resp map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["color_id"] != 5 {
		t.Errorf("color_id = %d, want 5", resp["color_id"])
	}

	ok := httptest.NewRecorder()
	WriteJSONOK(ok, []int{1, 2})
	if ok.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", ok.Code)
	}
}

func TestWriteJSON_EncodeFailureIsLogged(t *testing.T) {
	original := monitoring.Logf
	defer func() { monitoring.Logf = original }()
	var logged int
	monitoring.SetLogger(func(string, ...interface{}) { logged++ })

	WriteJSON(httptest.NewRecorder(), http.StatusOK, math.NaN())
	if logged != 1 {
		t.Errorf("expected one log line, got %d", logged)
	}
}
