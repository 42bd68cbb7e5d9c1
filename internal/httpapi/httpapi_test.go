package httpapi

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/fixmate/fixmate/internal/session"
)

func TestHealth(t *testing.T) {
	mux := NewMux(session.NewHandler(session.Deps{}, session.Config{}))

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body["ok"] {
		t.Errorf("body = %v, want ok:true", body)
	}
}

func TestDebug(t *testing.T) {
	mux := NewMux(session.NewHandler(session.Deps{}, session.Config{}))

	req := httptest.NewRequest("GET", "/debug", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var info DebugInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.SessionCount != 0 {
		t.Errorf("sessionCount = %d, want 0", info.SessionCount)
	}
}
