package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusRecorderCapturesExplicitStatus(t *testing.T) {
	handler := Logging(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 passed through, got %d", rec.Code)
	}
}

func TestStatusRecorderDefaultsToOKOnImplicitWrite(t *testing.T) {
	recorded := 0
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(`{}`)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		sr, ok := w.(*statusRecorder)
		if !ok {
			t.Fatal("expected the logging wrapper to wrap the writer")
		}
		recorded = sr.status
	})

	rec := httptest.NewRecorder()
	Logging(nil)(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if recorded != http.StatusOK {
		t.Fatalf("expected implicit 200 to be recorded, got %d", recorded)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
