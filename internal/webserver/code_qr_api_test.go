package webserver

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleWheelCodeQR(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/wheel/code/qr?code=abcd1234&size=128", nil)
	rec := httptest.NewRecorder()
	handleWheelCodeQR(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status mismatch: got=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("content type mismatch: got=%q", got)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatal("response is not a PNG")
	}
}

func TestHandleWheelCodeQR_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing code", ""},
		{"ambiguous characters", "?code=ABC0O1I"},
		{"too long", "?code=ABCDEFGHJKLMNPQRSTUVWXYZ23456789AB"},
		{"size too small", "?code=ABCD&size=10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/wheel/code/qr"+tt.query, nil)
			rec := httptest.NewRecorder()
			handleWheelCodeQR(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status mismatch: got=%d want=%d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}
