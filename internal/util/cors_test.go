package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithCORS(t *testing.T) {
	var reached bool
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { reached = true })

	tests := []struct {
		name        string
		origins     []string
		method      string
		origin      string
		wantOrigin  string
		wantReached bool
	}{
		{name: "any origin", method: http.MethodGet, origin: "http://a.test", wantOrigin: "*", wantReached: true},
		{name: "allowed origin", origins: []string{"http://console.test/"}, method: http.MethodGet, origin: "http://console.test", wantOrigin: "http://console.test", wantReached: true},
		{name: "foreign origin", origins: []string{"http://console.test"}, method: http.MethodGet, origin: "http://evil.test", wantReached: true},
		{name: "preflight", method: http.MethodOptions, origin: "http://a.test", wantOrigin: "*"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reached = false
			req := httptest.NewRequest(tc.method, "/api/lists/pumps", nil)
			req.Header.Set("Origin", tc.origin)
			rec := httptest.NewRecorder()
			WithCORS(tc.origins, next).ServeHTTP(rec, req)
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Fatalf("allow origin = %q, want %q", got, tc.wantOrigin)
			}
			if reached != tc.wantReached {
				t.Fatalf("reached = %v", reached)
			}
			if tc.method == http.MethodOptions && rec.Code != http.StatusNoContent {
				t.Fatalf("preflight status = %d", rec.Code)
			}
		})
	}
}
