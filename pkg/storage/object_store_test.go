package storage

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := ReportPDFKey("r1", "report.pdf")
	if err := store.Put(ctx, key, bytes.NewReader([]byte("%PDF-1.4")), 8, "application/pdf"); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, ct, err := store.Get(key)
	if err != nil || string(data) != "%PDF-1.4" || ct != "application/pdf" {
		t.Fatalf("get = %q %q %v", data, ct, err)
	}
	u, err := store.PresignGet(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.HasPrefix(u, "memory:///service-reports/r1/report.pdf?expires=") {
		t.Fatalf("unexpected url %q", u)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.PresignGet(ctx, key, time.Minute); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReportPDFKey(t *testing.T) {
	cases := map[string]struct {
		id, filename, want string
	}{
		"plain":      {"r1", "report.pdf", "service-reports/r1/report.pdf"},
		"path":       {"r1", "../../etc/passwd", "service-reports/r1/passwd"},
		"windows":    {"r1", `C:\tmp\x.pdf`, "service-reports/r1/x.pdf"},
		"empty name": {"r2", "", "service-reports/r2/service_report_r2.pdf"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := ReportPDFKey(tc.id, tc.filename); got != tc.want {
				t.Fatalf("key = %q, want %q", got, tc.want)
			}
		})
	}
}
