package accesslog

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteWriter_WriteAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.db")
	w, err := NewSQLiteWriter(path)
	if err != nil {
		t.Fatalf("new sqlite writer: %v", err)
	}
	t.Cleanup(func() {
		_ = w.Close()
	})

	now := time.Now().UTC()
	entries := []Entry{
		{
			TraceID:    "trace-1",
			Route:      "attachment",
			PageID:     "12345",
			Filename:   "diagram.png",
			Status:     200,
			BytesSent:  2048,
			DurationMS: 12,
			CreatedAt:  now.Add(-2 * time.Hour),
		},
		{
			TraceID:    "trace-2",
			Route:      "attachment",
			PageID:     "12345",
			Filename:   "missing.pdf",
			Status:     404,
			DurationMS: 40,
			ErrorKind:  "UpstreamNotFound",
			CreatedAt:  now.Add(-1 * time.Hour),
		},
		{
			TraceID:    "trace-3",
			Route:      "page",
			PageID:     "67890",
			Status:     200,
			BytesSent:  512,
			DurationMS: 80,
			CreatedAt:  now,
		},
	}

	for _, entry := range entries {
		if err := w.Write(context.Background(), entry); err != nil {
			t.Fatalf("write access log entry: %v", err)
		}
	}

	result, err := w.List(context.Background(), Query{Limit: 10})
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if result.Total != 3 || len(result.Data) != 3 {
		t.Fatalf("expected 3 logs, total=%d len=%d", result.Total, len(result.Data))
	}
	// Newest first.
	if result.Data[0].TraceID != "trace-3" {
		t.Errorf("expected trace-3 first, got %s", result.Data[0].TraceID)
	}

	byRoute, err := w.List(context.Background(), Query{Route: "attachment", Limit: 10})
	if err != nil {
		t.Fatalf("list by route: %v", err)
	}
	if byRoute.Total != 2 {
		t.Errorf("expected 2 attachment rows, got %d", byRoute.Total)
	}

	byKind, err := w.List(context.Background(), Query{ErrorKind: "UpstreamNotFound", Limit: 10})
	if err != nil {
		t.Fatalf("list by error kind: %v", err)
	}
	if byKind.Total != 1 || byKind.Data[0].Filename != "missing.pdf" {
		t.Errorf("unexpected error-kind filter result: %+v", byKind)
	}
}

func TestSQLiteWriter_Pagination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.db")
	w, err := NewSQLiteWriter(path)
	if err != nil {
		t.Fatalf("new sqlite writer: %v", err)
	}
	t.Cleanup(func() {
		_ = w.Close()
	})

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		entry := Entry{
			Route:     "attachment",
			PageID:    "1",
			Status:    200,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := w.Write(context.Background(), entry); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	page, err := w.List(context.Background(), Query{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 5 {
		t.Errorf("expected total 5, got %d", page.Total)
	}
	if len(page.Data) != 2 {
		t.Errorf("expected page of 2, got %d", len(page.Data))
	}
}

func TestWriteFillsCreatedAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.db")
	w, err := NewSQLiteWriter(path)
	if err != nil {
		t.Fatalf("new sqlite writer: %v", err)
	}
	t.Cleanup(func() {
		_ = w.Close()
	})

	if err := w.Write(context.Background(), Entry{Route: "page", Status: 200}); err != nil {
		t.Fatalf("write: %v", err)
	}
	result, err := w.List(context.Background(), Query{Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result.Data) != 1 || result.Data[0].CreatedAt.IsZero() {
		t.Error("expected created_at to be filled on write")
	}
}

func TestNoopWriter(t *testing.T) {
	if err := (NoopWriter{}).Write(context.Background(), Entry{Route: "page"}); err != nil {
		t.Fatalf("noop write: %v", err)
	}
}
