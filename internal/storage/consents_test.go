package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestInsertConsent(t *testing.T) {
	t.Parallel()

	s := newTestStorage(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 987654321, time.UTC)

	rec := &ConsentRecord{
		ConsentID:  "abc-123",
		Domain:     "shop.example",
		Status:     "accepted",
		Categories: map[string]bool{"analytics": true, "advertisement": false},
		IP:         "203.0.113.0",
		UserAgent:  "Mozilla/5.0",
		CreatedAt:  at,
	}
	id, err := s.InsertConsent(ctx, rec)
	if err != nil {
		t.Fatalf("InsertConsent failed: %v", err)
	}
	if id <= 0 || rec.ID != id {
		t.Fatalf("expected positive id set on record, got %d / %d", id, rec.ID)
	}

	got, err := s.LatestConsent(ctx, "abc-123")
	if err != nil {
		t.Fatalf("LatestConsent failed: %v", err)
	}
	if got.Domain != "shop.example" || got.Status != "accepted" || got.IP != "203.0.113.0" {
		t.Errorf("unexpected record: %+v", got)
	}
	if !got.Categories["analytics"] || got.Categories["advertisement"] {
		t.Errorf("categories not round-tripped: %v", got.Categories)
	}
	if !got.CreatedAt.Equal(at.Truncate(time.Microsecond)) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, at.Truncate(time.Microsecond))
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("stored created_at differs from returned record: %v vs %v", got.CreatedAt, rec.CreatedAt)
	}
}

func TestInsertConsent_Concurrent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"memory", func(*testing.T) string { return ":memory:" }},
		{"file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "consents.db") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, err := New(tt.path(t))
			if err != nil {
				t.Fatalf("failed to create storage: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })

			const n = 50
			ctx := context.Background()
			ids := make([]int64, n)
			errs := make([]error, n)

			var wg sync.WaitGroup
			for i := range n {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ids[i], errs[i] = s.InsertConsent(ctx, &ConsentRecord{
						ConsentID:  fmt.Sprintf("visitor-%d", i),
						Status:     "accepted",
						Categories: map[string]bool{"analytics": i%2 == 0},
					})
				}()
			}
			wg.Wait()

			seen := make(map[int64]bool, n)
			for i := range n {
				if errs[i] != nil {
					t.Fatalf("insert %d failed: %v", i, errs[i])
				}
				if seen[ids[i]] {
					t.Errorf("duplicate id %d", ids[i])
				}
				seen[ids[i]] = true
			}
			if len(seen) != n {
				t.Errorf("distinct ids = %d, want %d", len(seen), n)
			}

			_, total, err := s.SearchConsents(ctx, ConsentQuery{})
			if err != nil {
				t.Fatalf("SearchConsents failed: %v", err)
			}
			if total != n {
				t.Errorf("total = %d, want %d", total, n)
			}
		})
	}
}

func TestInsertConsent_NoDedup(t *testing.T) {
	t.Parallel()

	s := newTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := s.InsertConsent(ctx, &ConsentRecord{ConsentID: "same", Status: "accepted"}); err != nil {
			t.Fatalf("InsertConsent %d failed: %v", i, err)
		}
	}

	history, err := s.ConsentHistory(ctx, "same")
	if err != nil {
		t.Fatalf("ConsentHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("expected 2 rows for identical payloads, got %d", len(history))
	}
}

func TestLatestConsent(t *testing.T) {
	t.Parallel()

	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, _ = s.InsertConsent(ctx, &ConsentRecord{ConsentID: "c", Status: "accepted", CreatedAt: base})
	_, _ = s.InsertConsent(ctx, &ConsentRecord{ConsentID: "c", Status: "rejected", CreatedAt: base.Add(time.Hour)})

	got, err := s.LatestConsent(ctx, "c")
	if err != nil {
		t.Fatalf("LatestConsent failed: %v", err)
	}
	if got.Status != "rejected" {
		t.Errorf("expected latest record, got status %q", got.Status)
	}

	if _, err := s.LatestConsent(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchConsents(t *testing.T) {
	t.Parallel()

	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		status := "accepted"
		if i%5 == 0 {
			status = "rejected"
		}
		_, err := s.InsertConsent(ctx, &ConsentRecord{
			ConsentID: fmt.Sprintf("id-%02d", i),
			Domain:    "example.org",
			Status:    status,
			IP:        fmt.Sprintf("10.0.%d.0", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("InsertConsent failed: %v", err)
		}
	}

	page, total, err := s.SearchConsents(ctx, ConsentQuery{Limit: 10})
	if err != nil {
		t.Fatalf("SearchConsents failed: %v", err)
	}
	if total != 25 || len(page) != 10 {
		t.Fatalf("expected 10 of 25, got %d of %d", len(page), total)
	}
	if page[0].ConsentID != "id-24" {
		t.Errorf("expected newest first, got %s", page[0].ConsentID)
	}

	last, _, err := s.SearchConsents(ctx, ConsentQuery{Limit: 10, Offset: 20})
	if err != nil {
		t.Fatalf("SearchConsents failed: %v", err)
	}
	if len(last) != 5 || last[4].ConsentID != "id-00" {
		t.Errorf("unexpected last page: %d rows", len(last))
	}

	rejected, total, err := s.SearchConsents(ctx, ConsentQuery{Search: "REJECT", Limit: 100})
	if err != nil {
		t.Fatalf("SearchConsents failed: %v", err)
	}
	if total != 5 || len(rejected) != 5 {
		t.Errorf("expected 5 rejected, got %d (total %d)", len(rejected), total)
	}

	byIP, total, err := s.SearchConsents(ctx, ConsentQuery{Search: "10.0.13.", Limit: 100})
	if err != nil {
		t.Fatalf("SearchConsents failed: %v", err)
	}
	if total != 1 || byIP[0].ConsentID != "id-13" {
		t.Errorf("expected single ip match, got total %d", total)
	}
}

func TestSearchConsents_EscapesWildcards(t *testing.T) {
	t.Parallel()

	s := newTestStorage(t)
	ctx := context.Background()

	_, _ = s.InsertConsent(ctx, &ConsentRecord{ConsentID: "plain", Status: "accepted"})
	_, _ = s.InsertConsent(ctx, &ConsentRecord{ConsentID: "with_underscore", Status: "accepted"})

	got, total, err := s.SearchConsents(ctx, ConsentQuery{Search: "_", Limit: 10})
	if err != nil {
		t.Fatalf("SearchConsents failed: %v", err)
	}
	if total != 1 || got[0].ConsentID != "with_underscore" {
		t.Errorf("underscore should match literally, got %d results", total)
	}

	_, total, err = s.SearchConsents(ctx, ConsentQuery{Search: "%", Limit: 10})
	if err != nil {
		t.Fatalf("SearchConsents failed: %v", err)
	}
	if total != 0 {
		t.Errorf("percent should match literally, got %d results", total)
	}
}

func TestEachConsent(t *testing.T) {
	t.Parallel()

	s := newTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = s.InsertConsent(ctx, &ConsentRecord{ConsentID: fmt.Sprintf("e-%d", i), Status: "accepted"})
	}

	var seen []string
	err := s.EachConsent(ctx, "", func(r *ConsentRecord) error {
		seen = append(seen, r.ConsentID)
		return nil
	})
	if err != nil {
		t.Fatalf("EachConsent failed: %v", err)
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 records, got %d", len(seen))
	}

	stop := errors.New("stop")
	calls := 0
	err = s.EachConsent(ctx, "", func(*ConsentRecord) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("expected iteration to stop on first error, calls=%d err=%v", calls, err)
	}
}

func TestConsentStats(t *testing.T) {
	t.Parallel()

	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

	empty, err := s.ConsentStats(ctx, now)
	if err != nil {
		t.Fatalf("ConsentStats on empty table failed: %v", err)
	}
	if empty.Total != 0 || empty.Accepted != 0 {
		t.Errorf("expected zero stats, got %+v", empty)
	}

	_, _ = s.InsertConsent(ctx, &ConsentRecord{ConsentID: "a", Status: "accepted", CreatedAt: now.AddDate(0, -2, 0)})
	_, _ = s.InsertConsent(ctx, &ConsentRecord{ConsentID: "b", Status: "accepted", CreatedAt: now.AddDate(0, 0, -1)})
	_, _ = s.InsertConsent(ctx, &ConsentRecord{ConsentID: "c", Status: "rejected", CreatedAt: now.AddDate(0, 0, -2)})
	_, _ = s.InsertConsent(ctx, &ConsentRecord{ConsentID: "d", Status: "partial", CreatedAt: now})

	st, err := s.ConsentStats(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("ConsentStats failed: %v", err)
	}
	want := ConsentStats{Total: 4, Accepted: 2, Rejected: 1, Other: 1, Recent: 3}
	if *st != want {
		t.Errorf("stats = %+v, want %+v", *st, want)
	}
}

func TestPurgeConsentsBefore(t *testing.T) {
	t.Parallel()

	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	_, _ = s.InsertConsent(ctx, &ConsentRecord{ConsentID: "old", Status: "accepted", CreatedAt: now.AddDate(-2, 0, 0)})
	_, _ = s.InsertConsent(ctx, &ConsentRecord{ConsentID: "fresh", Status: "accepted", CreatedAt: now.AddDate(0, -1, 0)})

	n, err := s.PurgeConsentsBefore(ctx, now.AddDate(-1, 0, 0))
	if err != nil {
		t.Fatalf("PurgeConsentsBefore failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged row, got %d", n)
	}
	if _, err := s.LatestConsent(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old record should be gone, got %v", err)
	}
	if _, err := s.LatestConsent(ctx, "fresh"); err != nil {
		t.Errorf("fresh record should remain: %v", err)
	}
}
