package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/room4-2/roleplay-live/analysis"
	"github.com/room4-2/roleplay-live/config"
	"github.com/room4-2/roleplay-live/roleplay"
)

func TestNewReportFromResult(t *testing.T) {
	t.Parallel()

	done := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	res := analysis.Result{
		ID: "r-1",
		Extraction: analysis.Extraction{
			Feedback: analysis.Feedback{
				Strengths:        []string{"clear"},
				Improvements:     []string{"slower"},
				DetailedFeedback: "good",
			},
			Strategy: analysis.StrategyKeyed,
		},
		Scenario:    roleplay.Scenario{Title: "Pitch"},
		Duration:    95500 * time.Millisecond,
		CompletedAt: done,
	}
	timeline := []roleplay.Entry{{Speaker: roleplay.SpeakerUser, Content: "hi"}}

	r := NewReport("42", res, timeline)
	if r.ID != "r-1" || r.SessionID != "42" || r.DurationSeconds != 95 {
		t.Fatalf("unexpected report %+v", r)
	}
	if !r.Degraded || r.Strategy != "keyed" {
		t.Fatalf("strategy not carried: %+v", r)
	}
	if len(r.Timeline) != 1 || !r.CreatedAt.Equal(done) {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestDisabledStoreReportsUnavailable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for name, s := range map[string]*ReportStore{
		"nil":          nil,
		"disconnected": {ttl: time.Hour},
	} {
		if s.Enabled() {
			t.Fatalf("%s: store should be disabled", name)
		}
		if err := s.SaveReport(ctx, Report{ID: "x"}); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("%s: SaveReport = %v", name, err)
		}
		if _, err := s.GetReport(ctx, "x"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("%s: GetReport = %v", name, err)
		}
		if _, err := s.ListReports(ctx); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("%s: ListReports = %v", name, err)
		}
		if err := s.TouchSession(ctx, "1", "text"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("%s: TouchSession = %v", name, err)
		}
		if err := s.RemoveSession(ctx, "1"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("%s: RemoveSession = %v", name, err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("%s: Close = %v", name, err)
		}
	}
}

func TestNewReportStoreWithoutRedis(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{RedisURL: "127.0.0.1:1", ReportTTL: time.Hour}
	s := NewReportStore(cfg)
	if s.Enabled() {
		t.Fatal("unreachable Redis should leave the store disabled")
	}
}

func TestSaveAndGetReport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, mem := newMemoryStore(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r := Report{
		ID:        "r-1",
		SessionID: "42",
		Scenario:  roleplay.Scenario{Title: "Pitch"},
		Strengths: []string{"clear"},
		Strategy:  "direct",
		CreatedAt: created,
	}

	if err := s.SaveReport(ctx, r); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	h := mem.hash("analysis:r-1")
	if h["title"] != "Pitch" || h["session_id"] != "42" || h["created_at"] != "2026-03-01T10:00:00Z" {
		t.Fatalf("unexpected report hash %v", h)
	}
	if h["payload"] == "" {
		t.Fatal("report payload not stored")
	}
	if ttl := mem.ttl("analysis:r-1"); ttl != 3600 {
		t.Fatalf("expected a one hour expiry, got %ds", ttl)
	}
	if ids := mem.members("analysis_reports"); len(ids) != 1 || ids[0] != "r-1" {
		t.Fatalf("report not indexed: %v", ids)
	}

	got, err := s.GetReport(ctx, "r-1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.ID != "r-1" || got.Scenario.Title != "Pitch" || len(got.Strengths) != 1 || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected report %+v", got)
	}

	ids, err := s.ListReports(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "r-1" {
		t.Fatalf("ListReports = %v, %v", ids, err)
	}
}

func TestGetExpiredReportPrunesIndex(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, mem := newMemoryStore(t)
	for _, id := range []string{"old", "new"} {
		if err := s.SaveReport(ctx, Report{ID: id}); err != nil {
			t.Fatalf("SaveReport %s: %v", id, err)
		}
	}
	mem.drop("analysis:old")

	if _, err := s.GetReport(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if ids := mem.members("analysis_reports"); len(ids) != 1 || ids[0] != "new" {
		t.Fatalf("expired report should leave the index, got %v", ids)
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, mem := newMemoryStore(t)

	if err := s.TouchSession(ctx, "42", "audio"); err != nil {
		t.Fatalf("TouchSession: %v", err)
	}
	h := mem.hash("session:42")
	if h["mode"] != "audio" || h["status"] != "active" || h["last_activity"] == "" {
		t.Fatalf("unexpected session hash %v", h)
	}
	if ttl := mem.ttl("session:42"); ttl != 3600 {
		t.Fatalf("expected a one hour expiry, got %ds", ttl)
	}
	if ids := mem.members("active_sessions"); len(ids) != 1 || ids[0] != "42" {
		t.Fatalf("session not marked active: %v", ids)
	}

	if err := s.RemoveSession(ctx, "42"); err != nil {
		t.Fatalf("RemoveSession: %v", err)
	}
	if h := mem.hash("session:42"); len(h) != 0 {
		t.Fatalf("session hash should be gone, got %v", h)
	}
	if ids := mem.members("active_sessions"); len(ids) != 0 {
		t.Fatalf("active set should be empty, got %v", ids)
	}
}
