// Package store persists analysis reports and live session markers in Redis.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/room4-2/roleplay-live/analysis"
	"github.com/room4-2/roleplay-live/config"
	"github.com/room4-2/roleplay-live/roleplay"
)

var json = sonic.ConfigStd

var (
	// ErrUnavailable is returned when Redis could not be reached at startup
	ErrUnavailable = errors.New("report store unavailable")
	// ErrNotFound is returned for unknown or expired reports
	ErrNotFound = errors.New("report not found")
)

const (
	reportKeyPrefix  = "analysis:"
	sessionKeyPrefix = "session:"
	reportIndexKey   = "analysis_reports"
	activeSessionKey = "active_sessions"
	pingTimeout      = 5 * time.Second
)

// Report is a stored analysis result with the session it evaluated
type Report struct {
	ID               string            `json:"id"`
	SessionID        string            `json:"session_id"`
	Scenario         roleplay.Scenario `json:"scenario"`
	DurationSeconds  int               `json:"duration_seconds"`
	Strengths        []string          `json:"strengths"`
	Improvements     []string          `json:"improvements"`
	DetailedFeedback string            `json:"detailed_feedback"`
	Strategy         string            `json:"strategy"`
	Degraded         bool              `json:"degraded"`
	Timeline         []roleplay.Entry  `json:"timeline,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// NewReport builds a report from a completed analysis
func NewReport(sessionID string, res analysis.Result, timeline []roleplay.Entry) Report {
	fb := res.Extraction.Feedback
	return Report{
		ID:               res.ID,
		SessionID:        sessionID,
		Scenario:         res.Scenario,
		DurationSeconds:  int(res.Duration / time.Second),
		Strengths:        fb.Strengths,
		Improvements:     fb.Improvements,
		DetailedFeedback: fb.DetailedFeedback,
		Strategy:         string(res.Extraction.Strategy),
		Degraded:         res.Extraction.Degraded(),
		Timeline:         timeline,
		CreatedAt:        res.CompletedAt,
	}
}

// ReportStore saves reports. A store whose Redis was unreachable at startup
// stays usable and reports ErrUnavailable.
type ReportStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewReportStore connects to Redis, continuing without it when unreachable
func NewReportStore(cfg *config.Config) *ReportStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️ Redis unavailable at %s, reports will not be saved: %v", cfg.RedisURL, err)
		client.Close()
		client = nil
	} else {
		log.Printf("✅ Connected to Redis at %s", cfg.RedisURL)
	}

	return &ReportStore{redis: client, ttl: cfg.ReportTTL}
}

// Enabled reports whether Redis is connected
func (s *ReportStore) Enabled() bool {
	return s != nil && s.redis != nil
}

// SaveReport stores a report and indexes it
func (s *ReportStore) SaveReport(ctx context.Context, r Report) error {
	if !s.Enabled() {
		return ErrUnavailable
	}
	payload, err := json.MarshalToString(r)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", r.ID, err)
	}

	key := reportKeyPrefix + r.ID
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"payload":    payload,
			"title":      r.Scenario.Title,
			"session_id": r.SessionID,
			"created_at": r.CreatedAt.Format(time.RFC3339),
		})
		pipe.Expire(ctx, key, s.ttl)
		pipe.SAdd(ctx, reportIndexKey, r.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.ID, err)
	}
	log.Printf("💾 Saved report %s (%s)", r.ID, r.Scenario.Title)
	return nil
}

// GetReport loads a report by id
func (s *ReportStore) GetReport(ctx context.Context, id string) (Report, error) {
	if !s.Enabled() {
		return Report{}, ErrUnavailable
	}
	payload, err := s.redis.HGet(ctx, reportKeyPrefix+id, "payload").Result()
	if errors.Is(err, redis.Nil) {
		// expired reports stay in the index until pruned
		s.redis.SRem(ctx, reportIndexKey, id)
		return Report{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Report{}, fmt.Errorf("load report %s: %w", id, err)
	}

	var r Report
	if err := json.UnmarshalFromString(payload, &r); err != nil {
		return Report{}, fmt.Errorf("decode report %s: %w", id, err)
	}
	return r, nil
}

// ListReports returns the ids of indexed reports
func (s *ReportStore) ListReports(ctx context.Context) ([]string, error) {
	if !s.Enabled() {
		return nil, ErrUnavailable
	}
	ids, err := s.redis.SMembers(ctx, reportIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return ids, nil
}

// TouchSession marks an agent session as active in the given mode
func (s *ReportStore) TouchSession(ctx context.Context, sessionID, mode string) error {
	if !s.Enabled() {
		return ErrUnavailable
	}
	key := sessionKeyPrefix + sessionID
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"last_activity": time.Now().Format(time.RFC3339),
			"mode":          mode,
			"status":        "active",
		})
		pipe.SAdd(ctx, activeSessionKey, sessionID)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("touch session %s: %w", sessionID, err)
	}
	return nil
}

// RemoveSession clears the session marker and drops it from the active set
func (s *ReportStore) RemoveSession(ctx context.Context, sessionID string) error {
	if !s.Enabled() {
		return ErrUnavailable
	}
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKeyPrefix+sessionID)
		pipe.SRem(ctx, activeSessionKey, sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove session %s: %w", sessionID, err)
	}
	return nil
}

// Close releases the Redis connection
func (s *ReportStore) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.redis.Close()
}
