package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/varuny677/RequirementGath-feature2.1/internal/logger"
)

const (
	progressKeyPrefix = "analysis:progress:"
	progressKeyTTL    = 24 * time.Hour
)

// ProgressUpdate is the frontend-facing progress snapshot for a run.
type ProgressUpdate struct {
	RunID      string `json:"run_id"`
	Message    string `json:"message"`
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
	Timestamp  string `json:"timestamp"`
}

// ProgressNotifier fans progress out to pollers and subscribers. Publishing
// is best-effort; callers must not fail a run on notifier errors.
type ProgressNotifier interface {
	Publish(ctx context.Context, update ProgressUpdate) error
	Latest(ctx context.Context, runID string) (*ProgressUpdate, error)
	Close() error
}

type redisProgressNotifier struct {
	log     *logger.Logger
	rdb     *redis.Client
	channel string
}

func NewRedisProgressNotifier(log *logger.Logger) (ProgressNotifier, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_PROGRESS_CHANNEL"))
	if ch == "" {
		ch = "analysis-progress"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisProgressNotifier{
		log:     log.With("service", "RedisProgressNotifier"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (n *redisProgressNotifier) Publish(ctx context.Context, update ProgressUpdate) error {
	if update.Total > 0 {
		update.Percentage = update.Current * 100 / update.Total
	}
	if update.Timestamp == "" {
		update.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	raw, err := json.Marshal(update)
	if err != nil {
		return err
	}

	if err := n.rdb.Set(ctx, progressKeyPrefix+update.RunID, raw, progressKeyTTL).Err(); err != nil {
		return fmt.Errorf("redis set progress: %w", err)
	}
	if err := n.rdb.Publish(ctx, n.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish progress: %w", err)
	}
	return nil
}

func (n *redisProgressNotifier) Latest(ctx context.Context, runID string) (*ProgressUpdate, error) {
	raw, err := n.rdb.Get(ctx, progressKeyPrefix+runID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get progress: %w", err)
	}
	var update ProgressUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		return nil, fmt.Errorf("bad progress payload: %w", err)
	}
	return &update, nil
}

func (n *redisProgressNotifier) Close() error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Close()
}
