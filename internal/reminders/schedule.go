// Package reminders keeps follow-up reminder dates in a Redis sorted set scored by due time, so
// notifier instances can claim due reminders without scanning every file.
package reminders

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
)

const DefaultKey = "visatrack:reminders"

type zsetClient interface {
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	ZRangeByScoreWithScores(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.ZSliceCmd
}

type Reminder struct {
	FileID string
	DueAt  time.Time
}

type Schedule struct {
	client zsetClient
	key    string
	loc    *time.Location
}

func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func NewSchedule(client zsetClient, key string, loc *time.Location) *Schedule {
	if key == "" {
		key = DefaultKey
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Schedule{client: client, key: key, loc: loc}
}

// DueAt is local midnight of the reminder date.
func (s *Schedule) DueAt(date string) (time.Time, error) {
	return time.ParseInLocation(models.DateLayout, strings.TrimSpace(date), s.loc)
}

// Set schedules the file's reminder, replacing any earlier one. An empty date cancels it.
func (s *Schedule) Set(ctx context.Context, fileID, date string) error {
	if strings.TrimSpace(date) == "" {
		return s.Cancel(ctx, fileID)
	}
	due, err := s.DueAt(date)
	if err != nil {
		return fmt.Errorf("reminder date %q: %w", date, err)
	}
	return s.client.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(due.Unix()),
		Member: fileID,
	}).Err()
}

func (s *Schedule) Cancel(ctx context.Context, fileID string) error {
	return s.client.ZRem(ctx, s.key, fileID).Err()
}

// Claim removes and returns up to limit reminders due at or before now. A reminder removed by a
// concurrent claimer is skipped, so each due reminder is handed to one caller.
func (s *Schedule) Claim(ctx context.Context, now time.Time, limit int) ([]Reminder, error) {
	if limit <= 0 {
		limit = 100
	}
	due, err := s.client.ZRangeByScoreWithScores(ctx, s.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read due reminders: %w", err)
	}

	claimed := make([]Reminder, 0, len(due))
	for _, z := range due {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		removed, err := s.client.ZRem(ctx, s.key, member).Result()
		if err != nil {
			return claimed, fmt.Errorf("claim reminder %s: %w", member, err)
		}
		if removed == 0 {
			continue
		}
		claimed = append(claimed, Reminder{FileID: member, DueAt: time.Unix(int64(z.Score), 0).In(s.loc)})
	}
	return claimed, nil
}
