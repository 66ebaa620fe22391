package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"playtime/internal/calendar"
	"playtime/internal/database"
	"playtime/internal/models"
)

const (
	namesKey   = "playtime:names"
	updatedKey = "playtime:names:updated"
)

func totalKey(userID int64) string {
	return fmt.Sprintf("playtime:totals:%d", userID)
}

func dailyKey(userID int64, day string) string {
	return fmt.Sprintf("playtime:daily:%d:%s", userID, day)
}

// Options configures the Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Store implements database.Store on Redis hashes: one totals hash per user
// and one hash per user and local day, both keyed by activity.
type Store struct {
	client  *redis.Client
	cal     *calendar.Calendar
	addTime *redis.Script
}

var _ database.Store = (*Store)(nil)

// Open creates a new Redis-backed store
func Open(opts Options, cal *calendar.Calendar) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// Ping to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client:  client,
		cal:     cal,
		addTime: redis.NewScript(addTimeScript),
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// AddTime runs the add-time script so the name, total and daily updates land
// together.
func (s *Store) AddTime(ctx context.Context, userID int64, displayName, activity string, seconds int64, when time.Time) error {
	if seconds <= 0 {
		return nil
	}
	if activity == "" {
		return fmt.Errorf("%w: empty activity", models.ErrInvalidInput)
	}
	if when.IsZero() {
		when = s.cal.Now()
	}

	keys := []string{namesKey, updatedKey, totalKey(userID), dailyKey(userID, s.cal.Day(when))}
	args := []interface{}{
		strconv.FormatInt(userID, 10),
		displayName,
		s.cal.Now().UTC().Format(time.RFC3339),
		activity,
		seconds,
	}

	if err := s.addTime.Run(ctx, s.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("failed to add time: %w", err)
	}
	return nil
}

// TopActivities ranks a user's activities within the period.
func (s *Store) TopActivities(ctx context.Context, userID int64, period models.Period, limit int) ([]models.ActivityTime, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", models.ErrInvalidInput)
	}
	w, err := s.cal.Window(period)
	if err != nil {
		return nil, err
	}

	sums, err := s.sumUser(ctx, []int64{userID}, w)
	if err != nil {
		return nil, fmt.Errorf("failed to get top activities: %w", err)
	}

	rows := make([]models.ActivityTime, 0, len(sums[userID]))
	for activity, secs := range sums[userID] {
		rows = append(rows, models.ActivityTime{Activity: activity, Seconds: secs})
	}
	return models.RankActivities(rows, limit), nil
}

// Leaderboard ranks the given users by seconds within the period.
func (s *Store) Leaderboard(ctx context.Context, userIDs []int64, activity string, period models.Period, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", models.ErrInvalidInput)
	}
	w, err := s.cal.Window(period)
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return []models.LeaderboardEntry{}, nil
	}
	// The roster is a set; a repeated id must not fetch its hashes twice.
	userIDs = slices.Clone(userIDs)
	slices.Sort(userIDs)
	userIDs = slices.Compact(userIDs)

	sums, err := s.sumUser(ctx, userIDs, w)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}

	totals := make(map[int64]int64, len(sums))
	for uid, byActivity := range sums {
		for act, secs := range byActivity {
			if activity != "" && act != activity {
				continue
			}
			totals[uid] += secs
		}
	}

	fields := make([]string, 0, len(totals))
	for uid := range totals {
		fields = append(fields, strconv.FormatInt(uid, 10))
	}
	names := map[string]string{}
	if len(fields) > 0 {
		vals, err := s.client.HMGet(ctx, namesKey, fields...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get display names: %w", err)
		}
		for i, v := range vals {
			if name, ok := v.(string); ok {
				names[fields[i]] = name
			}
		}
	}

	rows := make([]models.LeaderboardEntry, 0, len(totals))
	for uid, secs := range totals {
		rows = append(rows, models.LeaderboardEntry{
			UserID:      uid,
			DisplayName: names[strconv.FormatInt(uid, 10)],
			Seconds:     secs,
		})
	}
	return models.RankLeaderboard(rows, limit), nil
}

// DisplayName returns the cached display name of a user.
func (s *Store) DisplayName(ctx context.Context, userID int64) (string, error) {
	name, err := s.client.HGet(ctx, namesKey, strconv.FormatInt(userID, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return "", database.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get display name: %w", err)
	}
	return name, nil
}

// sumUser returns per-user, per-activity seconds within the window, fetched
// in one pipeline.
func (s *Store) sumUser(ctx context.Context, userIDs []int64, w calendar.Window) (map[int64]map[string]int64, error) {
	type fetch struct {
		userID int64
		cmd    *redis.MapStringStringCmd
	}

	pipe := s.client.Pipeline()
	var fetches []fetch
	for _, uid := range userIDs {
		if w.AllTime {
			fetches = append(fetches, fetch{uid, pipe.HGetAll(ctx, totalKey(uid))})
			continue
		}
		for _, day := range w.Days() {
			fetches = append(fetches, fetch{uid, pipe.HGetAll(ctx, dailyKey(uid, day))})
		}
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	sums := make(map[int64]map[string]int64)
	for _, f := range fetches {
		data, err := f.cmd.Result()
		if err != nil {
			return nil, err
		}
		for activity, raw := range data {
			secs, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid counter %q for %s: %w", raw, activity, err)
			}
			if sums[f.userID] == nil {
				sums[f.userID] = make(map[string]int64)
			}
			sums[f.userID][activity] += secs
		}
	}
	return sums, nil
}
