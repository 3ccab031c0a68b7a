package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/crosstate/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Leaderboard struct {
		QuizID  uint64             `json:"quiz_id"`
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		Identity  string `json:"identity"`
		Score     int    `json:"score"`
		TimeTaken uint64 `json:"time_taken"`
	}
)

// PublishLeaderboardUpdated fans the new standings out to every identity on
// the board over redis pub/sub.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := Leaderboard{
		QuizID:  e.QuizID,
		Entries: make([]LeaderboardEntry, 0, len(e.Entries)),
	}

	for _, entry := range e.Entries {
		data.Entries = append(data.Entries, LeaderboardEntry{
			Identity:  entry.Identity,
			Score:     entry.Score,
			TimeTaken: entry.TimeTaken,
		})
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		entry := entry
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.Identity, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, identity, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:identity:%s", a.prefix, identity), b).Err()
}
