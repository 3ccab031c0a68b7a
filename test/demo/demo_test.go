//go:build integration_test

package demo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/crosstate/internal/api"
	"github.com/victornm/crosstate/internal/domain"
)

const baseURL = "http://localhost:8080/v1"

// TestQuiz drives a full quiz round against a running server: identities get
// nicknames, one of them creates a quiz starting immediately, everyone
// submits concurrently, and a subscriber watches the leaderboard fan-out on
// redis pub/sub.
func TestQuiz(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := []string{"u1", "u2", "u3"}
	wg := new(sync.WaitGroup)

	subscribeAsIdentity(t, makeRedis(t), wg, "u1")

	for _, u := range users {
		do(t, ctx, http.MethodPut, "/identities/"+u+"/nickname", map[string]any{
			"nickname": "nick-" + u,
		})
	}

	start := time.Now().Add(2 * time.Second)
	do(t, ctx, http.MethodPost, "/quizzes", map[string]any{
		"identity": "u1",
		"title":    "demo quiz",
		"questions": []map[string]any{
			{
				"text":            "pick the first",
				"options":         []string{"a", "b", "c"},
				"correct_options": []int{0},
				"points":          5,
			},
			{
				"text":            "pick the outer two",
				"options":         []string{"a", "b", "c"},
				"correct_options": []int{0, 2},
				"points":          5,
			},
		},
		"time_limit": 600,
		"start_time": strconv.FormatInt(start.UnixMilli(), 10),
		"end_time":   strconv.FormatInt(start.Add(time.Hour).UnixMilli(), 10),
		"mode":       "public",
		"start_mode": "auto",
	})

	time.Sleep(time.Until(start.Add(time.Second)))

	quizID := latestQuizID(t, ctx)

	var eg errgroup.Group
	for _, u := range users {
		u := u
		eg.Go(func() error {
			do(t, ctx, http.MethodPost, fmt.Sprintf("/quizzes/%d/attempts", quizID), map[string]any{
				"identity": u,
				"answers": []map[string]any{
					{"question_id": fmt.Sprintf("q%d-0", quizID), "selected": []int{0}},
					{"question_id": fmt.Sprintf("q%d-1", quizID), "selected": []int{2, 0}},
				},
				"time_taken": 15000,
			})
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	require.Eventually(t, func() bool {
		var resp struct {
			Entries []domain.LeaderboardEntry `json:"entries"`
		}
		get(t, ctx, fmt.Sprintf("/quizzes/%d/leaderboard", quizID), &resp)
		return len(resp.Entries) == len(users)
	}, 10*time.Second, 200*time.Millisecond, "all attempts should reach the leaderboard")

	wg.Wait()
}

func do(t *testing.T, ctx context.Context, method, path string, body any) {
	t.Helper()

	b, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Less(t, resp.StatusCode, 300, "%s %s", method, path)
}

func get(t *testing.T, ctx context.Context, path string, out any) {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func latestQuizID(t *testing.T, ctx context.Context) uint64 {
	t.Helper()

	var quizzes []domain.QuizRecord
	get(t, ctx, "/quizzes", &quizzes)
	require.NotEmpty(t, quizzes)

	return quizzes[len(quizzes)-1].ID
}

func subscribeAsIdentity(t *testing.T, rc redis.UniversalClient, wg *sync.WaitGroup, identity string) {
	wg.Add(1)
	sub := subscribeRedis(t, rc, fmt.Sprintf("local:pubsub:identity:%s", identity))
	go func() {
		defer wg.Done()

		for msg := range sub {
			var n struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				t.Logf("unmarshal notification: %v", err)
				continue
			}

			switch n.Event {
			case domain.EventNameLeaderboardUpdated:
				var l api.Leaderboard
				if err := json.Unmarshal(n.Data, &l); err != nil {
					t.Logf("unmarshal leaderboard: %v", err)
					continue
				}

				t.Logf("%s leaderboard:\n%s", identity, formatLeaderboard(l))
			}
		}
	}()
}

func subscribeRedis(t *testing.T, rc redis.UniversalClient, pattern string) <-chan *redis.Message {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	sub := rc.PSubscribe(ctx, pattern)
	t.Cleanup(func() { sub.Close() })

	c := make(chan *redis.Message)
	go func() {
		defer close(c)

		for {
			msg, err := sub.ReceiveMessage(ctx)
			if err != nil {
				t.Log(err)
				return
			}

			c <- msg
		}
	}()

	return c
}

func makeRedis(t *testing.T) redis.UniversalClient {
	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{"localhost:6379"},
	})
	t.Cleanup(func() { r.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.Ping(ctx).Err(); err != nil {
		t.Fatal(err)
	}

	return r
}

func formatLeaderboard(l api.Leaderboard) string {
	var s string
	for _, e := range l.Entries {
		s += fmt.Sprintf("%s: %d\n", e.Identity, e.Score)
	}
	return s
}
