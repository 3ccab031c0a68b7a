package leaderboard

import (
	"context"
	"sort"
	"strconv"

	"github.com/victornm/crosstate/internal/domain"
	"github.com/victornm/crosstate/internal/event"
	"github.com/victornm/crosstate/internal/ledger"
)

// Less orders leaderboard entries; a should sort before b. The tie-break
// beyond score is deliberately a caller decision.
type Less func(a, b domain.LeaderboardEntry) bool

// ByScoreDesc is the default ordering: score descending, ties kept in
// insertion order by the stable sort.
func ByScoreDesc(a, b domain.LeaderboardEntry) bool {
	return a.Score > b.Score
}

type Config struct {
	Ledger   *ledger.Store
	EventBus *event.Bus
	Less     Less
}

// Service keeps the per-quiz leaderboard in lock-step with attempt
// insertions: at most one entry per identity, re-sorted and fully
// re-persisted on every update.
type Service struct {
	eb      *event.Bus
	entries *ledger.Map[[]domain.LeaderboardEntry]
	less    Less
}

func NewService(c Config) *Service {
	s := &Service{
		eb:      c.EventBus,
		entries: ledger.NewMap[[]domain.LeaderboardEntry](c.Ledger, ledger.ColLeaderboard),
		less:    c.Less,
	}

	if s.less == nil {
		s.less = ByScoreDesc
	}

	return s
}

// Record folds one attempt into the quiz's leaderboard: the identity's
// existing entry is updated in place, or a new one appended, then the whole
// list is re-sorted and persisted.
func (s *Service) Record(ctx context.Context, quizID uint64, e domain.LeaderboardEntry) error {
	key := strconv.FormatUint(quizID, 10)

	entries, _, err := s.entries.Get(ctx, key)
	if err != nil {
		return err
	}

	found := false
	for i := range entries {
		if entries[i].Identity == e.Identity {
			entries[i].Score = e.Score
			entries[i].TimeTaken = e.TimeTaken
			found = true
			break
		}
	}
	if !found {
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return s.less(entries[i], entries[j])
	})

	if err := s.entries.Set(ctx, key, entries); err != nil {
		return err
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		QuizID:  quizID,
		Entries: entries,
	})

	return nil
}

// Get returns the quiz's leaderboard, empty if no attempt was recorded yet.
func (s *Service) Get(ctx context.Context, quizID uint64) ([]domain.LeaderboardEntry, error) {
	entries, _, err := s.entries.Get(ctx, strconv.FormatUint(quizID, 10))
	if err != nil {
		return nil, err
	}

	return entries, nil
}
