// Package projection is the read-only view over the ledger: point lookups,
// bounded scans and log reads. It never mutates state; all writes go through
// the mutation engines.
package projection

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/victornm/crosstate/internal/domain"
	"github.com/victornm/crosstate/internal/errors"
	"github.com/victornm/crosstate/internal/ledger"
)

type Config struct {
	Ledger *ledger.Store
}

type Service struct {
	identities   *ledger.Map[domain.IdentityProfile]
	nicknames    *ledger.Map[string]
	quizzes      *ledger.Map[domain.QuizRecord]
	attempts     *ledger.Map[domain.AttemptRecord]
	created      *ledger.Map[[]uint64]
	participated *ledger.Map[[]uint64]
	leaderboards *ledger.Map[[]domain.LeaderboardEntry]
	pixels       *ledger.Map[domain.PixelRecord]
	updates      *ledger.Log[domain.PixelUpdate]
}

func NewService(c Config) *Service {
	return &Service{
		identities:   ledger.NewMap[domain.IdentityProfile](c.Ledger, ledger.ColIdentities),
		nicknames:    ledger.NewMap[string](c.Ledger, ledger.ColNicknames),
		quizzes:      ledger.NewMap[domain.QuizRecord](c.Ledger, ledger.ColQuizzes),
		attempts:     ledger.NewMap[domain.AttemptRecord](c.Ledger, ledger.ColAttempts),
		created:      ledger.NewMap[[]uint64](c.Ledger, ledger.ColCreated),
		participated: ledger.NewMap[[]uint64](c.Ledger, ledger.ColParticipated),
		leaderboards: ledger.NewMap[[]domain.LeaderboardEntry](c.Ledger, ledger.ColLeaderboard),
		pixels:       ledger.NewMap[domain.PixelRecord](c.Ledger, ledger.ColPixels),
		updates:      ledger.NewLog[domain.PixelUpdate](c.Ledger, ledger.ColPixelUpdates),
	}
}

func (s *Service) GetQuiz(ctx context.Context, id uint64) (*domain.QuizRecord, error) {
	rec, ok, err := s.quizzes.Get(ctx, strconv.FormatUint(id, 10))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonQuizNotFound),
			errors.WithMessagef("quiz %d not found", id))
	}

	return &rec, nil
}

// ListQuizzes returns all quiz records ordered by id.
func (s *Service) ListQuizzes(ctx context.Context) ([]domain.QuizRecord, error) {
	all, err := s.quizzes.All(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.QuizRecord, 0, len(all))
	for _, q := range all {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (s *Service) GetIdentity(ctx context.Context, identity string) (*domain.IdentityProfile, error) {
	p, ok, err := s.identities.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonUserNotFound),
			errors.WithMessagef("identity %q not found", identity))
	}

	return &p, nil
}

// ResolveNickname returns the identity a display name maps to.
func (s *Service) ResolveNickname(ctx context.Context, nickname string) (string, error) {
	identity, ok, err := s.nicknames.Get(ctx, nickname)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonUserNotFound),
			errors.WithMessagef("nickname %q not found", nickname))
	}

	return identity, nil
}

func (s *Service) GetAttempt(ctx context.Context, quizID uint64, identity string) (*domain.AttemptRecord, error) {
	a, ok, err := s.attempts.Get(ctx, fmt.Sprintf("%d:%s", quizID, identity))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no attempt for quiz %d by %q", quizID, identity))
	}

	return &a, nil
}

// ListAttempts returns the identity's attempts across all quizzes it
// participated in.
func (s *Service) ListAttempts(ctx context.Context, identity string) ([]domain.AttemptRecord, error) {
	ids, _, err := s.participated.Get(ctx, identity)
	if err != nil {
		return nil, err
	}

	out := make([]domain.AttemptRecord, 0, len(ids))
	for _, id := range ids {
		a, ok, err := s.attempts.Get(ctx, fmt.Sprintf("%d:%s", id, identity))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, a)
		}
	}

	return out, nil
}

func (s *Service) GetLeaderboard(ctx context.Context, quizID uint64) ([]domain.LeaderboardEntry, error) {
	entries, _, err := s.leaderboards.Get(ctx, strconv.FormatUint(quizID, 10))
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// CreatedQuizzes returns the ids of quizzes the identity created.
func (s *Service) CreatedQuizzes(ctx context.Context, identity string) ([]uint64, error) {
	ids, _, err := s.created.Get(ctx, identity)
	return ids, err
}

// Participations returns the ids of quizzes the identity attempted.
func (s *Service) Participations(ctx context.Context, identity string) ([]uint64, error) {
	ids, _, err := s.participated.Get(ctx, identity)
	return ids, err
}

func (s *Service) GetPixel(ctx context.Context, x, y int) (*domain.PixelRecord, error) {
	p, ok, err := s.pixels.Get(ctx, fmt.Sprintf("%d,%d", x, y))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("pixel (%d, %d) is unclaimed", x, y))
	}

	return &p, nil
}

// PixelHistory returns the last n entries of the canvas update log.
func (s *Service) PixelHistory(ctx context.Context, n int64) ([]domain.PixelUpdate, error) {
	return s.updates.Range(ctx, -n, -1)
}
