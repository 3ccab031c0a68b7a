// Package archive keeps a durable postgres history of attempts and pixel
// updates, fed from domain events. It is a sink: rows are inserted once and
// never updated.
package archive

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/victornm/crosstate/internal/domain"
	"github.com/victornm/crosstate/internal/errors"
	"github.com/victornm/crosstate/internal/event"
)

type Config struct {
	DB       *pgxpool.Pool
	EventBus *event.Bus
}

type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	s := &Service{db: c.DB}

	c.EventBus.Subscribe(domain.EventNameAttemptRecorded, func(ctx context.Context, e event.Event) error {
		return s.insertAttempt(ctx, e.(domain.EventAttemptRecorded).Attempt)
	})
	c.EventBus.Subscribe(domain.EventNamePixelChanged, func(ctx context.Context, e event.Event) error {
		return s.insertPixelUpdate(ctx, e.(domain.EventPixelChanged).Pixel)
	})

	return s
}

func (s *Service) insertAttempt(ctx context.Context, a domain.AttemptRecord) error {
	const stmt = `
INSERT INTO attempts (quiz_id, identity, score, time_taken_ms, completed_at)
VALUES ($1, $2, $3, $4, $5);`

	_, err := s.db.Exec(ctx, stmt, a.QuizID, a.Identity, a.Score, a.TimeTaken, a.CompletedAt)

	var pgErr *pgconn.PgError
	const codeUniqueViolation = "23505"
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithReason(errors.ReasonUserAlreadyAttempted),
			errors.WithCause(err))
	}

	return err
}

func (s *Service) insertPixelUpdate(ctx context.Context, p domain.PixelRecord) error {
	const stmt = `
INSERT INTO pixel_updates (x, y, color, owner_context, updated_at)
VALUES ($1, $2, $3, $4, $5);`

	color := ""
	if p.Color != nil {
		color = p.Color.Hex()
	}

	_, err := s.db.Exec(ctx, stmt, p.X, p.Y, color, string(p.Owner), p.UpdatedAt)
	return err
}

// TotalPoints sums the archived scores of one identity across all quizzes.
func (s *Service) TotalPoints(ctx context.Context, identity string) (decimal.Decimal, error) {
	const stmt = `
SELECT COALESCE(SUM(score), 0) AS score FROM attempts WHERE identity = $1;`

	var total decimal.Decimal
	if err := s.db.QueryRow(ctx, stmt, identity).Scan(&total); err != nil {
		return decimal.Zero, err
	}

	return total, nil
}
