// Package quiz is the mutation engine for quiz records. Every transition
// validates first and persists only on success, so a rejected operation
// leaves the ledger and all secondary indexes untouched.
package quiz

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/victornm/crosstate/internal/domain"
	"github.com/victornm/crosstate/internal/errors"
	"github.com/victornm/crosstate/internal/event"
	"github.com/victornm/crosstate/internal/leaderboard"
	"github.com/victornm/crosstate/internal/ledger"
)

const maxQuizWindow = 100 * 365 * 24 * time.Hour

type Config struct {
	Ledger      *ledger.Store
	EventBus    *event.Bus
	Leaderboard *leaderboard.Service
	NowFunc     func() time.Time
}

type Service struct {
	eb  *event.Bus
	lb  *leaderboard.Service
	now func() time.Time

	identities   *ledger.Map[domain.IdentityProfile]
	nicknames    *ledger.Map[string]
	quizzes      *ledger.Map[domain.QuizRecord]
	attempts     *ledger.Map[domain.AttemptRecord]
	attemptLog   *ledger.Log[domain.AttemptRecord]
	created      *ledger.Map[[]uint64]
	participated *ledger.Map[[]uint64]
	nextQuizID   *ledger.Counter
}

func NewService(c Config) *Service {
	s := &Service{
		eb:  c.EventBus,
		lb:  c.Leaderboard,
		now: c.NowFunc,

		identities:   ledger.NewMap[domain.IdentityProfile](c.Ledger, ledger.ColIdentities),
		nicknames:    ledger.NewMap[string](c.Ledger, ledger.ColNicknames),
		quizzes:      ledger.NewMap[domain.QuizRecord](c.Ledger, ledger.ColQuizzes),
		attempts:     ledger.NewMap[domain.AttemptRecord](c.Ledger, ledger.ColAttempts),
		attemptLog:   ledger.NewLog[domain.AttemptRecord](c.Ledger, ledger.ColAttemptLog),
		created:      ledger.NewMap[[]uint64](c.Ledger, ledger.ColCreated),
		participated: ledger.NewMap[[]uint64](c.Ledger, ledger.ColParticipated),
		nextQuizID:   ledger.NewCounter(c.Ledger, ledger.CtrNextQuizID),
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// SetNickname installs or changes an identity's display name. The reverse
// nickname->identity index stays bijective: a stale mapping for the old name
// is removed before the new one is installed.
func (s *Service) SetNickname(ctx context.Context, op domain.SetNickname) error {
	if op.Identity == "" || op.Nickname == "" {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithReason(errors.ReasonInvalidParameters),
			errors.WithMessagef("identity and nickname are required"))
	}

	owner, taken, err := s.nicknames.Get(ctx, op.Nickname)
	if err != nil {
		return err
	}
	if taken && owner != op.Identity {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithReason(errors.ReasonNicknameAlreadyTaken),
			errors.WithMessagef("nickname %q is already taken", op.Nickname))
	}

	prev, existed, err := s.identities.Get(ctx, op.Identity)
	if err != nil {
		return err
	}
	if existed && prev.Nickname != op.Nickname {
		if err := s.nicknames.Remove(ctx, prev.Nickname); err != nil {
			return err
		}
	}

	profile := domain.IdentityProfile{
		Identity:  op.Identity,
		Nickname:  op.Nickname,
		CreatedAt: s.now().UTC(),
	}
	if existed {
		profile.CreatedAt = prev.CreatedAt
	}

	if err := s.identities.Set(ctx, op.Identity, profile); err != nil {
		return err
	}

	return s.nicknames.Set(ctx, op.Nickname, op.Identity)
}

// CreateQuiz validates the time window, assigns the next sequential quiz id
// and stores the record. The question set is final from here on.
func (s *Service) CreateQuiz(ctx context.Context, op domain.CreateQuiz) error {
	now := s.now()

	if _, ok, err := s.identities.Get(ctx, op.Identity); err != nil {
		return err
	} else if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonUserNotFound),
			errors.WithMessagef("identity %q has no display name", op.Identity))
	}

	start, err := parseMillis(op.StartTime, "start time")
	if err != nil {
		return err
	}
	end, err := parseMillis(op.EndTime, "end time")
	if err != nil {
		return err
	}

	if !start.After(now) {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithReason(errors.ReasonInvalidParameters),
			errors.WithMessagef("start time must be in the future"))
	}
	if !end.After(start) {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithReason(errors.ReasonInvalidParameters),
			errors.WithMessagef("end time must be after start time"))
	}
	if end.Sub(start) > maxQuizWindow {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithReason(errors.ReasonInvalidParameters),
			errors.WithMessagef("quiz window exceeds 100 years"))
	}

	mode := domain.QuizMode(op.Mode)
	if mode != domain.QuizModePublic && mode != domain.QuizModeRegistration {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithReason(errors.ReasonInvalidQuizMode),
			errors.WithMessagef("unknown quiz mode %q", op.Mode))
	}

	startMode := domain.StartMode(op.StartMode)
	if startMode != domain.StartModeAuto && startMode != domain.StartModeManual {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithReason(errors.ReasonInvalidStartMode),
			errors.WithMessagef("unknown start mode %q", op.StartMode))
	}

	id, err := s.nextQuizID.Next(ctx)
	if err != nil {
		return err
	}

	questions := make([]domain.Question, 0, len(op.Questions))
	for i, q := range op.Questions {
		qType := "radio"
		if len(q.CorrectOptions) > 1 {
			qType = "checkbox"
		}

		questions = append(questions, domain.Question{
			ID:             fmt.Sprintf("q%d-%d", id, i),
			Text:           q.Text,
			Options:        q.Options,
			CorrectOptions: q.CorrectOptions,
			Points:         q.Points,
			Type:           qType,
		})
	}

	rec := domain.QuizRecord{
		ID:          id,
		Title:       op.Title,
		Description: op.Description,
		Creator:     op.Identity,
		Questions:   questions,
		TimeLimit:   op.TimeLimit,
		StartTime:   start,
		EndTime:     end,
		CreatedAt:   now.UTC(),
		Mode:        mode,
		StartMode:   startMode,
	}

	if err := s.quizzes.Set(ctx, quizKey(id), rec); err != nil {
		return err
	}

	createdIDs, _, err := s.created.Get(ctx, op.Identity)
	if err != nil {
		return err
	}
	if err := s.created.Set(ctx, op.Identity, append(createdIDs, id)); err != nil {
		return err
	}

	s.eb.Publish(ctx, domain.EventQuizCreated{Quiz: rec})

	return nil
}

// SubmitAnswers scores and records one identity's single attempt at a quiz.
// A not-yet-started auto quiz whose start time has passed transitions to
// started as part of this call.
func (s *Service) SubmitAnswers(ctx context.Context, op domain.SubmitAnswers) error {
	rec, ok, err := s.quizzes.Get(ctx, quizKey(op.QuizID))
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonQuizNotFound),
			errors.WithMessagef("quiz %d not found", op.QuizID))
	}

	now := s.now()
	if rec.Ended(now) {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonInvalidParameters),
			errors.WithMessagef("quiz %d has ended", op.QuizID))
	}

	if !rec.Started && rec.StartMode == domain.StartModeAuto && !now.Before(rec.StartTime) {
		rec.Started = true
	}
	if !rec.Started {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonQuizNotStarted),
			errors.WithMessagef("quiz %d has not started", op.QuizID))
	}

	if rec.Mode == domain.QuizModeRegistration && !rec.IsRegistered(op.Identity) {
		return errors.New(errors.CodePermissionDenied,
			errors.WithReason(errors.ReasonUserNotRegistered),
			errors.WithMessagef("identity %q is not registered for quiz %d", op.Identity, op.QuizID))
	}

	if _, attempted, err := s.attempts.Get(ctx, attemptKey(op.QuizID, op.Identity)); err != nil {
		return err
	} else if attempted {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithReason(errors.ReasonUserAlreadyAttempted),
			errors.WithMessagef("identity %q already attempted quiz %d", op.Identity, op.QuizID))
	}

	if len(op.Answers) != len(rec.Questions) {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithReason(errors.ReasonInvalidParameters),
			errors.WithMessagef("expected %d answers, got %d", len(rec.Questions), len(op.Answers)))
	}

	indexByID := make(map[string]int, len(rec.Questions))
	for i, q := range rec.Questions {
		indexByID[q.ID] = i
	}

	score := 0
	answers := make([][]int, len(rec.Questions))
	for _, sel := range op.Answers {
		i, ok := indexByID[sel.QuestionID]
		if !ok {
			return errors.New(errors.CodeInvalidArgument,
				errors.WithReason(errors.ReasonInvalidParameters),
				errors.WithMessagef("unknown question %q", sel.QuestionID))
		}

		answers[i] = sel.Selected
		if setsEqual(sel.Selected, rec.Questions[i].CorrectOptions) {
			score += rec.Questions[i].Points
		}
	}

	attempt := domain.AttemptRecord{
		QuizID:      op.QuizID,
		Identity:    op.Identity,
		Answers:     answers,
		Score:       score,
		TimeTaken:   op.TimeTaken,
		CompletedAt: now.UTC(),
	}

	if err := s.attempts.Set(ctx, attemptKey(op.QuizID, op.Identity), attempt); err != nil {
		return err
	}
	if err := s.attemptLog.Append(ctx, attempt); err != nil {
		return err
	}

	if !slices.Contains(rec.Participants, op.Identity) {
		rec.Participants = append(rec.Participants, op.Identity)
		rec.ParticipantCount++
	}
	if err := s.quizzes.Set(ctx, quizKey(op.QuizID), rec); err != nil {
		return err
	}

	participatedIDs, _, err := s.participated.Get(ctx, op.Identity)
	if err != nil {
		return err
	}
	if !slices.Contains(participatedIDs, op.QuizID) {
		if err := s.participated.Set(ctx, op.Identity, append(participatedIDs, op.QuizID)); err != nil {
			return err
		}
	}

	if err := s.lb.Record(ctx, op.QuizID, domain.LeaderboardEntry{
		Identity:  op.Identity,
		Score:     score,
		TimeTaken: op.TimeTaken,
	}); err != nil {
		return err
	}

	s.eb.Publish(ctx, domain.EventAttemptRecorded{Attempt: attempt})

	return nil
}

// StartQuiz transitions a manual-start quiz to started. Only the recorded
// creator may call it, and only inside the quiz window.
func (s *Service) StartQuiz(ctx context.Context, op domain.StartQuiz) error {
	rec, ok, err := s.quizzes.Get(ctx, quizKey(op.QuizID))
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonQuizNotFound),
			errors.WithMessagef("quiz %d not found", op.QuizID))
	}

	if rec.Creator != op.Identity {
		return errors.New(errors.CodePermissionDenied,
			errors.WithReason(errors.ReasonInsufficientPermissions),
			errors.WithMessagef("only the creator may start quiz %d", op.QuizID))
	}
	if rec.StartMode != domain.StartModeManual {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonInvalidParameters),
			errors.WithMessagef("quiz %d does not start manually", op.QuizID))
	}
	if rec.Started {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonInvalidParameters),
			errors.WithMessagef("quiz %d is already started", op.QuizID))
	}

	now := s.now()
	if now.Before(rec.StartTime) || now.After(rec.EndTime) {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonInvalidParameters),
			errors.WithMessagef("quiz %d cannot start outside its window", op.QuizID))
	}

	rec.Started = true
	return s.quizzes.Set(ctx, quizKey(op.QuizID), rec)
}

// RegisterForQuiz adds the identity to a registration-mode quiz before it
// starts.
func (s *Service) RegisterForQuiz(ctx context.Context, op domain.RegisterForQuiz) error {
	rec, ok, err := s.quizzes.Get(ctx, quizKey(op.QuizID))
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonQuizNotFound),
			errors.WithMessagef("quiz %d not found", op.QuizID))
	}

	if rec.Mode != domain.QuizModeRegistration {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonInvalidQuizMode),
			errors.WithMessagef("quiz %d does not take registrations", op.QuizID))
	}

	if _, ok, err := s.identities.Get(ctx, op.Identity); err != nil {
		return err
	} else if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonUserNotFound),
			errors.WithMessagef("identity %q has no display name", op.Identity))
	}

	now := s.now()
	if rec.Started || !now.Before(rec.StartTime) || rec.Ended(now) {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonInvalidParameters),
			errors.WithMessagef("registration for quiz %d is closed", op.QuizID))
	}

	if rec.IsRegistered(op.Identity) {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithReason(errors.ReasonUserAlreadyRegistered),
			errors.WithMessagef("identity %q is already registered for quiz %d", op.Identity, op.QuizID))
	}

	rec.Registered = append(rec.Registered, op.Identity)
	return s.quizzes.Set(ctx, quizKey(op.QuizID), rec)
}

// parseMillis parses a millisecond timestamp string. The magnitude check
// (10 to 14 decimal digits) rejects second- or microsecond-scale values
// passed by mistake.
func parseMillis(v, field string) (time.Time, error) {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return time.Time{}, errors.New(errors.CodeInvalidArgument,
			errors.WithReason(errors.ReasonInvalidParameters),
			errors.WithMessagef("%s is not a millisecond timestamp: %q", field, v),
			errors.WithCause(err))
	}

	if digits := len(strconv.FormatUint(n, 10)); digits < 10 || digits > 14 {
		return time.Time{}, errors.New(errors.CodeInvalidArgument,
			errors.WithReason(errors.ReasonInvalidParameters),
			errors.WithMessagef("%s has implausible magnitude: %q", field, v))
	}

	return time.UnixMilli(int64(n)).UTC(), nil
}

// setsEqual compares two option-index sets ignoring order.
func setsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}

	as := slices.Clone(a)
	bs := slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)

	return slices.Equal(as, bs)
}

func quizKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func attemptKey(quizID uint64, identity string) string {
	return fmt.Sprintf("%d:%s", quizID, identity)
}
