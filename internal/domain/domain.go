package domain

import (
	"time"
)

// ContextID identifies one execution context. Exactly one context is
// configured as the authority for the shared ledger; all others reach it
// through one-way messages.
type ContextID string

// QuizMode controls who may submit answers to a quiz.
type QuizMode string

const (
	QuizModePublic       QuizMode = "public"
	QuizModeRegistration QuizMode = "registration"
)

// StartMode controls how a quiz transitions to started.
type StartMode string

const (
	StartModeAuto   StartMode = "auto"
	StartModeManual StartMode = "manual"
)

// IdentityProfile maps an identity to its display name. The reverse
// nickname->identity index is maintained separately and must stay bijective.
type IdentityProfile struct {
	Identity  string    `json:"identity"`
	Nickname  string    `json:"nickname"`
	CreatedAt time.Time `json:"created_at"`
}

type Question struct {
	ID             string   `json:"id"`
	Text           string   `json:"text"`
	Options        []string `json:"options"`
	CorrectOptions []int    `json:"correct_options"`
	Points         int      `json:"points"`
	Type           string   `json:"type"`
}

// QuizRecord is the primary quiz entity. The question set is fixed at
// creation and never changes afterwards.
type QuizRecord struct {
	ID          uint64     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Creator     string     `json:"creator"`
	Questions   []Question `json:"questions"`
	TimeLimit   uint64     `json:"time_limit"` // seconds
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	CreatedAt   time.Time  `json:"created_at"`
	Mode        QuizMode   `json:"mode"`
	StartMode   StartMode  `json:"start_mode"`
	Started     bool       `json:"started"`

	Registered       []string `json:"registered"`
	Participants     []string `json:"participants"`
	ParticipantCount int      `json:"participant_count"`
}

// Ended reports whether the quiz window has closed at the given time.
func (q QuizRecord) Ended(now time.Time) bool {
	return now.After(q.EndTime)
}

// IsRegistered reports whether the identity is in the registered set.
func (q QuizRecord) IsRegistered(identity string) bool {
	for _, r := range q.Registered {
		if r == identity {
			return true
		}
	}
	return false
}

// AttemptRecord holds one identity's submission for one quiz. There is
// exactly one attempt per (quiz, identity); once written it is never
// overwritten.
type AttemptRecord struct {
	QuizID      uint64    `json:"quiz_id"`
	Identity    string    `json:"identity"`
	Answers     [][]int   `json:"answers"` // one slot per question, in question order
	Score       int       `json:"score"`
	TimeTaken   uint64    `json:"time_taken"` // milliseconds
	CompletedAt time.Time `json:"completed_at"`
}

// LeaderboardEntry is one row of a quiz's derived leaderboard.
type LeaderboardEntry struct {
	Identity  string `json:"identity"`
	Score     int    `json:"score"`
	TimeTaken uint64 `json:"time_taken"`
}
