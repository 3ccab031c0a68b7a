package domain

import (
	"encoding/json"
	"fmt"
)

// Operation kinds. The set is closed: every write entering the system is one
// of these, whether submitted locally or unwrapped from a forwarded envelope.
const (
	OpSetNickname     = "quiz.set_nickname"
	OpCreateQuiz      = "quiz.create"
	OpSubmitAnswers   = "quiz.submit_answers"
	OpStartQuiz       = "quiz.start"
	OpRegisterForQuiz = "quiz.register"
	OpSetPixel        = "canvas.set_pixel"
	OpClearPixel      = "canvas.clear_pixel"
	OpSetPixels       = "canvas.set_pixels"
)

// Operation is a write request with strongly typed parameters.
type Operation interface {
	Kind() string
}

type SetNickname struct {
	Identity string `json:"identity"`
	Nickname string `json:"nickname"`
}

func (SetNickname) Kind() string { return OpSetNickname }

// QuestionInput is a question as submitted at quiz creation. Ids and the
// radio/checkbox type are assigned by the engine.
type QuestionInput struct {
	Text           string   `json:"text"`
	Options        []string `json:"options"`
	CorrectOptions []int    `json:"correct_options"`
	Points         int      `json:"points"`
}

type CreateQuiz struct {
	Identity    string          `json:"identity"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Questions   []QuestionInput `json:"questions"`
	TimeLimit   uint64          `json:"time_limit"`
	StartTime   string          `json:"start_time"` // millisecond timestamp string
	EndTime     string          `json:"end_time"`   // millisecond timestamp string
	Mode        string          `json:"mode"`
	StartMode   string          `json:"start_mode"`
}

func (CreateQuiz) Kind() string { return OpCreateQuiz }

// AnswerSelection carries the selected option indexes for one question,
// keyed by question id.
type AnswerSelection struct {
	QuestionID string `json:"question_id"`
	Selected   []int  `json:"selected"`
}

type SubmitAnswers struct {
	Identity  string            `json:"identity"`
	QuizID    uint64            `json:"quiz_id"`
	Answers   []AnswerSelection `json:"answers"`
	TimeTaken uint64            `json:"time_taken"` // milliseconds
}

func (SubmitAnswers) Kind() string { return OpSubmitAnswers }

type StartQuiz struct {
	Identity string `json:"identity"`
	QuizID   uint64 `json:"quiz_id"`
}

func (StartQuiz) Kind() string { return OpStartQuiz }

type RegisterForQuiz struct {
	Identity string `json:"identity"`
	QuizID   uint64 `json:"quiz_id"`
}

func (RegisterForQuiz) Kind() string { return OpRegisterForQuiz }

type SetPixel struct {
	X     int   `json:"x"`
	Y     int   `json:"y"`
	Color Color `json:"color"`
}

func (SetPixel) Kind() string { return OpSetPixel }

type ClearPixel struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (ClearPixel) Kind() string { return OpClearPixel }

type SetPixels struct {
	Pixels []PixelUpdate `json:"pixels"`
}

func (SetPixels) Kind() string { return OpSetPixels }

// DecodeOperation reconstructs a concrete operation from its kind and JSON
// parameters, as carried inside a forwarded envelope.
func DecodeOperation(kind string, data []byte) (Operation, error) {
	var op Operation
	switch kind {
	case OpSetNickname:
		op = &SetNickname{}
	case OpCreateQuiz:
		op = &CreateQuiz{}
	case OpSubmitAnswers:
		op = &SubmitAnswers{}
	case OpStartQuiz:
		op = &StartQuiz{}
	case OpRegisterForQuiz:
		op = &RegisterForQuiz{}
	case OpSetPixel:
		op = &SetPixel{}
	case OpClearPixel:
		op = &ClearPixel{}
	case OpSetPixels:
		op = &SetPixels{}
	default:
		return nil, fmt.Errorf("unknown operation kind %q", kind)
	}

	if err := json.Unmarshal(data, op); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}

	return op, nil
}
