package domain

const (
	EventNameQuizCreated          = "quiz.created"
	EventNameAttemptRecorded      = "attempt.recorded"
	EventNameLeaderboardUpdated   = "leaderboard.updated"
	EventNamePixelChanged         = "pixel.changed"
	EventNameOwnershipChanged     = "ownership.changed"
	EventNameNotificationReceived = "notification.received"
)

type EventQuizCreated struct {
	Quiz QuizRecord
}

func (EventQuizCreated) Name() string { return EventNameQuizCreated }

type EventAttemptRecorded struct {
	Attempt AttemptRecord
}

func (EventAttemptRecorded) Name() string { return EventNameAttemptRecorded }

type EventLeaderboardUpdated struct {
	QuizID  uint64
	Entries []LeaderboardEntry
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }

type EventPixelChanged struct {
	Pixel PixelRecord
}

func (EventPixelChanged) Name() string { return EventNamePixelChanged }

type EventOwnershipChanged struct {
	X        int
	Y        int
	NewOwner ContextID
	OldOwner ContextID
}

func (EventOwnershipChanged) Name() string { return EventNameOwnershipChanged }

type EventNotificationReceived struct {
	Notification NotificationRecord
}

func (EventNotificationReceived) Name() string { return EventNameNotificationReceived }
