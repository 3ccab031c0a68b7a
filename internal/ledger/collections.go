package ledger

// Collection names of the persisted layout. Per application the ledger holds
// a few key->record maps, an append-only log and a handful of scalar
// registers; every name used against the store is listed here.
const (
	ColIdentities   = "quiz:identities"   // identity -> IdentityProfile
	ColNicknames    = "quiz:nicknames"    // nickname -> identity (bijective reverse index)
	ColQuizzes      = "quiz:sets"         // quiz id -> QuizRecord
	ColAttempts     = "quiz:attempts"     // "quizID:identity" -> AttemptRecord
	ColAttemptLog   = "quiz:attempt_log"  // append-only AttemptRecord log
	ColCreated      = "quiz:created"      // identity -> created quiz ids
	ColParticipated = "quiz:participated" // identity -> participated quiz ids
	CtrNextQuizID   = "quiz:next_id"      // monotonic quiz id counter

	ColLeaderboard = "leaderboard:entries" // quiz id -> []LeaderboardEntry

	ColPixels        = "canvas:pixels"        // "x,y" -> PixelRecord
	ColPixelUpdates  = "canvas:updates"       // append-only PixelUpdate log
	ColNotifications = "canvas:notifications" // append-only NotificationRecord log
	RegColoredCount  = "canvas:colored_count"
	RegCanvasStats   = "canvas:stats"
	RegDefaultColor  = "canvas:default_color"

	ColDedup = "routing:dedup" // source context -> last applied sequence
)
