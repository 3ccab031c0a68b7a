package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/victornm/crosstate/internal/canvas"
	"github.com/victornm/crosstate/internal/domain"
	"github.com/victornm/crosstate/internal/errors"
	"github.com/victornm/crosstate/internal/event"
	"github.com/victornm/crosstate/internal/projection"
	"github.com/victornm/crosstate/internal/routing"
)

type Config struct {
	Router       *gin.Engine
	Forwarder    *routing.Forwarder
	Canvas       *canvas.Service
	Projection   *projection.Service
	Archive      Archive
	EventBus     *event.Bus
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Archive serves reads over the durable attempt history.
type Archive interface {
	TotalPoints(ctx context.Context, identity string) (decimal.Decimal, error)
}

// API binds the operation surface to HTTP. Writes go through the forwarder,
// so a request served on a peer context returns as soon as the envelope is
// enqueued; reads come from the local projection.
type API struct {
	fw      *routing.Forwarder
	cs      *canvas.Service
	ps      *projection.Service
	archive Archive
	redis   Redis
	prefix  string
}

func New(c Config) *API {
	a := &API{
		fw:      c.Forwarder,
		cs:      c.Canvas,
		ps:      c.Projection,
		archive: c.Archive,
		redis:   c.Redis,
		prefix:  c.PubsubPrefix,
	}

	v1 := c.Router.Group("/v1")

	v1.PUT("/identities/:identity/nickname", a.SetNickname)
	v1.GET("/identities/:identity", a.GetIdentity)
	v1.GET("/identities/:identity/attempts", a.ListAttempts)
	v1.GET("/identities/:identity/created", a.CreatedQuizzes)
	v1.GET("/identities/:identity/participations", a.Participations)
	v1.GET("/identities/:identity/points", a.TotalPoints)

	v1.POST("/quizzes", a.CreateQuiz)
	v1.GET("/quizzes", a.ListQuizzes)
	v1.GET("/quizzes/:id", a.GetQuiz)
	v1.POST("/quizzes/:id/attempts", a.SubmitAnswers)
	v1.POST("/quizzes/:id/start", a.StartQuiz)
	v1.POST("/quizzes/:id/registrations", a.RegisterForQuiz)
	v1.GET("/quizzes/:id/leaderboard", a.GetLeaderboard)
	v1.GET("/quizzes/:id/attempts/:identity", a.GetAttempt)

	v1.PUT("/canvas/pixels/:x/:y", a.SetPixel)
	v1.DELETE("/canvas/pixels/:x/:y", a.ClearPixel)
	v1.POST("/canvas/pixels", a.SetPixels)
	v1.POST("/canvas/pixels/:x/:y/claim", a.ClaimPixel)
	v1.GET("/canvas/pixels/:x/:y", a.GetPixel)
	v1.GET("/canvas/stats", a.CanvasStats)
	v1.GET("/canvas/history", a.PixelHistory)
	v1.GET("/canvas/notifications", a.Notifications)
	v1.POST("/canvas/notifications/:index/processed", a.MarkNotificationProcessed)
	v1.POST("/canvas/notifications/processed", a.MarkAllNotificationsProcessed)
	v1.POST("/canvas/notifications/cleanup", a.CleanupNotifications)

	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return a
}

func (a *API) route(c *gin.Context, op domain.Operation) {
	if err := a.fw.Route(c.Request.Context(), op); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

type setNicknameRequest struct {
	Nickname string `json:"nickname" binding:"required"`
}

func (a *API) SetNickname(c *gin.Context) {
	var req setNicknameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	a.route(c, &domain.SetNickname{
		Identity: c.Param("identity"),
		Nickname: req.Nickname,
	})
}

type createQuizRequest struct {
	Identity    string                 `json:"identity" binding:"required"`
	Title       string                 `json:"title" binding:"required"`
	Description string                 `json:"description"`
	Questions   []domain.QuestionInput `json:"questions" binding:"required"`
	TimeLimit   uint64                 `json:"time_limit"`
	StartTime   string                 `json:"start_time" binding:"required"`
	EndTime     string                 `json:"end_time" binding:"required"`
	Mode        string                 `json:"mode" binding:"required"`
	StartMode   string                 `json:"start_mode" binding:"required"`
}

func (a *API) CreateQuiz(c *gin.Context) {
	var req createQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	a.route(c, &domain.CreateQuiz{
		Identity:    req.Identity,
		Title:       req.Title,
		Description: req.Description,
		Questions:   req.Questions,
		TimeLimit:   req.TimeLimit,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Mode:        req.Mode,
		StartMode:   req.StartMode,
	})
}

type submitAnswersRequest struct {
	Identity  string                   `json:"identity" binding:"required"`
	Answers   []domain.AnswerSelection `json:"answers" binding:"required"`
	TimeTaken uint64                   `json:"time_taken"`
}

func (a *API) SubmitAnswers(c *gin.Context) {
	id, ok := quizID(c)
	if !ok {
		return
	}

	var req submitAnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	a.route(c, &domain.SubmitAnswers{
		Identity:  req.Identity,
		QuizID:    id,
		Answers:   req.Answers,
		TimeTaken: req.TimeTaken,
	})
}

type identityRequest struct {
	Identity string `json:"identity" binding:"required"`
}

func (a *API) StartQuiz(c *gin.Context) {
	id, ok := quizID(c)
	if !ok {
		return
	}

	var req identityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	a.route(c, &domain.StartQuiz{Identity: req.Identity, QuizID: id})
}

func (a *API) RegisterForQuiz(c *gin.Context) {
	id, ok := quizID(c)
	if !ok {
		return
	}

	var req identityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	a.route(c, &domain.RegisterForQuiz{Identity: req.Identity, QuizID: id})
}

func (a *API) GetQuiz(c *gin.Context) {
	id, ok := quizID(c)
	if !ok {
		return
	}

	q, err := a.ps.GetQuiz(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, q)
}

func (a *API) ListQuizzes(c *gin.Context) {
	qs, err := a.ps.ListQuizzes(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, qs)
}

func (a *API) GetLeaderboard(c *gin.Context) {
	id, ok := quizID(c)
	if !ok {
		return
	}

	entries, err := a.ps.GetLeaderboard(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"quiz_id": id, "entries": entries})
}

func (a *API) GetAttempt(c *gin.Context) {
	id, ok := quizID(c)
	if !ok {
		return
	}

	attempt, err := a.ps.GetAttempt(c.Request.Context(), id, c.Param("identity"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

func (a *API) GetIdentity(c *gin.Context) {
	p, err := a.ps.GetIdentity(c.Request.Context(), c.Param("identity"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

func (a *API) ListAttempts(c *gin.Context) {
	attempts, err := a.ps.ListAttempts(c.Request.Context(), c.Param("identity"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempts)
}

func (a *API) CreatedQuizzes(c *gin.Context) {
	ids, err := a.ps.CreatedQuizzes(c.Request.Context(), c.Param("identity"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"quiz_ids": ids})
}

// TotalPoints reads from the archive, not the ledger: it aggregates across
// every quiz the identity ever attempted.
func (a *API) TotalPoints(c *gin.Context) {
	identity := c.Param("identity")

	total, err := a.archive.TotalPoints(c.Request.Context(), identity)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"identity": identity, "total_points": total})
}

func (a *API) Participations(c *gin.Context) {
	ids, err := a.ps.Participations(c.Request.Context(), c.Param("identity"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"quiz_ids": ids})
}

func quizID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		abortBadRequest(c, err)
		return 0, false
	}

	return id, true
}

func abortBadRequest(c *gin.Context, err error) {
	abortWithError(c, errors.New(errors.CodeInvalidArgument,
		errors.WithReason(errors.ReasonInvalidParameters),
		errors.WithMessagef("%v", err)))
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
