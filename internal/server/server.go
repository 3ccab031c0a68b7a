package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/crosstate/internal/api"
	"github.com/victornm/crosstate/internal/archive"
	"github.com/victornm/crosstate/internal/canvas"
	"github.com/victornm/crosstate/internal/domain"
	"github.com/victornm/crosstate/internal/event"
	"github.com/victornm/crosstate/internal/leaderboard"
	"github.com/victornm/crosstate/internal/ledger"
	"github.com/victornm/crosstate/internal/node"
	"github.com/victornm/crosstate/internal/projection"
	"github.com/victornm/crosstate/internal/quiz"
	"github.com/victornm/crosstate/internal/routing"
	"github.com/victornm/crosstate/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	// Context names this node and the authority it forwards to. A node whose
	// Self equals Authority applies every operation locally.
	Context struct {
		Self      string
		Authority string
	}

	Canvas struct {
		Width  int
		Height int
	}

	Redis struct {
		Ledger struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Transport struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Archive struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			ledger    redis.UniversalClient
			transport redis.UniversalClient
			pubsub    redis.UniversalClient
		}

		postgres struct {
			archive *pgxpool.Pool
		}
	}

	routing struct {
		resolver  routing.Resolver
		transport *routing.RedisTransport
		dedup     *routing.Dedup
		forwarder *routing.Forwarder
	}

	service struct {
		leaderboard *leaderboard.Service
		quiz        *quiz.Service
		canvas      *canvas.Service
		projection  *projection.Service
		archive     *archive.Service
	}

	node *node.Node

	http     *http.Server
	stopNode context.CancelFunc
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus(
		event.WithPoolSize(1024),
		event.WithHandlerTimeout(10*time.Second),
	)

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.ledger, err = connect(s.c.Redis.Ledger.Addrs, s.c.Redis.Ledger.Pass)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}

	s.infra.redis.transport, err = connect(s.c.Redis.Transport.Addrs, s.c.Redis.Transport.Pass)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := s.c.Postgres.Archive
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", p.User, p.Pass, p.Addr, p.Name))
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	s.infra.postgres.archive = db
	return nil
}

func (s *Server) initService() error {
	store := ledger.NewStore(s.infra.redis.ledger, s.c.Redis.Ledger.Prefix)

	s.routing.resolver = routing.NewResolver(
		domain.ContextID(s.c.Context.Self),
		domain.ContextID(s.c.Context.Authority),
	)
	s.routing.transport = routing.NewRedisTransport(s.infra.redis.transport, s.c.Redis.Transport.Prefix)
	s.routing.dedup = routing.NewDedup(store)

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		Ledger:   store,
		EventBus: s.eb,
	})

	s.service.quiz = quiz.NewService(quiz.Config{
		Ledger:      store,
		EventBus:    s.eb,
		Leaderboard: s.service.leaderboard,
	})

	s.service.canvas = canvas.NewService(canvas.Config{
		Ledger:    store,
		EventBus:  s.eb,
		Resolver:  s.routing.resolver,
		Transport: s.routing.transport,
		Width:     s.c.Canvas.Width,
		Height:    s.c.Canvas.Height,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.service.canvas.Init(ctx); err != nil {
		return fmt.Errorf("canvas: %w", err)
	}

	s.service.projection = projection.NewService(projection.Config{
		Ledger: store,
	})

	s.service.archive = archive.NewService(archive.Config{
		DB:       s.infra.postgres.archive,
		EventBus: s.eb,
	})

	s.node = node.New(node.Config{
		Resolver:  s.routing.resolver,
		Transport: s.routing.transport,
		Dedup:     s.routing.dedup,
		Quiz:      s.service.quiz,
		Canvas:    s.service.canvas,
	})

	s.routing.forwarder = routing.NewForwarder(routing.Config{
		Resolver:  s.routing.resolver,
		Transport: s.routing.transport,
		Applier:   s.node,
	})

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), telemetry.HTTPMiddleware())

	api.New(api.Config{
		Router:       e,
		Forwarder:    s.routing.forwarder,
		Canvas:       s.service.canvas,
		Projection:   s.service.projection,
		Archive:      s.service.archive,
		EventBus:     s.eb,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopNode = cancel

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: node %s processing inbox", s.c.Context.Self))
		return s.node.Run(ctx)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err := eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.stopNode != nil {
		s.stopNode()
	}

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	slog.InfoContext(ctx, "server: shutdown completed")
}
