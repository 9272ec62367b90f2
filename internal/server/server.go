package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"fliptowin/internal/cache"
	"fliptowin/internal/config"
	"fliptowin/internal/database"
	"fliptowin/internal/game"
)

const roundStatusPath = "/api/v1/game/round-status"

// Options wires the server. DB and Cache are nil when the selected store
// backend does not use them.
type Options struct {
	Game     *game.Service
	Hub      *game.Hub
	DB       database.Service
	Cache    cache.Service
	Gatherer prometheus.Gatherer
	HTTP     config.HTTPConfig
	Store    string
	Logger   *zap.Logger
}

type FiberServer struct {
	*fiber.App

	game     *game.Service
	gameHub  *game.Hub
	db       database.Service
	cache    cache.Service
	gatherer prometheus.Gatherer
	http     config.HTTPConfig
	store    string
	log      *zap.Logger
}

func New(opts Options) *FiberServer {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "fliptowin",
			AppName:       "fliptowin",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		game:     opts.Game,
		gameHub:  opts.Hub,
		db:       opts.DB,
		cache:    opts.Cache,
		gatherer: gatherer,
		http:     opts.HTTP,
		store:    opts.Store,
		log:      log.With(zap.String("component", "http")),
	}

	rateMax := opts.HTTP.RateLimitMax
	if rateMax <= 0 {
		rateMax = 100
	}
	window := opts.HTTP.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        rateMax,
		Expiration: window,
		// Clients poll round status; it must never be throttled.
		Next: func(c *fiber.Ctx) bool {
			switch c.Path() {
			case roundStatusPath, "/health", "/metrics":
				return true
			}
			return false
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   "Too many requests",
			})
		},
	}))

	return server
}

// Shutdown stops accepting requests and closes backing connections.
func (s *FiberServer) Shutdown() error {
	s.log.Info("shutting down")

	err := s.App.ShutdownWithTimeout(10 * time.Second)

	if s.cache != nil {
		if cerr := s.cache.Close(); cerr != nil {
			s.log.Warn("error closing cache", zap.Error(cerr))
		}
	}
	if s.db != nil {
		s.db.Close()
	}

	return err
}
