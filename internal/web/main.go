// Package web is the HTTP surface of ldapgate.
package web

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"github.com/ldapgate/ldapgate/internal/config"
	fiberlogger "github.com/ldapgate/ldapgate/internal/logger/adapter/fiber"
	"github.com/ldapgate/ldapgate/internal/web/handler"
	"github.com/ldapgate/ldapgate/internal/web/handler/gateway"
	"github.com/ldapgate/ldapgate/internal/web/handler/health"
	"github.com/ldapgate/ldapgate/internal/web/handler/login"
)

// APIPrefix is the route prefix guarded by the rate limiter.
const APIPrefix = "/api"

// Service represents the web service.
type Service struct {
	App          *fiber.App
	cfg          *config.Config
	fastShutDown bool
	alive        atomic.Bool
}

// Start starts the web service on the given address.
func (s *Service) Start(addr string) error {
	var doneFiber = make(chan bool)

	go func() {
		if err := s.App.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Msgf("fiber listen error: %v", err)
		}

		doneFiber <- true
	}()

	<-doneFiber // wait for fiber to stop

	return nil
}

// Alive reports whether the service accepts traffic. It turns false on shutdown.
func (s *Service) Alive() bool {
	return s.alive.Load()
}

// WaitShutdown blocks until SIGINT or SIGTERM, then stops the http server.
func (s *Service) WaitShutdown() {
	irqSig := make(chan os.Signal, 1)
	signal.Notify(irqSig, syscall.SIGINT, syscall.SIGTERM)

	sig := <-irqSig
	log.Info().Msgf("shutdown request (signal: %v)", sig)

	s.Shutdown()
}

// Shutdown stops the http server. Unless fast shutdown is set, /health
// answers 503 for Webserver.ShutDownTime seconds first so load balancers
// drain this instance.
func (s *Service) Shutdown() {
	if !s.fastShutDown {
		log.Info().Msgf(
			"graceful shutdown: return 503 while %d seconds to let LB to remove this pod from active targets",
			s.cfg.Webserver.ShutDownTime,
		)

		s.alive.Store(false)
		time.Sleep(time.Duration(s.cfg.Webserver.ShutDownTime) * time.Second)
	}

	log.Info().Msg("stopping http server ...")

	if err := s.App.Shutdown(); err != nil {
		log.Error().Err(err).Msg("")
	}

	log.Info().Msg("http server was stopped ... good bye...")
}

// New creates the web service. storage backs the rate limiter; nil keeps
// counters in memory.
func New(cfg *config.Config, deps handler.Deps, storage fiber.Storage) *Service {
	if cfg == nil {
		panic("config cannot be nil")
	}

	app := fiber.New(
		fiber.Config{
			ReadBufferSize:        8192,
			AppName:               "ldapgate",
			CaseSensitive:         true,
			Prefork:               false,
			Immutable:             true,
			DisableStartupMessage: !cfg.DevMode,
		},
	)

	service := &Service{
		cfg:          cfg,
		App:          app,
		fastShutDown: cfg.DevMode || cfg.Webserver.ShutDownTime <= 0,
	}
	service.alive.Store(true)

	if deps.Alive == nil {
		deps.Alive = service.Alive
	}

	if !cfg.Webserver.DisableRecover {
		app.Use(recover.New(recover.Config{EnableStackTrace: cfg.DevMode}))
	}

	app.Use(fiberlogger.New(fiberlogger.Config{
		Config:    cfg.Log,
		SkipPaths: []string{health.Path, health.MetricsPath},
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins(cfg.Webserver.CORSAllowOrigins),
		AllowMethods: strings.Join([]string{fiber.MethodGet, fiber.MethodPost, fiber.MethodOptions}, ","),
		AllowHeaders: strings.Join([]string{
			fiber.HeaderOrigin, fiber.HeaderContentType, fiber.HeaderAccept, fiber.HeaderAuthorization,
		}, ","),
	}))

	if cfg.Webserver.Limiter.Enabled {
		app.Use(APIPrefix, newLimiter(cfg.Webserver.Limiter, storage))
	}

	for name, h := range map[string]handler.Service{
		"login":   &login.Service{},
		"gateway": &gateway.Service{},
		"health":  &health.Service{},
	} {
		if err := h.Init(app, cfg, deps); err != nil {
			log.Fatal().Err(err).Str("handler", name).Msg("init handler")
		}
	}

	return service
}

func corsOrigins(origins string) string {
	if strings.TrimSpace(origins) == "" {
		return "*"
	}

	return origins
}

func newLimiter(cfg config.Limiter, storage fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        cfg.Max,
		Expiration: time.Duration(cfg.Expiration) * time.Second,
		Storage:    storage,
		LimitReached: func(c *fiber.Ctx) error {
			log.Warn().Str("IP", c.IP()).Msg("rate limit reached")

			return handler.Fail(c, fiber.StatusTooManyRequests, "Too many requests, please try again later")
		},
	})
}
