// Package devserver implements the auth and media REST services for local
// development and end-to-end tests.
package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/filedeck/filedeck/internal/devserver/config"
	"github.com/filedeck/filedeck/internal/devserver/handlers"
	"github.com/filedeck/filedeck/internal/devserver/middleware"
	"github.com/filedeck/filedeck/internal/devserver/services"
	"github.com/filedeck/filedeck/internal/devserver/storage"
	"github.com/filedeck/filedeck/internal/devserver/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Server struct {
	cfg  config.Config
	deps handlers.Deps
	auth *middleware.Auth
	log  *slog.Logger
}

type options struct {
	mail services.Mailer
	log  *slog.Logger
	now  func() time.Time
}

type Option func(*options)

func WithMailer(m services.Mailer) Option { return func(o *options) { o.mail = m } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.log = l } }

// WithClock replaces time.Now for token and link expiry checks.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

func New(cfg config.Config, db *gorm.DB, blobs storage.Blobs, opts ...Option) *Server {
	o := options{log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.mail == nil {
		o.mail = services.LogMailer{Log: o.log}
	}
	tokens := utils.NewTokens(cfg.JWT, o.now)
	deps := handlers.Deps{
		Config: cfg,
		DB:     db,
		Blobs:  blobs,
		Mail:   o.mail,
		Log:    o.log,
		Tokens: tokens,
		Now:    o.now,
	}
	return &Server{
		cfg:  cfg,
		deps: deps,
		auth: middleware.NewAuth(db, tokens, o.log),
		log:  o.log,
	}
}

func (s *Server) newApp(service string) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "filedeck-" + service,
		BodyLimit:             s.cfg.BodyLimit,
		ErrorHandler:          utils.ErrorHandler(s.log),
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID, " + api.AccessGrantHeader,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowCredentials: true,
	}))
	app.Use(middleware.Metrics(service))
	app.Use(middleware.RequestLogger(s.log, service))
	app.Use(middleware.SecurityLogger(s.log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/version", func(c *fiber.Ctx) error {
		return c.JSON(api.VersionInfo{Version: s.cfg.Version})
	})
	app.Get("/metrics", middleware.MetricsHandler())
	return app
}

// AuthApp serves the authentication service.
func (s *Server) AuthApp() *fiber.App {
	app := s.newApp("auth")
	handlers.RegisterAuthRoutes(app, s.deps, s.auth)
	return app
}

// MediaApp serves the media service.
func (s *Server) MediaApp() *fiber.App {
	app := s.newApp("media")
	handlers.RegisterMediaRoutes(app, s.deps, s.auth)
	return app
}

// Run serves both apps until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	authApp, mediaApp := s.AuthApp(), s.MediaApp()

	g, ctx := errgroup.WithContext(ctx)
	serve := func(app *fiber.App, service, addr string) {
		g.Go(func() error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			s.log.Info("server_starting", "service", service, "address", addr)
			return app.Listener(ln)
		})
	}
	serve(authApp, "auth", s.cfg.AuthAddr)
	serve(mediaApp, "media", s.cfg.MediaAddr)

	g.Go(func() error {
		<-ctx.Done()
		s.log.Info("server_stopping")
		return errors.Join(
			authApp.ShutdownWithTimeout(10*time.Second),
			mediaApp.ShutdownWithTimeout(10*time.Second),
		)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
