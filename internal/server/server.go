// Package server exposes the application flows over HTTP: a single HTML page
// plus a small JSON API. Each browser gets its own session via a cookie.
package server

import (
	"bytes"
	"errors"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/KaramelBytes/insightcopilot/internal/app"
	"github.com/KaramelBytes/insightcopilot/internal/logger"
	"github.com/KaramelBytes/insightcopilot/internal/session"
)

const (
	module     = "server"
	cookieName = "sid"
)

// Options configures the HTTP server.
type Options struct {
	Addr        string
	UploadLimit int // bytes
}

type Server struct {
	app   *fiber.App
	svc   *app.Service
	store *session.Store
	log   logger.ILogger
	opt   Options
	md    goldmark.Markdown
}

func New(svc *app.Service, store *session.Store, log logger.ILogger, opt Options) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	if opt.UploadLimit <= 0 {
		opt.UploadLimit = 50 * 1024 * 1024
	}
	s := &Server{
		svc:   svc,
		store: store,
		log:   log,
		opt:   opt,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
	s.app = fiber.New(fiber.Config{
		BodyLimit:             opt.UploadLimit,
		ErrorHandler:          s.handleError,
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Minute,
	})
	s.app.Use(recover.New())
	// OpenTelemetry tracing middleware (traces all HTTP requests)
	s.app.Use(otelfiber.Middleware())
	s.registerRoutes()
	return s
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	s.log.Info(module, "server listening", map[string]any{"addr": s.opt.Addr})
	return s.app.Listen(s.opt.Addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) registerRoutes() {
	s.app.Get("/", s.Index)

	api := s.app.Group("/api")
	api.Get("/session", s.Session)
	api.Delete("/session", s.EndSession)
	api.Post("/upload", s.Upload)
	api.Get("/preview", s.Preview)
	api.Get("/summary", s.Summary)
	api.Post("/insights", s.Insights)
	api.Post("/ask", s.Ask)
	api.Post("/chart/suggest", s.SuggestChart)
	api.Post("/chart", s.Chart)
	api.Get("/chart.svg", s.ChartSVG)
	api.Get("/chart.html", s.ChartHTML)
}

// session returns the caller's session, creating one (and its cookie) when needed.
func (s *Server) session(c *fiber.Ctx) *session.Session {
	// c.Cookies aliases a request buffer fiber reuses
	id := utils.CopyString(c.Cookies(cookieName))
	sess := s.store.GetOrCreate(id)
	if sess.ID != id {
		c.Cookie(&fiber.Cookie{
			Name:     cookieName,
			Value:    sess.ID,
			Path:     "/",
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
	return sess
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}
	if code >= 500 {
		s.log.Error(module, "request failed", map[string]any{"path": c.Path(), "error": err})
	}
	return c.Status(code).JSON(app.Notice{Level: app.LevelError, Message: msg})
}

func (s *Server) render(markdown string) string {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(markdown), &buf); err != nil {
		s.log.Warn(module, "markdown render failed", map[string]any{"error": err})
		return ""
	}
	return buf.String()
}
