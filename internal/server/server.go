// Package server exposes the query pipeline and document catalog over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/perspectives-ai/rag/internal/app"
	"github.com/perspectives-ai/rag/internal/domain"
)

// QueryRequest is the body of POST /api/chat/query
type QueryRequest struct {
	Query      string `json:"query"`
	MaxResults *int   `json:"max_results"`
}

// DocumentsResponse lists the catalog
type DocumentsResponse struct {
	Documents []*domain.Document `json:"documents"`
	Count     int                `json:"count"`
}

// Server is the HTTP front end of an App
type Server struct {
	app    *app.App
	fiber  *fiber.App
	logger *slog.Logger
}

// New builds the routes. Access logs go to accessLog; nil disables them.
func New(a *app.App, accessLog io.Writer) *Server {
	s := &Server{app: a, logger: a.Logger}

	s.fiber = fiber.New(fiber.Config{
		AppName:               "perspectives-ai",
		ReadTimeout:           a.Config.Server.ReadTimeout,
		WriteTimeout:          a.Config.Server.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.fiber.Use(recover.New())
	if accessLog != nil {
		s.fiber.Use(logger.New(logger.Config{Output: accessLog}))
	}

	s.fiber.Get("/health", s.health)

	api := s.fiber.Group("/api")
	api.Post("/chat/query", s.query)
	api.Get("/chat/status", s.status)
	api.Get("/chat/documents", s.documents)
	api.Get("/documents", s.documents)

	return s
}

// Handler returns the underlying fiber app
func (s *Server) Handler() *fiber.App {
	return s.fiber
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- s.fiber.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.app.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s.logger.Info("shutting down http server", "timeout", timeout)
	if err := s.fiber.ShutdownWithTimeout(timeout); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) query(c *fiber.Ctx) error {
	var req QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	q := domain.Query{Text: req.Query, MaxResults: s.app.Config.Processing.TopK, Timestamp: time.Now()}
	if req.MaxResults != nil {
		q.MaxResults = *req.MaxResults
	}

	answer, err := s.app.Pipeline.Ask(c.UserContext(), q)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidQuery) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return err
	}
	return c.JSON(answer)
}

func (s *Server) status(c *fiber.Ctx) error {
	st, err := s.app.Status(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(st)
}

func (s *Server) documents(c *fiber.Ctx) error {
	docs, err := s.app.Catalog.ListDocuments(c.UserContext())
	if err != nil {
		return err
	}
	if docs == nil {
		docs = []*domain.Document{}
	}
	return c.JSON(DocumentsResponse{Documents: docs, Count: len(docs)})
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy", "timestamp": time.Now().UTC()})
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
