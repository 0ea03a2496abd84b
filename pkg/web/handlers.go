package web

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-wayfinder/pkg/hub"
	"github.com/teslashibe/go-wayfinder/pkg/scene"
)

// ModeRequest is the body of POST /api/mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// QuestionRequest is the body of POST /api/question.
type QuestionRequest struct {
	Question string `json:"question"`
}

// QuestionResponse is the reply to POST /api/question.
type QuestionResponse struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.backend.Status())
}

// handleAnnouncements returns the newest journal entries, newest first.
func (s *Server) handleAnnouncements(c *fiber.Ctx) error {
	if s.history == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "announcement journal not configured")
	}

	limit := c.QueryInt("limit", 50)
	if limit <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be positive")
	}
	limit = min(limit, s.config.HistoryLimit)

	entries, err := s.history.Recent(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return c.JSON(entries)
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	if s.history == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "announcement journal not configured")
	}
	counts, err := s.history.Counts(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(counts)
}

func (s *Server) handleMode(c *fiber.Ctx) error {
	var req ModeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	mode, err := scene.ParseMode(req.Mode)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	s.backend.SetMode(mode)
	s.publish(hub.KindMode, fiber.Map{"mode": mode})
	return c.JSON(fiber.Map{"mode": mode})
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	s.backend.Reset()
	s.publish(hub.KindReset, nil)
	return c.JSON(fiber.Map{"status": "reset"})
}

func (s *Server) handleQuestion(c *fiber.Ctx) error {
	var req QuestionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	q := strings.TrimSpace(req.Question)
	if q == "" {
		return fiber.NewError(fiber.StatusBadRequest, "question is required")
	}

	answer := s.backend.AnswerQuestion(c.UserContext(), q)
	return c.JSON(QuestionResponse{Question: q, Answer: answer})
}

func (s *Server) publish(kind string, v any) {
	if err := s.hub.Publish(kind, v); err != nil {
		s.logger.Warn("publish failed", "kind", kind, "error", err)
	}
}
