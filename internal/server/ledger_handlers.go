package server

import (
	"talk/internal/models"
	"talk/internal/service"

	"github.com/gofiber/fiber/v2"
)

type postMessageRequest struct {
	ID      uint64 `json:"id"`
	ReplyTo uint64 `json:"reply_to"`
	Author  string `json:"author"`
	Content string `json:"content"`
}

type toggleLikeRequest struct {
	ID     uint64 `json:"id"`
	PostID uint64 `json:"post_id"`
	Liker  string `json:"liker"`
}

// PostMessage handles POST /api/v1/messages
func (s *Server) PostMessage(c *fiber.Ctx) error {
	var req postMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, models.NewInvalidArgumentError("Invalid request body"))
	}

	msg, err := s.ledger.Post(c.UserContext(), service.PostInput{
		ID:      req.ID,
		ReplyTo: req.ReplyTo,
		Author:  req.Author,
		Content: req.Content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// ToggleLike handles POST /api/v1/likes
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	var req toggleLikeRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, models.NewInvalidArgumentError("Invalid request body"))
	}

	result, err := s.ledger.Like(c.UserContext(), service.LikeInput{
		ID:     req.ID,
		PostID: req.PostID,
		Liker:  req.Liker,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// GetMessage handles GET /api/v1/messages/:id
func (s *Server) GetMessage(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	msg, err := s.ledger.GetMessage(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(msg)
}

// GetUser handles GET /api/v1/users/:identity
func (s *Server) GetUser(c *fiber.Ctx) error {
	user, err := s.ledger.GetUser(c.UserContext(), c.Params("identity"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// VerifyMessageLikes handles GET /api/v1/messages/:id/likes/verify?expected=N
func (s *Server) VerifyMessageLikes(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	expected, err := parseExpected(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := s.ledger.VerifyMessageLikes(c.UserContext(), id, expected); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// VerifyUserLikes handles GET /api/v1/users/:identity/liked/verify?expected=N
func (s *Server) VerifyUserLikes(c *fiber.Ctx) error {
	identity := c.Params("identity")
	expected, err := parseExpected(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := s.ledger.VerifyUserLikes(c.UserContext(), identity, expected); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
