package api

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/processor"
	"github.com/papercomputeco/recall/pkg/storage"
)

const maxListLimit = 500

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleMessage processes one inbound platform message.
func (s *Server) handleMessage(c *fiber.Ctx) error {
	var msg processor.InboundMessage
	if err := c.BodyParser(&msg); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}
	if msg.Platform == "" || msg.PlatformMessageID == "" || msg.UserID == "" {
		return errorJSON(c, fiber.StatusBadRequest, "platform, platform_message_id and user_id are required")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	out := s.processor.Process(ctx, msg)
	switch {
	case out.OK():
		return c.JSON(out)
	case out.Cancelled && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return c.Status(fiber.StatusGatewayTimeout).JSON(out)
	default:
		return c.Status(fiber.StatusBadGateway).JSON(out)
	}
}

// handleChat answers a web-chat request.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req processor.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	res, err := s.processor.ProcessChat(ctx, req)
	if err != nil {
		return s.chatError(c, err)
	}
	return c.JSON(res)
}

// chatError maps web-chat failures to status codes.
func (s *Server) chatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, processor.ErrNoUserMessage):
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return errorJSON(c, fiber.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Debug("chat request failed", "error", err)
		return errorJSON(c, fiber.StatusBadGateway, err.Error())
	}
}

// handleMetrics returns the current pipeline metrics snapshot.
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	return c.JSON(s.processor.Metrics().Get())
}

// handleMetricsReset zeroes every counter.
func (s *Server) handleMetricsReset(c *fiber.Ctx) error {
	s.processor.Metrics().Reset()
	return c.JSON(fiber.Map{"success": true})
}

// handleListMemories returns stored memories for a user and group.
// Query parameters:
//   - user_id (required)
//   - group_id (optional)
//   - limit (optional, default all)
func (s *Server) handleListMemories(c *fiber.Ctx) error {
	if s.config.MemoryDriver == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "memory is not configured")
	}

	scope := memory.Scope{UserID: c.Query("user_id"), GroupID: c.Query("group_id")}
	if scope.UserID == "" {
		return errorJSON(c, fiber.StatusBadRequest, "user_id query parameter is required")
	}

	limit, err := queryLimit(c, 0)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}

	items, err := s.config.MemoryDriver.GetAll(c.UserContext(), scope, limit)
	if err != nil {
		s.logger.Error("failed to list memories", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "failed to list memories")
	}
	if items == nil {
		items = []memory.Item{}
	}

	return c.JSON(fiber.Map{
		"count":    len(items),
		"memories": items,
	})
}

// handleListMessages returns audit log entries, newest first.
func (s *Server) handleListMessages(c *fiber.Ctx) error {
	if s.config.Storage == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "storage is not configured")
	}

	limit, err := queryLimit(c, storage.DefaultListLimit)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}

	msgs, err := s.config.Storage.ListMessages(c.UserContext(), storage.Filter{
		Platform: c.Query("platform"),
		UserID:   c.Query("user_id"),
		GroupID:  c.Query("group_id"),
		Limit:    limit,
	})
	if err != nil {
		s.logger.Error("failed to list messages", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "failed to list messages")
	}
	if msgs == nil {
		msgs = []*storage.Message{}
	}

	return c.JSON(fiber.Map{
		"count":    len(msgs),
		"messages": msgs,
	})
}

// handleGetMessage returns one audit log entry by its platform identity.
func (s *Server) handleGetMessage(c *fiber.Ctx) error {
	if s.config.Storage == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "storage is not configured")
	}

	msg, err := s.config.Storage.GetMessage(c.UserContext(), c.Params("platform"), c.Params("id"))
	if err != nil {
		var nf storage.NotFoundError
		if errors.As(err, &nf) {
			return errorJSON(c, fiber.StatusNotFound, "message not found")
		}
		s.logger.Error("failed to get message", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "failed to get message")
	}

	return c.JSON(msg)
}

// queryLimit parses the optional "limit" query parameter.
func queryLimit(c *fiber.Ctx, def int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, maxListLimit), nil
}
