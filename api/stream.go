package api

import (
	"encoding/json"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/recall/pkg/llm"
	"github.com/papercomputeco/recall/pkg/processor"
	"github.com/papercomputeco/recall/pkg/sse"
)

// StreamDone is the payload of the final "done" event.
type StreamDone struct {
	Model string `json:"model_name"`
}

// handleChatStream answers a web-chat request as server-sent events: one
// data event per fragment, then a "done" event naming the model, or an
// "error" event if generation fails part way.
func (s *Server) handleChatStream(c *fiber.Ctx) error {
	var req processor.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := s.requestContext(c)

	stream, model, err := s.processor.StreamChat(ctx, req)
	if err != nil {
		cancel()
		return s.chatError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// io.Pipe rather than SetBodyStreamWriter: pw.Write blocks until fasthttp
	// has flushed the previous chunk, so fragments reach the client as they
	// are generated. A failed write means the client is gone.
	pr, pw := io.Pipe()
	go func() {
		defer cancel()
		defer pw.Close()
		s.pipeStream(pw, stream, model)
	}()

	c.Context().Response.SetBodyStream(pr, -1)
	return nil
}

func (s *Server) pipeStream(pw *io.PipeWriter, stream *llm.Stream, model string) {
	defer stream.Close()

	w := sse.NewWriter(pw)
	for stream.Next() {
		if err := w.WriteData(stream.Text()); err != nil {
			s.logger.Debug("client disconnected mid-stream", "backend", model, "error", err)
			return
		}
	}

	if err := stream.Err(); err != nil {
		data, _ := json.Marshal(ErrorResponse{Error: processor.ErrGenerationFailed.Error()})
		_ = w.WriteEvent(sse.Event{Type: sse.EventError, Data: string(data)})
		return
	}

	data, _ := json.Marshal(StreamDone{Model: model})
	_ = w.WriteEvent(sse.Event{Type: sse.EventDone, Data: string(data)})
}
