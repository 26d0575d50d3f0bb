package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/llm"
	"github.com/papercomputeco/recall/pkg/llm/backend"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/metrics"
	"github.com/papercomputeco/recall/pkg/processor"
	"github.com/papercomputeco/recall/pkg/query"
	"github.com/papercomputeco/recall/pkg/router"
	"github.com/papercomputeco/recall/pkg/sse"
	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/recall/pkg/utils/test"
)

type testServer struct {
	server    *Server
	mem       *testutils.MockMemoryDriver
	store     *inmemory.Driver
	collector *metrics.Collector
}

func newTestServer(cfg Config, backends ...backend.Backend) *testServer {
	names := make([]string, 0, len(backends))
	for _, b := range backends {
		names = append(names, b.Name())
	}
	r, err := router.New(router.Table{llm.TaskQuery: names}, backends...)
	Expect(err).NotTo(HaveOccurred())

	ts := &testServer{
		mem:       testutils.NewMockMemoryDriver("Deadline is Friday"),
		store:     inmemory.NewDriver(),
		collector: metrics.NewCollector(),
	}

	proc, err := processor.New(processor.Config{
		Handler: query.NewHandler(query.Config{
			Retriever: memory.NewRetriever(ts.mem, 0, logger.Nop()),
			Router:    r,
			Logger:    logger.Nop(),
		}),
		Router:  r,
		Metrics: ts.collector,
		Storage: ts.store,
		Logger:  logger.Nop(),
	})
	Expect(err).NotTo(HaveOccurred())

	cfg.MemoryDriver = ts.mem
	cfg.Storage = ts.store
	ts.server, err = NewServer(cfg, proc, logger.Nop())
	Expect(err).NotTo(HaveOccurred())
	return ts
}

func (ts *testServer) do(method, path string, body any) (*http.Response, []byte) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.server.app.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, data
}

func unavailable(name string) error {
	return backend.Classify(name, 503, errors.New("service unavailable"))
}

func chatBody(messages ...llm.Message) processor.ChatRequest {
	return processor.ChatRequest{UserID: "u1", GroupID: "g1", Messages: messages}
}

var _ = Describe("Server", func() {
	It("requires a processor and logger", func() {
		_, err := NewServer(Config{}, nil, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("processor is required")))
	})

	It("answers ping", func() {
		ts := newTestServer(Config{}, testutils.NewMockBackend("primary", "ok"))
		resp, body := ts.do(http.MethodGet, "/ping", nil)
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		Expect(string(body)).To(Equal(`"pong"`))
	})

	It("mounts the MCP endpoint unless disabled", func() {
		ts := newTestServer(Config{}, testutils.NewMockBackend("primary", "ok"))
		resp, _ := ts.do(http.MethodPost, "/mcp", nil)
		Expect(resp.StatusCode).NotTo(Equal(fiber.StatusNotFound))

		ts = newTestServer(Config{DisableMCP: true}, testutils.NewMockBackend("primary", "ok"))
		resp, _ = ts.do(http.MethodPost, "/mcp", nil)
		Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
	})

	Describe("POST /v1/messages", func() {
		msg := processor.InboundMessage{
			Platform:          "telegram",
			PlatformMessageID: "42",
			UserID:            "u1",
			GroupID:           "g1",
			Content:           "What is the deadline?",
		}

		It("returns the success outcome", func() {
			ts := newTestServer(Config{}, testutils.NewMockBackend("primary", "Friday."))

			resp, body := ts.do(http.MethodPost, "/v1/messages", msg)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out processor.Outcome
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Status).To(Equal(processor.StatusSuccess))
			Expect(out.Text).To(Equal("Friday."))
			Expect(out.Model).To(Equal("primary"))
		})

		It("answers from the fallback backend", func() {
			ts := newTestServer(Config{},
				testutils.NewFailingBackend("primary", unavailable("primary")),
				testutils.NewMockBackend("secondary", "Friday."),
			)

			resp, body := ts.do(http.MethodPost, "/v1/messages", msg)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out processor.Outcome
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Model).To(Equal("secondary"))
			Expect(ts.collector.Get().TotalRetries).To(Equal(int64(1)))
		})

		It("returns 502 with a generic reason when every backend fails", func() {
			ts := newTestServer(Config{}, testutils.NewFailingBackend("primary", unavailable("primary")))

			resp, body := ts.do(http.MethodPost, "/v1/messages", msg)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadGateway))

			var out processor.Outcome
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Status).To(Equal(processor.StatusFailure))
			Expect(out.Reason).To(Equal(processor.ReasonGenerationFailed))
			Expect(string(body)).NotTo(ContainSubstring("service unavailable"))
		})

		It("rejects messages without an identity", func() {
			ts := newTestServer(Config{}, testutils.NewMockBackend("primary", "ok"))

			resp, _ := ts.do(http.MethodPost, "/v1/messages", processor.InboundMessage{Content: "hi"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(ts.collector.Get().TotalProcessed).To(BeZero())
		})

		It("returns 504 when the request timeout expires", func() {
			slow := testutils.NewMockBackend("primary", "")
			slow.GenerateFunc = func(ctx context.Context, _ llm.GenerationRequest) (*llm.GenerationResponse, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			ts := newTestServer(Config{RequestTimeout: 20 * time.Millisecond}, slow)

			resp, _ := ts.do(http.MethodPost, "/v1/messages", msg)
			Expect(resp.StatusCode).To(Equal(fiber.StatusGatewayTimeout))
		})
	})

	Describe("POST /v1/chat", func() {
		It("answers the last user message", func() {
			primary := testutils.NewMockBackend("primary", "See you!")
			ts := newTestServer(Config{}, primary)

			resp, body := ts.do(http.MethodPost, "/v1/chat", chatBody(
				llm.NewTextMessage(llm.RoleUser, "hi"),
				llm.NewTextMessage(llm.RoleAssistant, "hello"),
				llm.NewTextMessage(llm.RoleUser, "bye"),
			))
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(string(body)).To(MatchJSON(`{"response_text":"See you!","model_name":"primary"}`))

			reqs := primary.Requests()
			Expect(reqs).To(HaveLen(1))
			Expect(reqs[0].Prompt).To(Equal("bye"))
		})

		It("returns 400 without touching metrics when there is no user message", func() {
			ts := newTestServer(Config{}, testutils.NewMockBackend("primary", "ok"))

			resp, body := ts.do(http.MethodPost, "/v1/chat", chatBody(
				llm.NewTextMessage(llm.RoleSystem, "You are X"),
			))
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(string(body)).To(ContainSubstring(processor.ErrNoUserMessage.Error()))
			Expect(ts.collector.Get()).To(Equal(metrics.Snapshot{}))
		})

		It("returns 502 when generation fails", func() {
			ts := newTestServer(Config{}, testutils.NewFailingBackend("primary", unavailable("primary")))

			resp, _ := ts.do(http.MethodPost, "/v1/chat", chatBody(llm.NewTextMessage(llm.RoleUser, "hi")))
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadGateway))
			Expect(ts.collector.Get().TotalFailed).To(Equal(int64(1)))
		})

		It("rejects malformed bodies", func() {
			ts := newTestServer(Config{}, testutils.NewMockBackend("primary", "ok"))

			req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewBufferString("{"))
			req.Header.Set("Content-Type", "application/json")
			resp, err := ts.server.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("POST /v1/chat/stream", func() {
		readEvents := func(body []byte) []sse.Event {
			r := sse.NewReader(bytes.NewReader(body))
			var events []sse.Event
			for {
				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				if ev == nil {
					return events
				}
				events = append(events, *ev)
			}
		}

		It("streams fragments then a done event", func() {
			primary := testutils.NewMockBackend("primary", "")
			primary.Fragments = []string{"Fri", "day."}
			ts := newTestServer(Config{}, primary)

			resp, body := ts.do(http.MethodPost, "/v1/chat/stream", chatBody(llm.NewTextMessage(llm.RoleUser, "When?")))
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))

			events := readEvents(body)
			Expect(events).To(HaveLen(3))
			Expect(events[0].Data).To(Equal("Fri"))
			Expect(events[1].Data).To(Equal("day."))
			Expect(events[2].Type).To(Equal(sse.EventDone))
			Expect(events[2].Data).To(MatchJSON(`{"model_name":"primary"}`))

			Eventually(func() int64 { return ts.collector.Get().TotalProcessed }).Should(Equal(int64(1)))
			Eventually(func() ([]*storage.Message, error) {
				return ts.store.ListMessages(context.Background(), storage.Filter{})
			}).Should(HaveLen(1))
		})

		It("returns 400 before streaming when there is no user message", func() {
			ts := newTestServer(Config{}, testutils.NewMockBackend("primary", "ok"))

			resp, _ := ts.do(http.MethodPost, "/v1/chat/stream", chatBody())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("returns 502 when no backend opens a stream", func() {
			ts := newTestServer(Config{}, testutils.NewFailingBackend("primary", unavailable("primary")))

			resp, _ := ts.do(http.MethodPost, "/v1/chat/stream", chatBody(llm.NewTextMessage(llm.RoleUser, "hi")))
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadGateway))
		})
	})

	Describe("metrics", func() {
		It("reports and resets the counters", func() {
			ts := newTestServer(Config{}, testutils.NewMockBackend("primary", "ok"))
			ts.collector.IncProcessed()
			ts.collector.IncFailed()

			resp, body := ts.do(http.MethodGet, "/v1/metrics", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(string(body)).To(MatchJSON(`{
				"totalProcessed": 1,
				"totalFailed": 1,
				"totalRetries": 0,
				"successRate": 50,
				"avgRetriesPerMessage": 0
			}`))

			resp, body = ts.do(http.MethodPost, "/v1/metrics/reset", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(string(body)).To(MatchJSON(`{"success": true}`))
			Expect(ts.collector.Get()).To(Equal(metrics.Snapshot{}))
		})
	})

	Describe("GET /v1/memories", func() {
		It("lists memories for a scope", func() {
			ts := newTestServer(Config{}, testutils.NewMockBackend("primary", "ok"))
			_, err := ts.mem.Add(context.Background(), memory.Scope{UserID: "u1", GroupID: "g1"}, "Prefers email", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, body := ts.do(http.MethodGet, "/v1/memories?user_id=u1&group_id=g1", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out struct {
				Count    int           `json:"count"`
				Memories []memory.Item `json:"memories"`
			}
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Count).To(Equal(1))
			Expect(out.Memories[0].Text).To(Equal("Prefers email"))
		})

		It("requires user_id", func() {
			ts := newTestServer(Config{}, testutils.NewMockBackend("primary", "ok"))
			resp, _ := ts.do(http.MethodGet, "/v1/memories", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("rejects a bad limit", func() {
			ts := newTestServer(Config{}, testutils.NewMockBackend("primary", "ok"))
			resp, _ := ts.do(http.MethodGet, "/v1/memories?user_id=u1&limit=-2", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("audit log", func() {
		var ts *testServer

		BeforeEach(func() {
			ts = newTestServer(Config{}, testutils.NewMockBackend("primary", "Friday."))
			resp, _ := ts.do(http.MethodPost, "/v1/messages", processor.InboundMessage{
				Platform:          "slack",
				PlatformMessageID: "m1",
				UserID:            "u1",
				GroupID:           "g1",
				Content:           "What is the deadline?",
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		})

		It("lists processed messages", func() {
			resp, body := ts.do(http.MethodGet, "/v1/messages?user_id=u1", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out struct {
				Count    int                `json:"count"`
				Messages []*storage.Message `json:"messages"`
			}
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Count).To(Equal(1))
			Expect(out.Messages[0].Response).To(Equal("Friday."))
		})

		It("gets a message by platform identity", func() {
			resp, body := ts.do(http.MethodGet, "/v1/messages/slack/m1", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var msg storage.Message
			Expect(json.Unmarshal(body, &msg)).To(Succeed())
			Expect(msg.Content).To(Equal("What is the deadline?"))
		})

		It("returns 404 for unknown messages", func() {
			resp, _ := ts.do(http.MethodGet, "/v1/messages/slack/nope", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})
})
