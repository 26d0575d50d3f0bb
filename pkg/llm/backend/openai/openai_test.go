package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/papercomputeco/recall/pkg/llm"
	"github.com/papercomputeco/recall/pkg/llm/backend"
)

type fakeDecoder struct {
	events []ssestream.Event
	idx    int
	err    error
	closed bool
}

func (d *fakeDecoder) Next() bool {
	if d.idx >= len(d.events) {
		return false
	}
	d.idx++
	return true
}

func (d *fakeDecoder) Event() ssestream.Event {
	if d.idx == 0 || d.idx > len(d.events) {
		return ssestream.Event{}
	}
	return d.events[d.idx-1]
}

func (d *fakeDecoder) Close() error { d.closed = true; return nil }
func (d *fakeDecoder) Err() error   { return d.err }

type fakeCompletions struct {
	params     openai.ChatCompletionNewParams
	completion *openai.ChatCompletion
	err        error
	stream     *ssestream.Stream[openai.ChatCompletionChunk]
}

func (f *fakeCompletions) New(_ context.Context, params openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	f.params = params
	return f.completion, f.err
}

func (f *fakeCompletions) NewStreaming(_ context.Context, params openai.ChatCompletionNewParams, _ ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk] {
	f.params = params
	return f.stream
}

func chunk(content string) ssestream.Event {
	data, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion.chunk",
		"model":  "gpt-4o-mini",
		"choices": []map[string]any{
			{"index": 0, "delta": map[string]any{"content": content}},
		},
	})
	return ssestream.Event{Data: data}
}

func apiError(status int) error {
	return &openai.Error{
		StatusCode: status,
		Request:    httptest.NewRequest(http.MethodPost, "/chat/completions", nil),
		Response:   &http.Response{StatusCode: status},
	}
}

var _ = Describe("OpenAI backend", func() {
	var fake *fakeCompletions

	BeforeEach(func() {
		fake = &fakeCompletions{}
	})

	It("requires an api key", func() {
		_, err := New(Config{})
		Expect(err).To(HaveOccurred())
	})

	It("defaults the model", func() {
		b, err := New(Config{APIKey: "sk-test"})
		Expect(err).NotTo(HaveOccurred())
		Expect(b.model).To(Equal(DefaultModel))
		Expect(b.Name()).To(Equal("openai"))
	})

	Describe("Generate", func() {
		It("builds params from request defaults", func() {
			var completion openai.ChatCompletion
			Expect(json.Unmarshal([]byte(`{
				"id": "chatcmpl-1",
				"object": "chat.completion",
				"model": "gpt-4o",
				"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "hello there"}}],
				"usage": {"prompt_tokens": 7, "completion_tokens": 2, "total_tokens": 9}
			}`), &completion)).To(Succeed())
			fake.completion = &completion

			b := newWithCompletions(fake, "gpt-4o")
			resp, err := b.Generate(context.Background(), llm.GenerationRequest{
				System: "be brief",
				Prompt: "hi",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Text).To(Equal("hello there"))
			Expect(resp.Model).To(Equal("openai/gpt-4o"))
			Expect(resp.StopReason).To(Equal("stop"))
			Expect(resp.Usage.TotalTokens).To(Equal(9))

			Expect(fake.params.Model).To(Equal(shared.ChatModel("gpt-4o")))
			Expect(fake.params.Messages).To(HaveLen(2))
			Expect(fake.params.Messages[0].OfSystem).NotTo(BeNil())
			Expect(fake.params.Messages[1].OfUser).NotTo(BeNil())
			Expect(fake.params.MaxCompletionTokens.Value).To(Equal(int64(llm.DefaultMaxTokens)))
			Expect(fake.params.Temperature.Value).To(Equal(llm.DefaultTemperature))
		})

		It("omits the system message when empty", func() {
			fake.completion = &openai.ChatCompletion{}
			b := newWithCompletions(fake, "")
			_, err := b.Generate(context.Background(), llm.GenerationRequest{Prompt: "hi", MaxTokens: 500, Temperature: llm.Float(0)})
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.params.Messages).To(HaveLen(1))
			Expect(fake.params.MaxCompletionTokens.Value).To(Equal(int64(500)))
			Expect(fake.params.Temperature.Value).To(Equal(0.0))
		})

		It("classifies API errors", func() {
			fake.err = apiError(http.StatusTooManyRequests)
			b := newWithCompletions(fake, "")
			_, err := b.Generate(context.Background(), llm.GenerationRequest{Prompt: "hi"})
			Expect(errors.Is(err, backend.ErrUnavailable)).To(BeTrue())

			var be *backend.Error
			Expect(errors.As(err, &be)).To(BeTrue())
			Expect(be.StatusCode).To(Equal(http.StatusTooManyRequests))
			Expect(be.Backend).To(Equal(Name))
		})
	})

	Describe("Stream", func() {
		It("yields content deltas in order", func() {
			dec := &fakeDecoder{events: []ssestream.Event{
				chunk("Hel"), chunk(""), chunk("lo"), {Data: []byte("[DONE]")},
			}}
			fake.stream = ssestream.NewStream[openai.ChatCompletionChunk](dec, nil)

			b := newWithCompletions(fake, "")
			s, err := b.Stream(context.Background(), llm.GenerationRequest{Prompt: "hi"})
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Model()).To(Equal("openai/" + DefaultModel))

			text, err := s.Collect()
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Hello"))
			Expect(dec.closed).To(BeTrue())
		})

		It("fails to open when the request failed", func() {
			fake.stream = ssestream.NewStream[openai.ChatCompletionChunk](&fakeDecoder{}, apiError(http.StatusServiceUnavailable))

			b := newWithCompletions(fake, "")
			_, err := b.Stream(context.Background(), llm.GenerationRequest{Prompt: "hi"})
			Expect(backend.IsRetryable(err)).To(BeTrue())
		})

		It("surfaces mid-stream errors through Err", func() {
			dec := &fakeDecoder{events: []ssestream.Event{chunk("partial")}, err: errors.New("connection reset")}
			fake.stream = ssestream.NewStream[openai.ChatCompletionChunk](dec, nil)

			b := newWithCompletions(fake, "")
			s, err := b.Stream(context.Background(), llm.GenerationRequest{Prompt: "hi"})
			Expect(err).NotTo(HaveOccurred())

			text, err := s.Collect()
			Expect(text).To(Equal("partial"))
			Expect(errors.Is(err, backend.ErrUnavailable)).To(BeTrue())
		})
	})
})
