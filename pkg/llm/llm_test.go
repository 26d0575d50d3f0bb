package llm_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/llm"
)

var _ = Describe("GenerationRequest", func() {
	It("fills unset parameters with service defaults", func() {
		req := llm.GenerationRequest{Prompt: "hi"}.WithDefaults()
		Expect(req.Task).To(Equal(llm.TaskQuery))
		Expect(*req.Temperature).To(BeNumerically("==", llm.DefaultTemperature))
		Expect(req.MaxTokens).To(Equal(llm.DefaultMaxTokens))
	})

	It("keeps caller-supplied parameters", func() {
		req := llm.GenerationRequest{
			Task:        llm.TaskExtract,
			Temperature: llm.Float(0),
			MaxTokens:   llm.ShortFormMaxTokens,
		}.WithDefaults()
		Expect(req.Task).To(Equal(llm.TaskExtract))
		Expect(*req.Temperature).To(BeZero())
		Expect(req.MaxTokens).To(Equal(500))
	})
})

var _ = Describe("LastOfRole", func() {
	It("returns the last message with the role", func() {
		msgs := []llm.Message{
			llm.NewTextMessage(llm.RoleSystem, "You are X"),
			llm.NewTextMessage(llm.RoleUser, "hi"),
			llm.NewTextMessage(llm.RoleUser, "bye"),
		}
		text, ok := llm.LastOfRole(msgs, llm.RoleUser)
		Expect(ok).To(BeTrue())
		Expect(text).To(Equal("bye"))
	})

	It("reports a missing role", func() {
		_, ok := llm.LastOfRole([]llm.Message{llm.NewTextMessage(llm.RoleAssistant, "x")}, llm.RoleUser)
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Stream", func() {
	It("yields non-empty fragments in order", func() {
		s := llm.NewSliceStream("fake/model", "a", "", "b")
		var got []string
		for s.Next() {
			got = append(got, s.Text())
		}
		Expect(got).To(Equal([]string{"a", "b"}))
		Expect(s.Err()).NotTo(HaveOccurred())
		Expect(s.Model()).To(Equal("fake/model"))
	})

	It("is not restartable", func() {
		s := llm.NewSliceStream("m", "a")
		text, err := s.Collect()
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("a"))
		Expect(s.Next()).To(BeFalse())
	})

	It("runs finish hooks once with the terminal error", func() {
		boom := errors.New("boom")
		calls := 0
		s := llm.NewStream("m", func() (string, bool, error) { return "", false, boom }, nil)
		var seen error
		s.OnFinish(func(err error) { calls++; seen = err })

		Expect(s.Next()).To(BeFalse())
		Expect(s.Next()).To(BeFalse())
		Expect(calls).To(Equal(1))
		Expect(seen).To(MatchError(boom))
	})

	It("treats Close before draining as abandonment", func() {
		closed := false
		finished := false
		s := llm.NewStream("m", func() (string, bool, error) { return "x", true, nil }, func() error {
			closed = true
			return nil
		})
		s.OnFinish(func(error) { finished = true })

		Expect(s.Next()).To(BeTrue())
		Expect(s.Close()).To(Succeed())
		Expect(s.Abandoned()).To(BeTrue())
		Expect(s.Err()).NotTo(HaveOccurred())
		Expect(closed).To(BeTrue())
		Expect(finished).To(BeFalse())
		Expect(s.Next()).To(BeFalse())
	})
})
