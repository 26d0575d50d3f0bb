package local

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/memory"
)

var _ = Describe("Local Memory Driver", func() {
	var (
		ctx   context.Context
		scope memory.Scope
	)

	BeforeEach(func() {
		ctx = context.Background()
		scope = memory.Scope{UserID: "u1", GroupID: "g1"}
	})

	Describe("NewDriver", func() {
		It("returns a non-nil driver", func() {
			d := NewDriver(Config{Enabled: true})
			Expect(d).NotTo(BeNil())
			Expect(d.items).NotTo(BeNil())
		})
	})

	Describe("Add", func() {
		It("stores a memory under its scope", func() {
			d := NewDriver(Config{Enabled: true})

			item, err := d.Add(ctx, scope, "  Deadline is Friday ", map[string]any{"source": "chat"})
			Expect(err).NotTo(HaveOccurred())
			Expect(item.ID).NotTo(BeEmpty())
			Expect(item.Text).To(Equal("Deadline is Friday"))
			Expect(item.CreatedAt).NotTo(BeZero())

			Expect(d.items).To(HaveKey(scope.Key()))
			Expect(d.items[scope.Key()]).To(HaveLen(1))
		})

		It("rejects blank text", func() {
			d := NewDriver(Config{Enabled: true})
			_, err := d.Add(ctx, scope, "   ", nil)
			Expect(err).To(MatchError(memory.ErrEmptyText))
		})

		It("is a no-op when disabled", func() {
			d := NewDriver(Config{Enabled: false})
			_, err := d.Add(ctx, scope, "some text", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.items).To(BeEmpty())
		})
	})

	Describe("Search", func() {
		var d *Driver

		BeforeEach(func() {
			d = NewDriver(Config{Enabled: true})
			for _, text := range []string{
				"Deadline is Friday",
				"Budget is $500",
				"Client prefers email",
				"The project deadline moved, budget unchanged",
			} {
				_, err := d.Add(ctx, scope, text, nil)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("ranks by term overlap", func() {
			items, err := d.Search(ctx, scope, "What is the deadline and budget?", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(texts(items)).To(Equal([]string{
				"The project deadline moved, budget unchanged",
				"Deadline is Friday",
				"Budget is $500",
			}))
		})

		It("keeps insertion order between equal scores", func() {
			items, err := d.Search(ctx, scope, "deadline", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(texts(items)).To(Equal([]string{
				"Deadline is Friday",
				"The project deadline moved, budget unchanged",
			}))
		})

		It("respects the limit", func() {
			items, err := d.Search(ctx, scope, "", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(2))
		})

		It("returns nothing for unrelated queries", func() {
			items, err := d.Search(ctx, scope, "weather tomorrow", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(BeEmpty())
		})

		It("isolates scopes", func() {
			items, err := d.Search(ctx, memory.Scope{UserID: "u1", GroupID: "g2"}, "deadline", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(BeEmpty())
		})

		It("returns nil when disabled", func() {
			items, err := NewDriver(Config{}).Search(ctx, scope, "anything", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(BeNil())
		})
	})

	Describe("GetAll", func() {
		It("returns memories in insertion order up to the limit", func() {
			d := NewDriver(Config{Enabled: true})
			for _, text := range []string{"one fact", "two fact", "three fact"} {
				_, _ = d.Add(ctx, scope, text, nil)
			}

			items, err := d.GetAll(ctx, scope, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(texts(items)).To(Equal([]string{"one fact", "two fact"}))

			items, err = d.GetAll(ctx, scope, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(3))
		})

		It("returns a copy so callers cannot mutate internal state", func() {
			d := NewDriver(Config{Enabled: true})
			_, _ = d.Add(ctx, scope, "original fact", map[string]any{"k": "v"})

			items, err := d.GetAll(ctx, scope, 0)
			Expect(err).NotTo(HaveOccurred())
			items[0].Text = "mutated"
			items[0].Metadata["k"] = "changed"

			internal, err := d.GetAll(ctx, scope, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(internal[0].Text).To(Equal("original fact"))
			Expect(internal[0].Metadata["k"]).To(Equal("v"))
		})
	})

	Describe("interface compliance", func() {
		It("satisfies memory.Driver", func() {
			var _ memory.Driver = NewDriver(Config{})
		})
	})
})

func texts(items []memory.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Text
	}
	return out
}
