package semantic_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/embeddings"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/memory/semantic"
	testutils "github.com/papercomputeco/recall/pkg/utils/test"
	"github.com/papercomputeco/recall/pkg/vector"
)

var _ = Describe("Semantic Memory Driver", func() {
	var (
		ctx      context.Context
		embedder *testutils.MockEmbedder
		vectors  *testutils.MockVectorDriver
		driver   *semantic.Driver
		scope    memory.Scope
	)

	BeforeEach(func() {
		ctx = context.Background()
		embedder = testutils.NewMockEmbedder()
		embedder.Embeddings["Deadline is Friday"] = []float32{1, 0, 0}
		embedder.Embeddings["Budget is $500"] = []float32{0, 1, 0}
		embedder.Embeddings["Client prefers email"] = []float32{0, 0, 1}
		embedder.Embeddings["When is it due?"] = []float32{0.9, 0.1, 0}
		vectors = testutils.NewMockVectorDriver()
		scope = memory.Scope{UserID: "u1", GroupID: "g1"}

		var err error
		driver, err = semantic.NewDriver(semantic.Config{Embedder: embedder, Vectors: vectors})
		Expect(err).NotTo(HaveOccurred())

		for _, text := range []string{"Deadline is Friday", "Budget is $500", "Client prefers email"} {
			_, err := driver.Add(ctx, scope, text, map[string]any{"source": "test"})
			Expect(err).NotTo(HaveOccurred())
		}
	})

	It("requires an embedder and a vector store", func() {
		_, err := semantic.NewDriver(semantic.Config{})
		Expect(errors.Is(err, memory.ErrNotConfigured)).To(BeTrue())
	})

	It("stores memories in the scope partition", func() {
		docs, err := vectors.List(ctx, scope.Key(), 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(3))
		Expect(docs[0].Embedding).To(Equal([]float32{1, 0, 0}))
		Expect(docs[0].Metadata).To(HaveKeyWithValue("source", "test"))
	})

	It("returns nearest memories first", func() {
		items, err := driver.Search(ctx, scope, "When is it due?", 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(items).To(HaveLen(2))
		Expect(items[0].Text).To(Equal("Deadline is Friday"))
		Expect(items[1].Text).To(Equal("Budget is $500"))
	})

	It("drops hits below the minimum score", func() {
		strict, err := semantic.NewDriver(semantic.Config{Embedder: embedder, Vectors: vectors, MinScore: 0.5})
		Expect(err).NotTo(HaveOccurred())

		items, err := strict.Search(ctx, scope, "When is it due?", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(items).To(HaveLen(1))
	})

	It("lists the scope for an empty query", func() {
		items, err := driver.Search(ctx, scope, " ", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(items).To(HaveLen(3))
	})

	It("does not return other scopes", func() {
		items, err := driver.Search(ctx, memory.Scope{UserID: "u2", GroupID: "g1"}, "When is it due?", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(items).To(BeEmpty())
	})

	It("propagates embedding failures", func() {
		embedder.FailOn = "boom"
		_, err := driver.Search(ctx, scope, "boom", 5)
		Expect(errors.Is(err, embeddings.ErrEmbedding)).To(BeTrue())

		_, err = driver.Add(ctx, scope, "boom", nil)
		Expect(errors.Is(err, embeddings.ErrEmbedding)).To(BeTrue())
	})

	It("propagates vector store failures", func() {
		vectors.FailQuery = true
		_, err := driver.Search(ctx, scope, "When is it due?", 5)
		Expect(errors.Is(err, vector.ErrConnection)).To(BeTrue())
	})

	It("rejects empty text", func() {
		_, err := driver.Add(ctx, scope, "", nil)
		Expect(err).To(MatchError(memory.ErrEmptyText))
	})

	It("closes its collaborators", func() {
		Expect(driver.Close()).To(Succeed())
		Expect(vectors.Closed()).To(BeTrue())
	})
})
