package openai

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/papercomputeco/recall/pkg/embeddings"
)

type fakeEmbeddings struct {
	params openaisdk.EmbeddingNewParams
	resp   *openaisdk.CreateEmbeddingResponse
	err    error
}

func (f *fakeEmbeddings) New(_ context.Context, body openaisdk.EmbeddingNewParams, _ ...option.RequestOption) (*openaisdk.CreateEmbeddingResponse, error) {
	f.params = body
	return f.resp, f.err
}

var _ = Describe("OpenAI Embedder", func() {
	It("requires an api key", func() {
		_, err := NewEmbedder(Config{})
		Expect(err).To(HaveOccurred())
	})

	It("converts the first embedding to float32", func() {
		fake := &fakeEmbeddings{resp: &openaisdk.CreateEmbeddingResponse{
			Data: []openaisdk.Embedding{{Embedding: []float64{0.5, -0.25}}},
		}}
		e := newWithAPI(fake, "", 256)

		vec, err := e.Embed(context.Background(), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(vec).To(Equal([]float32{0.5, -0.25}))
		Expect(string(fake.params.Model)).To(Equal(DefaultModel))
		Expect(fake.params.Input.OfString.Value).To(Equal("hello"))
		Expect(fake.params.Dimensions.Value).To(Equal(int64(256)))
	})

	It("wraps API errors", func() {
		e := newWithAPI(&fakeEmbeddings{err: errors.New("429")}, "", 0)
		_, err := e.Embed(context.Background(), "hello")
		Expect(errors.Is(err, embeddings.ErrEmbedding)).To(BeTrue())
	})

	It("fails on empty data", func() {
		e := newWithAPI(&fakeEmbeddings{resp: &openaisdk.CreateEmbeddingResponse{}}, "", 0)
		_, err := e.Embed(context.Background(), "hello")
		Expect(errors.Is(err, embeddings.ErrEmbedding)).To(BeTrue())
	})
})
