package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/embeddings"
	"github.com/papercomputeco/recall/pkg/embeddings/ollama"
)

var _ = Describe("Ollama Embedder", func() {
	var (
		server  *httptest.Server
		handler http.HandlerFunc
	)

	BeforeEach(func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("posts the model and input and returns the first embedding", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/api/embed"))

			var body map[string]string
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
			Expect(body["model"]).To(Equal(ollama.DefaultEmbeddingModel))
			Expect(body["input"]).To(Equal("Deadline is Friday"))

			_, _ = w.Write([]byte(`{"embeddings": [[0.1, 0.2, 0.3]]}`))
		}

		e := ollama.NewEmbedder(ollama.Config{BaseURL: server.URL + "/"})
		vec, err := e.Embed(context.Background(), "Deadline is Friday")
		Expect(err).NotTo(HaveOccurred())
		Expect(vec).To(HaveLen(3))
		Expect(vec[1]).To(BeNumerically("~", 0.2, 0.0001))
		Expect(e.Close()).To(Succeed())
	})

	It("wraps non-200 responses", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}

		e := ollama.NewEmbedder(ollama.Config{BaseURL: server.URL})
		_, err := e.Embed(context.Background(), "x")
		Expect(errors.Is(err, embeddings.ErrEmbedding)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("404"))
	})

	It("fails on empty embeddings", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"embeddings": []}`))
		}

		e := ollama.NewEmbedder(ollama.Config{BaseURL: server.URL})
		_, err := e.Embed(context.Background(), "x")
		Expect(errors.Is(err, embeddings.ErrEmbedding)).To(BeTrue())
	})
})
