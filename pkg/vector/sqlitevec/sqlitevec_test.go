package sqlitevec_test

import (
	"context"
	"errors"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/vector"
	"github.com/papercomputeco/recall/pkg/vector/sqlitevec"
)

const partition = "u1/g1"

func newDriver(log *slog.Logger) *sqlitevec.Driver {
	driver, err := sqlitevec.NewDriver(sqlitevec.Config{
		DBPath:     ":memory:",
		Dimensions: 4,
	}, log)
	Expect(err).NotTo(HaveOccurred())
	return driver
}

func doc(id string, v float32) vector.Document {
	return vector.Document{
		ID:        id,
		Partition: partition,
		Text:      "text " + id,
		Embedding: []float32{v, v, v, v},
	}
}

var _ = Describe("Driver", func() {
	var (
		ctx context.Context
		log *slog.Logger
	)

	BeforeEach(func() {
		ctx = context.Background()
		log = logger.Nop()
	})

	Describe("NewDriver", func() {
		It("should return an error when DBPath is empty", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ""}, log)
			Expect(err).To(MatchError(ContainSubstring("database path is required")))
		})

		It("should create a driver with an in-memory database", func() {
			driver := newDriver(log)
			Expect(driver.Close()).To(Succeed())
		})

		It("should error when dimension not specified", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:"}, log)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Add", func() {
		var driver *sqlitevec.Driver

		BeforeEach(func() {
			driver = newDriver(log)
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		It("should do nothing when given empty docs", func() {
			Expect(driver.Add(ctx, []vector.Document{})).To(Succeed())
		})

		It("should store text and metadata", func() {
			d := doc("doc-1", 0.1)
			d.Metadata = map[string]any{"source": "chat"}
			Expect(driver.Add(ctx, []vector.Document{d})).To(Succeed())

			retrieved, err := driver.Get(ctx, []string{"doc-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved).To(HaveLen(1))
			Expect(retrieved[0].Text).To(Equal("text doc-1"))
			Expect(retrieved[0].Partition).To(Equal(partition))
			Expect(retrieved[0].Metadata).To(HaveKeyWithValue("source", "chat"))
			Expect(retrieved[0].CreatedAt).NotTo(BeZero())
		})

		It("should update an existing document", func() {
			Expect(driver.Add(ctx, []vector.Document{doc("doc-1", 0.1)})).To(Succeed())

			updated := doc("doc-1", 0.9)
			updated.Text = "updated"
			Expect(driver.Add(ctx, []vector.Document{updated})).To(Succeed())

			retrieved, err := driver.Get(ctx, []string{"doc-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved).To(HaveLen(1))
			Expect(retrieved[0].Text).To(Equal("updated"))
			Expect(retrieved[0].Embedding[0]).To(BeNumerically("~", 0.9, 0.001))
		})

		It("should reject embeddings of the wrong size", func() {
			d := doc("doc-1", 0.1)
			d.Embedding = []float32{0.1, 0.2}
			err := driver.Add(ctx, []vector.Document{d})
			Expect(errors.Is(err, vector.ErrDimensions)).To(BeTrue())
		})
	})

	Describe("Query", func() {
		var driver *sqlitevec.Driver

		BeforeEach(func() {
			driver = newDriver(log)
			Expect(driver.Add(ctx, []vector.Document{
				doc("doc-1", 0.1),
				doc("doc-2", 0.2),
				doc("doc-3", 0.3),
				doc("doc-4", 0.4),
				doc("doc-5", 0.5),
				{ID: "other", Partition: "u2/g1", Text: "other", Embedding: []float32{0.3, 0.3, 0.3, 0.3}},
			})).To(Succeed())
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		It("should return the closest documents in the partition", func() {
			results, err := driver.Query(ctx, partition, []float32{0.3, 0.3, 0.3, 0.3}, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))
			Expect(results[0].ID).To(Equal("doc-3"))
			Expect(results[0].Text).To(Equal("text doc-3"))
		})

		It("should default topK when zero", func() {
			results, err := driver.Query(ctx, partition, []float32{0.3, 0.3, 0.3, 0.3}, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(5))
		})

		It("should return similarity scores in descending order", func() {
			results, err := driver.Query(ctx, partition, []float32{0.3, 0.3, 0.3, 0.3}, 5)
			Expect(err).NotTo(HaveOccurred())
			for i := 1; i < len(results); i++ {
				Expect(results[i-1].Score).To(BeNumerically(">=", results[i].Score))
			}
		})

		It("should not cross partitions", func() {
			results, err := driver.Query(ctx, "u2/g1", []float32{0.1, 0.1, 0.1, 0.1}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("other"))
		})
	})

	Describe("List", func() {
		It("should list a partition oldest first", func() {
			driver := newDriver(log)
			defer driver.Close()

			base := time.Now()
			second := doc("b", 0.2)
			second.CreatedAt = base.Add(time.Second)
			first := doc("a", 0.1)
			first.CreatedAt = base
			Expect(driver.Add(ctx, []vector.Document{second, first})).To(Succeed())

			docs, err := driver.List(ctx, partition, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(2))
			Expect(docs[0].ID).To(Equal("a"))
			Expect(docs[1].ID).To(Equal("b"))

			docs, err = driver.List(ctx, partition, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
		})
	})

	Describe("Delete", func() {
		var driver *sqlitevec.Driver

		BeforeEach(func() {
			driver = newDriver(log)
			Expect(driver.Add(ctx, []vector.Document{
				doc("doc-1", 0.1),
				doc("doc-2", 0.2),
				doc("doc-3", 0.3),
			})).To(Succeed())
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		It("should do nothing when given empty IDs", func() {
			Expect(driver.Delete(ctx, []string{})).To(Succeed())
		})

		It("should delete documents", func() {
			Expect(driver.Delete(ctx, []string{"doc-1", "doc-2"})).To(Succeed())

			docs, err := driver.Get(ctx, []string{"doc-1", "doc-2", "doc-3"})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].ID).To(Equal("doc-3"))
		})

		It("should not error when deleting non-existent IDs", func() {
			Expect(driver.Delete(ctx, []string{"nonexistent"})).To(Succeed())
		})

		It("should remove documents from query results after deletion", func() {
			Expect(driver.Delete(ctx, []string{"doc-3"})).To(Succeed())

			results, err := driver.Query(ctx, partition, []float32{0.3, 0.3, 0.3, 0.3}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			for _, result := range results {
				Expect(result.ID).NotTo(Equal("doc-3"))
			}
		})
	})
})
