package postgres_test

import (
	"context"
	"errors"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/storage/postgres"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("RECALL_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("RECALL_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

func postgresTestMessage(id string, at time.Time) *storage.Message {
	return &storage.Message{
		Platform:          "slack",
		PlatformMessageID: id,
		UserID:            "u1",
		GroupID:           "g1",
		Content:           "question " + id,
		Response:          "answer " + id,
		Model:             "openai/gpt-4o-mini",
		CreatedAt:         at,
	}
}

var _ = Describe("Driver", func() {
	var (
		driver *postgres.Driver
		ctx    context.Context
		now    time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Now().UTC().Truncate(time.Microsecond)
		dsn := connStr()

		var err error
		driver, err = postgres.NewDriver(ctx, dsn)
		Expect(err).NotTo(HaveOccurred())

		// Clean all messages before each test for isolation.
		_, err = driver.Pool.Exec(ctx, "DELETE FROM messages")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if driver != nil {
			driver.Close()
		}
	})

	It("saves and gets a message", func() {
		msg := postgresTestMessage("1", now)
		msg.MemoryIDs = []string{"m1"}

		inserted, err := driver.SaveMessage(ctx, msg)
		Expect(err).NotTo(HaveOccurred())
		Expect(inserted).To(BeTrue())

		got, err := driver.GetMessage(ctx, "slack", "1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Response).To(Equal("answer 1"))
		Expect(got.MemoryIDs).To(Equal([]string{"m1"}))
		Expect(got.CreatedAt.Equal(now)).To(BeTrue())
	})

	It("ignores a duplicate platform key", func() {
		_, err := driver.SaveMessage(ctx, postgresTestMessage("1", now))
		Expect(err).NotTo(HaveOccurred())

		inserted, err := driver.SaveMessage(ctx, postgresTestMessage("1", now))
		Expect(err).NotTo(HaveOccurred())
		Expect(inserted).To(BeFalse())
	})

	It("returns NotFoundError for unknown keys", func() {
		_, err := driver.GetMessage(ctx, "slack", "missing")
		var notFound storage.NotFoundError
		Expect(errors.As(err, &notFound)).To(BeTrue())
	})

	It("lists newest first with a limit", func() {
		for i, id := range []string{"1", "2", "3"} {
			_, err := driver.SaveMessage(ctx, postgresTestMessage(id, now.Add(time.Duration(i)*time.Second)))
			Expect(err).NotTo(HaveOccurred())
		}

		msgs, err := driver.ListMessages(ctx, storage.Filter{UserID: "u1", GroupID: "g1", Limit: 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].PlatformMessageID).To(Equal("3"))
	})
})
