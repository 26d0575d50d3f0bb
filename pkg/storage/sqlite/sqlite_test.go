package sqlite_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/storage/sqlite"
)

// sqliteTestMessage creates a message for testing with the given platform id
func sqliteTestMessage(id, user string, at time.Time) *storage.Message {
	return &storage.Message{
		Platform:          "discord",
		PlatformMessageID: id,
		UserID:            user,
		GroupID:           "g1",
		Content:           "question " + id,
		Response:          "answer " + id,
		Model:             "anthropic/claude-3-5-haiku-latest",
		ThreadID:          "t1",
		CreatedAt:         at,
	}
}

var _ = Describe("Driver", func() {
	var (
		driver *sqlite.Driver
		ctx    context.Context
		now    time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Now().UTC().Truncate(time.Microsecond)
		var err error
		driver, err = sqlite.NewDriver(ctx, ":memory:")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if driver != nil {
			driver.Close()
		}
	})

	Describe("NewDriver", func() {
		It("creates a driver with file database", func() {
			tmpDir := GinkgoT().TempDir()
			dbPath := filepath.Join(tmpDir, "test.db")

			fileDriver, err := sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer fileDriver.Close()

			_, err = os.Stat(dbPath)
			Expect(err).NotTo(HaveOccurred())
		})

		It("keeps rows across reopen", func() {
			dbPath := filepath.Join(GinkgoT().TempDir(), "reopen.db")

			first, err := sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			_, err = first.SaveMessage(ctx, sqliteTestMessage("1", "u1", now))
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Close()).To(Succeed())

			second, err := sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer second.Close()

			got, err := second.GetMessage(ctx, "discord", "1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(Equal("question 1"))
		})
	})

	Describe("SaveMessage", func() {
		It("round-trips every field", func() {
			msg := sqliteTestMessage("1", "u1", now)
			msg.ReplyToMessageID = "0"
			msg.MemoryIDs = []string{"m1", "m2"}

			inserted, err := driver.SaveMessage(ctx, msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())

			got, err := driver.GetMessage(ctx, "discord", "1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(msg.ID))
			Expect(got.ReplyToMessageID).To(Equal("0"))
			Expect(got.ThreadID).To(Equal("t1"))
			Expect(got.MemoryIDs).To(Equal([]string{"m1", "m2"}))
			Expect(got.CreatedAt.Equal(now)).To(BeTrue())
		})

		It("ignores a duplicate platform key", func() {
			_, err := driver.SaveMessage(ctx, sqliteTestMessage("1", "u1", now))
			Expect(err).NotTo(HaveOccurred())

			inserted, err := driver.SaveMessage(ctx, sqliteTestMessage("1", "u1", now))
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeFalse())

			msgs, err := driver.ListMessages(ctx, storage.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(1))
		})
	})

	Describe("GetMessage", func() {
		It("returns NotFoundError for unknown keys", func() {
			_, err := driver.GetMessage(ctx, "discord", "nope")
			var notFound storage.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})

	Describe("ListMessages", func() {
		BeforeEach(func() {
			for i, id := range []string{"1", "2", "3"} {
				_, err := driver.SaveMessage(ctx, sqliteTestMessage(id, "u1", now.Add(time.Duration(i)*time.Second)))
				Expect(err).NotTo(HaveOccurred())
			}
			other := sqliteTestMessage("4", "u2", now)
			other.GroupID = "g2"
			_, err := driver.SaveMessage(ctx, other)
			Expect(err).NotTo(HaveOccurred())
		})

		It("filters by scope, newest first", func() {
			msgs, err := driver.ListMessages(ctx, storage.Filter{UserID: "u1", GroupID: "g1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(3))
			Expect(msgs[0].PlatformMessageID).To(Equal("3"))
		})

		It("applies the limit", func() {
			msgs, err := driver.ListMessages(ctx, storage.Filter{Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(2))
		})

		It("returns nothing for an unknown group", func() {
			msgs, err := driver.ListMessages(ctx, storage.Filter{GroupID: "none"})
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(BeEmpty())
		})
	})
})
