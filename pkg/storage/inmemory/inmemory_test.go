package inmemory_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/storage/inmemory"
)

func testMessage(id, user string, at time.Time) *storage.Message {
	return &storage.Message{
		Platform:          "telegram",
		PlatformMessageID: id,
		UserID:            user,
		GroupID:           "g1",
		Content:           "hello " + id,
		Response:          "hi",
		Model:             "openai/gpt-4o-mini",
		CreatedAt:         at,
	}
}

var _ = Describe("Driver", func() {
	var (
		driver *inmemory.Driver
		ctx    context.Context
		now    time.Time
	)

	BeforeEach(func() {
		driver = inmemory.NewDriver()
		ctx = context.Background()
		now = time.Now().UTC()
	})

	Describe("SaveMessage", func() {
		It("stores a new message and fills its ID", func() {
			msg := testMessage("1", "u1", now)
			inserted, err := driver.SaveMessage(ctx, msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())
			Expect(msg.ID).NotTo(BeEmpty())
			Expect(driver.Count()).To(Equal(1))
		})

		It("is idempotent on the platform key", func() {
			_, err := driver.SaveMessage(ctx, testMessage("1", "u1", now))
			Expect(err).NotTo(HaveOccurred())

			dup := testMessage("1", "u1", now)
			dup.Response = "changed"
			inserted, err := driver.SaveMessage(ctx, dup)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeFalse())

			got, err := driver.GetMessage(ctx, "telegram", "1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Response).To(Equal("hi"))
		})

		It("rejects messages without a platform key", func() {
			_, err := driver.SaveMessage(ctx, &storage.Message{Content: "x"})
			Expect(err).To(HaveOccurred())

			_, err = driver.SaveMessage(ctx, nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("GetMessage", func() {
		It("returns NotFoundError for unknown keys", func() {
			_, err := driver.GetMessage(ctx, "telegram", "missing")
			var notFound storage.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
			Expect(notFound.PlatformMessageID).To(Equal("missing"))
		})

		It("returns a copy", func() {
			_, err := driver.SaveMessage(ctx, testMessage("1", "u1", now))
			Expect(err).NotTo(HaveOccurred())

			got, err := driver.GetMessage(ctx, "telegram", "1")
			Expect(err).NotTo(HaveOccurred())
			got.Content = "mutated"

			again, err := driver.GetMessage(ctx, "telegram", "1")
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Content).To(Equal("hello 1"))
		})
	})

	Describe("ListMessages", func() {
		BeforeEach(func() {
			for i, id := range []string{"1", "2", "3"} {
				_, err := driver.SaveMessage(ctx, testMessage(id, "u1", now.Add(time.Duration(i)*time.Second)))
				Expect(err).NotTo(HaveOccurred())
			}
			_, err := driver.SaveMessage(ctx, testMessage("4", "u2", now))
			Expect(err).NotTo(HaveOccurred())
		})

		It("filters by user and orders newest first", func() {
			msgs, err := driver.ListMessages(ctx, storage.Filter{UserID: "u1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(3))
			Expect(msgs[0].PlatformMessageID).To(Equal("3"))
			Expect(msgs[2].PlatformMessageID).To(Equal("1"))
		})

		It("applies the limit", func() {
			msgs, err := driver.ListMessages(ctx, storage.Filter{UserID: "u1", Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(2))
		})

		It("lists everything with an empty filter", func() {
			msgs, err := driver.ListMessages(ctx, storage.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(4))
		})
	})
})
