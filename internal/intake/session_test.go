package intake

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func validItems() []Item {
	return []Item{
		{ID: 0, Name: "Beras 5kg", Quantity: 2, UnitPrice: 65000, Validation: Validation{Valid: true}, Origin: OriginExtracted},
		{ID: 1, Name: "Gula", Quantity: 1, UnitPrice: 15000, Validation: Validation{Valid: true}, Origin: OriginExtracted},
		{ID: 2, Name: "Minyak Goreng", Quantity: 1, UnitPrice: 28500, Validation: Validation{Valid: true}, Origin: OriginExtracted},
	}
}

var _ = Describe("Session", func() {
	var (
		session *Session
		timeSrc *mockTimeSource
	)

	BeforeEach(func() {
		timeSrc = &mockTimeSource{now: time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)}
		session = NewSessionWithTimeSource(timeSrc)
	})

	Describe("LoadItems", func() {
		It("should start empty", func() {
			Expect(session.Empty()).To(BeTrue())
			Expect(session.Snapshot()).To(BeNil())
		})

		When("loading candidates", func() {
			BeforeEach(func() {
				session.LoadItems(validItems(), SourceImage, "123_receipt.jpg")
			})

			It("should populate the batch", func() {
				Expect(session.Empty()).To(BeFalse())
				Expect(session.Snapshot().Items).To(HaveLen(3))
			})

			It("should record batch metadata", func() {
				batch := session.Snapshot()
				Expect(batch.SourceType).To(Equal(SourceImage))
				Expect(batch.CreatedAt).To(Equal(timeSrc.now))
				Expect(batch.ReceiptPath).To(Equal("123_receipt.jpg"))
			})

			It("should replace the batch on a second load", func() {
				session.LoadItems(validItems()[:1], SourceText, "")
				Expect(session.Snapshot().Items).To(HaveLen(1))
				Expect(session.Snapshot().SourceType).To(Equal(SourceText))
			})
		})

		When("loading an empty sequence", func() {
			BeforeEach(func() {
				session.LoadItems(nil, SourceImage, "")
			})

			It("should stay empty", func() {
				Expect(session.Empty()).To(BeTrue())
			})
		})
	})

	Describe("UpdateItem", func() {
		BeforeEach(func() {
			session.LoadItems(validItems(), SourceImage, "")
		})

		It("should apply a partial patch", func() {
			qty := 5.0
			item, err := session.UpdateItem(1, ItemPatch{Quantity: &qty})
			Expect(err).NotTo(HaveOccurred())
			Expect(item.Quantity).To(Equal(5.0))
			Expect(item.Name).To(Equal("Gula"))
		})

		It("should re-validate only the patched item", func() {
			qty := -1.0
			item, err := session.UpdateItem(1, ItemPatch{Quantity: &qty})
			Expect(err).NotTo(HaveOccurred())
			Expect(item.Validation.Valid).To(BeFalse())
			Expect(item.Validation.Errors).To(HaveKey("quantity"))

			batch := session.Snapshot()
			Expect(batch.Items[0].Validation.Valid).To(BeTrue())
			Expect(batch.Items[2].Validation.Valid).To(BeTrue())
		})

		It("should make the batch submittable again after a fix", func() {
			qty := -1.0
			_, err := session.UpdateItem(1, ItemPatch{Quantity: &qty})
			Expect(err).NotTo(HaveOccurred())
			Expect(session.Submittable()).To(BeFalse())

			qty = 3.0
			_, err = session.UpdateItem(1, ItemPatch{Quantity: &qty})
			Expect(err).NotTo(HaveOccurred())
			Expect(session.Submittable()).To(BeTrue())
		})

		It("should trim a patched name", func() {
			name := "  Kopi Susu  "
			item, err := session.UpdateItem(0, ItemPatch{Name: &name})
			Expect(err).NotTo(HaveOccurred())
			Expect(item.Name).To(Equal("Kopi Susu"))
		})

		It("should return NotFoundError for an unknown id", func() {
			_, err := session.UpdateItem(99, ItemPatch{})
			var notFound *NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
			Expect(notFound.ID).To(Equal(99))
		})
	})

	Describe("RemoveItem", func() {
		BeforeEach(func() {
			session.LoadItems(validItems(), SourceImage, "")
		})

		It("should remove the item", func() {
			Expect(session.RemoveItem(1)).To(Succeed())
			Expect(session.Snapshot().Items).To(HaveLen(2))
		})

		It("should never renumber remaining ids", func() {
			Expect(session.RemoveItem(1)).To(Succeed())
			batch := session.Snapshot()
			Expect(batch.Items[0].ID).To(Equal(0))
			Expect(batch.Items[1].ID).To(Equal(2))
		})

		It("should return NotFoundError for an unknown id", func() {
			err := session.RemoveItem(99)
			var notFound *NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})

		It("should return NotFoundError for an already removed id", func() {
			Expect(session.RemoveItem(1)).To(Succeed())
			err := session.RemoveItem(1)
			var notFound *NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})

	Describe("AddManualItem", func() {
		It("should open a batch from empty with id 0", func() {
			item := session.AddManualItem("Telur", 10, 2500)
			Expect(item.ID).To(Equal(0))
			Expect(item.Origin).To(Equal(OriginManual))
			Expect(session.Empty()).To(BeFalse())
		})

		It("should assign max existing id + 1", func() {
			session.LoadItems(validItems(), SourceImage, "")
			item := session.AddManualItem("Telur", 10, 2500)
			Expect(item.ID).To(Equal(3))
		})

		It("should never reuse a removed id", func() {
			session.LoadItems(validItems(), SourceImage, "")
			Expect(session.RemoveItem(2)).To(Succeed())
			item := session.AddManualItem("Telur", 10, 2500)
			Expect(item.ID).To(Equal(3))
		})

		It("should validate the new item immediately", func() {
			item := session.AddManualItem("", 0, -5)
			Expect(item.Validation.Valid).To(BeFalse())
			Expect(item.Validation.Errors).To(HaveKey("name"))
			Expect(item.Validation.Errors).To(HaveKey("quantity"))
			Expect(item.Validation.Errors).To(HaveKey("unit_price"))
		})
	})

	Describe("Finalize", func() {
		It("should fail on an empty session", func() {
			_, err := session.Finalize()
			var validationErr *ValidationError
			Expect(errors.As(err, &validationErr)).To(BeTrue())
			Expect(validationErr.Items).To(BeEmpty())
		})

		When("every item is valid", func() {
			BeforeEach(func() {
				session.LoadItems(validItems(), SourceImage, "")
			})

			It("should return the batch", func() {
				batch, err := session.Finalize()
				Expect(err).NotTo(HaveOccurred())
				Expect(batch.Items).To(HaveLen(3))
			})
		})

		When("one item is invalid", func() {
			BeforeEach(func() {
				items := validItems()
				items[1].Validation = Validation{Valid: false, Errors: map[string]string{"quantity": "cannot parse quantity \"abc\""}}
				session.LoadItems(items, SourceImage, "")
			})

			It("should return a ValidationError naming that item", func() {
				_, err := session.Finalize()
				var validationErr *ValidationError
				Expect(errors.As(err, &validationErr)).To(BeTrue())
				Expect(validationErr.Items).To(HaveLen(1))
				Expect(validationErr.Items[0].ID).To(Equal(1))
				Expect(validationErr.Items[0].Fields).To(HaveKey("quantity"))
			})

			It("should leave the batch unchanged on failure", func() {
				before := session.Snapshot()
				_, err := session.Finalize()
				Expect(err).To(HaveOccurred())
				Expect(session.Snapshot()).To(Equal(before))
			})

			It("should succeed after the invalid item is removed", func() {
				Expect(session.RemoveItem(1)).To(Succeed())
				batch, err := session.Finalize()
				Expect(err).NotTo(HaveOccurred())
				Expect(batch.Items).To(HaveLen(2))
			})
		})
	})

	Describe("ApplyCommitResult", func() {
		BeforeEach(func() {
			session.LoadItems(validItems(), SourceImage, "")
		})

		It("should close out accepted items and keep rejected ones", func() {
			session.ApplyCommitResult(CommitResult{
				0: {Accepted: true},
				1: {Accepted: false, Reason: "unknown product \"Gula\""},
				2: {Accepted: true},
			})

			batch := session.Snapshot()
			Expect(batch.Items).To(HaveLen(1))
			Expect(batch.Items[0].ID).To(Equal(1))
			Expect(batch.Items[0].Validation.Valid).To(BeFalse())
			Expect(batch.Items[0].Validation.Errors["ledger"]).To(ContainSubstring("unknown product"))
		})

		It("should empty the session when everything was accepted", func() {
			session.ApplyCommitResult(CommitResult{
				0: {Accepted: true},
				1: {Accepted: true},
				2: {Accepted: true},
			})
			Expect(session.Empty()).To(BeTrue())
		})
	})

	Describe("Cancel", func() {
		It("should discard the batch", func() {
			session.LoadItems(validItems(), SourceImage, "")
			session.Cancel()
			Expect(session.Empty()).To(BeTrue())
		})
	})
})
