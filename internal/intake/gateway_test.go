package intake

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Gateway", func() {
	var (
		ledger  *mockLedger
		gateway *Gateway
		batch   *Batch
		result  CommitResult
		err     error
	)

	BeforeEach(func() {
		ledger = newMockLedger()
		gateway = NewGateway(ledger)
		batch = &Batch{Items: validItems(), SourceType: SourceImage}
	})

	JustBeforeEach(func() {
		result, err = gateway.Commit(context.Background(), batch)
	})

	When("the ledger accepts every line", func() {
		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should mark every item accepted", func() {
			Expect(result).To(HaveLen(3))
			Expect(result.AllAccepted()).To(BeTrue())
		})

		It("should submit one line per item", func() {
			Expect(ledger.recorded).To(HaveLen(3))
			Expect(ledger.recorded[0].Name).To(Equal("Beras 5kg"))
			Expect(ledger.recorded[0].Quantity).To(Equal(2.0))
			Expect(ledger.recorded[0].UnitPrice).To(Equal(65000.0))
		})
	})

	When("the ledger rejects some lines", func() {
		BeforeEach(func() {
			ledger.rejections = map[int]string{1: "unit mismatch"}
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should surface the ledger's verdict per item", func() {
			Expect(result).To(HaveLen(3))
			Expect(result[0].Accepted).To(BeTrue())
			Expect(result[1].Accepted).To(BeFalse())
			Expect(result[1].Reason).To(Equal("unit mismatch"))
			Expect(result[2].Accepted).To(BeTrue())
		})
	})

	When("the ledger omits a verdict for an item", func() {
		BeforeEach(func() {
			ledger.omitItems = map[int]bool{2: true}
		})

		It("should still produce one entry per submitted item", func() {
			Expect(result).To(HaveLen(3))
			Expect(result[2].Accepted).To(BeFalse())
			Expect(result[2].Reason).To(ContainSubstring("no verdict"))
		})
	})

	When("the ledger is unreachable", func() {
		BeforeEach(func() {
			ledger.recordErr = errors.New("connection refused")
		})

		It("should return the error", func() {
			Expect(err).To(HaveOccurred())
		})

		It("should mark every item rejected as submission failed", func() {
			Expect(result).To(HaveLen(3))
			for _, res := range result {
				Expect(res.Accepted).To(BeFalse())
				Expect(res.Reason).To(Equal("submission failed"))
			}
		})
	})

	When("the batch is not submittable", func() {
		BeforeEach(func() {
			batch.Items[1].Validation = Validation{Valid: false, Errors: map[string]string{"name": "name is required"}}
		})

		It("should return a PreconditionError", func() {
			var preconditionErr *PreconditionError
			Expect(errors.As(err, &preconditionErr)).To(BeTrue())
			Expect(result).To(BeNil())
		})

		It("should not touch the ledger", func() {
			Expect(ledger.recorded).To(BeNil())
		})
	})

	When("the batch is empty", func() {
		BeforeEach(func() {
			batch = &Batch{}
		})

		It("should return a PreconditionError", func() {
			var preconditionErr *PreconditionError
			Expect(errors.As(err, &preconditionErr)).To(BeTrue())
		})
	})
})
