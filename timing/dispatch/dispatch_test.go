package dispatch_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dfinch/rvincore/timing/dispatch"
)

func TestDispatch(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Dispatch Suite")
}

var _ = Describe("Queue", func() {
	var q *dispatch.Queue

	BeforeEach(func() {
		q = dispatch.New(4)
	})

	It("reserves slots in order and reports fullness", func() {
		Expect(q.Reserve(0, 1)).To(BeTrue())
		Expect(q.Reserve(1, 2)).To(BeTrue())
		Expect(q.Len()).To(Equal(2))
		Expect(q.Full()).To(BeFalse())
	})

	It("refuses to reserve past capacity", func() {
		for i := 0; i < 4; i++ {
			Expect(q.Reserve(i, uint64(i))).To(BeTrue())
		}
		Expect(q.Reserve(5, 5)).To(BeFalse())
	})

	It("retires only the head even when a later slot finishes first", func() {
		q.Reserve(0, 1) // slow DIV, reserved first
		q.Reserve(1, 2) // fast ALU, reserved second

		q.MarkReady(1) // ALU finishes first
		Expect(q.HeadReady()).To(BeFalse())

		q.MarkReady(0) // DIV finally finishes
		Expect(q.HeadReady()).To(BeTrue())

		head := q.Pop()
		Expect(head.IMAPIdx).To(Equal(0))

		Expect(q.HeadReady()).To(BeTrue())
		second := q.Pop()
		Expect(second.IMAPIdx).To(Equal(1))
	})

	It("flushes every reserved slot", func() {
		q.Reserve(0, 1)
		q.Reserve(1, 2)
		q.Flush()
		Expect(q.Empty()).To(BeTrue())
	})
})
