package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dfinch/rvincore/emu"
	"github.com/dfinch/rvincore/insts"
)

var _ = Describe("ALU", func() {
	var alu *emu.ALU

	BeforeEach(func() {
		alu = emu.NewALU()
	})

	It("adds two operands", func() {
		Expect(alu.Exec(insts.OpAdd, 2, 3)).To(Equal(uint64(5)))
	})

	It("computes signed less-than", func() {
		negOne := uint64(0xffffffffffffffff)
		Expect(alu.Exec(insts.OpSlt, negOne, 1)).To(Equal(uint64(1)))
		Expect(alu.Exec(insts.OpSltu, negOne, 1)).To(Equal(uint64(0)))
	})

	It("performs an arithmetic right shift that preserves sign", func() {
		negFour := uint64(0xfffffffffffffffc)
		Expect(alu.Exec(insts.OpSra, negFour, 1)).To(Equal(uint64(0xfffffffffffffffe)))
	})

	It("computes MUL truncated to 64 bits", func() {
		Expect(alu.Exec(insts.OpMul, 6, 7)).To(Equal(uint64(42)))
	})

	It("computes MULHU as the high word of an unsigned 128-bit product", func() {
		max := uint64(0xffffffffffffffff)
		Expect(alu.Exec(insts.OpMulhu, max, 2)).To(Equal(uint64(1)))
	})

	It("defines DIV by zero as all-ones per the RISC-V spec", func() {
		Expect(alu.Exec(insts.OpDiv, 10, 0)).To(Equal(uint64(0xffffffffffffffff)))
	})

	It("defines REMU by zero as the dividend per the RISC-V spec", func() {
		Expect(alu.Exec(insts.OpRemu, 10, 0)).To(Equal(uint64(10)))
	})

	It("sign-extends a 32-bit ADDW result", func() {
		result := alu.Exec(insts.OpAddw, 0x7fffffff, 1)
		Expect(result).To(Equal(uint64(0xffffffff80000000)))
	})

	It("evaluates branch conditions", func() {
		Expect(alu.EvalBranch(insts.OpBeq, 5, 5)).To(BeTrue())
		Expect(alu.EvalBranch(insts.OpBlt, 0xffffffffffffffff, 1)).To(BeTrue())
		Expect(alu.EvalBranch(insts.OpBltu, 0xffffffffffffffff, 1)).To(BeFalse())
	})
})
