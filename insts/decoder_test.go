package insts_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dfinch/rvincore/insts"
)

func TestInsts(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Insts Suite")
}

var _ = Describe("Decoder", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	Describe("OP-IMM", func() {
		It("decodes ADDI x5, x6, 42", func() {
			// imm=42 rs1=6 funct3=0 rd=5 opcode=0x13
			word := uint32(42<<20) | uint32(6<<15) | uint32(0<<12) | uint32(5<<7) | 0x13
			inst := decoder.Decode(word, 0x1000)

			Expect(inst.Op).To(Equal(insts.OpAddi))
			Expect(inst.Format).To(Equal(insts.FormatI))
			Expect(inst.Rd).To(Equal(uint8(5)))
			Expect(inst.Rs1).To(Equal(uint8(6)))
			Expect(inst.Imm).To(Equal(int64(42)))
			Expect(inst.FU).To(Equal(insts.FUALU))
		})

		It("decodes negative immediates with sign extension", func() {
			word := uint32((0xFFF&0xFFF)<<20) | uint32(1<<15) | uint32(5<<7) | 0x13
			inst := decoder.Decode(word, 0)
			Expect(inst.Imm).To(Equal(int64(-1)))
		})
	})

	Describe("OP", func() {
		It("decodes ADD x1, x2, x3", func() {
			word := uint32(3<<20) | uint32(2<<15) | uint32(1<<7) | 0x33
			inst := decoder.Decode(word, 0)
			Expect(inst.Op).To(Equal(insts.OpAdd))
			Expect(inst.FU).To(Equal(insts.FUALU))
		})

		It("decodes MUL x1, x2, x3 with the M-extension funct7", func() {
			word := uint32(0x01<<25) | uint32(3<<20) | uint32(2<<15) | uint32(1<<7) | 0x33
			inst := decoder.Decode(word, 0)
			Expect(inst.Op).To(Equal(insts.OpMul))
			Expect(inst.FU).To(Equal(insts.FUMul))
			Expect(inst.Class).To(Equal(insts.ClassIntMul))
		})

		It("decodes DIV x1, x2, x3", func() {
			word := uint32(0x01<<25) | uint32(3<<20) | uint32(2<<15) | uint32(4<<12) | uint32(1<<7) | 0x33
			inst := decoder.Decode(word, 0)
			Expect(inst.Op).To(Equal(insts.OpDiv))
			Expect(inst.FU).To(Equal(insts.FUDiv))
		})
	})

	Describe("branches", func() {
		It("decodes BEQ with a forward offset", func() {
			// offset=8 encoded into B-type immediate fields.
			imm := uint32(8)
			word := ((imm>>12)&0x1)<<31 | ((imm>>5)&0x3f)<<25 | uint32(2<<20) | uint32(1<<15) | uint32(0<<12) | ((imm>>1)&0xf)<<8 | ((imm>>11)&0x1)<<7 | 0x63
			inst := decoder.Decode(word, 0x2000)
			Expect(inst.Op).To(Equal(insts.OpBeq))
			Expect(inst.IsBranch).To(BeTrue())
			Expect(inst.Imm).To(Equal(int64(8)))
		})
	})

	Describe("loads and stores", func() {
		It("decodes LW", func() {
			word := uint32(4<<20) | uint32(2<<15) | uint32(2<<12) | uint32(5<<7) | 0x03
			inst := decoder.Decode(word, 0)
			Expect(inst.Op).To(Equal(insts.OpLw))
			Expect(inst.MemRead).To(BeTrue())
			Expect(inst.MemSize).To(Equal(4))
		})

		It("decodes SD", func() {
			// imm=16: S-type split across bits [31:25] and [11:7]
			word := uint32(0<<25) | uint32(3<<20) | uint32(1<<15) | uint32(3<<12) | uint32(16<<7) | 0x23
			inst := decoder.Decode(word, 0)
			Expect(inst.Op).To(Equal(insts.OpSd))
			Expect(inst.MemWrite).To(BeTrue())
			Expect(inst.MemSize).To(Equal(8))
		})
	})

	Describe("upper-immediate and jump forms", func() {
		It("decodes LUI", func() {
			word := uint32(0x12345000) | 0x37
			inst := decoder.Decode(word, 0)
			Expect(inst.Op).To(Equal(insts.OpLui))
			Expect(inst.Imm).To(Equal(int64(0x12345000)))
		})

		It("decodes JAL", func() {
			word := uint32(1<<7) | 0x6f
			inst := decoder.Decode(word, 0)
			Expect(inst.Op).To(Equal(insts.OpJal))
			Expect(inst.IsJump).To(BeTrue())
		})
	})

	Describe("system instructions", func() {
		It("decodes ECALL", func() {
			inst := decoder.Decode(0x00000073, 0)
			Expect(inst.Op).To(Equal(insts.OpEcall))
			Expect(inst.IsSystem).To(BeTrue())
		})
	})

	Describe("floating point", func() {
		It("decodes FADD.S and leaves lane assignment to the core", func() {
			word := uint32(0x00<<25) | uint32(2<<20) | uint32(1<<15) | uint32(5<<7) | 0x53
			inst := decoder.Decode(word, 0)
			Expect(inst.Op).To(Equal(insts.OpFaddS))
			Expect(inst.FU).To(Equal(insts.FUFPUALU))
			Expect(inst.IsFP).To(BeTrue())
		})

		It("decodes FMADD.S as an R4-format instruction", func() {
			word := uint32(3<<27) | uint32(2<<20) | uint32(1<<15) | uint32(5<<7) | 0x43
			inst := decoder.Decode(word, 0)
			Expect(inst.Op).To(Equal(insts.OpFmaddS))
			Expect(inst.Format).To(Equal(insts.FormatR4))
			Expect(inst.FU).To(Equal(insts.FUFPUFMA))
			Expect(inst.Rs3).To(Equal(uint8(3)))
		})
	})
})
