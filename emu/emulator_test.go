package emu_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dfinch/rvincore/emu"
)

func encodeI(imm int32, rs1, funct3, rd uint8, opcode uint32) uint32 {
	return uint32(imm)<<20 | uint32(rs1)<<15 | uint32(funct3)<<12 | uint32(rd)<<7 | opcode
}

var _ = Describe("Emulator", func() {
	var e *emu.Emulator

	BeforeEach(func() {
		e = emu.NewEmulator()
	})

	It("runs a short program to exit with the value it computed", func() {
		// addi x5, x0, 10
		// addi x6, x0, 32
		// add  x10, x5, x6
		// addi x17, x0, 93   (a7 = exit)
		// ecall
		mem := e.Memory()
		mem.Write32(0x1000, encodeI(10, 0, 0, 5, 0x13))
		mem.Write32(0x1004, encodeI(32, 0, 0, 6, 0x13))
		mem.Write32(0x1008, uint32(6<<20)|uint32(5<<15)|uint32(10<<7)|0x33)
		mem.Write32(0x100c, encodeI(93, 0, 0, 17, 0x13))
		mem.Write32(0x1010, 0x73)

		e.SetPC(0x1000)
		exitCode := e.Run()

		Expect(exitCode).To(Equal(int64(42)))
	})

	It("stores and loads a word through memory", func() {
		// addi x5, x0, 99
		// sw   x5, 0(x0)
		// lw   x6, 0(x0)
		// add  x10, x6, x0
		// addi x17, x0, 93
		// ecall
		mem := e.Memory()
		mem.Write32(0x1000, encodeI(99, 0, 0, 5, 0x13))
		// sw: imm[11:5]=0 rs2=5 rs1=0 funct3=2 imm[4:0]=0 opcode=0x23
		mem.Write32(0x1004, uint32(5<<20)|uint32(0<<15)|uint32(2<<12)|uint32(0<<7)|0x23)
		mem.Write32(0x1008, encodeI(0, 0, 2, 6, 0x03))
		mem.Write32(0x100c, uint32(0<<20)|uint32(6<<15)|uint32(10<<7)|0x33)
		mem.Write32(0x1010, encodeI(93, 0, 0, 17, 0x13))
		mem.Write32(0x1014, 0x73)

		e.SetPC(0x1000)
		exitCode := e.Run()

		Expect(exitCode).To(Equal(int64(99)))
	})

	It("writes through the syscall handler's stdout writer", func() {
		var out bytes.Buffer
		e = emu.NewEmulator(emu.WithStdout(&out))
		mem := e.Memory()
		mem.WriteBytes(0x200, []byte("hi\n"))

		// addi x10, x0, 1       (fd = stdout)
		// addi x11, x0, 0x200   (buf)
		// addi x12, x0, 3       (count)
		// addi x17, x0, 64      (a7 = write)
		// ecall
		// addi x10, x0, 0
		// addi x17, x0, 93
		// ecall
		mem.Write32(0x1000, encodeI(1, 0, 0, 10, 0x13))
		mem.Write32(0x1004, encodeI(0x200, 0, 0, 11, 0x13))
		mem.Write32(0x1008, encodeI(3, 0, 0, 12, 0x13))
		mem.Write32(0x100c, encodeI(64, 0, 0, 17, 0x13))
		mem.Write32(0x1010, 0x73)
		mem.Write32(0x1014, encodeI(0, 0, 0, 10, 0x13))
		mem.Write32(0x1018, encodeI(93, 0, 0, 17, 0x13))
		mem.Write32(0x101c, 0x73)

		e.SetPC(0x1000)
		exitCode := e.Run()

		Expect(exitCode).To(Equal(int64(0)))
		Expect(out.String()).To(Equal("hi\n"))
	})

	It("takes a backward branch until the counter reaches zero", func() {
		// addi x5, x0, 3      ; counter
		// addi x6, x0, 1
		// loop: addi x5, x5, -1
		// bne  x5, x0, loop
		// add  x10, x5, x0
		// addi x17, x0, 93
		// ecall
		mem := e.Memory()
		mem.Write32(0x1000, encodeI(3, 0, 0, 5, 0x13))
		mem.Write32(0x1004, encodeI(1, 0, 0, 6, 0x13))
		mem.Write32(0x1008, encodeI(-1, 5, 0, 5, 0x13))
		// bne x5, x0, -4: imm=-4 -> bit pattern for B-type
		imm := uint32(int32(-4))
		bword := ((imm>>12)&0x1)<<31 | ((imm>>5)&0x3f)<<25 | uint32(0<<20) | uint32(5<<15) | uint32(1<<12) | ((imm>>1)&0xf)<<8 | ((imm>>11)&0x1)<<7 | 0x63
		mem.Write32(0x100c, bword)
		mem.Write32(0x1010, uint32(0<<20)|uint32(5<<15)|uint32(10<<7)|0x33)
		mem.Write32(0x1014, encodeI(93, 0, 0, 17, 0x13))
		mem.Write32(0x1018, 0x73)

		e.SetPC(0x1000)
		exitCode := e.Run()

		Expect(exitCode).To(Equal(int64(0)))
	})
})
