package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dfinch/rvincore/emu"
)

var _ = Describe("Memory", func() {
	var mem *emu.Memory

	BeforeEach(func() {
		mem = emu.NewMemory()
	})

	It("reads zero from an unwritten address", func() {
		Expect(mem.Read64(0x1000)).To(Equal(uint64(0)))
	})

	It("round-trips a 64-bit little-endian value", func() {
		mem.Write64(0x2000, 0x0123456789abcdef)
		Expect(mem.Read64(0x2000)).To(Equal(uint64(0x0123456789abcdef)))
		Expect(mem.Read8(0x2000)).To(Equal(uint8(0xef)))
	})

	It("round-trips a 32-bit value without disturbing neighboring bytes", func() {
		mem.Write8(0x2003, 0xff)
		mem.Write32(0x2000, 0xaabbccdd)
		Expect(mem.Read32(0x2000)).To(Equal(uint32(0xaabbccdd)))
	})

	It("copies a byte slice and reads it back", func() {
		data := []byte{1, 2, 3, 4}
		mem.WriteBytes(0x3000, data)
		Expect(mem.ReadBytes(0x3000, 4)).To(Equal(data))
	})
})
