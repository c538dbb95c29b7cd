package emu

// Memory is a flat, byte-addressed memory space backed by a sparse map so
// that sparse RV64 address spaces (text segment near 0x10000, stack near
// the top of the address space) don't require allocating a contiguous
// backing array the size of the gap between them.
type Memory struct {
	bytes map[uint64]byte
}

// NewMemory creates an empty memory space.
func NewMemory() *Memory {
	return &Memory{bytes: make(map[uint64]byte)}
}

// Read8 reads a single byte. Unwritten addresses read as 0.
func (m *Memory) Read8(addr uint64) uint8 {
	return m.bytes[addr]
}

// Write8 writes a single byte.
func (m *Memory) Write8(addr uint64, value uint8) {
	m.bytes[addr] = value
}

// Read16 reads a 16-bit little-endian value.
func (m *Memory) Read16(addr uint64) uint16 {
	return uint16(m.Read8(addr)) | uint16(m.Read8(addr+1))<<8
}

// Write16 writes a 16-bit little-endian value.
func (m *Memory) Write16(addr uint64, value uint16) {
	m.Write8(addr, uint8(value))
	m.Write8(addr+1, uint8(value>>8))
}

// Read32 reads a 32-bit little-endian value.
func (m *Memory) Read32(addr uint64) uint32 {
	return uint32(m.Read16(addr)) | uint32(m.Read16(addr+2))<<16
}

// Write32 writes a 32-bit little-endian value.
func (m *Memory) Write32(addr uint64, value uint32) {
	m.Write16(addr, uint16(value))
	m.Write16(addr+2, uint16(value>>16))
}

// Read64 reads a 64-bit little-endian value.
func (m *Memory) Read64(addr uint64) uint64 {
	return uint64(m.Read32(addr)) | uint64(m.Read32(addr+4))<<32
}

// Write64 writes a 64-bit little-endian value.
func (m *Memory) Write64(addr uint64, value uint64) {
	m.Write32(addr, uint32(value))
	m.Write32(addr+4, uint32(value>>32))
}

// WriteBytes copies a byte slice into memory starting at addr, used by the
// loader to materialize ELF segment contents.
func (m *Memory) WriteBytes(addr uint64, data []byte) {
	for i, b := range data {
		m.bytes[addr+uint64(i)] = b
	}
}

// ReadBytes reads n bytes starting at addr into a freshly allocated slice.
func (m *Memory) ReadBytes(addr uint64, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = m.bytes[addr+uint64(i)]
	}
	return out
}
