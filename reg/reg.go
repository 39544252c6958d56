// Package reg gives access to blocks of 32-bit memory-mapped registers.
//
// A Bus is one peripheral block, addressed by byte offset from its base. Register32
// and Field sit on top of a Bus and provide the read-modify-write helpers the drivers
// use; they carry no state of their own.
package reg

// Bus is a window of 32-bit registers. Offsets are in bytes and must be 4-aligned.
type Bus interface {
	Load(offset uintptr) uint32
	Store(offset uintptr, val uint32)
}

// Register32 is a single register at a fixed offset within a Bus.
type Register32 struct {
	bus    Bus
	offset uintptr
}

// At returns the register at offset within bus.
func At(bus Bus, offset uintptr) Register32 {
	return Register32{bus, offset}
}

func (r Register32) Offset() uintptr { return r.offset }

func (r Register32) Get() uint32 {
	return r.bus.Load(r.offset)
}

func (r Register32) Set(val uint32) {
	r.bus.Store(r.offset, val)
}

func (r Register32) SetBits(val uint32) {
	r.Set(r.Get() | val)
}

func (r Register32) ClearBits(val uint32) {
	r.Set(r.Get() &^ val)
}

// HasBits reports whether all of the bits in val are set.
func (r Register32) HasBits(val uint32) bool {
	return r.Get()&val == val
}

// ReplaceBits replaces the bits under mask<<pos with value<<pos in one write.
func (r Register32) ReplaceBits(value, mask uint32, pos uint8) {
	r.Set(r.Get()&^(mask<<pos) | (value&mask)<<pos)
}

// Field is a named run of bits within a register.
type Field struct {
	Name  string
	Reg   Register32
	Pos   uint8
	Width uint8
}

func (f Field) mask() uint32 {
	return uint32(1)<<f.Width - 1
}

// Mask returns the bits covered by f, in register position.
func (f Field) Mask() uint32 {
	return f.mask() << f.Pos
}

func (f Field) Get() uint32 {
	return f.Reg.Get() >> f.Pos & f.mask()
}

// Set writes val into the field, leaving the rest of the register alone. Bits of
// val that don't fit are dropped.
func (f Field) Set(val uint32) {
	f.Reg.ReplaceBits(val, f.mask(), f.Pos)
}

// Bits returns val shifted into f's position, for combining several fields into
// one write.
func (f Field) Bits(val uint32) uint32 {
	return (val & f.mask()) << f.Pos
}

// Fits reports whether val can be represented by f.
func (f Field) Fits(val uint32) bool {
	return val&^f.mask() == 0
}
