package protocol

// Bit reports whether bit i of b is set. i is masked to 0..7.
func Bit(b byte, i uint8) bool {
	return b&(1<<(i&7)) != 0
}

// SetBit returns b with bit i set to v. i is masked to 0..7.
func SetBit(b byte, i uint8, v bool) byte {
	mask := byte(1) << (i & 7)
	if v {
		return b | mask
	}
	return b &^ mask
}

// FlagBit addresses one bit in a multi-byte flag header: byte n/8, bit n%8.
type FlagBit uint16

// Index returns the byte offset and bit index the flag refers to.
func (f FlagBit) Index() (byteIndex int, bit uint8) {
	return int(f >> 3), uint8(f & 7)
}

// GetFlag reports whether f is set in flags. Flags outside the header read
// as clear.
func GetFlag(flags []byte, f FlagBit) bool {
	i, bit := f.Index()
	if i >= len(flags) {
		return false
	}
	return Bit(flags[i], bit)
}

// SetFlag sets f in flags to v. Flags outside the header are ignored.
func SetFlag(flags []byte, f FlagBit, v bool) {
	i, bit := f.Index()
	if i >= len(flags) {
		return
	}
	flags[i] = SetBit(flags[i], bit, v)
}

// PackBools packs vals into ceil(len(vals)/8) bytes, vals[0] in bit 0 of
// the first byte.
func PackBools(vals []bool) []byte {
	out := make([]byte, (len(vals)+7)/8)
	for i, v := range vals {
		SetFlag(out, FlagBit(i), v)
	}
	return out
}

// UnpackBools is the inverse of PackBools for the first n bits of b.
func UnpackBools(b []byte, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = GetFlag(b, FlagBit(i))
	}
	return out
}
