package master

import (
	"github.com/pkg/errors"

	"github.com/ardnew/softspi/pkg"
)

// Packet framing limits.
const (
	BitsPerByte   = 8
	BitsPerWord   = 32
	MinPacketBits = 1
	MaxPacketBits = 32
)

// PackingMode selects how packets are laid out in 32-bit FIFO words.
type PackingMode uint8

// Packing modes.
const (
	Unpacked PackingMode = iota // One packet per word, right aligned
	Packed8                     // Four 8-bit packets per word
	Packed16                    // Two 16-bit packets per word
)

// String returns the mode name.
func (m PackingMode) String() string {
	switch m {
	case Unpacked:
		return "unpacked"
	case Packed8:
		return "packed8"
	case Packed16:
		return "packed16"
	default:
		return "invalid"
	}
}

// Layout is the packet framing chosen for one transfer. It converts between
// client byte buffers and FIFO words.
//
// A packet is assembled most-significant byte first from BytesPerPacket
// source bytes; the most-significant byte is masked to BitLength%8 bits when
// the width is not byte aligned. Packet i occupies lane i%PacketsPerWord of
// word i/PacketsPerWord, lane 0 in the least-significant bits.
type Layout struct {
	Mode           PackingMode
	BitLength      int
	BytesPerPacket int
	PacketsPerWord int

	laneBits uint
	msbMask  byte
}

// NewLayout returns the layout for packets of bits width. Packing is only
// applied to 8- and 16-bit packets; other widths use one packet per word even
// when packed is requested.
func NewLayout(bits int, packed bool) (Layout, error) {
	if bits < MinPacketBits || bits > MaxPacketBits {
		return Layout{}, errors.Wrapf(pkg.ErrBadParameter, "packet length %d bits", bits)
	}
	l := Layout{
		Mode:           Unpacked,
		BitLength:      bits,
		BytesPerPacket: BytesPerPacket(bits),
		PacketsPerWord: 1,
		laneBits:       BitsPerWord,
		msbMask:        MSBMask(bits),
	}
	if packed {
		switch bits {
		case 8:
			l.Mode = Packed8
		case 16:
			l.Mode = Packed16
		}
	}
	if l.Mode != Unpacked {
		l.PacketsPerWord = 4 / l.BytesPerPacket
		l.laneBits = uint(bits)
	}
	return l, nil
}

// BytesPerPacket returns the number of client bytes carrying one packet of
// bits width.
func BytesPerPacket(bits int) int {
	return (bits + BitsPerByte - 1) / BitsPerByte
}

// MSBMask returns the mask applied to the most-significant byte of a packet
// of bits width.
func MSBMask(bits int) byte {
	if r := bits & 7; r != 0 {
		return 0xFF >> (8 - r)
	}
	return 0xFF
}

// Packed reports whether more than one packet shares a word.
func (l Layout) Packed() bool {
	return l.Mode != Unpacked
}

// Unpacked returns the one-packet-per-word layout of the same width.
func (l Layout) Unpacked() Layout {
	l.Mode = Unpacked
	l.PacketsPerWord = 1
	l.laneBits = BitsPerWord
	return l
}

// WordsFor returns the number of FIFO words holding packets.
func (l Layout) WordsFor(packets int) int {
	return (packets + l.PacketsPerWord - 1) / l.PacketsPerWord
}

// Packets returns the packet count carried by n bytes.
func (l Layout) Packets(n int) (int, error) {
	if n < 0 || n%l.BytesPerPacket != 0 {
		return 0, errors.Wrapf(pkg.ErrBadParameter,
			"%d bytes is not a multiple of %d-byte packets", n, l.BytesPerPacket)
	}
	return n / l.BytesPerPacket, nil
}

// Pack fills dst with the packets in src and returns the number of words
// written. Unused lanes of the final word are zero.
func (l Layout) Pack(dst []uint32, src []byte) (int, error) {
	packets, err := l.Packets(len(src))
	if err != nil {
		return 0, err
	}
	words := l.WordsFor(packets)
	if len(dst) < words {
		return 0, errors.Wrapf(pkg.ErrBadParameter, "need %d words, have %d", words, len(dst))
	}
	clear(dst[:words])
	bpp := l.BytesPerPacket
	for i := range packets {
		p := src[i*bpp : (i+1)*bpp]
		v := uint32(p[0] & l.msbMask)
		for _, b := range p[1:] {
			v = v<<8 | uint32(b)
		}
		dst[i/l.PacketsPerWord] |= v << (uint(i%l.PacketsPerWord) * l.laneBits)
	}
	return words, nil
}

// Unpack fills dst with the packets held in src and returns the number of
// words consumed. len(dst) selects the packet count.
func (l Layout) Unpack(dst []byte, src []uint32) (int, error) {
	packets, err := l.Packets(len(dst))
	if err != nil {
		return 0, err
	}
	words := l.WordsFor(packets)
	if len(src) < words {
		return 0, errors.Wrapf(pkg.ErrBadParameter, "need %d words, have %d", words, len(src))
	}
	bpp := l.BytesPerPacket
	for i := range packets {
		v := src[i/l.PacketsPerWord] >> (uint(i%l.PacketsPerWord) * l.laneBits)
		p := dst[i*bpp : (i+1)*bpp]
		for j := bpp - 1; j >= 0; j-- {
			p[j] = byte(v)
			v >>= 8
		}
		p[0] &= l.msbMask
	}
	return words, nil
}

// PackBytesToWords converts src into FIFO words for packets of bits width.
func PackBytesToWords(src []byte, bits int, packed bool) ([]uint32, error) {
	l, err := NewLayout(bits, packed)
	if err != nil {
		return nil, err
	}
	packets, err := l.Packets(len(src))
	if err != nil {
		return nil, err
	}
	words := make([]uint32, l.WordsFor(packets))
	if _, err := l.Pack(words, src); err != nil {
		return nil, err
	}
	return words, nil
}

// UnpackWordsToBytes converts packets held in src back into client bytes.
// packets is required because the final packed word may carry unused lanes.
func UnpackWordsToBytes(src []uint32, packets, bits int, packed bool) ([]byte, error) {
	l, err := NewLayout(bits, packed)
	if err != nil {
		return nil, err
	}
	if packets < 0 {
		return nil, errors.Wrapf(pkg.ErrBadParameter, "packet count %d", packets)
	}
	out := make([]byte, packets*l.BytesPerPacket)
	if _, err := l.Unpack(out, src); err != nil {
		return nil, err
	}
	return out, nil
}
