package master

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ardnew/softspi/pkg"
)

func TestNewLayout(t *testing.T) {
	tests := []struct {
		bits   int
		packed bool
		mode   PackingMode
		bpp    int
		ppw    int
	}{
		{1, true, Unpacked, 1, 1},
		{7, true, Unpacked, 1, 1},
		{8, true, Packed8, 1, 4},
		{8, false, Unpacked, 1, 1},
		{9, true, Unpacked, 2, 1},
		{12, true, Unpacked, 2, 1},
		{16, true, Packed16, 2, 2},
		{16, false, Unpacked, 2, 1},
		{17, true, Unpacked, 3, 1},
		{24, true, Unpacked, 3, 1},
		{32, true, Unpacked, 4, 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%t", tt.bits, tt.packed), func(t *testing.T) {
			l, err := NewLayout(tt.bits, tt.packed)
			if err != nil {
				t.Fatalf("NewLayout() error = %v", err)
			}
			if l.Mode != tt.mode || l.BytesPerPacket != tt.bpp || l.PacketsPerWord != tt.ppw {
				t.Errorf("NewLayout() = %v bpp=%d ppw=%d, want %v bpp=%d ppw=%d",
					l.Mode, l.BytesPerPacket, l.PacketsPerWord, tt.mode, tt.bpp, tt.ppw)
			}
		})
	}
}

func TestNewLayoutInvalid(t *testing.T) {
	for _, bits := range []int{0, -1, 33, 64} {
		if _, err := NewLayout(bits, true); !errors.Is(err, pkg.ErrBadParameter) {
			t.Errorf("NewLayout(%d) error = %v, want ErrBadParameter", bits, err)
		}
	}
}

func TestPackedLayouts(t *testing.T) {
	tests := []struct {
		name  string
		src   []byte
		bits  int
		words []uint32
	}{
		{"8-bit four per word", []byte{0x11, 0x22, 0x33, 0x44}, 8, []uint32{0x44332211}},
		{"8-bit padded residue", []byte{0xAA, 0xBB}, 8, []uint32{0x0000BBAA}},
		{"8-bit five packets", []byte{1, 2, 3, 4, 5}, 8, []uint32{0x04030201, 0x00000005}},
		{"16-bit msb first", []byte{0x12, 0x34}, 16, []uint32{0x00001234}},
		{"16-bit two per word", []byte{0x12, 0x34, 0x56, 0x78}, 16, []uint32{0x56781234}},
		{"12-bit masked", []byte{0xFF, 0xAB}, 12, []uint32{0x00000FAB}},
		{"24-bit", []byte{0x01, 0x02, 0x03}, 24, []uint32{0x00010203}},
		{"32-bit", []byte{0xDE, 0xAD, 0xBE, 0xEF}, 32, []uint32{0xDEADBEEF}},
		{"1-bit masked", []byte{0xFF, 0x02}, 1, []uint32{0x1, 0x0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PackBytesToWords(tt.src, tt.bits, true)
			if err != nil {
				t.Fatalf("PackBytesToWords() error = %v", err)
			}
			if diff := cmp.Diff(tt.words, got); diff != "" {
				t.Errorf("PackBytesToWords() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnpackMasksMSB(t *testing.T) {
	got, err := UnpackWordsToBytes([]uint32{0xFFFFFFFF}, 1, 12, true)
	if err != nil {
		t.Fatalf("UnpackWordsToBytes() error = %v", err)
	}
	if diff := cmp.Diff([]byte{0x0F, 0xFF}, got); diff != "" {
		t.Errorf("UnpackWordsToBytes() mismatch (-want +got):\n%s", diff)
	}
}

func TestUnpackPaddedWord(t *testing.T) {
	got, err := UnpackWordsToBytes([]uint32{0x99887766}, 3, 8, true)
	if err != nil {
		t.Fatalf("UnpackWordsToBytes() error = %v", err)
	}
	if diff := cmp.Diff([]byte{0x66, 0x77, 0x88}, got); diff != "" {
		t.Errorf("UnpackWordsToBytes() mismatch (-want +got):\n%s", diff)
	}
}

// canonical returns n packets of random data with the unused high bits of
// each packet cleared.
func canonical(r *rand.Rand, bits, packets int) []byte {
	bpp := BytesPerPacket(bits)
	buf := make([]byte, packets*bpp)
	for i := range buf {
		buf[i] = byte(r.UintN(256))
	}
	for i := 0; i < len(buf); i += bpp {
		buf[i] &= MSBMask(bits)
	}
	return buf
}

func TestRoundTrip(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for _, bits := range []int{1, 4, 7, 8, 9, 12, 16, 17, 24, 32} {
		for _, packed := range []bool{true, false} {
			for _, packets := range []int{1, 2, 3, 4, 5, 127, 512} {
				name := fmt.Sprintf("%d/%t/%d", bits, packed, packets)
				t.Run(name, func(t *testing.T) {
					src := canonical(r, bits, packets)
					words, err := PackBytesToWords(src, bits, packed)
					if err != nil {
						t.Fatalf("PackBytesToWords() error = %v", err)
					}
					got, err := UnpackWordsToBytes(words, packets, bits, packed)
					if err != nil {
						t.Fatalf("UnpackWordsToBytes() error = %v", err)
					}
					if diff := cmp.Diff(src, got); diff != "" {
						t.Errorf("round trip mismatch (-want +got):\n%s", diff)
					}
				})
			}
		}
	}
}

func TestLayoutErrors(t *testing.T) {
	l, err := NewLayout(16, true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Pack(make([]uint32, 4), []byte{1, 2, 3}); !errors.Is(err, pkg.ErrBadParameter) {
		t.Errorf("Pack(odd bytes) error = %v", err)
	}
	if _, err := l.Pack(make([]uint32, 1), make([]byte, 8)); !errors.Is(err, pkg.ErrBadParameter) {
		t.Errorf("Pack(short dst) error = %v", err)
	}
	if _, err := l.Unpack(make([]byte, 8), make([]uint32, 1)); !errors.Is(err, pkg.ErrBadParameter) {
		t.Errorf("Unpack(short src) error = %v", err)
	}
	if _, err := UnpackWordsToBytes(nil, -1, 8, true); !errors.Is(err, pkg.ErrBadParameter) {
		t.Errorf("UnpackWordsToBytes(-1) error = %v", err)
	}
}

func TestLayoutUnpacked(t *testing.T) {
	l, err := NewLayout(8, true)
	if err != nil {
		t.Fatal(err)
	}
	u := l.Unpacked()
	if u.Packed() || u.PacketsPerWord != 1 || u.BitLength != 8 {
		t.Fatalf("Unpacked() = %+v", u)
	}
	words := make([]uint32, 2)
	if _, err := u.Pack(words, []byte{0xEE, 0xFF}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{0xEE, 0xFF}, words); diff != "" {
		t.Errorf("Pack() mismatch (-want +got):\n%s", diff)
	}
}
