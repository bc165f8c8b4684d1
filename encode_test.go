package imgsync

import (
	"bytes"
	"encoding/binary"
	"image/jpeg"
	"testing"
)

const (
	markerSOF0 = 0xC0 // baseline
	markerSOF2 = 0xC2 // progressive
)

// frameMarker returns the SOFn marker of a JPEG stream, or 0 when none
// precedes the first scan.
func frameMarker(data []byte) byte {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return 0
	}
	for i := 2; i+4 <= len(data); {
		if data[i] != 0xFF {
			return 0
		}
		m := data[i+1]
		switch {
		case m == 0xFF:
			i++
			continue
		case m >= 0xC0 && m <= 0xCF && m != 0xC4 && m != 0xC8 && m != 0xCC:
			return m
		case m == 0xDA:
			return 0
		}
		i += 2 + int(binary.BigEndian.Uint16(data[i+2:]))
	}
	return 0
}

func TestFrameMarker_StdlibIsBaseline(t *testing.T) {
	t.Parallel()
	if m := frameMarker(makeJPEG(32, 32)); m != markerSOF0 {
		t.Errorf("frame marker = %#x, want baseline %#x", m, markerSOF0)
	}
	if m := frameMarker([]byte("nope")); m != 0 {
		t.Errorf("frame marker of garbage = %#x", m)
	}
}

func TestEncodeProgressive(t *testing.T) {
	t.Parallel()
	scene := makeScene(240, 180)
	for _, q := range []int{SpriteQuality, ReencodedQuality} {
		data, err := encodeProgressive(scene, q)
		if err != nil {
			t.Fatalf("quality %d: %v", q, err)
		}
		if m := frameMarker(data); m != markerSOF2 {
			t.Errorf("quality %d: frame marker %#x, want progressive %#x", q, m, markerSOF2)
		}
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("quality %d: decode: %v", q, err)
		}
		if b := img.Bounds(); b.Dx() != 240 || b.Dy() != 180 {
			t.Errorf("quality %d: decoded %v", q, b)
		}
	}

	low, err := encodeProgressive(scene, SpriteQuality)
	if err != nil {
		t.Fatal(err)
	}
	high, err := encodeProgressive(scene, ReencodedQuality)
	if err != nil {
		t.Fatal(err)
	}
	if len(low) >= len(high) {
		t.Errorf("quality %d gave %d bytes, quality %d gave %d", SpriteQuality, len(low), ReencodedQuality, len(high))
	}
}
