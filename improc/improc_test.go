package improc_test

import (
	"testing"

	"github.com/magis-tdaq/camrig/improc"
)

func TestMono8Passthrough(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4, 5}
	im, err := improc.Mono8(data, 3, 2, "Mono8")
	if err != nil {
		t.Fatal(err)
	}
	b := im.Bounds()
	if b.Dx() != 3 || b.Dy() != 2 {
		t.Errorf("expected 3x2 got %dx%d", b.Dx(), b.Dy())
	}
	for i, v := range data {
		if im.Pix[i] != v {
			t.Errorf("expected %d at %d got %d", v, i, im.Pix[i])
		}
	}
}

func TestMono8From16(t *testing.T) {
	// little endian 0x1234 and 0xff00
	data := []byte{0x34, 0x12, 0x00, 0xff}
	im, err := improc.Mono8(data, 2, 1, "Mono16")
	if err != nil {
		t.Fatal(err)
	}
	if im.Pix[0] != 0x12 || im.Pix[1] != 0xff {
		t.Errorf("expected [0x12 0xff] got %v", im.Pix)
	}
}

func TestMono8Bayer(t *testing.T) {
	data := []byte{
		10, 20,
		30, 40,
	}
	im, err := improc.Mono8(data, 2, 2, "BayerRG8")
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range im.Pix {
		if v != 25 {
			t.Errorf("expected 25 at %d got %d", i, v)
		}
	}
}

func TestMono8Unsupported(t *testing.T) {
	_, err := improc.Mono8([]byte{0}, 1, 1, "Mono12p")
	if _, ok := err.(improc.ErrUnsupportedFormat); !ok {
		t.Errorf("expected ErrUnsupportedFormat got %v", err)
	}
}

func TestMono8ShortBuffer(t *testing.T) {
	if _, err := improc.Mono8([]byte{0, 1}, 2, 2, "Mono8"); err == nil {
		t.Error("expected an error for a short buffer")
	}
}

func TestMono16Keeps8BitValues(t *testing.T) {
	im, err := improc.Mono16([]byte{200}, 1, 1, "Mono8")
	if err != nil {
		t.Fatal(err)
	}
	if v := im.Gray16At(0, 0).Y; v != 200 {
		t.Errorf("expected 200 got %d", v)
	}
}
