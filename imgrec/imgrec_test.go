package imgrec_test

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/go-chi/chi"

	"github.com/magis-tdaq/camrig/generichttp"
	"github.com/magis-tdaq/camrig/imgrec"
)

func TestFilename(t *testing.T) {
	cases := []struct {
		serial string
		seq    int
		ext    string
		want   string
	}{
		{"19000000", 1, imgrec.JPEG, "Trigger-19000000-1.jpg"},
		{"19000000", 42, imgrec.FITS, "Trigger-19000000-42.fits"},
		{"", 3, imgrec.JPEG, "Trigger-3.jpg"},
	}
	for _, c := range cases {
		if got := imgrec.Filename(imgrec.DefaultPrefix, c.serial, c.seq, c.ext); got != c.want {
			t.Errorf("expected %s got %s", c.want, got)
		}
	}
}

func TestCheckWritable(t *testing.T) {
	dir := t.TempDir()
	if err := imgrec.CheckWritable(filepath.Join(dir, "sub")); err != nil {
		t.Fatal(err)
	}
	files, _ := ioutil.ReadDir(filepath.Join(dir, "sub"))
	if len(files) != 0 {
		t.Errorf("expected the test file to be removed, found %d files", len(files))
	}
}

func TestCheckWritableFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := ioutil.WriteFile(blocker, []byte("x"), 0666); err != nil {
		t.Fatal(err)
	}
	err := imgrec.CheckWritable(blocker)
	if !errors.Is(err, imgrec.ErrNotWritable) {
		t.Errorf("expected ErrNotWritable got %v", err)
	}
}

func frame(serial string, seq int) imgrec.Frame {
	w, h := 8, 4
	data := make([]byte, w*h)
	for i := range data {
		data[i] = byte(i * 4)
	}
	return imgrec.Frame{
		Serial: serial, Seq: seq, Width: w, Height: h, PixelFormat: "Mono8", Data: data,
		Chunks: map[string]float64{"ExposureTime": 1500, "Gain": 2.5, "LinePitch": 8},
	}
}

func TestSaveJPEG(t *testing.T) {
	dir := t.TempDir()
	rec := imgrec.NewRecorder(dir, imgrec.JPEG, "")
	path, err := rec.Save(frame("123", 1))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "Trigger-123-1.jpg" {
		t.Errorf("expected Trigger-123-1.jpg got %s", path)
	}
	fid, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fid.Close()
	im, err := jpeg.Decode(fid)
	if err != nil {
		t.Fatal(err)
	}
	if b := im.Bounds(); b.Dx() != 8 || b.Dy() != 4 {
		t.Errorf("expected 8x4 got %dx%d", b.Dx(), b.Dy())
	}
}

func TestSaveBadFormatLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	rec := imgrec.NewRecorder(dir, imgrec.JPEG, "")
	f := frame("123", 1)
	f.PixelFormat = "YCbCr422"
	if _, err := rec.Save(f); err == nil {
		t.Fatal("expected an error for an unsupported pixel format")
	}
	files, _ := ioutil.ReadDir(dir)
	if len(files) != 0 {
		t.Errorf("expected the partial file to be removed, found %d files", len(files))
	}
}

func TestSaveFITS(t *testing.T) {
	dir := t.TempDir()
	rec := imgrec.NewRecorder(dir, imgrec.FITS, "run-1")
	path, err := rec.Save(frame("123", 7))
	if err != nil {
		t.Fatal(err)
	}
	fid, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fid.Close()
	f, err := fitsio.Open(fid)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	hdr := f.HDU(0).Header()
	if c := hdr.Get("RUNID"); c == nil || strings.TrimSpace(fmt.Sprint(c.Value)) != "run-1" {
		t.Errorf("expected RUNID run-1 got %v", c)
	}
	if c := hdr.Get("EXPTIME"); c == nil || fmt.Sprint(c.Value) != "1500" {
		t.Errorf("expected EXPTIME 1500 got %v", c)
	}
	if c := hdr.Get("LINEPITC"); c == nil {
		t.Error("expected a truncated card for an unmapped chunk")
	}
	if hdr.Axes()[0] != 8 || hdr.Axes()[1] != 4 {
		t.Errorf("expected axes [8 4] got %v", hdr.Axes())
	}
}

func TestWriteFITSBlocks(t *testing.T) {
	var buf bytes.Buffer
	f := frame("", 1)
	cards := imgrec.ChunkCards(f.Chunks)
	if len(cards) != 3 || cards[0].Name != "EXPTIME" || cards[1].Name != "GAIN" {
		t.Errorf("expected sorted chunk cards got %v", cards)
	}
	if err := imgrec.WriteFITS(&buf, cards, image.NewGray16(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	if buf.Len()%2880 != 0 {
		t.Errorf("expected a multiple of the FITS block size got %d bytes", buf.Len())
	}
}

func TestIncr(t *testing.T) {
	dir := t.TempDir()
	rec := imgrec.NewRecorder(dir, imgrec.JPEG, "")
	if n := rec.Incr("123"); n != 1 {
		t.Errorf("expected 1 in an empty folder got %d", n)
	}
	for _, fn := range []string{"Trigger-123-4.jpg", "Trigger-123-9.jpg", "Trigger-456-20.jpg", "Trigger-123-2.fits"} {
		ioutil.WriteFile(filepath.Join(dir, fn), nil, 0666)
	}
	if n := rec.Incr("123"); n != 10 {
		t.Errorf("expected 10 got %d", n)
	}
}

type table struct {
	rt generichttp.RouteTable
}

func (t table) RT() generichttp.RouteTable { return t.rt }

func TestHTTPWrapper(t *testing.T) {
	dir := t.TempDir()
	rec := imgrec.NewRecorder(dir, imgrec.JPEG, "")
	tbl := table{generichttp.RouteTable{}}
	imgrec.NewHTTPWrapper(rec).Inject(tbl)
	r := chi.NewRouter()
	tbl.RT().Bind(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/autowrite/format", "application/json", strings.NewReader(`{"str":"fits"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || rec.Format != imgrec.FITS {
		t.Errorf("expected format fits got %s (status %d)", rec.Format, resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/autowrite/format", "application/json", strings.NewReader(`{"str":"png"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for png got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/autowrite/prefix")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := ioutil.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.TrimSpace(string(body)) != `{"str":"Trigger"}` {
		t.Errorf("expected prefix Trigger got %s", body)
	}
}
