package imgrec

import (
	"image"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/astrogo/fitsio"

	"github.com/magis-tdaq/camrig/improc"
)

// chunkKeywords maps chunk selector names to FITS header keywords, which are
// at most 8 characters.  Chunks not listed use their name, upper cased and
// truncated.
var chunkKeywords = map[string]string{
	"ExposureTime": "EXPTIME",
	"Gain":         "GAIN",
	"BlackLevel":   "BLKLEVEL",
	"FrameID":      "FRAMEID",
	"Timestamp":    "TSTAMP",
	"OffsetX":      "OFFSETX",
	"OffsetY":      "OFFSETY",
	"Width":        "CHKWIDTH",
	"Height":       "CHKHEIGH",
	"PixelFormat":  "CHKPXFMT",
}

// ChunkCards converts chunk data to header cards in a stable order
func ChunkCards(chunks map[string]float64) []fitsio.Card {
	names := make([]string, 0, len(chunks))
	for k := range chunks {
		names = append(names, k)
	}
	sort.Strings(names)
	cards := make([]fitsio.Card, 0, len(names))
	for _, name := range names {
		kw, ok := chunkKeywords[name]
		if !ok {
			kw = strings.ToUpper(name)
			if len(kw) > 8 {
				kw = kw[:8]
			}
		}
		cards = append(cards, fitsio.Card{Name: kw, Value: chunks[name], Comment: "chunk " + name})
	}
	return cards
}

func (r *Recorder) writeFITS(w io.Writer, f Frame) error {
	im, err := improc.Mono16(f.Data, f.Width, f.Height, f.PixelFormat)
	if err != nil {
		return err
	}
	cards := []fitsio.Card{
		{Name: "SERIAL", Value: f.Serial, Comment: "camera serial number"},
		{Name: "SEQNUM", Value: f.Seq, Comment: "acquisition sequence number"},
		{Name: "PIXFMT", Value: f.PixelFormat, Comment: "camera pixel format"},
		{Name: "DATE", Value: time.Now().UTC().Format("2006-01-02T15:04:05.000"), Comment: "file creation time (UTC)"},
	}
	if r.RunID != "" {
		cards = append(cards, fitsio.Card{Name: "RUNID", Value: r.RunID, Comment: "acquisition run identifier"})
	}
	cards = append(cards, ChunkCards(f.Chunks)...)
	return WriteFITS(w, cards, im)
}

// WriteFITS streams a 16-bit FITS file to w
func WriteFITS(w io.Writer, metadata []fitsio.Card, img *image.Gray16) error {
	metadata = append(metadata, fitsio.Card{Name: "BZERO", Value: 32768}, fitsio.Card{Name: "BSCALE", Value: 1.0})
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(16, []int{width, height})
	defer im.Close()
	err = im.Header().Append(metadata...)
	if err != nil {
		return err
	}

	// FITS has no unsigned 16-bit type, values are offset by BZERO
	ints := make([]int16, 0, width*height)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			ints = append(ints, int16(int32(img.Gray16At(x, y).Y)-32768))
		}
	}
	err = im.Write(ints)
	if err != nil {
		return err
	}
	return fits.Write(im)
}
