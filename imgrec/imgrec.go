// Package imgrec contains an image recorder used to save camera frames to disk.
package imgrec

import (
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/magis-tdaq/camrig/improc"
)

// DefaultPrefix begins the name of every frame file
const DefaultPrefix = "Trigger"

const (
	// JPEG is the extension of 8-bit JPEG output
	JPEG = "jpg"

	// FITS is the extension of 16-bit FITS output
	FITS = "fits"
)

// ErrNotWritable is returned when a file cannot be created in the output folder
var ErrNotWritable = errors.New("output folder is not writable")

// Frame is a frame copied out of a camera buffer, ready to be recorded
type Frame struct {
	// Serial is the serial number of the camera, empty if it could not be read
	Serial string

	// Seq is the sequence number of the loop iteration that drained it
	Seq int

	Width, Height int
	PixelFormat   string

	// Data is the raw pixel buffer
	Data []byte

	// Chunks is the chunk data embedded in the frame
	Chunks map[string]float64
}

// Filename returns prefix-serial-seq.ext.  The serial segment is left out
// when serial is empty.
func Filename(prefix, serial string, seq int, ext string) string {
	if serial == "" {
		return fmt.Sprintf("%s-%d.%s", prefix, seq, ext)
	}
	return fmt.Sprintf("%s-%s-%d.%s", prefix, serial, seq, ext)
}

// CheckWritable creates, writes, and removes a file in dir.  The folder is
// created if it does not exist.
func CheckWritable(dir string) error {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return errors.Wrapf(ErrNotWritable, "%s: %v", dir, err)
	}
	f, err := ioutil.TempFile(dir, ".writetest-")
	if err != nil {
		return errors.Wrapf(ErrNotWritable, "%s: %v", dir, err)
	}
	name := f.Name()
	_, err = f.Write([]byte("test"))
	cerr := f.Close()
	os.Remove(name)
	if err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(ErrNotWritable, "%s: %v", dir, err)
	}
	return nil
}

// Recorder writes frames into one folder with deterministic filenames.
// It embeds a mutex; Save and the HTTP wrapper lock it.
type Recorder struct {
	sync.Mutex

	// Root is the output folder
	Root string

	// Prefix is the prefix for the filenames
	Prefix string

	// Format is JPEG or FITS
	Format string

	// RunID is written to the header of FITS files
	RunID string

	// Enabled is a flag unused by this struct that allows consumers to disable its use in their code
	Enabled bool
}

// NewRecorder returns a recorder writing format files into root
func NewRecorder(root, format, runID string) *Recorder {
	if format == "" {
		format = JPEG
	}
	return &Recorder{Root: root, Prefix: DefaultPrefix, Format: format, RunID: runID, Enabled: true}
}

// Path returns the file a frame from camera serial at sequence seq is saved to
func (r *Recorder) Path(serial string, seq int) string {
	return filepath.Join(r.Root, Filename(r.Prefix, serial, seq, r.Format))
}

// Save converts f and writes it to disk, returning the path.  A partially
// written file is removed.
func (r *Recorder) Save(f Frame) (string, error) {
	r.Lock()
	defer r.Unlock()
	path := r.Path(f.Serial, f.Seq)
	fid, err := os.Create(path)
	if err != nil {
		return path, err
	}
	switch r.Format {
	case JPEG:
		var im *image.Gray
		im, err = improc.Mono8(f.Data, f.Width, f.Height, f.PixelFormat)
		if err == nil {
			err = WriteJPEG(fid, im)
		}
	case FITS:
		err = r.writeFITS(fid, f)
	default:
		err = fmt.Errorf("unknown output format %q", r.Format)
	}
	cerr := fid.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return path, err
	}
	return path, nil
}

// Incr scans the output folder and returns one more than the highest
// sequence number already written for serial
func (r *Recorder) Incr(serial string) int {
	r.Lock()
	defer r.Unlock()
	files, err := ioutil.ReadDir(r.Root)
	if err != nil {
		return 1
	}
	head := r.Prefix + "-"
	if serial != "" {
		head += serial + "-"
	}
	tail := "." + r.Format
	count := 0
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		fn := file.Name()
		if !strings.HasPrefix(fn, head) || !strings.HasSuffix(fn, tail) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(fn, head), tail))
		if err != nil {
			continue
		}
		if count < n {
			count = n
		}
	}
	return count + 1
}

// WriteJPEG encodes an 8-bit image as a JPEG at the default quality
func WriteJPEG(w io.Writer, im *image.Gray) error {
	return jpeg.Encode(w, im, nil)
}
