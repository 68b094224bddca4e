package signingblock

import (
	"errors"
	"fmt"
	"io"
)

// DataSource gives random-offset access to the bytes of an archive. The
// same source may be read repeatedly and from multiple goroutines.
type DataSource interface {
	Length() int64
	WriteTo(w io.Writer, offset, size int64) error
}

var (
	errOutOfBoundsOffset = errors.New("Out of bounds offset")
	errOutOfBoundsSize   = errors.New("Out of bounds size")
)

type dataSourceReaderAt struct {
	r          io.ReaderAt
	start, end int64
}

// NewReaderAtDataSource wraps the first size bytes of r.
func NewReaderAtDataSource(r io.ReaderAt, size int64) DataSource {
	return &dataSourceReaderAt{r: r, end: size}
}

func (se *dataSourceReaderAt) WriteTo(w io.Writer, offset, size int64) error {
	if offset < 0 || offset > se.end-se.start {
		return errOutOfBoundsOffset
	} else if size < 0 || offset+size > se.end-se.start {
		return errOutOfBoundsSize
	}

	_, err := io.Copy(w, io.NewSectionReader(se.r, se.start+offset, size))
	return err
}

func (se *dataSourceReaderAt) Length() int64 {
	return se.end - se.start
}

type dataSourceBytes struct {
	data []byte
}

// NewBytesDataSource serves reads from an in-memory archive.
func NewBytesDataSource(data []byte) DataSource {
	return &dataSourceBytes{data: data}
}

func (se *dataSourceBytes) WriteTo(w io.Writer, offset, size int64) error {
	if offset < 0 || offset > int64(len(se.data)) {
		return errOutOfBoundsOffset
	} else if size < 0 || offset+size > int64(len(se.data)) {
		return errOutOfBoundsSize
	}
	_, err := w.Write(se.data[offset : offset+size])
	return err
}

func (se *dataSourceBytes) Length() int64 {
	return int64(len(se.data))
}

// ReadAt copies size bytes starting at offset out of ds.
func ReadAt(ds DataSource, offset, size int64) ([]byte, error) {
	if size < 0 || offset < 0 || offset+size > ds.Length() {
		return nil, fmt.Errorf("range %d+%d out of bounds (length %d)", offset, size, ds.Length())
	}
	w := byteWriter{dest: make([]byte, size)}
	if err := ds.WriteTo(&w, offset, size); err != nil {
		return nil, err
	}
	if w.offset != len(w.dest) {
		return nil, io.ErrUnexpectedEOF
	}
	return w.dest, nil
}

const readChunkSize = 64 * 1024

// SectionReader exposes part of ds as an io.Reader. Bytes are fetched in
// chunks so that large entries are never held in memory at once.
func SectionReader(ds DataSource, offset, size int64) io.Reader {
	return &sectionReader{ds: ds, pos: offset, end: offset + size}
}

type sectionReader struct {
	ds       DataSource
	pos, end int64
	buf      []byte
}

func (r *sectionReader) Read(p []byte) (int, error) {
	if len(r.buf) == 0 {
		if r.pos >= r.end {
			return 0, io.EOF
		}
		n := r.end - r.pos
		if n > readChunkSize {
			n = readChunkSize
		}
		chunk, err := ReadAt(r.ds, r.pos, n)
		if err != nil {
			return 0, err
		}
		r.pos += n
		r.buf = chunk
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

type byteWriter struct {
	dest   []byte
	offset int
}

func (w *byteWriter) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	} else if w.offset >= len(w.dest) {
		return 0, io.EOF
	}

	n = len(w.dest) - w.offset
	if n >= len(p) {
		n = len(p)
	} else {
		err = io.EOF
	}

	copy(w.dest[w.offset:], p[:n])
	w.offset += n
	return
}
