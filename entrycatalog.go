package jarverifier

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"
)

const (
	fileHeaderSignature      = 0x04034b50
	directoryHeaderSignature = 0x02014b50
	fileHeaderLen            = 30
	directoryHeaderLen       = 46

	methodStored   = 0
	methodDeflated = 8
)

type zipCentralDir struct {
	Signature        uint32
	CreatorVersion   uint16
	ReaderVersion    uint16
	Flags            uint16
	Method           uint16
	ModifiedTime     uint16
	ModifiedDate     uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	FilenameLen      uint16
	ExtraLen         uint16
	CommentLen       uint16
	StartDisk        uint16
	InternalAttrs    uint16
	ExternalAttrs    uint32
	Offset           uint32
}

// Entry is one file record of the central directory.
type Entry struct {
	Name              string
	LocalHeaderOffset int64
	CompressedSize    int64
	UncompressedSize  int64
	Method            uint16
	CRC32             uint32

	// offset of the central directory record in the archive
	recordOffset int64
}

func (e *Entry) IsDir() bool {
	return strings.HasSuffix(e.Name, "/")
}

type entryCatalog struct {
	// files in central directory order, directories excluded
	files  []*Entry
	byName map[string]*Entry
}

type malformedRecordError struct {
	number int
	offset int64
	err    error
}

func (e *malformedRecordError) Error() string {
	return fmt.Sprintf("record #%d at offset %d: %v", e.number, e.offset, e.err)
}

// parseCentralDirectory reads count records from cd, which starts at
// cdOffset in the archive. Names seen more than once are returned in
// duplicates, each name once.
func parseCentralDirectory(cd []byte, cdOffset int64, count int) (catalog *entryCatalog, duplicates []string, err error) {
	catalog = &entryCatalog{
		byName: make(map[string]*Entry, count),
	}

	r := bytes.NewReader(cd)
	reported := make(map[string]bool)
	for i := 0; i < count; i++ {
		recordOffset := cdOffset + (r.Size() - int64(r.Len()))

		var hdr zipCentralDir
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			return nil, nil, &malformedRecordError{i + 1, recordOffset, fmt.Errorf("truncated header: %w", err)}
		}
		if hdr.Signature != directoryHeaderSignature {
			return nil, nil, &malformedRecordError{i + 1, recordOffset,
				fmt.Errorf("invalid signature 0x%08x", hdr.Signature)}
		}

		rest := int(hdr.FilenameLen) + int(hdr.ExtraLen) + int(hdr.CommentLen)
		if r.Len() < rest {
			return nil, nil, &malformedRecordError{i + 1, recordOffset,
				fmt.Errorf("variable-length fields (%d bytes) exceed the remaining %d bytes", rest, r.Len())}
		}

		name := make([]byte, hdr.FilenameLen)
		r.Read(name)
		r.Seek(int64(hdr.ExtraLen)+int64(hdr.CommentLen), io.SeekCurrent)

		e := &Entry{
			Name:              string(name),
			LocalHeaderOffset: int64(hdr.Offset),
			CompressedSize:    int64(hdr.CompressedSize),
			UncompressedSize:  int64(hdr.UncompressedSize),
			Method:            hdr.Method,
			CRC32:             hdr.CRC32,
			recordOffset:      recordOffset,
		}

		if _, prs := catalog.byName[e.Name]; prs {
			if !reported[e.Name] {
				reported[e.Name] = true
				duplicates = append(duplicates, e.Name)
			}
			continue
		}
		catalog.byName[e.Name] = e
		if !e.IsDir() {
			catalog.files = append(catalog.files, e)
		}
	}
	return catalog, duplicates, nil
}

func (c *entryCatalog) get(name string) *Entry {
	return c.byName[name]
}

// containsFile reports whether name is a non-directory entry.
func (c *entryCatalog) containsFile(name string) bool {
	e, prs := c.byName[name]
	return prs && !e.IsDir()
}

// byLocalHeaderOffset returns the files ordered by their position in the
// archive, so that entries are read sequentially.
func (c *entryCatalog) byLocalHeaderOffset() []*Entry {
	res := make([]*Entry, len(c.files))
	copy(res, c.files)
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].LocalHeaderOffset < res[j].LocalHeaderOffset
	})
	return res
}
