package jarverifier

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/avast/jarverifier/signingblock"
)

type zipLocalHeader struct {
	Signature        uint32
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
}

// writeEntryTo streams the uncompressed contents of e into w. cdOffset
// bounds the area where local file data may live.
func writeEntryTo(w io.Writer, ds DataSource, e *Entry, cdOffset int64) error {
	if e.LocalHeaderOffset+fileHeaderLen > cdOffset {
		return fmt.Errorf("local file header offset %d out of range", e.LocalHeaderOffset)
	}

	raw, err := signingblock.ReadAt(ds, e.LocalHeaderOffset, fileHeaderLen)
	if err != nil {
		return err
	}

	var hdr zipLocalHeader
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &hdr); err != nil {
		return err
	}
	if hdr.Signature != fileHeaderSignature {
		return fmt.Errorf("invalid local file header signature 0x%08x", hdr.Signature)
	}

	nameOffset := e.LocalHeaderOffset + fileHeaderLen
	dataOffset := nameOffset + int64(hdr.FilenameLen) + int64(hdr.ExtraLen)
	if dataOffset > cdOffset {
		return fmt.Errorf("local file header fields overlap the central directory")
	}

	name, err := signingblock.ReadAt(ds, nameOffset, int64(hdr.FilenameLen))
	if err != nil {
		return err
	}
	if string(name) != e.Name {
		return fmt.Errorf("name mismatch between central directory (%s) and local file header (%s)", e.Name, name)
	}

	if dataOffset+e.CompressedSize > cdOffset {
		return fmt.Errorf("data of size %d at offset %d overlaps the central directory", e.CompressedSize, dataOffset)
	}

	src := signingblock.SectionReader(ds, dataOffset, e.CompressedSize)
	switch e.Method {
	case methodStored:
		if e.CompressedSize != e.UncompressedSize {
			return fmt.Errorf("stored entry sizes differ: compressed %d, uncompressed %d",
				e.CompressedSize, e.UncompressedSize)
		}
		_, err = io.Copy(w, src)
		return err
	case methodDeflated:
		fr := flate.NewReader(src)
		defer fr.Close()

		n, err := io.Copy(w, io.LimitReader(fr, e.UncompressedSize+1))
		if err != nil {
			return fmt.Errorf("failed to inflate: %w", err)
		}
		if n != e.UncompressedSize {
			return fmt.Errorf("inflated size %d does not match declared size %d", n, e.UncompressedSize)
		}
		return nil
	default:
		return fmt.Errorf("unsupported compression method %d", e.Method)
	}
}

func readEntry(ds DataSource, e *Entry, cdOffset int64) ([]byte, error) {
	var buf bytes.Buffer
	if e.UncompressedSize < 64*1024*1024 {
		buf.Grow(int(e.UncompressedSize))
	}
	if err := writeEntryTo(&buf, ds, e, cdOffset); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
