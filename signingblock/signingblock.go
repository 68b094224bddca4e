package signingblock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// https://source.android.com/security/apksigning/v2.html
// frameworks/base/core/java/android/util/apk/ApkSigningBlockUtils.java

const (
	eocdRecMinSize             = 22
	eocdRecMagic               = 0x06054b50
	eocdCommentSizeOffset      = 20
	eocdRecordCountOffset      = 10
	eocdCentralDirSizeOffset   = 12
	eocdCentralDirOffsetOffset = 16

	zip64LocatorSize  = 20
	zip64LocatorMagic = 0x07064b50

	apkSigBlockMinSize = 32
	apkSigBlockMagicHi = 0x3234206b636f6c42
	apkSigBlockMagicLo = 0x20676953204b5041

	blockIdSchemeV2  = 0x7109871a
	blockIdSchemeV3  = 0xf05368c0
	blockIdSchemeV31 = 0x1b93ad61
)

// Scheme IDs as referenced by the X-Android-APK-Signed attribute.
const (
	SchemeIdV2 = 2
	SchemeIdV3 = 3
)

// SchemeNames maps the scheme IDs this package can detect to display names.
var SchemeNames = map[int]string{
	SchemeIdV2: "APK Signature Scheme v2",
	SchemeIdV3: "APK Signature Scheme v3",
}

var (
	errNoSigningBlockSignature = errors.New("This apk does not have signing block signature")
	errEocdNotFound            = errors.New("EOCD record not found.")
)

// ZipSections describes where the central directory and the End of Central
// Directory record live inside an archive.
type ZipSections struct {
	CentralDirectoryOffset      int64
	CentralDirectorySize        int64
	CentralDirectoryRecordCount int
	EocdOffset                  int64
	Eocd                        []byte
}

type signingBlockNotFoundError struct {
	err error
}

func (e *signingBlockNotFoundError) Error() string {
	return "Signature Block signature not found: " + e.err.Error()
}

func IsSigningBlockNotFoundError(err error) bool {
	var nf *signingBlockNotFoundError
	return errors.As(err, &nf)
}

// FindZipSections locates the End of Central Directory record, first
// assuming an empty archive comment and then scanning back over the longest
// comment the format permits.
func FindZipSections(ds DataSource) (*ZipSections, error) {
	if ds.Length() < eocdRecMinSize {
		return nil, fmt.Errorf("APK file is too short (%d bytes).", ds.Length())
	}

	res, err := findEocdMaxCommentSize(ds, 0)
	if err == nil {
		return res, nil
	}
	res, err = findEocdMaxCommentSize(ds, math.MaxUint16)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func findEocdMaxCommentSize(ds DataSource, maxCommentSize int) (*ZipSections, error) {
	if int64(maxCommentSize) > ds.Length()-eocdRecMinSize {
		maxCommentSize = int(ds.Length() - eocdRecMinSize)
	}

	bufOffsetInFile := ds.Length() - int64(eocdRecMinSize+maxCommentSize)
	buf, err := ReadAt(ds, bufOffsetInFile, int64(eocdRecMinSize+maxCommentSize))
	if err != nil {
		return nil, err
	}

	emptyCommentStart := len(buf) - eocdRecMinSize
	for commentSize := 0; commentSize <= maxCommentSize; commentSize++ {
		pos := emptyCommentStart - commentSize
		if binary.LittleEndian.Uint32(buf[pos:pos+4]) != eocdRecMagic {
			continue
		}
		if int(binary.LittleEndian.Uint16(buf[pos+eocdCommentSizeOffset:])) != commentSize {
			continue
		}

		s := &ZipSections{
			EocdOffset:                  bufOffsetInFile + int64(pos),
			CentralDirectoryOffset:      int64(binary.LittleEndian.Uint32(buf[pos+eocdCentralDirOffsetOffset:])),
			CentralDirectorySize:        int64(binary.LittleEndian.Uint32(buf[pos+eocdCentralDirSizeOffset:])),
			CentralDirectoryRecordCount: int(binary.LittleEndian.Uint16(buf[pos+eocdRecordCountOffset:])),
			Eocd:                        buf[pos:],
		}

		if s.CentralDirectoryOffset > s.EocdOffset {
			return nil, fmt.Errorf("ZIP Central Directory offset ouf of range: %d. Zip End of Central Directory offset: %d",
				s.CentralDirectoryOffset, s.EocdOffset)
		}
		if s.CentralDirectoryOffset+s.CentralDirectorySize != s.EocdOffset {
			return nil, errors.New("ZIP Central Directory is not immediately followed by End of Central Directory")
		}
		if isZip64(ds, s.EocdOffset) {
			return nil, errors.New("ZIP64 archives are not supported")
		}
		return s, nil
	}
	return nil, errEocdNotFound
}

func isZip64(ds DataSource, eocdOffset int64) bool {
	locatorPos := eocdOffset - zip64LocatorSize
	if locatorPos < 0 {
		return false
	}

	magic, err := ReadAt(ds, locatorPos, 4)
	if err != nil {
		return false
	}
	return binary.LittleEndian.Uint32(magic) == zip64LocatorMagic
}

// FindSchemeBlocks reports which block-based signature schemes have a block
// in the APK Signing Block that precedes the central directory. The blocks
// themselves are not verified. A missing signing block yields an error for
// which IsSigningBlockNotFoundError is true.
func FindSchemeBlocks(ds DataSource, sections *ZipSections) (map[int]bool, error) {
	sigBlock, err := findApkSigningBlock(ds, sections.CentralDirectoryOffset)
	if err != nil {
		return nil, &signingBlockNotFoundError{err}
	}

	res := make(map[int]bool)
	pairs := bytes.NewReader(sigBlock[8 : len(sigBlock)-24])
	entryCount := 0
	for pairs.Len() > 0 {
		entryCount++

		if pairs.Len() < 8 {
			return res, fmt.Errorf("Insufficient data to read size of APK Signing Block entry #%d", entryCount)
		}

		var entryLen int64
		if err := binary.Read(pairs, binary.LittleEndian, &entryLen); err != nil {
			return res, err
		}
		if entryLen < 4 || entryLen > int64(pairs.Len()) {
			return res, fmt.Errorf("APK Signing Block entry #%d size out of range: %d, available: %d",
				entryCount, entryLen, pairs.Len())
		}

		var id uint32
		if err := binary.Read(pairs, binary.LittleEndian, &id); err != nil {
			return res, fmt.Errorf("failed to read signing block id: %s", err.Error())
		}

		switch id {
		case blockIdSchemeV2:
			res[SchemeIdV2] = true
		case blockIdSchemeV3, blockIdSchemeV31:
			res[SchemeIdV3] = true
		}

		if _, err := pairs.Seek(entryLen-4, io.SeekCurrent); err != nil {
			return res, err
		}
	}
	return res, nil
}

func findApkSigningBlock(ds DataSource, centralDirOffset int64) ([]byte, error) {
	if centralDirOffset < apkSigBlockMinSize {
		return nil, errNoSigningBlockSignature
	}

	footer, err := ReadAt(ds, centralDirOffset-24, 24)
	if err != nil {
		return nil, err
	}

	if binary.LittleEndian.Uint64(footer[8:]) != apkSigBlockMagicLo ||
		binary.LittleEndian.Uint64(footer[16:]) != apkSigBlockMagicHi {
		return nil, errNoSigningBlockSignature
	}

	blockSizeFooter := binary.LittleEndian.Uint64(footer)
	if blockSizeFooter < uint64(len(footer)) || blockSizeFooter > math.MaxInt32-8 {
		return nil, fmt.Errorf("APK Signing Block size out of range: %d", blockSizeFooter)
	}

	totalSize := int64(blockSizeFooter + 8)
	if totalSize < apkSigBlockMinSize {
		return nil, fmt.Errorf("Apk Signing Block is too small: %d vs %d", totalSize, apkSigBlockMinSize)
	}

	offset := centralDirOffset - totalSize
	if offset < 0 {
		return nil, fmt.Errorf("APK Signing Block offset out of range: %d", offset)
	}

	block, err := ReadAt(ds, offset, totalSize)
	if err != nil {
		return nil, err
	}

	if blockSizeHeader := binary.LittleEndian.Uint64(block); blockSizeHeader != blockSizeFooter {
		return nil, fmt.Errorf("APK Signing Block sizes in header and footer do not match: %d vs %d",
			blockSizeHeader, blockSizeFooter)
	}
	return block, nil
}
